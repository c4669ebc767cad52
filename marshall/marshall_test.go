package marshall

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/eventzio/eventz/internal/testing/fake"
	"github.com/eventzio/eventz/resolver"
	"github.com/stretchr/testify/require"
)

func TestMarshall_Marshal_Deterministic(t *testing.T) {
	m := makeEngine(t)

	order := orderPlaced{
		Amount: 3,
		Items:  []string{"book", "pen"},
		Meta:   map[string]string{"b": "2", "a": "1"},
	}

	data, err := m.Marshal(order)
	require.NoError(t, err)
	require.Equal(t, `{"Amount":3,"Items":["book","pen"],"Meta":{"a":"1","b":"2"},`+
		`"__fqn__":"example.OrderPlaced"}`, string(data))

	again, err := m.Marshal(order)
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestMarshall_RoundTrip(t *testing.T) {
	m := makeEngine(t)

	order := orderPlaced{
		Amount: 42,
		Items:  []string{"hat"},
		Meta:   map[string]string{"note": "gift"},
	}

	data, err := m.Marshal(order)
	require.NoError(t, err)

	value, err := m.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, order, value)
}

func TestMarshall_RoundTrip_Metadata(t *testing.T) {
	m := makeEngine(t)

	review := reviewStarted{
		Participants: []string{"alice", "bob"},
		msgid:        "m-117",
		at:           time.Date(2023, 5, 4, 12, 30, 0, 0, time.UTC),
	}

	data, err := m.Marshal(review)
	require.NoError(t, err)

	tree := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &tree))
	require.Equal(t, "m-117", tree[KeyMsgID])
	require.Equal(t, float64(2), tree[KeyVersion])
	require.Equal(t, "2023-05-04T12:30:00Z", tree[KeyTimestamp])

	value, err := m.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, review, value)
}

func TestMarshall_RoundTrip_Enum(t *testing.T) {
	m := makeEngine(t)

	data, err := m.Marshal(black)
	require.NoError(t, err)
	require.Equal(t, `{"__fqn__":"example.Color","_name_":"BLACK","_value_":1}`,
		string(data))

	value, err := m.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, black, value)
}

func TestMarshall_RoundTrip_Nested(t *testing.T) {
	m := makeEngine(t)

	value, err := m.Marshal([]interface{}{
		"text",
		true,
		nil,
		orderPlaced{Amount: 1},
		white,
	})
	require.NoError(t, err)

	decoded, err := m.Unmarshal(value)
	require.NoError(t, err)

	list, ok := decoded.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 5)
	require.Equal(t, "text", list[0])
	require.Equal(t, true, list[1])
	require.Nil(t, list[2])
	require.Equal(t, orderPlaced{Amount: 1}, list[3])
	require.Equal(t, white, list[4])
}

func TestMarshall_Serialize_CodecPrecedence(t *testing.T) {
	m := makeEngine(t)

	codec := fake.NewCodec(orderPlaced{})
	require.NoError(t, m.RegisterCodec("fake", codec))

	// The value would satisfy generic-object reflection but the codec has
	// precedence.
	tree, err := m.Serialize(orderPlaced{Amount: 7})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{
		KeyCodec:  "fake",
		KeyParams: orderPlaced{Amount: 7},
	}, tree)
	require.Equal(t, 1, codec.Call.Len())
}

func TestMarshall_Serialize_CodecFailure(t *testing.T) {
	m := makeEngine(t)

	require.NoError(t, m.RegisterCodec("bad", fake.NewBadCodec(orderPlaced{})))

	_, err := m.Serialize(orderPlaced{})
	require.EqualError(t, err, "codec 'bad' failed to encode: fake error")
}

func TestMarshall_Serialize_UnknownType(t *testing.T) {
	m := makeEngine(t)

	_, err := m.Serialize(stranger{})
	require.ErrorIs(t, err, resolver.ErrNotResolved)
}

func TestMarshall_Serialize_Cycle(t *testing.T) {
	m := makeEngine(t)

	a := &listNode{Value: 1}
	b := &listNode{Value: 2, Next: a}
	a.Next = b

	_, err := m.Serialize(a)
	require.ErrorIs(t, err, ErrCyclicStructure)
}

func TestMarshall_Serialize_CycleInMapping(t *testing.T) {
	m := makeEngine(t)

	mapping := map[string]interface{}{}
	mapping["self"] = mapping

	_, err := m.Serialize(mapping)
	require.ErrorIs(t, err, ErrCyclicStructure)
}

func TestMarshall_Serialize_SharedPointer(t *testing.T) {
	m := makeEngine(t)

	// A diamond is not a cycle: the same pointer on two sibling branches
	// must serialize fine.
	shared := &listNode{Value: 3}

	tree, err := m.Serialize([]interface{}{shared, shared})
	require.NoError(t, err)
	require.Len(t, tree, 2)
}

func TestMarshall_Serialize_EmptySliceAlias(t *testing.T) {
	m := makeEngine(t)

	// The alias shares the parent's data pointer but holds no element, so
	// the traversal terminates.
	items := make([]interface{}, 1)
	items[0] = items[:0]

	tree, err := m.Serialize(items)
	require.NoError(t, err)
	require.Equal(t, []interface{}{[]interface{}{}}, tree)
}

func TestMarshall_Serialize_Exporter(t *testing.T) {
	m := makeEngine(t)

	tree, err := m.Serialize(ledgerEntry{amount: 5})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{
		KeyFQN:   "example.LedgerEntry",
		"Amount": 5,
	}, tree)
}

func TestMarshall_Deserialize_Mapping(t *testing.T) {
	m := makeEngine(t)

	value, err := m.Unmarshal([]byte(`{"b":2,"a":"x","c":[1,2]}`))
	require.NoError(t, err)

	doc, ok := value.(Document)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b", "c"}, doc.Keys())

	item, found := doc.Get("b")
	require.True(t, found)
	require.Equal(t, json.Number("2"), item)

	// Serializing the document again restores the canonical form.
	data, err := m.Marshal(doc)
	require.NoError(t, err)
	require.Equal(t, `{"a":"x","b":2,"c":[1,2]}`, string(data))
}

func TestMarshall_Deserialize_UnknownCodec(t *testing.T) {
	m := makeEngine(t)

	_, err := m.Unmarshal([]byte(`{"__codec__":"nope","params":1}`))
	require.ErrorIs(t, err, ErrCodecNotFound)
	require.EqualError(t, err, "codec 'nope' is not registered: codec not found")
}

func TestMarshall_Deserialize_UnknownTypes(t *testing.T) {
	m := makeEngine(t)

	_, err := m.Unmarshal([]byte(`{"__fqn__":"ghost.Type"}`))
	require.ErrorIs(t, err, resolver.ErrNotResolved)

	_, err = m.Unmarshal([]byte(`{"__fqn__":"ghost.Type","_name_":"A","_value_":1}`))
	require.ErrorIs(t, err, resolver.ErrNotResolved)
}

func TestMarshall_Deserialize_MemberKeyField(t *testing.T) {
	res, err := resolver.NewResolver(map[string]string{
		"example.Tagged": "example.Tagged",
	})
	require.NoError(t, err)

	factory := fake.NewFactory(orderPlaced{})

	types := NewTypeRegistry()
	types.Register("example.Tagged", factory)

	m := NewMarshall(res, types, nil)

	// With only one of the member keys present this is an object envelope,
	// and the field reaches the factory like any other.
	_, err = m.Unmarshal([]byte(`{"__fqn__":"example.Tagged","_name_":"tag"}`))
	require.NoError(t, err)
	require.Equal(t, 1, factory.Call.Len())
	require.Equal(t, map[string]interface{}{"_name_": "tag"}, factory.Call.Get(0, 0))
}

func TestMarshall_Deserialize_BadConstruction(t *testing.T) {
	m := makeEngine(t)

	_, err := m.Unmarshal([]byte(`{"__fqn__":"example.OrderPlaced","Ghost":1}`))
	require.ErrorIs(t, err, ErrConstruction)

	_, err = m.Unmarshal([]byte(`{"__fqn__":"example.Color","_name_":"RED","_value_":7}`))
	require.ErrorIs(t, err, ErrConstruction)
}

func TestMarshall_Deserialize_CodecFailure(t *testing.T) {
	m := makeEngine(t)

	require.NoError(t, m.RegisterCodec("bad", fake.NewBadCodec(orderPlaced{})))

	_, err := m.Unmarshal([]byte(`{"__codec__":"bad","params":1}`))
	require.EqualError(t, err, "codec 'bad' failed to decode: fake error")
}

func TestMarshall_Deserialize_Upgrade(t *testing.T) {
	m := makeEngine(t)

	value, err := m.Unmarshal([]byte(
		`{"__fqn__":"example.Account","__version__":1,"Login":"bob"}`))
	require.NoError(t, err)
	require.Equal(t, account{Name: "bob"}, value)

	// A payload at the current version skips the migration.
	value, err = m.Unmarshal([]byte(
		`{"__fqn__":"example.Account","__version__":2,"Name":"eve"}`))
	require.NoError(t, err)
	require.Equal(t, account{Name: "eve"}, value)
}

func TestMarshall_Unmarshal_BadInput(t *testing.T) {
	m := makeEngine(t)

	_, err := m.Unmarshal([]byte(`{`))
	require.Error(t, err)
}

func TestMarshall_CodecManagement(t *testing.T) {
	m := makeEngine(t)

	require.False(t, m.HasCodec("fake"))

	require.NoError(t, m.RegisterCodec("fake", fake.NewCodec(orderPlaced{})))
	require.True(t, m.HasCodec("fake"))

	require.NoError(t, m.DeregisterCodec("fake"))
	require.False(t, m.HasCodec("fake"))

	err := m.DeregisterCodec("fake")
	require.ErrorIs(t, err, ErrCodecNotFound)
}

func TestCanonicalize(t *testing.T) {
	out, err := Canonicalize([]byte("{\n  \"b\": 2,\n  \"a\": [1.5, true]\n}"))
	require.NoError(t, err)
	require.Equal(t, `{"a":[1.5,true],"b":2}`, string(out))

	_, err = Canonicalize([]byte("oops"))
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	report, err := Inspect([]byte(`[
		{"__fqn__":"example.OrderPlaced","Amount":1},
		{"__fqn__":"example.Color","_name_":"BLACK","_value_":1},
		{"__codec__":"eventz.datetime","params":"2023-05-04T12:30:00Z"}
	]`))

	require.NoError(t, err)
	require.Equal(t, 1, report.Objects)
	require.Equal(t, 1, report.Enums)
	require.Equal(t, 1, report.CodecEnvelopes)
	require.Equal(t, map[string]int{
		"example.OrderPlaced": 1,
		"example.Color":       1,
	}, report.Types)
	require.Equal(t, map[string]int{"eventz.datetime": 1}, report.Codecs)

	_, err = Inspect([]byte("oops"))
	require.Error(t, err)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeEngine(t *testing.T) *Marshall {
	t.Helper()

	res, err := resolver.NewResolver(map[string]string{
		"example.OrderPlaced": resolver.PathOf(orderPlaced{}),
		"example.Review":      resolver.PathOf(reviewStarted{}),
		"example.Color":       resolver.PathOf(white),
		"example.Node":        resolver.PathOf(listNode{}),
		"example.LedgerEntry": resolver.PathOf(ledgerEntry{}),
		"example.Account":     resolver.PathOf(account{}),
	})
	require.NoError(t, err)

	types := NewTypeRegistry()
	types.RegisterValue(orderPlaced{})
	types.RegisterValue(reviewStarted{})
	types.RegisterValue(listNode{})
	types.Register(resolver.PathOf(account{}), accountFactory{})
	types.RegisterEnum(resolver.PathOf(white), NewEnumFactory(white, black))

	return NewMarshall(res, types, nil)
}

type orderPlaced struct {
	Amount int
	Items  []string
	Meta   map[string]string
}

type reviewStarted struct {
	Participants []string

	msgid string
	at    time.Time
}

func (e reviewStarted) Version() int {
	return 2
}

func (e reviewStarted) MessageID() string {
	return e.msgid
}

func (e reviewStarted) Timestamp() time.Time {
	return e.at
}

func (e *reviewStarted) SetMessageID(id string) {
	e.msgid = id
}

func (e *reviewStarted) SetTimestamp(t time.Time) {
	e.at = t
}

type color int

const (
	white color = iota
	black
)

func (c color) MemberName() string {
	if c == white {
		return "WHITE"
	}

	return "BLACK"
}

func (c color) MemberValue() interface{} {
	return int(c)
}

type listNode struct {
	Value int
	Next  *listNode
}

type ledgerEntry struct {
	amount int
}

func (e ledgerEntry) ExportFields() map[string]interface{} {
	return map[string]interface{}{
		"Amount":     e.amount,
		"__shadow__": "skipped",
	}
}

type stranger struct{}

type account struct {
	Name string
}

// accountFactory migrates version 1 payloads, where the name was stored
// under the Login key.
//
// - implements marshall.Factory
// - implements marshall.Upgrader
type accountFactory struct{}

func (accountFactory) New(fields map[string]interface{}) (interface{}, error) {
	name, _ := fields["Name"].(string)

	return account{Name: name}, nil
}

func (accountFactory) Upgrade(version int, fields map[string]interface{}) (map[string]interface{}, error) {
	if version < 2 {
		fields["Name"] = fields["Login"]
		delete(fields, "Login")
	}

	return fields, nil
}
