package marshall

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/eventzio/eventz/resolver"
	"golang.org/x/xerrors"
)

var timeType = reflect.TypeOf(time.Time{})

// Marshall is the engine orchestrating the recursive traversal. It owns a
// codec registry consulted first on every node, a type registry acting as
// the allow-list of reconstructable types, and a name resolver translating
// between the wire-visible type names and the private paths of the
// registry.
//
// - implements marshall.Marshaller
type Marshall struct {
	resolver *resolver.Resolver
	types    *TypeRegistry
	codecs   *CodecRegistry
}

// NewMarshall creates an engine from the resolver and the registries. Nil
// registries are replaced by empty ones.
func NewMarshall(res *resolver.Resolver, types *TypeRegistry, codecs *CodecRegistry) *Marshall {
	if types == nil {
		types = NewTypeRegistry()
	}

	if codecs == nil {
		codecs = NewCodecRegistry()
	}

	return &Marshall{
		resolver: res,
		types:    types,
		codecs:   codecs,
	}
}

// RegisterCodec adds the codec to the engine's registry.
func (m *Marshall) RegisterCodec(name string, codec Codec) error {
	return m.codecs.Register(name, codec)
}

// DeregisterCodec removes the codec from the engine's registry. It returns
// an error when the name was never registered.
func (m *Marshall) DeregisterCodec(name string) error {
	return m.codecs.Deregister(name)
}

// HasCodec returns true when a codec is registered under the name.
func (m *Marshall) HasCodec(name string) bool {
	return m.codecs.Has(name)
}

// Marshal implements marshall.Marshaller. It serializes the value and
// renders the tree as canonical JSON: compact and with the object keys in
// sorted order, so the output is byte-identical across calls.
func (m *Marshall) Marshal(value interface{}) ([]byte, error) {
	tree, err := m.Serialize(value)
	if err != nil {
		promErrors.WithLabelValues("marshal").Inc()
		return nil, err
	}

	data, err := json.Marshal(tree)
	if err != nil {
		promErrors.WithLabelValues("marshal").Inc()
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	promMarshals.Inc()
	promPayloadSize.Observe(float64(len(data)))

	return data, nil
}

// Unmarshal implements marshall.Marshaller. It parses the text and
// deserializes the tree. Numbers are kept as json.Number so integers
// survive the round trip.
func (m *Marshall) Unmarshal(data []byte) (interface{}, error) {
	node, err := parse(data)
	if err != nil {
		promErrors.WithLabelValues("unmarshal").Inc()
		return nil, err
	}

	value, err := m.Deserialize(node)
	if err != nil {
		promErrors.WithLabelValues("unmarshal").Inc()
		return nil, err
	}

	promUnmarshals.Inc()

	return value, nil
}

// Serialize implements marshall.Marshaller. It classifies the value and
// either delegates to the first matching codec, recurses into the
// container, passes a primitive leaf through, or builds an object
// envelope. Object identities are tracked along the traversal path so a
// self-referential value fails instead of recursing unboundedly.
func (m *Marshall) Serialize(value interface{}) (interface{}, error) {
	return m.serialize(value, make(map[uintptr]struct{}))
}

func (m *Marshall) serialize(value interface{}, seen map[uintptr]struct{}) (interface{}, error) {
	if name, codec, found := m.codecs.Match(value); found {
		params, err := codec.Encode(value)
		if err != nil {
			return nil, xerrors.Errorf("codec '%s' failed to encode: %v", name, err)
		}

		return map[string]interface{}{
			KeyCodec:  name,
			KeyParams: params,
		}, nil
	}

	if member, ok := value.(Member); ok {
		return m.memberToDict(member, seen)
	}

	switch node := value.(type) {
	case nil:
		return nil, nil
	case Document:
		return m.documentToDict(node, seen)
	case time.Time, json.Number:
		return node, nil
	}

	val := reflect.ValueOf(value)

	switch val.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return value, nil

	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			// Byte slices are a leaf: the canonical form encodes them in
			// base64. Register the bytes codec to preserve the type.
			return value, nil
		}

		if val.IsNil() {
			return nil, nil
		}

		if val.Len() > 0 {
			// An empty slice can alias the data pointer of a marked one
			// but has no element to close a cycle through.
			ptr := val.Pointer()
			if _, found := seen[ptr]; found {
				return nil, xerrors.Errorf("value of type '%T': %w", value, ErrCyclicStructure)
			}

			seen[ptr] = struct{}{}
			defer delete(seen, ptr)
		}

		return m.sequenceToList(val, seen)

	case reflect.Array:
		return m.sequenceToList(val, seen)

	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil, xerrors.Errorf("map key of type '%s' is not supported",
				val.Type().Key())
		}

		if val.IsNil() {
			return nil, nil
		}

		ptr := val.Pointer()
		if _, found := seen[ptr]; found {
			return nil, xerrors.Errorf("value of type '%T': %w", value, ErrCyclicStructure)
		}

		seen[ptr] = struct{}{}
		defer delete(seen, ptr)

		return m.mappingToDict(val, seen)

	case reflect.Ptr:
		if val.IsNil() {
			return nil, nil
		}

		ptr := val.Pointer()
		if _, found := seen[ptr]; found {
			return nil, xerrors.Errorf("value of type '%T': %w", value, ErrCyclicStructure)
		}

		seen[ptr] = struct{}{}
		defer delete(seen, ptr)

		if val.Elem().Kind() == reflect.Struct && val.Elem().Type() != timeType {
			// The pointer is kept so capabilities with pointer receivers
			// stay visible to the envelope construction.
			return m.objectToDict(value, seen)
		}

		return m.serialize(val.Elem().Interface(), seen)

	case reflect.Struct:
		return m.objectToDict(value, seen)

	default:
		return nil, xerrors.Errorf("unsupported value of type '%T'", value)
	}
}

// Deserialize implements marshall.Marshaller. It classifies a decoded node
// by its reserved keys, checked in a fixed precedence order: enum
// envelope, object envelope, codec envelope, then plain containers and
// leaves.
func (m *Marshall) Deserialize(node interface{}) (interface{}, error) {
	switch tree := node.(type) {
	case map[string]interface{}:
		_, hasName := tree[KeyMemberName]
		_, hasValue := tree[KeyMemberValue]
		if hasName && hasValue {
			return m.dictToMember(tree)
		}

		if _, found := tree[KeyFQN]; found {
			return m.dictToObject(tree)
		}

		if _, found := tree[KeyCodec]; found {
			return m.dictToCodec(tree)
		}

		values := make(map[string]interface{}, len(tree))
		for key, item := range tree {
			value, err := m.Deserialize(item)
			if err != nil {
				return nil, xerrors.Errorf("key '%s': %w", key, err)
			}

			values[key] = value
		}

		return NewDocument(values), nil

	case []interface{}:
		out := make([]interface{}, len(tree))
		for i, item := range tree {
			value, err := m.Deserialize(item)
			if err != nil {
				return nil, xerrors.Errorf("index %d: %w", i, err)
			}

			out[i] = value
		}

		return out, nil

	default:
		return node, nil
	}
}

func (m *Marshall) sequenceToList(val reflect.Value, seen map[uintptr]struct{}) (interface{}, error) {
	out := make([]interface{}, val.Len())

	for i := 0; i < val.Len(); i++ {
		item, err := m.serialize(val.Index(i).Interface(), seen)
		if err != nil {
			return nil, xerrors.Errorf("index %d: %w", i, err)
		}

		out[i] = item
	}

	return out, nil
}

func (m *Marshall) mappingToDict(val reflect.Value, seen map[uintptr]struct{}) (interface{}, error) {
	out := make(map[string]interface{}, val.Len())

	iter := val.MapRange()
	for iter.Next() {
		key := iter.Key().String()

		item, err := m.serialize(iter.Value().Interface(), seen)
		if err != nil {
			return nil, xerrors.Errorf("key '%s': %w", key, err)
		}

		out[key] = item
	}

	return out, nil
}

func (m *Marshall) documentToDict(doc Document, seen map[uintptr]struct{}) (interface{}, error) {
	out := make(map[string]interface{}, doc.Len())

	var err error
	doc.Range(func(key string, value interface{}) bool {
		var item interface{}

		item, err = m.serialize(value, seen)
		if err != nil {
			err = xerrors.Errorf("key '%s': %w", key, err)
			return false
		}

		out[key] = item
		return true
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

func (m *Marshall) memberToDict(member Member, seen map[uintptr]struct{}) (interface{}, error) {
	fqn, err := m.resolver.ResolveInstance(member)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve member '%T': %w", member, err)
	}

	value, err := m.serialize(member.MemberValue(), seen)
	if err != nil {
		return nil, xerrors.Errorf("member value: %w", err)
	}

	return map[string]interface{}{
		KeyFQN:         fqn,
		KeyMemberName:  member.MemberName(),
		KeyMemberValue: value,
	}, nil
}

func (m *Marshall) objectToDict(value interface{}, seen map[uintptr]struct{}) (interface{}, error) {
	fqn, err := m.resolver.ResolveInstance(value)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve '%T': %w", value, err)
	}

	dict := map[string]interface{}{
		KeyFQN: fqn,
	}

	if versioned, ok := value.(Versioned); ok {
		dict[KeyVersion] = versioned.Version()
	}

	if identified, ok := value.(Identified); ok {
		dict[KeyMsgID] = identified.MessageID()
	}

	if timestamped, ok := value.(Timestamped); ok {
		ts, err := m.serialize(timestamped.Timestamp(), seen)
		if err != nil {
			return nil, xerrors.Errorf("timestamp: %w", err)
		}

		dict[KeyTimestamp] = ts
	}

	var fields map[string]interface{}
	if exporter, ok := value.(Exporter); ok {
		fields = exporter.ExportFields()
	} else {
		fields = reflectFields(value)
	}

	for name, field := range fields {
		if strings.HasPrefix(name, "__") {
			continue
		}

		item, err := m.serialize(field, seen)
		if err != nil {
			return nil, xerrors.Errorf("field '%s': %w", name, err)
		}

		dict[name] = item
	}

	return dict, nil
}

func (m *Marshall) dictToMember(tree map[string]interface{}) (interface{}, error) {
	fqn, ok := tree[KeyFQN].(string)
	if !ok {
		return nil, xerrors.Errorf("enum envelope is missing '%s'", KeyFQN)
	}

	path, err := m.resolver.ResolveType(fqn)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve '%s': %w", fqn, err)
	}

	factory := m.types.GetEnum(path)
	if factory == nil {
		return nil, xerrors.Errorf("no enum factory for '%s': %w", path,
			resolver.ErrNotResolved)
	}

	name, ok := tree[KeyMemberName].(string)
	if !ok {
		return nil, xerrors.Errorf("invalid member name of type '%T'",
			tree[KeyMemberName])
	}

	// The underlying value is carried for consumers that do not share the
	// type definitions; the reconstruction only needs the name.
	member, err := factory.Member(name)
	if err != nil {
		return nil, xerrors.Errorf("enum '%s': %w", fqn, err)
	}

	return member, nil
}

func (m *Marshall) dictToObject(tree map[string]interface{}) (interface{}, error) {
	fqn, ok := tree[KeyFQN].(string)
	if !ok {
		return nil, xerrors.Errorf("invalid type name of type '%T'", tree[KeyFQN])
	}

	path, err := m.resolver.ResolveType(fqn)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve '%s': %w", fqn, err)
	}

	factory := m.types.Get(path)
	if factory == nil {
		return nil, xerrors.Errorf("no factory for '%s': %w", path,
			resolver.ErrNotResolved)
	}

	fields := make(map[string]interface{})

	if raw, found := tree[KeyMsgID]; found {
		fields[KeyMsgID] = raw
	}

	if raw, found := tree[KeyTimestamp]; found {
		ts, err := m.Deserialize(raw)
		if err != nil {
			return nil, xerrors.Errorf("timestamp: %w", err)
		}

		fields[KeyTimestamp] = ts
	}

	for key, item := range tree {
		if strings.HasPrefix(key, "__") {
			continue
		}

		value, err := m.Deserialize(item)
		if err != nil {
			return nil, xerrors.Errorf("field '%s': %w", key, err)
		}

		fields[key] = value
	}

	if upgrader, ok := factory.(Upgrader); ok {
		if raw, found := tree[KeyVersion]; found {
			version, err := asInt(raw)
			if err != nil {
				return nil, xerrors.Errorf("version of '%s': %v", fqn, err)
			}

			fields, err = upgrader.Upgrade(version, fields)
			if err != nil {
				return nil, xerrors.Errorf("failed to upgrade '%s' from version %d: %v",
					fqn, version, err)
			}
		}
	}

	instance, err := factory.New(fields)
	if err != nil {
		return nil, xerrors.Errorf("failed to construct '%s': %w", fqn, err)
	}

	return instance, nil
}

func (m *Marshall) dictToCodec(tree map[string]interface{}) (interface{}, error) {
	name, ok := tree[KeyCodec].(string)
	if !ok {
		return nil, xerrors.Errorf("invalid codec name of type '%T'", tree[KeyCodec])
	}

	codec := m.codecs.Get(name)
	if codec == nil {
		return nil, xerrors.Errorf("codec '%s' is not registered: %w", name,
			ErrCodecNotFound)
	}

	value, err := codec.Decode(tree[KeyParams])
	if err != nil {
		return nil, xerrors.Errorf("codec '%s' failed to decode: %v", name, err)
	}

	return value, nil
}

func reflectFields(value interface{}) map[string]interface{} {
	val := reflect.ValueOf(value)
	for val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	typ := val.Type()
	fields := make(map[string]interface{}, typ.NumField())

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.PkgPath != "" {
			continue
		}

		fields[field.Name] = val.Field(i).Interface()
	}

	return fields
}

// Canonicalize re-renders a JSON payload in the canonical form: compact
// text with the object keys in sorted order. It is purely syntactic and
// does not resolve any envelope.
func Canonicalize(data []byte) ([]byte, error) {
	node, err := parse(data)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(node)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return out, nil
}

func parse(data []byte) (interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var node interface{}

	err := decoder.Decode(&node)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	return node, nil
}
