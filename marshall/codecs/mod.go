// Package codecs provides codecs for value families that the generic
// envelope traversal cannot preserve on its own: timestamps, byte slices,
// string sets and message identifiers.
//
// Each codec is registered under the name declared next to it, which is
// the name written into the codec envelopes.
package codecs

import (
	"encoding/base64"
	"sort"
	"time"

	"github.com/eventzio/eventz/marshall"
	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

// Names of the codecs as written into the payloads.
const (
	DateTimeName  = "eventz.datetime"
	BytesName     = "eventz.bytes"
	StringSetName = "eventz.stringset"
	IDName        = "eventz.xid"
)

// RegisterAll registers every codec of the package under its name.
func RegisterAll(registry *marshall.CodecRegistry) error {
	codecs := map[string]marshall.Codec{
		DateTimeName:  DateTime{},
		BytesName:     Bytes{},
		StringSetName: StringSet{},
		IDName:        ID{},
	}

	// Sorted so the registration order, hence the match precedence, is
	// stable.
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		err := registry.Register(name, codecs[name])
		if err != nil {
			return xerrors.Errorf("failed to register '%s': %v", name, err)
		}
	}

	return nil
}

// DateTime is a codec preserving time.Time values. Without it a timestamp
// still crosses the wire as an RFC 3339 leaf but comes back as a string.
//
// - implements marshall.Codec
type DateTime struct{}

// Handles implements marshall.Codec.
func (DateTime) Handles(value interface{}) bool {
	_, ok := value.(time.Time)
	return ok
}

// Encode implements marshall.Codec. The params are the RFC 3339 form in
// UTC, which keeps the output deterministic across locations.
func (DateTime) Encode(value interface{}) (interface{}, error) {
	ts, ok := value.(time.Time)
	if !ok {
		return nil, xerrors.Errorf("invalid value of type '%T'", value)
	}

	return ts.UTC().Format(time.RFC3339Nano), nil
}

// Decode implements marshall.Codec.
func (DateTime) Decode(params interface{}) (interface{}, error) {
	text, ok := params.(string)
	if !ok {
		return nil, xerrors.Errorf("invalid params of type '%T'", params)
	}

	ts, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse time: %v", err)
	}

	return ts, nil
}

// Bytes is a codec preserving byte slices, which would otherwise decode as
// the base64 string the canonical form encodes them to.
//
// - implements marshall.Codec
type Bytes struct{}

// Handles implements marshall.Codec.
func (Bytes) Handles(value interface{}) bool {
	_, ok := value.([]byte)
	return ok
}

// Encode implements marshall.Codec.
func (Bytes) Encode(value interface{}) (interface{}, error) {
	data, ok := value.([]byte)
	if !ok {
		return nil, xerrors.Errorf("invalid value of type '%T'", value)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode implements marshall.Codec.
func (Bytes) Decode(params interface{}) (interface{}, error) {
	text, ok := params.(string)
	if !ok {
		return nil, xerrors.Errorf("invalid params of type '%T'", params)
	}

	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode base64: %v", err)
	}

	return data, nil
}

// StringSet is a codec giving sets an intentional wire form: a sorted
// sequence of the elements. Treating a set as a plain mapping would carry
// no information in the values.
//
// - implements marshall.Codec
type StringSet struct{}

// Handles implements marshall.Codec.
func (StringSet) Handles(value interface{}) bool {
	_, ok := value.(map[string]struct{})
	return ok
}

// Encode implements marshall.Codec.
func (StringSet) Encode(value interface{}) (interface{}, error) {
	set, ok := value.(map[string]struct{})
	if !ok {
		return nil, xerrors.Errorf("invalid value of type '%T'", value)
	}

	elements := make([]string, 0, len(set))
	for element := range set {
		elements = append(elements, element)
	}

	sort.Strings(elements)

	return elements, nil
}

// Decode implements marshall.Codec. It accepts both the parsed form of the
// params and the in-memory form produced by Encode.
func (StringSet) Decode(params interface{}) (interface{}, error) {
	switch items := params.(type) {
	case []string:
		set := make(map[string]struct{}, len(items))
		for _, element := range items {
			set[element] = struct{}{}
		}

		return set, nil

	case []interface{}:
		set := make(map[string]struct{}, len(items))

		for _, item := range items {
			element, ok := item.(string)
			if !ok {
				return nil, xerrors.Errorf("invalid element of type '%T'", item)
			}

			set[element] = struct{}{}
		}

		return set, nil

	default:
		return nil, xerrors.Errorf("invalid params of type '%T'", params)
	}
}

// ID is a codec preserving xid message identifiers.
//
// - implements marshall.Codec
type ID struct{}

// Handles implements marshall.Codec.
func (ID) Handles(value interface{}) bool {
	_, ok := value.(xid.ID)
	return ok
}

// Encode implements marshall.Codec.
func (ID) Encode(value interface{}) (interface{}, error) {
	id, ok := value.(xid.ID)
	if !ok {
		return nil, xerrors.Errorf("invalid value of type '%T'", value)
	}

	return id.String(), nil
}

// Decode implements marshall.Codec.
func (ID) Decode(params interface{}) (interface{}, error) {
	text, ok := params.(string)
	if !ok {
		return nil, xerrors.Errorf("invalid params of type '%T'", params)
	}

	id, err := xid.FromString(text)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse id: %v", err)
	}

	return id, nil
}
