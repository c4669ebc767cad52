package marshall

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// reflectFactory creates instances of a struct type by assigning the
// decoded fields to the exported struct fields of the same name.
//
// - implements marshall.Factory
type reflectFactory struct {
	typ reflect.Type
}

// NewReflectFactory returns a factory for the template's type. The
// template must be a struct or a pointer to one; the constructor contract
// of the wire format is then fulfilled by the exported fields: every field
// name present in a payload must exist on the struct. The message
// identifier and timestamp are restored through the MessageIDSetter and
// TimestampSetter capabilities when the type implements them.
func NewReflectFactory(template interface{}) Factory {
	typ := reflect.TypeOf(template)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	return reflectFactory{typ: typ}
}

// New implements marshall.Factory. It creates an instance of the struct
// populated with the fields.
func (f reflectFactory) New(fields map[string]interface{}) (interface{}, error) {
	if f.typ == nil || f.typ.Kind() != reflect.Struct {
		return nil, xerrors.Errorf("template '%v' is not a struct: %w",
			f.typ, ErrConstruction)
	}

	value := reflect.New(f.typ)
	elem := value.Elem()

	for name, raw := range fields {
		if strings.HasPrefix(name, "__") {
			continue
		}

		field, found := f.typ.FieldByName(name)
		if !found || field.PkgPath != "" {
			return nil, xerrors.Errorf("no field '%s' in '%s': %w",
				name, f.typ, ErrConstruction)
		}

		converted, err := convert(raw, field.Type)
		if err != nil {
			return nil, xerrors.Errorf("field '%s' of '%s': %v: %w",
				name, f.typ, err, ErrConstruction)
		}

		elem.FieldByIndex(field.Index).Set(converted)
	}

	err := f.restoreMeta(value.Interface(), fields)
	if err != nil {
		return nil, err
	}

	return elem.Interface(), nil
}

func (f reflectFactory) restoreMeta(ptr interface{}, fields map[string]interface{}) error {
	if raw, found := fields[KeyMsgID]; found {
		if setter, ok := ptr.(MessageIDSetter); ok {
			id, ok := raw.(string)
			if !ok {
				return xerrors.Errorf("message id of type '%T': %w", raw,
					ErrConstruction)
			}

			setter.SetMessageID(id)
		}
	}

	if raw, found := fields[KeyTimestamp]; found {
		if setter, ok := ptr.(TimestampSetter); ok {
			ts, err := asTime(raw)
			if err != nil {
				return xerrors.Errorf("timestamp: %v: %w", err, ErrConstruction)
			}

			setter.SetTimestamp(ts)
		}
	}

	return nil
}

// convert coerces a decoded node into the given type. Decoded nodes carry
// json.Number for numbers, strings, booleans, sequences and documents, so
// the conversion walks those shapes down to the declared field type.
func convert(raw interface{}, typ reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(typ), nil
	}

	value := reflect.ValueOf(raw)
	if value.Type().AssignableTo(typ) {
		return value, nil
	}

	switch node := raw.(type) {
	case json.Number:
		return convertNumber(node, typ)

	case string:
		if typ == timeType {
			ts, err := time.Parse(time.RFC3339Nano, node)
			if err != nil {
				return reflect.Value{}, xerrors.Errorf("failed to parse time: %v", err)
			}

			return reflect.ValueOf(ts), nil
		}

		if typ.Kind() == reflect.String {
			return value.Convert(typ), nil
		}

	case bool:
		if typ.Kind() == reflect.Bool {
			return value.Convert(typ), nil
		}

	case []interface{}:
		if typ.Kind() == reflect.Slice {
			out := reflect.MakeSlice(typ, len(node), len(node))

			for i, item := range node {
				converted, err := convert(item, typ.Elem())
				if err != nil {
					return reflect.Value{}, xerrors.Errorf("index %d: %v", i, err)
				}

				out.Index(i).Set(converted)
			}

			return out, nil
		}

	case Document:
		if typ.Kind() == reflect.Map && typ.Key().Kind() == reflect.String {
			out := reflect.MakeMapWithSize(typ, node.Len())

			var err error
			node.Range(func(key string, item interface{}) bool {
				var converted reflect.Value

				converted, err = convert(item, typ.Elem())
				if err != nil {
					err = xerrors.Errorf("key '%s': %v", key, err)
					return false
				}

				out.SetMapIndex(reflect.ValueOf(key).Convert(typ.Key()), converted)
				return true
			})

			if err != nil {
				return reflect.Value{}, err
			}

			return out, nil
		}
	}

	if value.Type().ConvertibleTo(typ) && value.Kind() == typ.Kind() {
		return value.Convert(typ), nil
	}

	return reflect.Value{}, xerrors.Errorf("cannot assign '%T' to '%s'", raw, typ)
}

func convertNumber(num json.Number, typ reflect.Type) (reflect.Value, error) {
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := num.Int64()
		if err != nil {
			return reflect.Value{}, xerrors.Errorf("failed to parse integer: %v", err)
		}

		value := reflect.New(typ).Elem()
		if value.OverflowInt(n) {
			return reflect.Value{}, xerrors.Errorf("integer %d overflows '%s'", n, typ)
		}

		value.SetInt(n)
		return value, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(num.String(), 10, 64)
		if err != nil {
			return reflect.Value{}, xerrors.Errorf("failed to parse unsigned: %v", err)
		}

		value := reflect.New(typ).Elem()
		if value.OverflowUint(n) {
			return reflect.Value{}, xerrors.Errorf("unsigned %d overflows '%s'", n, typ)
		}

		value.SetUint(n)
		return value, nil

	case reflect.Float32, reflect.Float64:
		n, err := num.Float64()
		if err != nil {
			return reflect.Value{}, xerrors.Errorf("failed to parse float: %v", err)
		}

		value := reflect.New(typ).Elem()
		value.SetFloat(n)
		return value, nil

	default:
		return reflect.Value{}, xerrors.Errorf("cannot assign number to '%s'", typ)
	}
}

// asTime accepts either a time value, which a registered datetime codec
// produces, or its RFC 3339 leaf encoding.
func asTime(raw interface{}) (time.Time, error) {
	switch node := raw.(type) {
	case time.Time:
		return node, nil
	case string:
		return time.Parse(time.RFC3339Nano, node)
	default:
		return time.Time{}, xerrors.Errorf("invalid time of type '%T'", raw)
	}
}

func asInt(raw interface{}) (int, error) {
	switch node := raw.(type) {
	case int:
		return node, nil
	case json.Number:
		n, err := node.Int64()
		if err != nil {
			return 0, xerrors.Errorf("failed to parse version: %v", err)
		}

		return int(n), nil
	default:
		return 0, xerrors.Errorf("invalid version of type '%T'", raw)
	}
}

// enumFactory resolves symbolic names against a fixed member table.
//
// - implements marshall.EnumFactory
type enumFactory struct {
	members map[string]interface{}
}

// NewEnumFactory returns an enum factory over the given members, keyed by
// their symbolic names.
func NewEnumFactory(members ...Member) EnumFactory {
	table := make(map[string]interface{}, len(members))
	for _, member := range members {
		table[member.MemberName()] = member
	}

	return enumFactory{members: table}
}

// Member implements marshall.EnumFactory. It returns the member matching
// the symbolic name.
func (f enumFactory) Member(name string) (interface{}, error) {
	member, found := f.members[name]
	if !found {
		return nil, xerrors.Errorf("unknown member '%s': %w", name, ErrConstruction)
	}

	return member, nil
}
