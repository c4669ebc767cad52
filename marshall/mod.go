// Package marshall implements a type-preserving marshalling engine.
//
// A value is serialized by a recursive traversal into a tree of envelopes
// and leaves, then rendered as canonical JSON: compact, with the object
// keys in sorted order, so that the same logical value always produces the
// same bytes. The tree can be parsed back and deserialized into the exact
// original type, using a name resolver to decouple the wire-visible type
// name from the location of the implementation.
//
// Three kinds of envelopes exist, distinguished by their reserved keys:
// the object envelope carries a resolvable type name and the exported
// fields of an instance, the codec envelope carries the name of a
// registered codec and an opaque payload, and the enum envelope carries
// the symbolic name and underlying value of an enumeration member.
//
// The engine never mutates its inputs and a failure at any depth aborts
// the whole call.
package marshall

import (
	"time"

	"golang.org/x/xerrors"
)

// Reserved envelope keys. The marker prefix keeps them distinguishable from
// ordinary field names, which cannot start with an underscore.
const (
	// KeyFQN is the wire-visible type name of an object or enum envelope.
	KeyFQN = "__fqn__"

	// KeyVersion is the informational schema version of an object envelope.
	KeyVersion = "__version__"

	// KeyMsgID is the opaque message identifier of an object envelope.
	KeyMsgID = "__msgid__"

	// KeyTimestamp is the recursively encoded timestamp of an object
	// envelope.
	KeyTimestamp = "__timestamp__"

	// KeyCodec is the name of the registered codec of a codec envelope.
	KeyCodec = "__codec__"

	// KeyParams is the opaque payload of a codec envelope.
	KeyParams = "params"

	// KeyMemberName is the symbolic name of an enum envelope.
	KeyMemberName = "_name_"

	// KeyMemberValue is the underlying value of an enum envelope.
	KeyMemberValue = "_value_"
)

// ErrCodecNotFound is the error returned when a codec name is missing from
// the registry.
var ErrCodecNotFound = xerrors.New("codec not found")

// ErrConstruction is the error returned when the decoded fields do not
// satisfy the target factory.
var ErrConstruction = xerrors.New("construction failed")

// ErrCyclicStructure is the error returned when a self-referential value is
// detected during serialization.
var ErrCyclicStructure = xerrors.New("cyclic structure")

// ErrAmbiguousConfiguration is the error returned when two registrations
// compete for the same name or the same value.
var ErrAmbiguousConfiguration = xerrors.New("ambiguous configuration")

// Codec is a pluggable serialize/deserialize pair for a family of values
// that is not naturally expressed as a generic object envelope.
type Codec interface {
	// Handles returns true when the codec is responsible for the value.
	Handles(value interface{}) bool

	// Encode returns the opaque payload written into the codec envelope.
	// The payload must be a JSON-compatible tree.
	Encode(value interface{}) (interface{}, error)

	// Decode reconstructs the value from the payload of a codec envelope.
	Decode(params interface{}) (interface{}, error)
}

// Factory instantiates a type from the decoded fields of an object
// envelope. The fields map contains every non-reserved key of the envelope,
// plus the message identifier and timestamp under their reserved keys when
// the envelope carries them.
type Factory interface {
	New(fields map[string]interface{}) (interface{}, error)
}

// EnumFactory returns the enumeration member matching a symbolic name.
type EnumFactory interface {
	Member(name string) (interface{}, error)
}

// Upgrader is an optional extension of a factory. When the envelope carries
// a version tag, the decoded fields are passed through Upgrade before the
// instance is created, which gives the type a hook to migrate payloads
// written by older schemas.
type Upgrader interface {
	Upgrade(version int, fields map[string]interface{}) (map[string]interface{}, error)
}

// Member is the capability implemented by enumeration members so that they
// are written as enum envelopes instead of generic objects.
type Member interface {
	// MemberName returns the symbolic name of the member.
	MemberName() string

	// MemberValue returns the underlying value of the member.
	MemberValue() interface{}
}

// Versioned is the capability exposing the schema version persisted with
// the envelope. The engine carries the tag through without interpreting it
// beyond the optional Upgrader hook.
type Versioned interface {
	Version() int
}

// Identified is the capability exposing the message identifier persisted
// with the envelope.
type Identified interface {
	MessageID() string
}

// Timestamped is the capability exposing the timestamp persisted with the
// envelope.
type Timestamped interface {
	Timestamp() time.Time
}

// Exporter is the capability providing the exported-fields view of a
// value. When a value does not implement it, the engine reflects over the
// exported fields of the struct instead.
type Exporter interface {
	ExportFields() map[string]interface{}
}

// MessageIDSetter is the capability used by the reflection factory to
// restore the message identifier on a reconstructed instance.
type MessageIDSetter interface {
	SetMessageID(id string)
}

// TimestampSetter is the capability used by the reflection factory to
// restore the timestamp on a reconstructed instance.
type TimestampSetter interface {
	SetTimestamp(t time.Time)
}

// Marshaller provides the primitives to marshal a value into its canonical
// textual form and back.
type Marshaller interface {
	// Marshal serializes the value and renders it as canonical JSON.
	// Marshalling the same logical value twice yields identical bytes.
	Marshal(value interface{}) ([]byte, error)

	// Unmarshal parses the canonical text and deserializes it.
	Unmarshal(data []byte) (interface{}, error)

	// Serialize converts the value into the envelope tree.
	Serialize(value interface{}) (interface{}, error)

	// Deserialize reconstructs a value from an envelope tree.
	Deserialize(node interface{}) (interface{}, error)
}
