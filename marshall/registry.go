package marshall

import (
	"strings"

	"github.com/eventzio/eventz"
	"github.com/eventzio/eventz/resolver"
	"golang.org/x/xerrors"
)

// CodecRegistry holds the named codecs of an engine. The registration
// order is preserved and defines the match precedence during
// serialization. Registration is expected to happen before any concurrent
// marshalling traffic begins; the registry provides no internal
// synchronization.
type CodecRegistry struct {
	names  []string
	codecs map[string]Codec
}

// NewCodecRegistry returns a new empty codec registry.
func NewCodecRegistry() *CodecRegistry {
	return &CodecRegistry{
		codecs: make(map[string]Codec),
	}
}

// Register adds the codec under the given name. Registering a name twice
// is a configuration error.
func (r *CodecRegistry) Register(name string, codec Codec) error {
	if _, found := r.codecs[name]; found {
		return xerrors.Errorf("codec '%s' already registered: %w", name,
			ErrAmbiguousConfiguration)
	}

	r.names = append(r.names, name)
	r.codecs[name] = codec

	eventz.Logger.Trace().Str("name", name).Msg("codec registered")

	return nil
}

// Deregister removes the codec. Removing a name that was never registered
// is an error, not a silent no-op.
func (r *CodecRegistry) Deregister(name string) error {
	if _, found := r.codecs[name]; !found {
		return xerrors.Errorf("codec '%s' is not registered: %w", name,
			ErrCodecNotFound)
	}

	delete(r.codecs, name)

	for i, other := range r.names {
		if other == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}

	return nil
}

// Has returns true when a codec is registered under the name.
func (r *CodecRegistry) Has(name string) bool {
	_, found := r.codecs[name]
	return found
}

// Get returns the codec registered under the name, or nil.
func (r *CodecRegistry) Get(name string) Codec {
	return r.codecs[name]
}

// Match returns the first registered codec whose predicate accepts the
// value.
func (r *CodecRegistry) Match(value interface{}) (string, Codec, bool) {
	for _, name := range r.names {
		codec := r.codecs[name]
		if codec.Handles(value) {
			return name, codec, true
		}
	}

	return "", nil, false
}

// Validate checks that at most one registered codec claims each of the
// sample values. It is intended to run at startup, after the registrations,
// so that an ambiguous configuration fails before any payload is written.
func (r *CodecRegistry) Validate(samples ...interface{}) error {
	for _, sample := range samples {
		var matches []string

		for _, name := range r.names {
			if r.codecs[name].Handles(sample) {
				matches = append(matches, name)
			}
		}

		if len(matches) > 1 {
			return xerrors.Errorf("codecs '%s' all claim value of type '%T': %w",
				strings.Join(matches, "', '"), sample, ErrAmbiguousConfiguration)
		}
	}

	return nil
}

// TypeRegistry is the allow-list of reconstructable types. It maps the
// private path of a type to the factory creating its instances, so that a
// payload can only ever resolve to a type that was explicitly registered.
type TypeRegistry struct {
	factories map[string]Factory
	enums     map[string]EnumFactory
}

// NewTypeRegistry returns a new empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		factories: make(map[string]Factory),
		enums:     make(map[string]EnumFactory),
	}
}

// Register adds the factory for the type at the given private path.
func (r *TypeRegistry) Register(path string, factory Factory) {
	r.factories[path] = factory

	eventz.Logger.Trace().Str("path", path).Msg("factory registered")
}

// RegisterValue adds a reflection factory for the template's type, keyed by
// its private path.
func (r *TypeRegistry) RegisterValue(template interface{}) {
	r.Register(resolver.PathOf(template), NewReflectFactory(template))
}

// RegisterEnum adds the enum factory for the type at the given private
// path.
func (r *TypeRegistry) RegisterEnum(path string, factory EnumFactory) {
	r.enums[path] = factory

	eventz.Logger.Trace().Str("path", path).Msg("enum factory registered")
}

// Get returns the factory for the private path, or nil.
func (r *TypeRegistry) Get(path string) Factory {
	return r.factories[path]
}

// GetEnum returns the enum factory for the private path, or nil.
func (r *TypeRegistry) GetEnum(path string) EnumFactory {
	return r.enums[path]
}
