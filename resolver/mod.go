// Package resolver implements the bidirectional lookup between the public
// name of a type written into the payloads and the private path used to
// locate its implementation.
//
// The map is built once from a list of (public, private) pairs. An entry
// whose final segment is the wildcard marker covers every name sharing its
// prefix, so a single line of configuration can expose a whole family of
// types. An exact entry always takes precedence over a wildcard entry for
// the same prefix.
package resolver

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/xerrors"
)

// Wildcard is the marker used as the final segment of a map entry to match
// a family of names sharing the prefix.
const Wildcard = "*"

const separator = "."

// ErrNotResolved is the error returned when a name has neither an exact nor
// a wildcard entry in the map.
var ErrNotResolved = xerrors.New("name not resolved")

// ErrAmbiguousMapping is the error returned by the constructor when two
// pairs collide on one side of the map.
var ErrAmbiguousMapping = xerrors.New("ambiguous mapping")

// Resolver is a bidirectional name map with wildcard fallback.
//
// The public side of the map is the name written into the payloads. The
// private side is the path used to look the type up in the registry.
type Resolver struct {
	publicToPrivate map[string]string
	privateToPublic map[string]string
}

// NewResolver creates a resolver from the public to private pairs and
// derives the reverse table. It returns an error when two public names map
// to the same private path, as the reverse lookup would be ambiguous.
func NewResolver(pairs map[string]string) (*Resolver, error) {
	fwd := make(map[string]string, len(pairs))
	rev := make(map[string]string, len(pairs))

	for public, private := range pairs {
		if other, found := rev[private]; found {
			first, second := public, other
			if first > second {
				first, second = second, first
			}

			return nil, xerrors.Errorf("private path '%s' claimed by both "+
				"'%s' and '%s': %w", private, first, second, ErrAmbiguousMapping)
		}

		fwd[public] = private
		rev[private] = public
	}

	return &Resolver{
		publicToPrivate: fwd,
		privateToPublic: rev,
	}, nil
}

// ResolveType returns the private path associated with the public name,
// trying the exact entry first and falling back to a wildcard entry.
func (r *Resolver) ResolveType(public string) (string, error) {
	return r.lookup(public, r.publicToPrivate)
}

// ResolvePath returns the public name associated with the private path,
// trying the exact entry first and falling back to a wildcard entry.
func (r *Resolver) ResolvePath(private string) (string, error) {
	return r.lookup(private, r.privateToPublic)
}

// ResolveInstance computes the private path of the value's runtime type and
// returns the public name associated with it.
func (r *Resolver) ResolveInstance(value interface{}) (string, error) {
	return r.ResolvePath(PathOf(value))
}

// PathOf returns the private path of the value's runtime type, following
// pointers to their element type.
func PathOf(value interface{}) string {
	typ := reflect.TypeOf(value)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	if typ == nil {
		return ""
	}

	return fmt.Sprintf("%s%s%s", typ.PkgPath(), separator, typ.Name())
}

func (r *Resolver) lookup(key string, table map[string]string) (string, error) {
	if path, found := table[key]; found {
		return path, nil
	}

	// The exact entry is missing so the final segment is replaced by the
	// wildcard marker and spliced back on success.
	if !strings.HasSuffix(key, Wildcard) && strings.Contains(key, separator) {
		index := strings.LastIndex(key, separator)
		entity := key[index+1:]

		path, found := table[key[:index+1]+Wildcard]
		if found {
			return strings.TrimSuffix(path, Wildcard) + entity, nil
		}
	}

	return "", xerrors.Errorf("no entry for '%s': %w", key, ErrNotResolved)
}
