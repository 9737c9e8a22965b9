// Package codec binds entity kinds to their encode/decode functions.
//
// The set of kinds is closed: every kind the cache serves must be registered
// here before the cache is constructed. Adding a new entity kind is a registry
// entry, never runtime type introspection.
package codec

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/chronomint/verscache/internal/errors"
	"github.com/chronomint/verscache/internal/model"
)

// Codec encodes and decodes one entity kind's payload
type Codec interface {
	Encode(value interface{}) ([]byte, error)
	Decode(data []byte) (interface{}, error)
}

// Registry is the closed mapping from entity kind to codec
type Registry struct {
	codecs map[model.Kind]Codec
}

// NewRegistry creates an empty codec registry
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[model.Kind]Codec),
	}
}

// Register binds a kind to a codec. Registration happens at construction time
// only; duplicate registration is a programming error.
func (r *Registry) Register(kind model.Kind, c Codec) error {
	if kind == "" {
		return fmt.Errorf("codec registry: empty kind")
	}
	if c == nil {
		return fmt.Errorf("codec registry: nil codec for kind %q", kind)
	}
	if _, exists := r.codecs[kind]; exists {
		return fmt.Errorf("codec registry: kind %q already registered", kind)
	}
	r.codecs[kind] = c
	return nil
}

// Codec returns the codec for a kind
func (r *Registry) Codec(kind model.Kind) (Codec, bool) {
	c, ok := r.codecs[kind]
	return c, ok
}

// Supports reports whether a kind is registered
func (r *Registry) Supports(kind model.Kind) bool {
	_, ok := r.codecs[kind]
	return ok
}

// Decode decodes a payload for a kind, surfacing unregistered kinds as an
// UnsupportedKind error rather than skipping them
func (r *Registry) Decode(kind model.Kind, data []byte) (interface{}, error) {
	c, ok := r.codecs[kind]
	if !ok {
		return nil, errors.UnsupportedKind(string(kind))
	}
	value, err := c.Decode(data)
	if err != nil {
		return nil, errors.CorruptedData(fmt.Sprintf("decode %s payload", kind), err)
	}
	return value, nil
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []model.Kind {
	kinds := make([]model.Kind, 0, len(r.codecs))
	for k := range r.codecs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// jsonCodec round-trips payloads through encoding/json into a concrete type
type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonCodec[T]) Decode(data []byte) (interface{}, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// JSON returns a codec that decodes payloads into T
func JSON[T any]() Codec {
	return jsonCodec[T]{}
}

// rawJSONCodec validates JSON without binding it to a concrete type. Used for
// kinds declared in configuration rather than code.
type rawJSONCodec struct{}

func (rawJSONCodec) Encode(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (rawJSONCodec) Decode(data []byte) (interface{}, error) {
	var value json.RawMessage
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// RawJSON returns a codec that passes validated JSON through untyped
func RawJSON() Codec {
	return rawJSONCodec{}
}
