// Package schema declares the static metadata for every recognized terminal
// setting: its default, the raw values it accepts, how raw input is turned
// into a stored value, and whether a remote peer owns it.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type of a stored setting value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	default:
		return "unknown"
	}
}

// Transform turns raw user input into the stored value.
type Transform func(raw string) (any, error)

// BoolValues is the allowed raw input for boolean settings.
var BoolValues = []string{"true", "false"}

// BoolTransform maps "true" to true and anything else to false.
func BoolTransform(raw string) (any, error) {
	return raw == "true", nil
}

// IntTransform parses the leading integer of raw ("500" and "500px" both
// yield 500). Input without a leading integer is an error.
func IntTransform(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return nil, fmt.Errorf("%q is not an integer", raw)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", raw, err)
	}
	return n, nil
}

// Descriptor is the metadata for one setting key.
type Descriptor struct {
	Key     string
	Kind    Kind
	Default any
	// Values lists the accepted raw inputs. Nil accepts anything.
	Values []string
	// Transform converts raw input. Nil stores the raw string unchanged.
	Transform Transform
	// Global marks the setting as owned by the remote peer.
	Global bool
}

// Allows reports whether raw is an accepted input.
func (d Descriptor) Allows(raw string) bool {
	if d.Values == nil {
		return true
	}
	for _, v := range d.Values {
		if v == raw {
			return true
		}
	}
	return false
}

// Apply runs the transform on raw and checks the result against Kind.
func (d Descriptor) Apply(raw string) (any, error) {
	if d.Transform == nil {
		if d.Kind != KindString {
			return nil, fmt.Errorf("%s: %s setting has no transform", d.Key, d.Kind)
		}
		return raw, nil
	}
	v, err := d.Transform(raw)
	if err != nil {
		return nil, err
	}
	cv, ok := d.Coerce(v)
	if !ok {
		return nil, fmt.Errorf("%s: transform produced %T, want %s", d.Key, v, d.Kind)
	}
	return cv, nil
}

// Coerce brings v to the descriptor's kind. JSON-decoded numbers arrive as
// float64 or int64 and are accepted for int settings when integral.
func (d Descriptor) Coerce(v any) (any, bool) {
	switch d.Kind {
	case KindString:
		s, ok := v.(string)
		return s, ok
	case KindBool:
		b, ok := v.(bool)
		return b, ok
	case KindInt:
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			if n != float64(int(n)) {
				return nil, false
			}
			return int(n), true
		}
	}
	return nil, false
}

// Registry is an immutable set of descriptors.
type Registry struct {
	order []string
	descs map[string]Descriptor
}

// New validates descs and builds a Registry. Every descriptor needs a
// unique key and a default of its declared kind.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(descs)),
		descs: make(map[string]Descriptor, len(descs)),
	}
	for _, d := range descs {
		if d.Key == "" {
			return nil, fmt.Errorf("descriptor with empty key")
		}
		if _, dup := r.descs[d.Key]; dup {
			return nil, fmt.Errorf("duplicate descriptor %q", d.Key)
		}
		if d.Default == nil {
			return nil, fmt.Errorf("%s: missing default", d.Key)
		}
		def, ok := d.Coerce(d.Default)
		if !ok {
			return nil, fmt.Errorf("%s: default %v is not a %s", d.Key, d.Default, d.Kind)
		}
		d.Default = def
		if d.Values != nil {
			d.Values = append([]string(nil), d.Values...)
		}
		r.order = append(r.order, d.Key)
		r.descs[d.Key] = d
	}
	return r, nil
}

// Lookup returns the descriptor for key.
func (r *Registry) Lookup(key string) (Descriptor, bool) {
	d, ok := r.descs[key]
	if ok && d.Values != nil {
		d.Values = append([]string(nil), d.Values...)
	}
	return d, ok
}

// Keys returns every key in declaration order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of descriptors.
func (r *Registry) Len() int { return len(r.order) }

// Defaults returns a fresh key → default map.
func (r *Registry) Defaults() map[string]any {
	m := make(map[string]any, len(r.order))
	for _, k := range r.order {
		m[k] = r.descs[k].Default
	}
	return m
}
