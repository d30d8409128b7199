package processes

import (
	"fmt"
	"strings"
)

// Flags records which sub-processes are enabled, in registry order.
type Flags struct {
	enabled []bool
}

// NewFlags returns an all-disabled flag set sized for the registry.
func (r *Registry) NewFlags() Flags {
	return Flags{enabled: make([]bool, len(r.entries))}
}

// FlagsFromIdentifiers enables the named processes. Unknown names are rejected.
func (r *Registry) FlagsFromIdentifiers(ids []string) (Flags, error) {
	flags := r.NewFlags()
	for _, raw := range ids {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		idx := r.Index(Identifier(raw))
		if idx < 0 {
			return Flags{}, fmt.Errorf("unknown process %q", raw)
		}
		flags.enabled[idx] = true
	}
	return flags, nil
}

// Enabled reports whether the process at the schema index is on.
func (f Flags) Enabled(idx int) bool {
	return idx >= 0 && idx < len(f.enabled) && f.enabled[idx]
}

// With returns a copy with the process at idx switched.
func (f Flags) With(idx int, on bool) Flags {
	out := Flags{enabled: make([]bool, len(f.enabled))}
	copy(out.enabled, f.enabled)
	if idx >= 0 && idx < len(out.enabled) {
		out.enabled[idx] = on
	}
	return out
}

// Len returns the number of flags.
func (f Flags) Len() int {
	return len(f.enabled)
}

// Encode renders the flags as the fixed-width '1'/'0' string carried in object metadata.
func (f Flags) Encode() string {
	var b strings.Builder
	b.Grow(len(f.enabled))
	for _, on := range f.enabled {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// DecodeFlags parses the wire bit-string. Its width must match the registry.
func (r *Registry) DecodeFlags(encoded string) (Flags, error) {
	if len(encoded) != len(r.entries) {
		return Flags{}, fmt.Errorf("settings flags must be %d characters, got %d", len(r.entries), len(encoded))
	}
	flags := r.NewFlags()
	for i := 0; i < len(encoded); i++ {
		switch encoded[i] {
		case '1':
			flags.enabled[i] = true
		case '0':
		default:
			return Flags{}, fmt.Errorf("settings flags contain invalid character %q at %d", encoded[i], i)
		}
	}
	return flags, nil
}
