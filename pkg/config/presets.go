package config

import (
	"fmt"
	"strings"
)

// PresetKind tells which stream a transcoding preset needs.
type PresetKind string

const (
	PresetKindVideo PresetKind = "video"
	PresetKindAudio PresetKind = "audio"
)

// PresetSpec is one enabled transcoding output profile.
type PresetSpec struct {
	ID        string
	Container string
	Kind      PresetKind
}

// ParsePresets decodes `id:container:kind` entries.
func ParsePresets(specs []string) ([]PresetSpec, error) {
	out := make([]PresetSpec, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, raw := range specs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid preset %q: expected id:container:kind", raw)
		}
		preset := PresetSpec{
			ID:        strings.TrimSpace(parts[0]),
			Container: strings.TrimSpace(parts[1]),
			Kind:      PresetKind(strings.ToLower(strings.TrimSpace(parts[2]))),
		}
		if preset.ID == "" || preset.Container == "" {
			return nil, fmt.Errorf("invalid preset %q: id and container are required", raw)
		}
		if preset.Kind != PresetKindVideo && preset.Kind != PresetKindAudio {
			return nil, fmt.Errorf("invalid preset %q: kind must be video or audio", raw)
		}
		if _, dup := seen[preset.ID]; dup {
			return nil, fmt.Errorf("duplicate preset id %q", preset.ID)
		}
		seen[preset.ID] = struct{}{}
		out = append(out, preset)
	}
	return out, nil
}
