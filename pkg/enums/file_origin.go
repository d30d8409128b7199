package enums

import "fmt"

// FileOrigin tells whether a stored file was uploaded or produced by a conversion.
type FileOrigin string

const (
	FileOriginUpload     FileOrigin = "upload"
	FileOriginConversion FileOrigin = "conversion"
)

var validFileOrigins = []FileOrigin{
	FileOriginUpload,
	FileOriginConversion,
}

// IsValid reports whether the origin is known.
func (o FileOrigin) IsValid() bool {
	for _, candidate := range validFileOrigins {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseFileOrigin converts raw input into a FileOrigin.
func ParseFileOrigin(value string) (FileOrigin, error) {
	for _, candidate := range validFileOrigins {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid file origin %q", value)
}
