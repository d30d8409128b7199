package enums

import "fmt"

// ConversionStatus is the wire-level status shared by conversion records and
// each of their sub-processes. Values are persisted as SMALLINT.
type ConversionStatus int16

const (
	ConversionStatusNotFound     ConversionStatus = 0
	ConversionStatusAccepted     ConversionStatus = 1
	ConversionStatusInProgress   ConversionStatus = 2
	ConversionStatusFinished     ConversionStatus = 3
	ConversionStatusError        ConversionStatus = 4
	ConversionStatusFileNotFound ConversionStatus = 5
)

var conversionStatusNames = map[ConversionStatus]string{
	ConversionStatusNotFound:     "NOT_FOUND",
	ConversionStatusAccepted:     "ACCEPTED",
	ConversionStatusInProgress:   "IN_PROGRESS",
	ConversionStatusFinished:     "FINISHED",
	ConversionStatusError:        "ERROR",
	ConversionStatusFileNotFound: "FILE_NOT_FOUND",
}

// String returns the canonical upper-case name.
func (s ConversionStatus) String() string {
	if name, ok := conversionStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ConversionStatus(%d)", int16(s))
}

// IsValid reports whether the status is known.
func (s ConversionStatus) IsValid() bool {
	_, ok := conversionStatusNames[s]
	return ok
}

// IsOpen reports whether the work is still waiting on submission or a notification.
func (s ConversionStatus) IsOpen() bool {
	return s == ConversionStatusAccepted || s == ConversionStatusInProgress
}

// IsTerminal reports whether no further transition is expected.
func (s ConversionStatus) IsTerminal() bool {
	switch s {
	case ConversionStatusFinished, ConversionStatusError, ConversionStatusFileNotFound:
		return true
	default:
		return false
	}
}

// ParseConversionStatus converts a canonical name into a ConversionStatus.
func ParseConversionStatus(value string) (ConversionStatus, error) {
	for status, name := range conversionStatusNames {
		if name == value {
			return status, nil
		}
	}
	return 0, fmt.Errorf("invalid conversion status %q", value)
}

// OpenConversionStatuses lists the statuses that keep a sub-process open.
func OpenConversionStatuses() []ConversionStatus {
	return []ConversionStatus{ConversionStatusAccepted, ConversionStatusInProgress}
}
