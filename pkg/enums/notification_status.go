package enums

import "strings"

// NotificationStatus is a vendor-reported state normalized to the values the
// state machine acts on.
type NotificationStatus string

const (
	NotificationStatusSucceeded NotificationStatus = "SUCCEEDED"
	NotificationStatusCompleted NotificationStatus = "COMPLETED"
	NotificationStatusError     NotificationStatus = "ERROR"
	NotificationStatusOther     NotificationStatus = "OTHER"
)

// NormalizeNotificationStatus maps a raw vendor status onto NotificationStatus.
func NormalizeNotificationStatus(raw string) NotificationStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCEEDED", "SUCCESS":
		return NotificationStatusSucceeded
	case "COMPLETED", "COMPLETE":
		return NotificationStatusCompleted
	case "ERROR", "FAILED", "FAILURE":
		return NotificationStatusError
	default:
		return NotificationStatusOther
	}
}

// IsTerminal reports whether the vendor will not report further progress.
func (s NotificationStatus) IsTerminal() bool {
	switch s {
	case NotificationStatusSucceeded, NotificationStatusCompleted, NotificationStatusError:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the status signals a usable result.
func (s NotificationStatus) IsSuccess() bool {
	return s == NotificationStatusSucceeded || s == NotificationStatusCompleted
}

// TerminalNotificationStatuses lists the statuses visible to the state machine.
func TerminalNotificationStatuses() []NotificationStatus {
	return []NotificationStatus{
		NotificationStatusSucceeded,
		NotificationStatusCompleted,
		NotificationStatusError,
	}
}
