package engine

import "fmt"

// Status is the single discrete outcome of one control.
type Status string

const (
	// StatusPass means the check ran and the condition holds.
	StatusPass Status = "PASS"
	// StatusFail means the check ran and the condition does not hold.
	StatusFail Status = "FAIL"
	// StatusError means the handler itself failed, panicked or timed out.
	StatusError Status = "ERROR"
	// StatusUnknown means no handler is registered for the control's check type.
	StatusUnknown Status = "UNKNOWN"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusPass, StatusFail, StatusError, StatusUnknown}

// Valid reports whether s is one of the four defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusError, StatusUnknown:
		return true
	}
	return false
}

// NeedsRemediation reports whether results with this status carry remediation.
func (s Status) NeedsRemediation() bool {
	return s == StatusFail || s == StatusError
}

// MessageNotImplemented is the outcome message for unregistered check types.
const MessageNotImplemented = "Check type not implemented."

// CheckOutcome is what a handler returns for one control.
type CheckOutcome struct {
	Status  Status
	Message string
}

// Pass builds a PASS outcome.
func Pass(format string, args ...any) CheckOutcome {
	return CheckOutcome{Status: StatusPass, Message: fmt.Sprintf(format, args...)}
}

// Fail builds a FAIL outcome.
func Fail(format string, args ...any) CheckOutcome {
	return CheckOutcome{Status: StatusFail, Message: fmt.Sprintf(format, args...)}
}

// Errored builds an ERROR outcome.
func Errored(format string, args ...any) CheckOutcome {
	return CheckOutcome{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Unknown is the outcome for a control whose check type has no handler.
func Unknown() CheckOutcome {
	return CheckOutcome{Status: StatusUnknown, Message: MessageNotImplemented}
}
