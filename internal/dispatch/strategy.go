package dispatch

import "fmt"

// ErrorHandlingStrategy selects what the dispatcher does when the ledger
// rejects a write with a validation error: surface it immediately, or hold
// the message for the buffered-message retry loop.
//
// AlwaysReturnErrors suits a single Bridge instance talking to a single
// sensor population where the caller can retry; BufferMessagesOnValidation
// Errors suits deployments where losing a message is worse than a delayed
// resend, at the cost of needing the buffered-message loop to eventually
// drain the backlog.
type ErrorHandlingStrategy int

const (
	AlwaysReturnErrors ErrorHandlingStrategy = iota
	BufferMessagesOnValidationErrors
)

func (s ErrorHandlingStrategy) String() string {
	switch s {
	case AlwaysReturnErrors:
		return "always-return-errors"
	case BufferMessagesOnValidationErrors:
		return "buffer-messages-on-validation-errors"
	default:
		return "unknown-error-handling-strategy"
	}
}

// ParseErrorHandlingStrategy parses the CLI/config string form.
func ParseErrorHandlingStrategy(s string) (ErrorHandlingStrategy, error) {
	switch s {
	case "always-return-errors", "":
		return AlwaysReturnErrors, nil
	case "buffer-messages-on-validation-errors":
		return BufferMessagesOnValidationErrors, nil
	default:
		return AlwaysReturnErrors, fmt.Errorf("dispatch: unknown error handling strategy %q", s)
	}
}
