package workflow

import "encoding/json"

// Status is the sequencer's interpretation of one step's response.
type Status int

const (
	// StatusUnknown is a malformed or unexpected payload. The
	// sequencer treats it as the failure branch of the step that
	// produced it, never as success.
	StatusUnknown Status = iota

	StatusSuccess
	StatusFailure

	// StatusRetry is a failure with a pending sub-code on one of the
	// designated retryable steps.
	StatusRetry
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusRetry:
		return "RETRY"
	}
	return "INVALID"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
