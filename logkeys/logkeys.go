// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// the radio (device) identifier an activation run operates on.
	RadioID = "radio_id"

	// the locally generated app-installation device ID sent with every
	// dealer request (distinct from the radio ID being activated).
	DeviceID = "device_id"

	RunID      = "run_id"
	StepName   = "step"
	StepStatus = "status"

	FinalStatus = "final_status"
	Endpoint    = "endpoint"
	Attempt     = "attempt"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
