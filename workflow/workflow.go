// Package workflow defines the types shared between the activation
// sequencer and anything that consumes its results: step names, step
// statuses, per-step results, and the final run outcome.
package workflow

import (
	"encoding/json"
	"time"
)

// StepName identifies one remote call in the activation sequence.
type StepName string

const (
	StepVersionCheck           StepName = "version_check"
	StepDevicePropertyFetch    StepName = "device_property_fetch"
	StepCreateAccount          StepName = "create_account"
	StepStatusUpdate           StepName = "status_update"
	StepStatusRefresh          StepName = "status_refresh"
	StepRegistryUpdate         StepName = "registry_update"
	StepProvisioningBlockClear StepName = "provisioning_block_clear"
	StepProgramStatusCheck     StepName = "program_status_check"
)

// Steps returns the canonical execution order of the activation steps.
// CreateAccount only executes when DevicePropertyFetch reports the
// device as never provisioned.
func Steps() []StepName {
	return []StepName{
		StepVersionCheck,
		StepDevicePropertyFetch,
		StepCreateAccount,
		StepStatusUpdate,
		StepStatusRefresh,
		StepRegistryUpdate,
		StepProvisioningBlockClear,
		StepProgramStatusCheck,
	}
}

// StepResult records the decision-relevant output of a single step.
// Results are appended to a run's trace in execution order and never
// mutated after creation.
type StepResult struct {
	Step      StepName        `json:"step"`
	Status    Status          `json:"status"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// FinalStatus is the terminal verdict of an activation run.
type FinalStatus int

const (
	// FinalUnset is the zero value while a run is still executing.
	FinalUnset FinalStatus = iota

	// FinalActivated means the remote service confirmed the device as
	// provisioned for service.
	FinalActivated

	// FinalRejected means a step reached a definitive domain-level
	// failure that retrying cannot fix.
	FinalRejected

	// FinalAborted means the run stopped before a domain verdict:
	// version rejection, cancellation, or a transport/auth error.
	FinalAborted
)

func (s FinalStatus) String() string {
	switch s {
	case FinalUnset:
		return "UNSET"
	case FinalActivated:
		return "ACTIVATED"
	case FinalRejected:
		return "REJECTED"
	case FinalAborted:
		return "ABORTED"
	}
	return "INVALID"
}

// Outcome is the reporter's summary of a completed run.
type Outcome struct {
	Final  FinalStatus  `json:"final_status"`
	Reason string       `json:"reason"`
	Trace  []StepResult `json:"trace"`
}

func (s FinalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
