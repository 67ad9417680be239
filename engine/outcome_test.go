package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/oemtools/satactivate/workflow"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	result := func(step workflow.StepName, status workflow.Status, detail string) workflow.StepResult {
		return workflow.StepResult{Step: step, Status: status, Detail: detail, Timestamp: time.Now()}
	}

	tests := []struct {
		name           string
		run            *Run
		expectedFinal  workflow.FinalStatus
		expectedReason string
	}{
		{
			"activated",
			&Run{
				Final: workflow.FinalActivated,
				Trace: []workflow.StepResult{result(workflow.StepProgramStatusCheck, workflow.StatusSuccess, "")},
			},
			workflow.FinalActivated,
			"device activated",
		},
		{
			"rejected with detail",
			&Run{
				Final: workflow.FinalRejected,
				Trace: []workflow.StepResult{
					result(workflow.StepVersionCheck, workflow.StatusSuccess, ""),
					result(workflow.StepCreateAccount, workflow.StatusFailure, "duplicate account"),
				},
			},
			workflow.FinalRejected,
			"REJECTED at create_account: duplicate account",
		},
		{
			"cancelled mid-run",
			&Run{
				Final:     workflow.FinalAborted,
				Cancelled: true,
				abortErr:  errors.New("context canceled"),
				Trace: []workflow.StepResult{
					result(workflow.StepVersionCheck, workflow.StatusSuccess, ""),
				},
			},
			workflow.FinalAborted,
			"cancelled after version_check",
		},
		{
			"transport abort",
			&Run{
				Final:    workflow.FinalAborted,
				abortErr: errors.New("transport failure: connection refused"),
				Trace: []workflow.StepResult{
					result(workflow.StepVersionCheck, workflow.StatusSuccess, ""),
					result(workflow.StepDevicePropertyFetch, workflow.StatusSuccess, ""),
				},
			},
			workflow.FinalAborted,
			"aborted after device_property_fetch: transport failure: connection refused",
		},
		{
			"aborted before any step",
			&Run{Final: workflow.FinalAborted, abortErr: errors.New("login: authentication rejected")},
			workflow.FinalAborted,
			"aborted before any step completed: login: authentication rejected",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o := Summarize(test.run)
			assert.Equal(t, test.expectedFinal, o.Final)
			assert.Equal(t, test.expectedReason, o.Reason)
			assert.Len(t, o.Trace, len(test.run.Trace))
		})
	}
}
