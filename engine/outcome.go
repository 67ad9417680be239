package engine

import (
	"fmt"

	"github.com/oemtools/satactivate/workflow"
)

// Summarize aggregates a completed run into a final outcome.
// It is a pure function of the run: the verdict, a human-readable
// reason derived from the terminal step, and the full trace for audit.
func Summarize(run *Run) *workflow.Outcome {
	o := &workflow.Outcome{
		Final: run.Final,
		Trace: run.Trace,
	}

	last := run.lastStep()
	switch {
	case run.Cancelled:
		if last == "" {
			o.Reason = "cancelled before any step completed"
		} else {
			o.Reason = fmt.Sprintf("cancelled after %s", last)
		}
	case run.abortErr != nil:
		if last == "" {
			o.Reason = fmt.Sprintf("aborted before any step completed: %v", run.abortErr)
		} else {
			o.Reason = fmt.Sprintf("aborted after %s: %v", last, run.abortErr)
		}
	case run.Final == workflow.FinalActivated:
		o.Reason = "device activated"
	case len(run.Trace) > 0:
		terminal := run.Trace[len(run.Trace)-1]
		reason := terminal.Detail
		if reason == "" {
			reason = terminal.Status.String()
		}
		o.Reason = fmt.Sprintf("%s at %s: %s", run.Final, terminal.Step, reason)
	default:
		o.Reason = run.Final.String()
	}
	return o
}
