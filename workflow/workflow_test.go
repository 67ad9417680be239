package workflow

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStepOrder(t *testing.T) {
	steps := Steps()
	if have, want := len(steps), 8; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := steps[0], StepVersionCheck; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := steps[len(steps)-1], StepProgramStatusCheck; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestStatusStrings(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusUnknown, "UNKNOWN"},
		{StatusSuccess, "SUCCESS"},
		{StatusFailure, "FAILURE"},
		{StatusRetry, "RETRY"},
		{Status(42), "INVALID"},
	}
	for _, test := range tests {
		if have, want := test.status.String(), test.expected; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
	}
}

func TestFinalStatusJSON(t *testing.T) {
	raw, err := json.Marshal(&Outcome{Final: FinalActivated, Reason: "ok"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"final_status":"ACTIVATED"`) {
		t.Errorf("unexpected JSON: %s", raw)
	}
}
