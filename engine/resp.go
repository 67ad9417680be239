package engine

import (
	"encoding/json"
	"strings"

	"github.com/oemtools/satactivate/workflow"
)

// stepResponse is the decision-relevant subset of a dealer response.
// Bodies are otherwise opaque; only these fields drive branching.
type stepResponse struct {
	Status string `json:"status"`

	// Code is a vendor sub-code qualifying a failure, e.g. "pending"
	// while account creation is still propagating.
	Code string `json:"code"`

	// SeqValue is the provisioning sequence value issued by the
	// status update call and echoed back on subsequent calls.
	SeqValue string `json:"seqValue"`

	// DeviceStatus is the provisioning state reported by the status
	// refresh read-back.
	DeviceStatus string `json:"deviceStatus"`

	Detail string `json:"detail"`

	// Fields carries device metadata from the property fetch.
	Fields map[string]string `json:"fields"`
}

// response status values the sequencer branches on
const (
	respSuccess       = "SUCCESS"
	respNotFound      = "NOT_FOUND"
	respNotApplicable = "NOT_APPLICABLE"
)

// deviceStatusActive is the refresh read-back state that confirms the
// activation intent landed.
const deviceStatusActive = "active"

// decodeResponse parses a raw dealer response body.
// A malformed body or an unrecognized status decodes to StatusUnknown;
// the sequencer treats that as the failure branch of whatever step
// produced it.
func decodeResponse(raw []byte) (*stepResponse, workflow.Status) {
	resp := new(stepResponse)
	if err := json.Unmarshal(raw, resp); err != nil {
		return resp, workflow.StatusUnknown
	}
	switch strings.ToUpper(resp.Status) {
	case respSuccess:
		return resp, workflow.StatusSuccess
	case "FAILURE", "FAIL", "ERROR", respNotFound, respNotApplicable:
		return resp, workflow.StatusFailure
	}
	return resp, workflow.StatusUnknown
}

func (r *stepResponse) notFound() bool {
	return strings.EqualFold(r.Status, respNotFound)
}

func (r *stepResponse) notApplicable() bool {
	return strings.EqualFold(r.Status, respNotApplicable)
}

// pending reports whether the response carries one of the configured
// "still propagating" sub-codes.
func (s *Sequencer) pending(r *stepResponse) bool {
	_, ok := s.pendingCodes[strings.ToLower(r.Code)]
	return ok
}
