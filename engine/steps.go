package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/oemtools/satactivate/dealer"
	"github.com/oemtools/satactivate/logkeys"
	"github.com/oemtools/satactivate/workflow"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// Static client-identity values presented to the dealer service.
// The service gates activation on a recognized app version and device
// description, not on the actual caller.
const (
	appVersion      = "3.1.0"
	deviceCategory  = "iPhone"
	deviceModel     = "iPhone 6 Plus"
	deviceOSVersion = "12.5.7"
	deviceLocale    = "en_US"
	deviceTypeFull  = "iPhone iPhone 6 Plus"
	osVersionFull   = "iPhone 12.5.7"

	// fixed coordinates submitted with the provisioning push
	provisionLat = "32.37436705"
	provisionLng = "-86.210313195"

	defaultOracleAddress = "395 EASTERN BLVD, MONTGOMERY, AL 36117, USA"
)

// paramSeqValue is the working-parameter key for the provisioning
// sequence value.
const paramSeqValue = "seqVal"

func newResult(step workflow.StepName, status workflow.Status, raw []byte, detail string) *workflow.StepResult {
	return &workflow.StepResult{
		Step:      step,
		Status:    status,
		Raw:       raw,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// execStep runs a single step and returns its result, the next step to
// execute ("" when the run reached a terminal decision), and any
// infrastructure error that should abort the run.
func (s *Sequencer) execStep(ctx context.Context, run *Run, step workflow.StepName) (*workflow.StepResult, workflow.StepName, error) {
	switch step {
	case workflow.StepVersionCheck:
		return s.stepVersionCheck(ctx, run)
	case workflow.StepDevicePropertyFetch:
		return s.stepDevicePropertyFetch(ctx, run)
	case workflow.StepCreateAccount:
		return s.stepCreateAccount(ctx, run)
	case workflow.StepStatusUpdate:
		return s.stepStatusUpdate(ctx, run)
	case workflow.StepStatusRefresh:
		return s.stepStatusRefresh(ctx, run)
	case workflow.StepRegistryUpdate:
		return s.stepRegistryUpdate(ctx, run)
	case workflow.StepProvisioningBlockClear:
		return s.stepProvisioningBlockClear(ctx, run)
	case workflow.StepProgramStatusCheck:
		return s.stepProgramStatusCheck(ctx, run)
	}
	return nil, "", fmt.Errorf("unknown step: %s", step)
}

// stepVersionCheck verifies the declared client version is still
// accepted. A rejection is terminal: no retry can fix an outdated
// client, so the run aborts.
func (s *Sequencer) stepVersionCheck(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	form := url.Values{
		"deviceCategory": {deviceCategory},
		"appver":         {appVersion},
		"deviceLocale":   {deviceLocale},
		"deviceModel":    {deviceModel},
		"deviceVersion":  {deviceOSVersion},
		"deviceType":     {""},
	}
	body, err := s.call(ctx, run, dealer.EndpointVersionControl, form)
	if err != nil {
		if isTimeout(err) {
			run.setFinal(workflow.FinalAborted)
			return newResult(workflow.StepVersionCheck, workflow.StatusFailure, nil, "request timed out"), "", nil
		}
		return nil, "", err
	}

	resp, status := decodeResponse(body)
	if status != workflow.StatusSuccess {
		run.setFinal(workflow.FinalAborted)
		return newResult(workflow.StepVersionCheck, status, body, detailOr(resp, "client version rejected")), "", nil
	}
	return newResult(workflow.StepVersionCheck, status, body, ""), workflow.StepDevicePropertyFetch, nil
}

// stepDevicePropertyFetch retrieves remote metadata for the radio.
// A not-found response means the device has never been provisioned and
// branches to CreateAccount; metadata from a found device is merged
// into the run's working parameters.
func (s *Sequencer) stepDevicePropertyFetch(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	form := url.Values{"deviceId": {run.Profile.RadioID}}
	body, err := s.call(ctx, run, dealer.EndpointGetProperties, form)
	if err != nil {
		if isTimeout(err) {
			run.setFinal(workflow.FinalRejected)
			return newResult(workflow.StepDevicePropertyFetch, workflow.StatusFailure, nil, "request timed out"), "", nil
		}
		return nil, "", err
	}

	resp, status := decodeResponse(body)
	switch {
	case status == workflow.StatusSuccess:
		for k, v := range resp.Fields {
			run.Params[k] = v
		}
		return newResult(workflow.StepDevicePropertyFetch, status, body, ""), workflow.StepStatusUpdate, nil
	case resp.notFound():
		return newResult(workflow.StepDevicePropertyFetch, workflow.StatusFailure, body, "device not provisioned"),
			workflow.StepCreateAccount, nil
	}
	// only an explicit not-found branches to account creation; any
	// other failure here is a definitive rejection
	run.setFinal(workflow.FinalRejected)
	return newResult(workflow.StepDevicePropertyFetch, status, body, detailOr(resp, "property fetch failed")), "", nil
}

// stepCreateAccount registers a new account for a never-provisioned radio.
func (s *Sequencer) stepCreateAccount(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	form := url.Values{
		"seqVal":         {run.Params[paramSeqValue]},
		"deviceId":       {run.Profile.RadioID},
		"oracleCXFailed": {"1"},
		"appVersion":     {appVersion},
	}
	body, err := s.call(ctx, run, dealer.EndpointCreateAccount, form)
	if err != nil {
		if isTimeout(err) {
			run.setFinal(workflow.FinalRejected)
			return newResult(workflow.StepCreateAccount, workflow.StatusFailure, nil, "request timed out"), "", nil
		}
		return nil, "", err
	}

	resp, status := decodeResponse(body)
	if status != workflow.StatusSuccess {
		run.setFinal(workflow.FinalRejected)
		return newResult(workflow.StepCreateAccount, status, body, detailOr(resp, "account creation failed")), "", nil
	}
	return newResult(workflow.StepCreateAccount, status, body, ""), workflow.StepStatusUpdate, nil
}

// statusUpdateForm builds the provisioning push payload.
// Re-pushes after a refresh mismatch use the credit-card refresh
// endpoint variant, which wants the device description instead of
// coordinates.
func (s *Sequencer) statusUpdateForm(run *Run) (endpoint string, form url.Values) {
	if run.refreshLoops > 0 {
		return dealer.EndpointRefreshForCC, url.Values{
			"deviceId":          {run.Profile.RadioID},
			"provisionPriority": {"2"},
			"appVersion":        {appVersion},
			"device_Type":       {deviceTypeFull},
			"deviceID":          {s.deviceID},
			"os_Version":        {osVersionFull},
			"provisionType":     {"activate"},
		}
	}
	return dealer.EndpointSATRefresh, url.Values{
		"deviceId":          {run.Profile.RadioID},
		"appVersion":        {appVersion},
		"lng":               {provisionLng},
		"deviceID":          {s.deviceID},
		"provisionPriority": {"2"},
		"provisionType":     {"activate"},
		"lat":               {provisionLat},
	}
}

// stepStatusUpdate pushes the activation intent.
// A failure carrying a pending sub-code is retried up to the
// configured bound with a short backoff: the remote side may still be
// propagating account creation. Exhausting the bound rejects the run.
func (s *Sequencer) stepStatusUpdate(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	logger := ctxlog.Logger(ctx, s.logger).With(
		logkeys.RunID, run.RunID,
		logkeys.StepName, string(workflow.StepStatusUpdate),
	)
	endpoint, form := s.statusUpdateForm(run)

	for attempt := 1; ; attempt++ {
		body, err := s.call(ctx, run, endpoint, form)
		if err != nil && !isTimeout(err) {
			return nil, "", err
		}

		var resp *stepResponse
		status := workflow.StatusRetry // timeouts on this step are retryable
		if err == nil {
			resp, status = decodeResponse(body)
			if status == workflow.StatusSuccess {
				if resp.SeqValue != "" {
					run.Params[paramSeqValue] = resp.SeqValue
				}
				return newResult(workflow.StepStatusUpdate, status, body, ""), workflow.StepStatusRefresh, nil
			}
			if status == workflow.StatusFailure && s.pending(resp) {
				status = workflow.StatusRetry
			}
		}

		if status == workflow.StatusRetry && attempt < s.retryMax {
			logger.Debug(
				logkeys.Message, "status update pending",
				logkeys.Attempt, attempt,
			)
			if serr := sleepCtx(ctx, s.retryBackoff); serr != nil {
				return nil, "", serr
			}
			continue
		}

		run.setFinal(workflow.FinalRejected)
		detail := fmt.Sprintf("status update failed after %d attempt(s)", attempt)
		if resp != nil && resp.Detail != "" {
			detail = resp.Detail
		}
		if status == workflow.StatusRetry {
			status = workflow.StatusFailure // bound exhausted
		}
		return newResult(workflow.StepStatusUpdate, status, body, detail), "", nil
	}
}

// stepStatusRefresh re-reads the device status to confirm the update
// landed. A mismatch loops back to StatusUpdate a bounded number of
// times; a persistent mismatch rejects the run.
func (s *Sequencer) stepStatusRefresh(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	form := url.Values{
		"seqVal":   {run.Params[paramSeqValue]},
		"deviceId": {run.Profile.RadioID},
	}
	body, err := s.call(ctx, run, dealer.EndpointCRMInfo, form)
	if err != nil && !isTimeout(err) {
		return nil, "", err
	}

	if err == nil {
		resp, status := decodeResponse(body)
		if status == workflow.StatusSuccess &&
			(resp.DeviceStatus == "" || resp.DeviceStatus == deviceStatusActive) {
			return newResult(workflow.StepStatusRefresh, status, body, ""), workflow.StepRegistryUpdate, nil
		}
	}

	// mismatch, malformed payload, or timeout: all take the bounded
	// loop back to StatusUpdate
	if run.refreshLoops < s.refreshLoopMax {
		run.refreshLoops++
		return newResult(workflow.StepStatusRefresh, workflow.StatusRetry, body, "device not active yet"),
			workflow.StepStatusUpdate, nil
	}
	run.setFinal(workflow.FinalRejected)
	return newResult(workflow.StepStatusRefresh, workflow.StatusFailure, body, "device status mismatch persisted"), "", nil
}

// stepRegistryUpdate records the activation in the external audit
// registry. Best-effort: a failure is traced and logged but never
// changes the run's outcome, since it has no bearing on whether the
// radio itself is activated.
func (s *Sequencer) stepRegistryUpdate(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	form := url.Values{
		"OM_ELIGIBILITY_STATUS": {"Eligible"},
		"appVersion":            {appVersion},
		"flag":                  {"failure"},
		"Radio_ID":              {run.Profile.RadioID},
		"deviceID":              {s.deviceID},
		"G_PLACES_REQUEST":      {""},
		"OS_Version":            {osVersionFull},
		"G_PLACES_RESPONSE":     {""},
		"Confirmation_Status":   {"SUCCESS"},
		"seqVal":                {run.Params[paramSeqValue]},
	}
	body, err := s.call(ctx, run, dealer.EndpointDBUpdate, form)
	if err != nil {
		ctxlog.Logger(ctx, s.logger).Info(
			logkeys.Message, "registry update (ignored)",
			logkeys.RunID, run.RunID,
			logkeys.Error, err,
		)
		return newResult(workflow.StepRegistryUpdate, workflow.StatusFailure, nil, "registry update failed"),
			workflow.StepProvisioningBlockClear, nil
	}

	resp, status := decodeResponse(body)
	return newResult(workflow.StepRegistryUpdate, status, body, resp.Detail), workflow.StepProvisioningBlockClear, nil
}

// stepProvisioningBlockClear clears any carrier-side block flag.
// An explicit failure is terminal: a blocked device cannot complete
// activation.
func (s *Sequencer) stepProvisioningBlockClear(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	form := url.Values{"deviceId": {s.deviceID}}
	body, err := s.call(ctx, run, dealer.EndpointBlockList, form)
	if err != nil {
		if isTimeout(err) {
			run.setFinal(workflow.FinalRejected)
			return newResult(workflow.StepProvisioningBlockClear, workflow.StatusFailure, nil, "request timed out"), "", nil
		}
		return nil, "", err
	}

	resp, status := decodeResponse(body)
	if status == workflow.StatusSuccess || resp.notApplicable() {
		return newResult(workflow.StepProvisioningBlockClear, workflow.StatusSuccess, body, ""),
			workflow.StepProgramStatusCheck, nil
	}
	run.setFinal(workflow.FinalRejected)
	return newResult(workflow.StepProvisioningBlockClear, status, body, detailOr(resp, "device block clearance failed")), "", nil
}

// stepProgramStatusCheck confirms the subscription state against the
// program-status backend. This is the only step that can activate the
// run.
func (s *Sequencer) stepProgramStatusCheck(ctx context.Context, run *Run) (*workflow.StepResult, workflow.StepName, error) {
	endpoint := s.oracleURL + "?google_addr=" + url.QueryEscape(s.oracleAddr)
	body, err := s.call(ctx, run, endpoint, url.Values{})
	if err != nil {
		if isTimeout(err) {
			run.setFinal(workflow.FinalRejected)
			return newResult(workflow.StepProgramStatusCheck, workflow.StatusFailure, nil, "request timed out"), "", nil
		}
		return nil, "", err
	}

	resp, status := decodeResponse(body)
	if status != workflow.StatusSuccess {
		run.setFinal(workflow.FinalRejected)
		return newResult(workflow.StepProgramStatusCheck, status, body, detailOr(resp, "program status check failed")), "", nil
	}
	run.setFinal(workflow.FinalActivated)
	return newResult(workflow.StepProgramStatusCheck, status, body, resp.Detail), "", nil
}

func detailOr(resp *stepResponse, fallback string) string {
	if resp != nil && resp.Detail != "" {
		return resp.Detail
	}
	return fallback
}
