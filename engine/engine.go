// Package engine implements the activation workflow sequencer.
//
// The sequencer drives a device through the ordered dealer-service call
// graph (version check, property fetch, optional account creation,
// status update/refresh, registry update, block clearance, program
// status check), interpreting each response to decide whether to
// proceed, retry, branch, or stop. Domain-level step failures are
// handled entirely inside the sequencer's branching; only transport and
// authentication failures escape as errors.
package engine

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/oemtools/satactivate/dealer"
	"github.com/oemtools/satactivate/logkeys"
	"github.com/oemtools/satactivate/subsystem/profile/storage"
	"github.com/oemtools/satactivate/utils/uuid"
	"github.com/oemtools/satactivate/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Caller is the subset of the dealer client the sequencer uses.
type Caller interface {
	// Authenticate exchanges credentials for a new session.
	Authenticate(ctx context.Context) (*dealer.Session, error)

	// Call issues a single authenticated request and returns the raw
	// response body. Application-level failure codes in a well-formed
	// body are not errors.
	Call(ctx context.Context, endpoint string, form url.Values, sess *dealer.Session) ([]byte, error)
}

const (
	// DefaultRetryMax bounds the StatusUpdate retries on a pending
	// sub-code. The vendor does not document the propagation delay of
	// account creation so this stays configurable.
	DefaultRetryMax = 3

	// DefaultRetryBackoff is the pause between StatusUpdate retries.
	DefaultRetryBackoff = 2 * time.Second

	// DefaultRefreshLoopMax bounds how often a StatusRefresh mismatch
	// may loop back to StatusUpdate.
	DefaultRefreshLoopMax = 1
)

// defaultPendingCodes are response sub-codes treated as "still
// propagating" rather than definitive failure.
var defaultPendingCodes = []string{"pending", "propagating"}

// Sequencer executes activation runs against a dealer service.
// A Sequencer is safe for use by concurrent runs: all per-run state
// lives in the Run value.
type Sequencer struct {
	client   Caller
	deviceID string
	logger   log.Logger
	ider     uuid.IDer

	oracleURL  string
	oracleAddr string

	retryMax       int
	retryBackoff   time.Duration
	refreshLoopMax int
	pendingCodes   map[string]struct{}
}

type Option func(*Sequencer)

// WithLogger sets the sequencer logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

// WithRetryMax sets the StatusUpdate retry bound.
func WithRetryMax(max int) Option {
	return func(s *Sequencer) {
		s.retryMax = max
	}
}

// WithRetryBackoff sets the pause between StatusUpdate retries.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(s *Sequencer) {
		s.retryBackoff = backoff
	}
}

// WithRefreshLoopMax sets how often a StatusRefresh mismatch may loop
// back to StatusUpdate before the run is rejected.
func WithRefreshLoopMax(max int) Option {
	return func(s *Sequencer) {
		s.refreshLoopMax = max
	}
}

// WithPendingCodes replaces the response sub-codes that mark a
// StatusUpdate failure as retryable.
func WithPendingCodes(codes ...string) Option {
	return func(s *Sequencer) {
		s.pendingCodes = make(map[string]struct{})
		for _, c := range codes {
			s.pendingCodes[c] = struct{}{}
		}
	}
}

// WithOracleURL sets the program-status backend URL.
func WithOracleURL(u string) Option {
	return func(s *Sequencer) {
		s.oracleURL = u
	}
}

// WithOracleAddress sets the dealer address submitted with the
// program-status check.
func WithOracleAddress(addr string) Option {
	return func(s *Sequencer) {
		s.oracleAddr = addr
	}
}

// New creates a new activation sequencer using client.
// The deviceID is the app-installation identifier included in the
// request payloads that require it.
func New(client Caller, deviceID string, opts ...Option) *Sequencer {
	s := &Sequencer{
		client:         client,
		deviceID:       deviceID,
		logger:         log.NopLogger,
		ider:           uuid.NewUUID(),
		oracleURL:      dealer.DefaultOracleURL,
		oracleAddr:     defaultOracleAddress,
		retryMax:       DefaultRetryMax,
		retryBackoff:   DefaultRetryBackoff,
		refreshLoopMax: DefaultRefreshLoopMax,
	}
	WithPendingCodes(defaultPendingCodes...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run is the working state of one activation run.
// It is owned solely by the sequencer for the run's duration and
// consumed by Summarize afterward.
type Run struct {
	RunID   string
	Profile storage.Profile

	// Params holds working parameters accumulated while the run
	// executes: device metadata merged from DevicePropertyFetch and
	// the provisioning sequence value from StatusUpdate.
	Params map[string]string

	// Trace is the append-only, execution-ordered step record.
	Trace []workflow.StepResult

	Final workflow.FinalStatus

	// Cancelled is set when the run stopped on a cancellation signal.
	Cancelled bool

	session      *dealer.Session
	reauthed     bool
	refreshLoops int
	abortErr     error
}

// setFinal assigns the terminal status exactly once.
func (r *Run) setFinal(status workflow.FinalStatus) {
	if r.Final == workflow.FinalUnset {
		r.Final = status
	}
}

// lastStep returns the name of the most recently completed step.
func (r *Run) lastStep() workflow.StepName {
	if len(r.Trace) < 1 {
		return ""
	}
	return r.Trace[len(r.Trace)-1].Step
}

// Start executes a full activation run for profile and summarizes it.
// The returned error is non-nil only for infrastructure aborts
// (transport failure, failed re-authentication, cancellation); domain
// rejections are expressed solely through the outcome.
func (s *Sequencer) Start(ctx context.Context, profile storage.Profile) (*workflow.Outcome, error) {
	run := &Run{
		RunID:   s.ider.ID(),
		Profile: profile,
		Params:  make(map[string]string),
	}
	logger := ctxlog.Logger(ctx, s.logger).With(
		logkeys.RunID, run.RunID,
		logkeys.RadioID, profile.RadioID,
	)

	sess, err := s.client.Authenticate(ctx)
	if err != nil {
		run.setFinal(workflow.FinalAborted)
		run.abortErr = err
		logger.Info(logkeys.Message, "authenticate", logkeys.Error, err)
		return Summarize(run), run.abortErr
	}
	run.session = sess
	logger.Debug(logkeys.Message, "starting run")

	cur := workflow.StepVersionCheck
	for cur != "" {
		// cooperative cancellation, checked before every step
		if err := ctx.Err(); err != nil {
			run.setFinal(workflow.FinalAborted)
			run.Cancelled = true
			run.abortErr = err
			logger.Info(
				logkeys.Message, "run cancelled",
				logkeys.StepName, string(run.lastStep()),
				logkeys.Error, err,
			)
			break
		}

		result, next, err := s.execStep(ctx, run, cur)
		if result != nil {
			run.Trace = append(run.Trace, *result)
			logger.Info(
				logkeys.StepName, string(result.Step),
				logkeys.StepStatus, result.Status.String(),
				"at", result.Timestamp.Format(time.RFC3339),
			)
		}
		if err != nil {
			run.setFinal(workflow.FinalAborted)
			run.abortErr = err
			logger.Info(
				logkeys.Message, "run aborted",
				logkeys.StepName, string(cur),
				logkeys.Error, err,
			)
			break
		}
		cur = next
	}

	// release the session; it is never reused across runs
	run.session = nil

	logger.Info(
		logkeys.Message, "run finished",
		logkeys.FinalStatus, run.Final.String(),
		logkeys.GenericCount, len(run.Trace),
	)
	return Summarize(run), run.abortErr
}

// call issues one dealer call for the run, re-authenticating at most
// once per run when the session is rejected.
func (s *Sequencer) call(ctx context.Context, run *Run, endpoint string, form url.Values) ([]byte, error) {
	body, err := s.client.Call(ctx, endpoint, form, run.session)
	if errors.Is(err, dealer.ErrAuth) && !run.reauthed {
		run.reauthed = true
		sess, aerr := s.client.Authenticate(ctx)
		if aerr != nil {
			return nil, aerr
		}
		run.session = sess
		return s.client.Call(ctx, endpoint, form, run.session)
	}
	return body, err
}

// isTimeout reports whether err is a per-call timeout.
// Timeouts are domain failures for the step that hit them; other
// transport errors abort the run.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
