package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/oemtools/satactivate/dealer"
	"github.com/oemtools/satactivate/subsystem/profile/storage"
	"github.com/oemtools/satactivate/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOracleURL = "https://oracle.test/program_status.php"

type fakeReply struct {
	body string
	err  error
}

// fakeDealer is a scripted dealer client. Replies are consumed per
// endpoint in order; endpoints with no script reply SUCCESS.
type fakeDealer struct {
	replies map[string][]fakeReply
	calls   []string // endpoints in call order
	auths   int
	authErr error
}

func newFakeDealer() *fakeDealer {
	return &fakeDealer{replies: make(map[string][]fakeReply)}
}

func (f *fakeDealer) script(endpoint string, replies ...fakeReply) {
	f.replies[endpoint] = append(f.replies[endpoint], replies...)
}

func (f *fakeDealer) Authenticate(_ context.Context) (*dealer.Session, error) {
	f.auths++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &dealer.Session{Token: fmt.Sprintf("tok-%d", f.auths), IssuedAt: time.Now()}, nil
}

func (f *fakeDealer) Call(_ context.Context, endpoint string, _ url.Values, sess *dealer.Session) ([]byte, error) {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	f.calls = append(f.calls, endpoint)
	if !sess.Valid() {
		return nil, fmt.Errorf("%w: no session", dealer.ErrAuth)
	}
	q := f.replies[endpoint]
	if len(q) < 1 {
		return []byte(`{"status":"SUCCESS"}`), nil
	}
	reply := q[0]
	f.replies[endpoint] = q[1:]
	return []byte(reply.body), reply.err
}

func (f *fakeDealer) countCalls(endpoint string) (n int) {
	for _, c := range f.calls {
		if c == endpoint {
			n++
		}
	}
	return
}

func testProfile() storage.Profile {
	return storage.Profile{RadioID: "1234567890", Label: "test radio"}
}

func newTestSequencer(f *fakeDealer, opts ...Option) *Sequencer {
	opts = append([]Option{
		WithOracleURL(testOracleURL),
		WithRetryBackoff(0),
	}, opts...)
	return New(f, "app-device-1", opts...)
}

func traceSteps(trace []workflow.StepResult) []workflow.StepName {
	steps := make([]workflow.StepName, len(trace))
	for i, r := range trace {
		steps[i] = r.Step
	}
	return steps
}

func TestActivationExistingDevice(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointGetProperties, fakeReply{body: `{"status":"SUCCESS","fields":{"plan":"trial"}}`})

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalActivated, outcome.Final)

	// an existing device must skip CreateAccount and still reach the
	// program status check
	assert.Zero(t, f.countCalls(dealer.EndpointCreateAccount))
	assert.Equal(t, []workflow.StepName{
		workflow.StepVersionCheck,
		workflow.StepDevicePropertyFetch,
		workflow.StepStatusUpdate,
		workflow.StepStatusRefresh,
		workflow.StepRegistryUpdate,
		workflow.StepProvisioningBlockClear,
		workflow.StepProgramStatusCheck,
	}, traceSteps(outcome.Trace))
}

func TestActivationNewDevice(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointGetProperties, fakeReply{body: `{"status":"NOT_FOUND"}`})
	f.script(dealer.EndpointSATRefresh, fakeReply{body: `{"status":"SUCCESS","seqValue":"SEQ-77"}`})
	f.script(dealer.EndpointDBUpdate, fakeReply{body: `{"status":"FAILURE","detail":"registry offline"}`})

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)

	// registry failure is best-effort and must not change the verdict
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
	assert.Equal(t, []workflow.StepName{
		workflow.StepVersionCheck,
		workflow.StepDevicePropertyFetch,
		workflow.StepCreateAccount,
		workflow.StepStatusUpdate,
		workflow.StepStatusRefresh,
		workflow.StepRegistryUpdate,
		workflow.StepProvisioningBlockClear,
		workflow.StepProgramStatusCheck,
	}, traceSteps(outcome.Trace))
	assert.Equal(t, workflow.StatusFailure, outcome.Trace[5].Status)

	// account creation must precede the status update
	created := -1
	updated := -1
	for i, c := range f.calls {
		switch c {
		case dealer.EndpointCreateAccount:
			created = i
		case dealer.EndpointSATRefresh:
			updated = i
		}
	}
	require.GreaterOrEqual(t, created, 0)
	require.GreaterOrEqual(t, updated, 0)
	assert.Less(t, created, updated)
}

func TestVersionCheckRejected(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointVersionControl, fakeReply{body: `{"status":"FAILURE","detail":"update required"}`})

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalAborted, outcome.Final)
	require.Len(t, outcome.Trace, 1)
	assert.Equal(t, workflow.StepVersionCheck, outcome.Trace[0].Step)
	assert.Contains(t, outcome.Reason, "update required")
}

func TestStatusUpdateRetryExhaustion(t *testing.T) {
	f := newFakeDealer()
	pending := fakeReply{body: `{"status":"FAILURE","code":"pending"}`}
	f.script(dealer.EndpointSATRefresh, pending, pending, pending, pending, pending)

	outcome, err := newTestSequencer(f, WithRetryMax(3)).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalRejected, outcome.Final)
	// bounded: exactly retryMax attempts, never an infinite loop
	assert.Equal(t, 3, f.countCalls(dealer.EndpointSATRefresh))
	assert.Equal(t, workflow.StepStatusUpdate, outcome.Trace[len(outcome.Trace)-1].Step)
}

func TestStatusUpdatePendingThenSuccess(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointSATRefresh,
		fakeReply{body: `{"status":"FAILURE","code":"pending"}`},
		fakeReply{body: `{"status":"SUCCESS","seqValue":"SEQ-1"}`},
	)

	outcome, err := newTestSequencer(f, WithRetryMax(3)).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
	assert.Equal(t, 2, f.countCalls(dealer.EndpointSATRefresh))
}

func TestStatusUpdateTimeoutRetries(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointSATRefresh,
		fakeReply{err: fmt.Errorf("%w: %w", dealer.ErrTransport, context.DeadlineExceeded)},
		fakeReply{body: `{"status":"SUCCESS","seqValue":"SEQ-1"}`},
	)

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
}

func TestStatusRefreshMismatchLoopsBack(t *testing.T) {
	f := newFakeDealer()
	mismatch := fakeReply{body: `{"status":"SUCCESS","deviceStatus":"inactive"}`}
	f.script(dealer.EndpointCRMInfo, mismatch, mismatch)

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalRejected, outcome.Final)

	// the bounded loop re-pushes via the refresh-for-CC variant
	assert.Equal(t, 1, f.countCalls(dealer.EndpointSATRefresh))
	assert.Equal(t, 1, f.countCalls(dealer.EndpointRefreshForCC))
	assert.Equal(t, 2, f.countCalls(dealer.EndpointCRMInfo))

	steps := traceSteps(outcome.Trace)
	assert.Equal(t, workflow.StepStatusRefresh, steps[len(steps)-1])
}

func TestStatusRefreshMismatchThenActive(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointCRMInfo,
		fakeReply{body: `{"status":"SUCCESS","deviceStatus":"inactive"}`},
		fakeReply{body: `{"status":"SUCCESS","deviceStatus":"active"}`},
	)

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
}

func TestUnknownPayloadNeverSucceeds(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointBlockList, fakeReply{body: `not json at all`})

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalRejected, outcome.Final)

	terminal := outcome.Trace[len(outcome.Trace)-1]
	assert.Equal(t, workflow.StepProvisioningBlockClear, terminal.Step)
	assert.Equal(t, workflow.StatusUnknown, terminal.Status)
}

func TestBlockClearNotApplicable(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointBlockList, fakeReply{body: `{"status":"NOT_APPLICABLE"}`})

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
}

func TestTransportErrorAborts(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointGetProperties, fakeReply{err: fmt.Errorf("%w: connection refused", dealer.ErrTransport)})

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.ErrorIs(t, err, dealer.ErrTransport)
	assert.Equal(t, workflow.FinalAborted, outcome.Final)
	// the last successful step is reported to the user
	assert.Contains(t, outcome.Reason, string(workflow.StepVersionCheck))
}

func TestCancelledBeforeRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFakeDealer()
	outcome, err := newTestSequencer(f).Start(ctx, testProfile())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, workflow.FinalAborted, outcome.Final)
	assert.Len(t, outcome.Trace, 0)
	assert.Contains(t, outcome.Reason, "cancelled")
}

func TestReauthenticateOncePerRun(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointSATRefresh,
		fakeReply{err: fmt.Errorf("%w: HTTP 401", dealer.ErrAuth)},
		fakeReply{body: `{"status":"SUCCESS","seqValue":"SEQ-9"}`},
	)

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
	// initial login plus exactly one re-authentication
	assert.Equal(t, 2, f.auths)
}

func TestRepeatedAuthRejectionAborts(t *testing.T) {
	f := newFakeDealer()
	rejected := fakeReply{err: fmt.Errorf("%w: HTTP 401", dealer.ErrAuth)}
	f.script(dealer.EndpointVersionControl, rejected, rejected)

	outcome, err := newTestSequencer(f).Start(context.Background(), testProfile())
	require.ErrorIs(t, err, dealer.ErrAuth)
	assert.Equal(t, workflow.FinalAborted, outcome.Final)
	assert.Equal(t, 2, f.auths)
}

func TestRerunAlreadyActivated(t *testing.T) {
	f := newFakeDealer()
	seq := newTestSequencer(f)

	first, err := seq.Start(context.Background(), testProfile())
	require.NoError(t, err)
	require.Equal(t, workflow.FinalActivated, first.Final)

	// a second run against an already-activated device must not fail
	// and derives its verdict solely from the program status check
	second, err := seq.Start(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, workflow.FinalActivated, second.Final)
	terminal := second.Trace[len(second.Trace)-1]
	assert.Equal(t, workflow.StepProgramStatusCheck, terminal.Step)
}

func TestPropertyFieldsMergedIntoParams(t *testing.T) {
	f := newFakeDealer()
	f.script(dealer.EndpointGetProperties,
		fakeReply{body: `{"status":"SUCCESS","fields":{"esn":"E123","plan":"trial"}}`})
	f.script(dealer.EndpointSATRefresh, fakeReply{body: `{"status":"SUCCESS","seqValue":"SEQ-5"}`})

	s := newTestSequencer(f)
	run := &Run{RunID: "r1", Profile: testProfile(), Params: make(map[string]string)}
	run.session = &dealer.Session{Token: "tok"}

	_, next, err := s.execStep(context.Background(), run, workflow.StepDevicePropertyFetch)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusUpdate, next)
	assert.Equal(t, "E123", run.Params["esn"])

	_, next, err = s.execStep(context.Background(), run, workflow.StepStatusUpdate)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusRefresh, next)
	assert.Equal(t, "SEQ-5", run.Params["seqVal"])
}

func TestFinalStatusSetOnce(t *testing.T) {
	run := &Run{}
	run.setFinal(workflow.FinalRejected)
	run.setFinal(workflow.FinalActivated)
	assert.Equal(t, workflow.FinalRejected, run.Final)
}
