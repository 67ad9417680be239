package dealersim

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/oemtools/satactivate/dealer"
	"github.com/oemtools/satactivate/engine"
	"github.com/oemtools/satactivate/subsystem/profile/storage"
	"github.com/oemtools/satactivate/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAgainst(t *testing.T, scenario Scenario, radioID string, opts ...engine.Option) *workflow.Outcome {
	t.Helper()

	srv := httptest.NewServer(New(scenario).Handler())
	t.Cleanup(srv.Close)

	client := dealer.New(srv.URL, "test-device-id",
		dealer.WithCredentials("test-app-key", "test-app-secret"),
	)

	opts = append([]engine.Option{
		engine.WithOracleURL(srv.URL + OraclePath),
		engine.WithRetryBackoff(0),
	}, opts...)
	seq := engine.New(client, "test-device-id", opts...)

	outcome, err := seq.Start(context.Background(), storage.Profile{RadioID: radioID})
	require.NoError(t, err)
	return outcome
}

func TestExistingRadioActivates(t *testing.T) {
	outcome := runAgainst(t, Scenario{
		KnownRadios: map[string]map[string]string{
			"RADIO-1": {"subscriptionPlan": "trial"},
		},
	}, "RADIO-1")

	assert.Equal(t, workflow.FinalActivated, outcome.Final)
	for _, res := range outcome.Trace {
		assert.NotEqual(t, workflow.StepCreateAccount, res.Step)
	}
}

func TestUnknownRadioCreatesAccount(t *testing.T) {
	outcome := runAgainst(t, Scenario{}, "RADIO-NEW")

	require.Equal(t, workflow.FinalActivated, outcome.Final)
	var created bool
	for _, res := range outcome.Trace {
		if res.Step == workflow.StepCreateAccount {
			created = true
			assert.Equal(t, workflow.StatusSuccess, res.Status)
		}
	}
	assert.True(t, created, "expected a create account step in the trace")
}

func TestPendingPropagationRetries(t *testing.T) {
	outcome := runAgainst(t, Scenario{PendingUpdates: 2}, "RADIO-2")
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
}

func TestPendingExhaustionRejects(t *testing.T) {
	outcome := runAgainst(t, Scenario{PendingUpdates: 10}, "RADIO-3")

	require.Equal(t, workflow.FinalRejected, outcome.Final)
	last := outcome.Trace[len(outcome.Trace)-1]
	assert.Equal(t, workflow.StepStatusUpdate, last.Step)
}

func TestVersionRejectedAborts(t *testing.T) {
	outcome := runAgainst(t, Scenario{VersionRejected: true}, "RADIO-4")

	assert.Equal(t, workflow.FinalAborted, outcome.Final)
	require.Len(t, outcome.Trace, 1)
	assert.Equal(t, workflow.StepVersionCheck, outcome.Trace[0].Step)
}

func TestInactiveRefreshLoopsBack(t *testing.T) {
	outcome := runAgainst(t, Scenario{InactiveRefreshes: 1}, "RADIO-5")
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
}

func TestRegistryFailureIgnored(t *testing.T) {
	outcome := runAgainst(t, Scenario{RegistryFailure: true}, "RADIO-6")
	assert.Equal(t, workflow.FinalActivated, outcome.Final)
}

func TestBlockedDeviceRejects(t *testing.T) {
	outcome := runAgainst(t, Scenario{BlockFailure: true}, "RADIO-7")

	require.Equal(t, workflow.FinalRejected, outcome.Final)
	last := outcome.Trace[len(outcome.Trace)-1]
	assert.Equal(t, workflow.StepProvisioningBlockClear, last.Step)
}

func TestOracleFailureRejects(t *testing.T) {
	outcome := runAgainst(t, Scenario{OracleFailure: true}, "RADIO-8")

	require.Equal(t, workflow.FinalRejected, outcome.Final)
	last := outcome.Trace[len(outcome.Trace)-1]
	assert.Equal(t, workflow.StepProgramStatusCheck, last.Step)
}

func TestUnauthenticatedCallRejected(t *testing.T) {
	srv := httptest.NewServer(New(Scenario{}).Handler())
	t.Cleanup(srv.Close)

	client := dealer.New(srv.URL, "test-device-id",
		dealer.WithCredentials("test-app-key", "test-app-secret"),
	)
	_, err := client.Call(context.Background(), dealer.EndpointVersionControl, nil, &dealer.Session{Token: "bogus"})
	assert.ErrorIs(t, err, dealer.ErrAuth)
}
