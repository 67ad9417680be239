// Package dealersim implements a mock dealer activation service.
//
// It serves the dealer endpoints with scriptable behavior so full
// activation runs can be exercised locally (cmd/dealersim) and in
// integration tests without touching the production service.
package dealersim

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/oemtools/satactivate/dealer"
	"github.com/oemtools/satactivate/logkeys"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// OraclePath is where the simulator mounts the program-status backend.
// The real backend lives on a separate host; the simulator serves it
// off the same listener for convenience.
const OraclePath = "/program_status.php"

const simToken = "sim-claims-token"

// Scenario scripts the simulator's behavior.
// The zero value accepts everything and activates any radio.
type Scenario struct {
	// KnownRadios maps radio IDs to the metadata fields the property
	// fetch returns. Radios not present respond NOT_FOUND until an
	// account is created for them.
	KnownRadios map[string]map[string]string

	// VersionRejected fails the version check, which makes every run
	// abort immediately.
	VersionRejected bool

	// PendingUpdates answers the first N status updates with a
	// pending failure before succeeding, mimicking account-creation
	// propagation delay.
	PendingUpdates int

	// InactiveRefreshes answers the first N status refreshes with an
	// inactive device state.
	InactiveRefreshes int

	RegistryFailure bool
	BlockFailure    bool
	OracleFailure   bool
}

// Simulator is a scripted in-memory dealer service.
type Simulator struct {
	scenario Scenario
	logger   log.Logger

	mu        sync.Mutex
	created   map[string]bool // radios with simulated accounts
	pending   int
	inactive  int
	seqSerial int
}

type Option func(*Simulator)

// WithLogger sets the simulator logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// New creates a simulator for scenario.
func New(scenario Scenario, opts ...Option) *Simulator {
	s := &Simulator{
		scenario: scenario,
		logger:   log.NopLogger,
		created:  make(map[string]bool),
		pending:  scenario.PendingUpdates,
		inactive: scenario.InactiveRefreshes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// reply is the response document every simulated endpoint produces.
type reply struct {
	Status       string            `json:"status"`
	Code         string            `json:"code,omitempty"`
	SeqValue     string            `json:"seqValue,omitempty"`
	DeviceStatus string            `json:"deviceStatus,omitempty"`
	Detail       string            `json:"detail,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

func writeReply(w http.ResponseWriter, logger log.Logger, r *reply) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r); err != nil {
		logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
	}
}

// Handler returns the simulator's HTTP handler with all dealer
// endpoints and the oracle path registered.
func (s *Simulator) Handler() http.Handler {
	mux := flow.New()

	mux.Handle(dealer.EndpointLogin, s.loginHandler(), "POST")

	mux.Group(func(mux *flow.Mux) {
		mux.Use(s.requireSession)

		mux.Handle(dealer.EndpointVersionControl, s.versionHandler(), "POST")
		mux.Handle(dealer.EndpointGetProperties, s.propertiesHandler(), "POST")
		mux.Handle(dealer.EndpointCreateAccount, s.createAccountHandler(), "POST")
		mux.Handle(dealer.EndpointSATRefresh, s.statusUpdateHandler(), "POST")
		mux.Handle(dealer.EndpointRefreshForCC, s.statusUpdateHandler(), "POST")
		mux.Handle(dealer.EndpointCRMInfo, s.statusRefreshHandler(), "POST")
		mux.Handle(dealer.EndpointDBUpdate, s.registryHandler(), "POST")
		mux.Handle(dealer.EndpointBlockList, s.blockListHandler(), "POST")
		mux.Handle(OraclePath, s.oracleHandler(), "POST")
	})

	return mux
}

// requireSession rejects calls without the simulated session token.
func (s *Simulator) requireSession(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Voltmx-Authorization") != simToken {
			s.logger.Info(logkeys.Message, "rejecting unauthenticated call", logkeys.Endpoint, r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Simulator) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), s.logger)
		if r.Header.Get("X-Voltmx-App-Key") == "" || r.Header.Get("X-Voltmx-App-Secret") == "" {
			logger.Info(logkeys.Message, "login without app credentials")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"claims_token":{"value":%q}}`, simToken)
	}
}

func (s *Simulator) versionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.scenario.VersionRejected {
			writeReply(w, s.logger, &reply{Status: "FAILURE", Detail: "client update required"})
			return
		}
		writeReply(w, s.logger, &reply{Status: "SUCCESS"})
	}
}

func (s *Simulator) propertiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		radioID := r.PostFormValue("deviceId")
		s.mu.Lock()
		fields, known := s.scenario.KnownRadios[radioID]
		createdHere := s.created[radioID]
		s.mu.Unlock()
		if !known && !createdHere {
			writeReply(w, s.logger, &reply{Status: "NOT_FOUND", Detail: "no record for device"})
			return
		}
		writeReply(w, s.logger, &reply{Status: "SUCCESS", Fields: fields})
	}
}

func (s *Simulator) createAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		radioID := r.PostFormValue("deviceId")
		s.mu.Lock()
		s.created[radioID] = true
		s.mu.Unlock()
		ctxlog.Logger(r.Context(), s.logger).Debug(
			logkeys.Message, "account created",
			logkeys.RadioID, radioID,
		)
		writeReply(w, s.logger, &reply{Status: "SUCCESS"})
	}
}

func (s *Simulator) statusUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if s.pending > 0 {
			s.pending--
			s.mu.Unlock()
			writeReply(w, s.logger, &reply{Status: "FAILURE", Code: "pending", Detail: "provisioning still propagating"})
			return
		}
		s.seqSerial++
		seq := fmt.Sprintf("SEQ-%d", s.seqSerial)
		s.mu.Unlock()
		writeReply(w, s.logger, &reply{Status: "SUCCESS", SeqValue: seq})
	}
}

func (s *Simulator) statusRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		inactive := s.inactive > 0
		if inactive {
			s.inactive--
		}
		s.mu.Unlock()
		state := "active"
		if inactive {
			state = "inactive"
		}
		writeReply(w, s.logger, &reply{Status: "SUCCESS", DeviceStatus: state})
	}
}

func (s *Simulator) registryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.scenario.RegistryFailure {
			writeReply(w, s.logger, &reply{Status: "FAILURE", Detail: "registry unavailable"})
			return
		}
		writeReply(w, s.logger, &reply{Status: "SUCCESS"})
	}
}

func (s *Simulator) blockListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.scenario.BlockFailure {
			writeReply(w, s.logger, &reply{Status: "FAILURE", Detail: "device is blocked"})
			return
		}
		writeReply(w, s.logger, &reply{Status: "SUCCESS"})
	}
}

func (s *Simulator) oracleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("google_addr") == "" {
			writeReply(w, s.logger, &reply{Status: "FAILURE", Detail: "missing dealer address"})
			return
		}
		if s.scenario.OracleFailure {
			writeReply(w, s.logger, &reply{Status: "FAILURE", Detail: "program not found"})
			return
		}
		writeReply(w, s.logger, &reply{Status: "SUCCESS", Detail: "program active"})
	}
}
