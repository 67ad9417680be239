// Package main starts a simulated dealer activation service.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/oemtools/satactivate/dealersim"
	"github.com/oemtools/satactivate/logkeys"

	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

func main() {
	var (
		flDebug    = flag.Bool("debug", false, "log debug messages")
		flListen   = flag.String("listen", ":9740", "HTTP listen address")
		flVersion  = flag.Bool("version", false, "print version and exit")
		flRadios   = flag.String("radios", "", "comma-separated radio IDs the service already knows")
		flPending  = flag.Uint("pending", 0, "number of status updates to answer with a pending failure")
		flInactive = flag.Uint("inactive", 0, "number of status refreshes to report an inactive device")
		flVerRej   = flag.Bool("version-reject", false, "fail every version check")
		flRegFail  = flag.Bool("registry-fail", false, "fail every registry update")
		flBlocked  = flag.Bool("blocked", false, "fail every provisioning block clear")
		flOracle   = flag.Bool("oracle-fail", false, "fail every program status check")
	)
	envflag.Parse("DEALERSIM_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	scenario := dealersim.Scenario{
		KnownRadios:       splitRadios(*flRadios),
		PendingUpdates:    int(*flPending),
		InactiveRefreshes: int(*flInactive),
		VersionRejected:   *flVerRej,
		RegistryFailure:   *flRegFail,
		BlockFailure:      *flBlocked,
		OracleFailure:     *flOracle,
	}
	sim := dealersim.New(scenario, dealersim.WithLogger(logger.With("service", "dealersim")))

	mux := http.NewServeMux()
	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))
	mux.Handle("/", sim.Handler())

	// seed for newTraceID
	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err := http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// splitRadios parses a comma-separated radio ID list into a scenario map.
func splitRadios(s string) map[string]map[string]string {
	radios := make(map[string]map[string]string)
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			radios[id] = nil
		}
	}
	return radios
}

// newTraceID generates a new HTTP trace ID for context logging.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
