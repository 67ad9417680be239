// Package main is the satactivate CLI: it runs the dealer activation
// workflow for a stored radio profile.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oemtools/satactivate/dealer"
	"github.com/oemtools/satactivate/engine"
	"github.com/oemtools/satactivate/logkeys"
	storageact "github.com/oemtools/satactivate/subsystem/actlog/storage"
	storageprof "github.com/oemtools/satactivate/subsystem/profile/storage"
	"github.com/oemtools/satactivate/utils/uuid"
	"github.com/oemtools/satactivate/workflow"

	"github.com/joho/godotenv"
	"github.com/micromdm/nanolib/envflag"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/stdlogfmt"
	"gopkg.in/natefinch/lumberjack.v2"
)

// overridden by -ldflags -X
var version = "unknown"

// exit codes per final status
const (
	exitActivated = 0
	exitRejected  = 1
	exitAborted   = 2
	exitUsage     = 3
)

var (
	errWizardCancelled = errors.New("cancelled")
	errNoProfiles      = errors.New("no stored profiles")
)

func main() {
	var (
		flDebug   = flag.Bool("debug", false, "log debug messages")
		flVersion = flag.Bool("version", false, "print version and exit")

		flRadio = flag.String("radio", "", "radio ID to activate (skips the selection wizard)")
		flLabel = flag.String("label", "", "label stored with a radio given by -radio")
		flAdd   = flag.Bool("add", false, "add a new radio profile interactively")
		flList  = flag.Bool("list", false, "list stored radio profiles and exit")
		flForce = flag.Bool("force", false, "re-run activation even if the radio already activated")

		flStorage = flag.String("storage", "file", "name of storage backend")
		flDSN     = flag.String("storage-dsn", "db", "data source name (e.g. connection string or path)")

		flBaseURL    = flag.String("base-url", dealer.DefaultBaseURL, "dealer service base URL")
		flOracleURL  = flag.String("oracle-url", dealer.DefaultOracleURL, "program status service URL")
		flOracleAddr = flag.String("oracle-addr", "", "dealer street address for the program status check")
		flAppKey     = flag.String("app-key", "", "dealer app key")
		flAppSecret  = flag.String("app-secret", "", "dealer app secret")

		flTimeout = flag.Uint("timeout", uint(dealer.DefaultTimeout/time.Second), "per-request timeout in seconds")
		flRetries = flag.Uint("retries", engine.DefaultRetryMax, "attempts per retryable step")
		flBackoff = flag.Uint("retry-backoff", uint(engine.DefaultRetryBackoff/time.Second), "seconds between retry attempts")

		flLog     = flag.String("log", "", "also log to this file, with rotation")
		flLogSize = flag.Int("log-size", 10, "log rotation size in megabytes")
		flLogKeep = flag.Int("log-keep", 5, "rotated log files to keep")
	)
	// .env keeps the app credentials out of shell history
	_ = godotenv.Load()
	envflag.Parse("SATACTIVATE_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := newLogger(*flLog, *flLogSize, *flLogKeep, *flDebug)

	store, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flList {
		if err := listProfiles(ctx, store.profile, store.actlog, os.Stdout); err != nil {
			logger.Info(logkeys.Message, "listing profiles", logkeys.Error, err)
			os.Exit(exitUsage)
		}
		return
	}

	profile, err := resolveProfile(ctx, store, *flRadio, *flLabel, *flAdd)
	if errors.Is(err, errWizardCancelled) {
		return
	} else if errors.Is(err, errNoProfiles) {
		fmt.Fprintln(os.Stderr, "no stored profiles; add one with -add")
		os.Exit(exitUsage)
	} else if err != nil {
		logger.Info(logkeys.Message, "resolving profile", logkeys.Error, err)
		os.Exit(exitUsage)
	}

	if !*flForce {
		rec := previousActivation(ctx, logger, store.actlog, profile.RadioID)
		if rec != nil && rec.Activated {
			fmt.Fprintf(os.Stderr, "%s already activated on %s; re-run with -force\n",
				profile.RadioID, rec.LastActivated.Format(time.RFC1123))
			return
		}
	}

	if *flAppKey == "" || *flAppSecret == "" {
		logger.Info(logkeys.Error, "app key and secret required (flags or SATACTIVATE_APP_KEY, SATACTIVATE_APP_SECRET)")
		os.Exit(exitUsage)
	}

	deviceID, err := appDeviceID(ctx, store.profile)
	if err != nil {
		logger.Info(logkeys.Message, "resolving app device ID", logkeys.Error, err)
		os.Exit(exitUsage)
	}

	client := dealer.New(*flBaseURL, deviceID,
		dealer.WithLogger(logger.With("service", "dealer")),
		dealer.WithCredentials(*flAppKey, *flAppSecret),
		dealer.WithTimeout(time.Second*time.Duration(*flTimeout)),
	)

	eOpts := []engine.Option{
		engine.WithLogger(logger.With("service", "engine")),
		engine.WithOracleURL(*flOracleURL),
		engine.WithRetryMax(int(*flRetries)),
		engine.WithRetryBackoff(time.Second * time.Duration(*flBackoff)),
	}
	if *flOracleAddr != "" {
		eOpts = append(eOpts, engine.WithOracleAddress(*flOracleAddr))
	}
	seq := engine.New(client, deviceID, eOpts...)

	logger.Info(
		logkeys.Message, "starting activation",
		logkeys.RadioID, profile.RadioID,
		logkeys.DeviceID, deviceID,
	)

	outcome, err := seq.Start(ctx, *profile)
	if err != nil {
		logger.Info(logkeys.Message, "activation run", logkeys.Error, err)
	}

	if outcome.Final == workflow.FinalActivated {
		if err := store.actlog.StoreActivated(ctx, profile.RadioID, time.Now()); err != nil {
			logger.Info(logkeys.Message, "recording activation", logkeys.Error, err)
		}
	}

	fmt.Println(outcome.Reason)
	switch outcome.Final {
	case workflow.FinalActivated:
		os.Exit(exitActivated)
	case workflow.FinalRejected:
		os.Exit(exitRejected)
	default:
		os.Exit(exitAborted)
	}
}

// newLogger builds the process logger, teeing to a rotated file when
// path is set.
func newLogger(path string, sizeMB, keep int, debug bool) log.Logger {
	opts := []stdlogfmt.Option{stdlogfmt.WithDebugFlag(debug)}
	if path != "" {
		opts = append(opts, stdlogfmt.WithLogger(stdlog.New(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    sizeMB,
			MaxBackups: keep,
		}, "", 0)))
	}
	return stdlogfmt.New(opts...)
}

// resolveProfile picks the profile to activate: the -radio flag wins,
// -add runs the creation wizard, otherwise the selection wizard runs
// over the stored profiles.
func resolveProfile(ctx context.Context, store *storageConfig, radioID, label string, add bool) (*storageprof.Profile, error) {
	if add {
		return runAddWizard(ctx, store.profile)
	}
	if radioID != "" {
		p, err := store.profile.RetrieveProfile(ctx, normalizeRadioID(radioID))
		if errors.Is(err, storageprof.ErrProfileNotFound) {
			// unstored radio ID: persist it so -list and the next run see it
			p = &storageprof.Profile{RadioID: normalizeRadioID(radioID), Label: label}
			err = store.profile.StoreProfile(ctx, p)
		}
		return p, err
	}
	return runSelectWizard(ctx, store.profile, store.actlog)
}

// appDeviceID loads the persistent app-installation device ID,
// generating and storing one on first run.
func appDeviceID(ctx context.Context, store storageprof.Storage) (string, error) {
	id, err := store.RetrieveAppDeviceID(ctx)
	if errors.Is(err, storageprof.ErrNoDeviceID) {
		id = uuid.NewUUID().ID()
		return id, store.StoreAppDeviceID(ctx, id)
	}
	return id, err
}

// previousActivation returns the activation record for radioID, or nil
// when none exists. Retrieval failures other than a missing record are
// logged so a broken history backend cannot silently pass the
// already-activated guard.
func previousActivation(ctx context.Context, logger log.Logger, store storageact.ReadStorage, radioID string) *storageact.Record {
	rec, err := store.RetrieveRecord(ctx, radioID)
	if err != nil {
		if !errors.Is(err, storageact.ErrRecordNotFound) {
			logger.Info(
				logkeys.Message, "checking activation history",
				logkeys.RadioID, radioID,
				logkeys.Error, err,
			)
		}
		return nil
	}
	return rec
}

// activationNote renders a radio's prior-activation marker for the
// selection menu and the -list output.
func activationNote(rec storageact.Record, ok bool) string {
	if !ok || !rec.Activated {
		return ""
	}
	return fmt.Sprintf("[activated %s]", rec.LastActivated.Format("2006-01-02 15:04"))
}

func listProfiles(ctx context.Context, store storageprof.ReadStorage, history storageact.ReadStorage, w io.Writer) error {
	profiles, err := store.RetrieveProfiles(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.RadioID
	}
	records, err := history.RetrieveRecords(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		line := p.RadioID
		if p.Label != "" {
			line += "\t" + p.Label
		}
		rec, ok := records[p.RadioID]
		if note := activationNote(rec, ok); note != "" {
			line += "\t" + note
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
