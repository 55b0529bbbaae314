// Command firegrid runs a wildfire spread scenario: it loads an HCL scenario
// file, steps the simulation to termination and feeds every recorded
// snapshot to the configured sinks (JSONL file, Postgres, live WebSocket
// viewers).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"firegrid/internal/ctxlog"
	"firegrid/internal/scenario"
	"firegrid/internal/store"
	"firegrid/internal/stream"
	"firegrid/pkg/automaton"
)

// exitError carries a specific process exit code up to main.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.message)
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options is the resolved command line.
type options struct {
	scenarioPath string
	logLevel     string
	logFormat    string

	// Sink overrides; empty keeps the scenario's output block.
	out      string
	postgres string
	listen   string

	seed    int64
	seedSet bool
	workers int
	wrkSet  bool
	pace    int
}

func parseArgs(args []string, output io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("firegrid", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprint(output, `
firegrid - a multi-layer wildfire spread simulator.

Usage:
  firegrid [options] [SCENARIO_PATH]

Arguments:
  SCENARIO_PATH
    Path to an .hcl scenario file.

Options:
`)
		fs.PrintDefaults()
	}

	scenarioFlag := fs.String("scenario", "", "Path to the scenario file.")
	logFormatFlag := fs.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := fs.String("log-level", "info", "Log level. Options: 'debug', 'info', 'warn', 'error'.")
	outFlag := fs.String("out", "", "JSONL output path, overriding the scenario's output block.")
	postgresFlag := fs.String("postgres", "", "Postgres DSN, overriding the scenario's output block.")
	listenFlag := fs.String("listen", "", "Listen address for live WebSocket viewers, overriding the scenario.")
	seedFlag := fs.Int64("seed", 0, "Seed override for the run.")
	workersFlag := fs.Int("workers", 0, "Worker count override for the energy transfer pass.")
	paceFlag := fs.Int("pace", 0, "Maximum simulation steps per wall-clock second, for watching live. 0 runs unthrottled.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &exitError{code: 2, message: err.Error()}
	}

	opts := &options{
		scenarioPath: *scenarioFlag,
		logLevel:     strings.ToLower(*logLevelFlag),
		logFormat:    strings.ToLower(*logFormatFlag),
		out:          *outFlag,
		postgres:     *postgresFlag,
		listen:       *listenFlag,
		seed:         *seedFlag,
		workers:      *workersFlag,
		pace:         *paceFlag,
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			opts.seedSet = true
		case "workers":
			opts.wrkSet = true
		}
	})

	if opts.scenarioPath == "" && fs.NArg() > 0 {
		opts.scenarioPath = fs.Arg(0)
	}
	if opts.scenarioPath == "" {
		fs.Usage()
		return nil, true, nil
	}

	if opts.logFormat != "text" && opts.logFormat != "json" {
		return nil, false, &exitError{code: 2, message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch opts.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &exitError{code: 2, message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if opts.pace < 0 {
		return nil, false, &exitError{code: 2, message: "invalid pace: must be >= 0"}
	}
	return opts, false, nil
}

// newLogger builds an isolated slog.Logger for the run.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := parseArgs(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := newLogger(opts.logLevel, opts.logFormat, os.Stderr)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := scenario.Load(ctx, opts.scenarioPath)
	if err != nil {
		return err
	}
	applyOverrides(sc, opts)

	a, err := automaton.New(sc.Config)
	if err != nil {
		return err
	}

	name := sc.Name
	if name == "" {
		name = opts.scenarioPath
	}
	meta := store.MetaFor(name, sc.Config)

	sinks, err := openSinks(sc.Output)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			if cerr := s.Close(); cerr != nil {
				logger.Warn("closing sink", "error", cerr)
			}
		}
	}()
	for _, s := range sinks {
		if err := s.BeginRun(meta); err != nil {
			return err
		}
	}

	var caster *stream.Broadcaster
	if sc.Output.Listen != "" {
		caster = stream.NewBroadcaster(logger)
		if err := caster.Welcome(store.Line{Meta: &meta}); err != nil {
			return err
		}
		srv := &http.Server{Addr: sc.Output.Listen, Handler: caster}
		go func() {
			logger.Info("serving live snapshots", "addr", sc.Output.Listen, "path", "/")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("snapshot server failed", "error", err)
			}
		}()
		defer func() {
			caster.Shutdown()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting simulation",
		"scenario", name,
		"grid", fmt.Sprintf("%dx%d", sc.Config.Terrain.Width, sc.Config.Terrain.Height),
		"seed", sc.Config.Seed,
		"workers", sc.Config.Workers,
		"ignitions", len(sc.Config.Ignitions))

	if err := drive(ctx, a, sinks, caster, opts.pace); err != nil {
		return err
	}

	if !a.Status().Terminal() {
		logger.Warn("run interrupted before termination", "minutes", a.Clock())
		return nil
	}

	result := automaton.Result{Status: a.Status(), FinalTime: a.Clock(), Stats: a.Stats()}
	for _, s := range sinks {
		if err := s.EndRun(result); err != nil {
			return err
		}
	}
	if caster != nil {
		caster.Broadcast(store.Line{Result: &store.RunResult{
			Status:    result.Status.String(),
			FinalTime: result.FinalTime,
			Stats:     result.Stats,
		}})
	}

	logger.Info("simulation finished",
		"status", result.Status.String(),
		"minutes", result.FinalTime,
		"burned_area_m2", result.Stats.BurnedArea,
		"fuel_consumed_kg", result.Stats.TotalFuelConsumed,
		"max_fire_intensity_kw_m", result.Stats.MaxFireIntensity)
	return nil
}

// applyOverrides folds the command line into the loaded scenario.
func applyOverrides(sc *scenario.Scenario, opts *options) {
	if opts.seedSet {
		sc.Config.Seed = opts.seed
	}
	if opts.wrkSet {
		sc.Config.Workers = opts.workers
	}
	if opts.out != "" {
		sc.Output.JSONLPath = opts.out
	}
	if opts.postgres != "" {
		sc.Output.PostgresDSN = opts.postgres
	}
	if opts.listen != "" {
		sc.Output.Listen = opts.listen
	}
}

func openSinks(out scenario.Output) ([]store.Store, error) {
	var sinks []store.Store
	if out.JSONLPath != "" {
		s, err := store.NewJSONLStore(out.JSONLPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if out.PostgresDSN != "" {
		s, err := store.NewPostgresStore(out.PostgresDSN)
		if err != nil {
			for _, open := range sinks {
				open.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// drive steps the simulation to termination, flushing each newly recorded
// snapshot to the sinks and viewers as it appears. pace > 0 throttles the
// loop to that many steps per wall-clock second so live viewers can follow.
func drive(ctx context.Context, a *automaton.Automaton, sinks []store.Store, caster *stream.Broadcaster, pace int) error {
	log := ctxlog.FromContext(ctx)

	var tick <-chan time.Time
	if pace > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(pace))
		defer ticker.Stop()
		tick = ticker.C
	}

	flushed := 0
	flush := func() error {
		snaps := a.Snapshots()
		for ; flushed < len(snaps); flushed++ {
			snap := snaps[flushed]
			for _, s := range sinks {
				if err := s.WriteSnapshot(snap); err != nil {
					return err
				}
			}
			if caster != nil {
				if err := caster.Broadcast(store.Line{Snapshot: &snap}); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := flush(); err != nil {
		return err
	}

	for !a.Status().Terminal() {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
		if err := a.Step(); err != nil {
			return fmt.Errorf("step failed at minute %d: %w", a.Clock(), err)
		}
		if err := flush(); err != nil {
			return err
		}
		if a.Clock()%60 == 0 {
			stats := a.Stats()
			log.Debug("simulation progress",
				"minutes", a.Clock(),
				"burning", stats.Surface.Burning,
				"burned_area_m2", stats.BurnedArea,
				"fire_perimeter_m", stats.FirePerimeter)
		}
	}
	return nil
}
