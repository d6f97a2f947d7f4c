package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/zkfuzz/internal/config"
	"github.com/calvinalkan/zkfuzz/internal/engine"
	"github.com/calvinalkan/zkfuzz/internal/failstore"
)

// runCmd returns the run command.
func runCmd(a *app) *Command {
	c := newCommand("run")
	fs := c.Flags
	workers := fs.IntP("workers", "j", 0, "Number of workers (0 = one per CPU minus one)")
	seed := fs.Uint64("seed", 0, "Base seed, worker i uses seed+i (0 = random)")
	maxTrials := fs.Uint64("max-trials", 0, "Stop after `n` trials (0 = unlimited)")
	duration := fs.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	interval := fs.Duration("report-interval", 0, "Period of failure and counter reports")
	gens := fs.StringSliceP("generator", "g", nil, "Only run the named generator (repeatable)")
	failuresDir := fs.String("failures-dir", "", "Directory failing inputs are written to")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on `addr`")
	noPersist := fs.Bool("no-persist", false, "Log failures without writing them to disk")

	c.Short = "Fuzz registered generators until interrupted"
	c.Long = `Run randomized trials of every registered generator on a pool of workers.

Failing inputs are logged and written to the failures directory. Counters are
logged every report interval. SIGINT or SIGTERM lets in-flight trials finish,
flushes pending reports and exits. A second signal exits immediately.`
	c.Exec = func(ctx context.Context, o *IO, _ []string) error {
		var overrides config.Partial

		if fs.Changed("workers") {
			overrides.Workers = workers
		}

		if fs.Changed("seed") {
			overrides.Seed = seed
		}

		if fs.Changed("max-trials") {
			overrides.MaxTrials = maxTrials
		}

		if fs.Changed("duration") {
			d := config.Duration(*duration)
			overrides.Duration = &d
		}

		if fs.Changed("report-interval") {
			d := config.Duration(*interval)
			overrides.ReportInterval = &d
		}

		if fs.Changed("generator") {
			overrides.Generators = gens
		}

		if fs.Changed("failures-dir") {
			overrides.FailuresDir = failuresDir
		}

		if fs.Changed("metrics-addr") {
			overrides.MetricsAddr = metricsAddr
		}

		cfg, err := a.loadConfig(overrides)
		if err != nil {
			return err
		}

		return a.execRun(ctx, o, cfg, !*noPersist)
	}

	return c
}

func (a *app) execRun(ctx context.Context, o *IO, cfg config.Config, persist bool) error {
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, o.ErrOut())
	if err != nil {
		return err
	}

	reg, err := a.registry.Subset(cfg.Generators)
	if err != nil {
		return err
	}

	opts := engine.Options{
		Workers:        cfg.Workers,
		ReportInterval: time.Duration(cfg.ReportInterval),
		Seed:           cfg.Seed,
		MaxTrials:      cfg.MaxTrials,
	}

	if persist {
		store, err := failstore.Open(cfg.FailuresDirAbs)
		if err != nil {
			return err
		}

		defer func() {
			closeErr := store.Close()
			if closeErr != nil {
				log.WithError(closeErr).Warn("close failure store")
			}
		}()

		opts.Sink = store
		log.WithField("dir", store.Dir()).Info("persisting failures")
	}

	eng := engine.New(reg, opts, log)

	if cfg.Duration > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Duration))
		defer cancel()
	}

	done := make(chan struct{})
	defer close(done)

	go watchSignals(a.sigCh, done, log, eng.Stop, a.exit)

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, eng, log)
		if err != nil {
			return err
		}

		defer stop()
	}

	runErr := eng.Run(ctx)

	printSummary(o, eng.Counters())

	return runErr
}

// serveMetrics exposes the engine's collector on addr until stop is called.
func serveMetrics(addr string, eng *engine.Engine, log logrus.FieldLogger) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(engine.NewCollector(eng))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		serveErr := srv.Serve(ln)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.WithError(serveErr).Error("metrics server")
		}
	}()

	log.WithField("addr", ln.Addr().String()).Info("serving metrics")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

func printSummary(o *IO, snap engine.Snapshot) {
	tw := tabwriter.NewWriter(o.Out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "GENERATOR\tFAILED\tUNDERSIZED\tTOTAL")

	for _, st := range snap {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", st.Generator, st.Failed, st.Undersized, st.Total)
	}

	sum := snap.Totals()
	_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", "(all)", sum.Failed, sum.Undersized, sum.Total)
	_ = tw.Flush()
}
