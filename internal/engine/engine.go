// Package engine drives generators from a [fuzz.Registry] across a pool of
// workers, counts outcomes per generator and reports failing inputs.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/zkfuzz/internal/circuit"
	"github.com/calvinalkan/zkfuzz/internal/fuzz"
	"github.com/calvinalkan/zkfuzz/internal/randval"
)

// DefaultReportInterval is the reporting period used when none is set.
const DefaultReportInterval = 10 * time.Second

// ErrEngineStarted is returned by [Engine.Run] after the first call.
var ErrEngineStarted = errors.New("engine already started")

// Report is the record of one failing trial.
type Report struct {
	Generator string
	// Input is the JSON encoding of the case input.
	Input      json.RawMessage
	Err        error
	Undersized bool
	FoundAt    time.Time
}

// Sink persists reports. Record is only called from the reporting loop.
type Sink interface {
	Record(r Report) error
}

// Options configure an [Engine]. Zero values select defaults.
type Options struct {
	// Workers defaults to [DefaultWorkers].
	Workers int
	// ReportInterval defaults to [DefaultReportInterval].
	ReportInterval time.Duration
	// Seed seeds worker i with Seed+i. Zero draws a random seed.
	Seed uint64
	// MaxTrials stops the engine after that many trials. Zero runs until
	// [Engine.Stop] or context cancellation.
	MaxTrials uint64
	Sink      Sink
}

// DefaultWorkers is one worker per CPU, minus one kept for reporting.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// Engine runs trials. Create it with [New]; it runs once.
type Engine struct {
	reg      *fuzz.Registry
	opts     Options
	log      logrus.FieldLogger
	counters *Counters
	queue    queue

	stop    atomic.Bool
	started atomic.Bool
	trials  atomic.Uint64
}

// New returns an engine over reg.
func New(reg *fuzz.Registry, opts Options, log logrus.FieldLogger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}

	if opts.ReportInterval <= 0 {
		opts.ReportInterval = DefaultReportInterval
	}

	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}

	return &Engine{
		reg:      reg,
		opts:     opts,
		log:      log,
		counters: newCounters(reg.Names()),
	}
}

// Options returns the effective options, defaults applied.
func (e *Engine) Options() Options {
	return e.opts
}

// Stop asks every worker to exit after its current trial. It is safe to call
// from any goroutine, any number of times.
func (e *Engine) Stop() {
	if e.stop.CompareAndSwap(false, true) {
		e.log.Info("stop requested, waiting for in-flight trials")
	}
}

// Stopped reports whether the stop flag is set.
func (e *Engine) Stopped() bool {
	return e.stop.Load()
}

// Counters returns a snapshot of the per-generator counters.
func (e *Engine) Counters() Snapshot {
	return e.counters.Snapshot()
}

// Run starts the workers and the reporting loop and blocks until every worker
// has exited. Workers exit on [Engine.Stop], on ctx cancellation, once
// MaxTrials is reached, or when one of them hits an error that is not a
// verification failure; that error is returned.
//
// Reports still queued when the workers exit are flushed before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineStarted
	}

	e.log.WithFields(logrus.Fields{
		"generators": e.reg.Names(),
		"count":      e.reg.Len(),
	}).Info("registered generators")
	e.log.WithFields(logrus.Fields{
		"workers": e.opts.Workers,
		"seed":    e.opts.Seed,
	}).Info("starting workers")

	g, gctx := errgroup.WithContext(ctx)

	for i := range e.opts.Workers {
		rng := randval.NewSeededRand(e.opts.Seed + uint64(i))

		g.Go(func() error {
			return e.work(gctx, rng)
		})
	}

	done := make(chan error, 1)

	go func() {
		done <- g.Wait()
	}()

	return e.reportLoop(done)
}

func (e *Engine) work(ctx context.Context, rng *rand.Rand) error {
	for !e.stop.Load() {
		if ctx.Err() != nil {
			e.stop.Store(true)
			return nil
		}

		if e.opts.MaxTrials > 0 && e.trials.Add(1) > e.opts.MaxTrials {
			e.stop.Store(true)
			return nil
		}

		err := e.trial(rng)
		if err != nil {
			e.Stop()
			return err
		}
	}

	return nil
}

// trial runs one case. Only errors other than verification failures are
// returned.
func (e *Engine) trial(rng *rand.Rand) error {
	i := rng.IntN(e.reg.Len())
	gen := e.reg.At(i)
	c := gen.Generate(rng)

	runErr := c.Run()

	var verr *circuit.VerifyError
	if runErr != nil && !errors.As(runErr, &verr) {
		return fmt.Errorf("%s: %w", gen.Name(), runErr)
	}

	failed := runErr != nil
	undersized := false

	if failed {
		input, err := c.MarshalInput()
		if err != nil {
			return fmt.Errorf("%s: %w", gen.Name(), err)
		}

		undersized = verr.Undersized()
		e.queue.push(Report{
			Generator:  gen.Name(),
			Input:      input,
			Err:        runErr,
			Undersized: undersized,
			FoundAt:    time.Now(),
		})
	}

	e.counters.record(i, failed, undersized)

	return nil
}

// reportLoop flushes on every tick until done delivers the workers' result.
// The ticker keeps a fixed schedule regardless of how long a flush takes.
func (e *Engine) reportLoop(done <-chan error) error {
	ticker := time.NewTicker(e.opts.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			e.flush()

			if err != nil {
				e.log.WithError(err).Error("worker failed")
			}

			return err
		case <-ticker.C:
			e.flush()
		}
	}
}

func (e *Engine) flush() {
	for _, r := range e.queue.drain() {
		entry := e.log.WithFields(logrus.Fields{
			"generator":  r.Generator,
			"input":      string(r.Input),
			"undersized": r.Undersized,
		}).WithError(r.Err)

		if r.Undersized {
			entry.Warn("verification failed on capacity")
		} else {
			entry.Error("verification failed")
		}

		if e.opts.Sink == nil {
			continue
		}

		err := e.opts.Sink.Record(r)
		if err != nil {
			e.log.WithError(err).WithField("generator", r.Generator).Error("persist failure")
		}
	}

	for _, st := range e.counters.Snapshot() {
		e.log.WithFields(logrus.Fields{
			"generator":  st.Generator,
			"failed":     st.Failed,
			"total":      st.Total,
			"undersized": st.Undersized,
		}).Info("counters")
	}
}
