// Package engine drives the probing run: it pulls candidates from a
// generator stream, drops everything already classified, fans the rest
// out to a bounded pool of probe workers and routes every classified
// completion to the right store. The not-live log doubles as the
// checkpoint, its tail is the resume cursor of the next run.
package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hostprowl/prowl/internal/classify"
	"github.com/hostprowl/prowl/internal/model"
	"github.com/hostprowl/prowl/internal/outcome"
	"github.com/hostprowl/prowl/internal/probe"
	"github.com/hostprowl/prowl/internal/results"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Workers is the bound of the probe pool.
	Workers int
	// Timeout applies per probe on top of whatever the Fetcher enforces.
	Timeout time.Duration
	// ReprobeNotLive disables resume: candidates from the not-live log
	// are probed again. Appends stay deduplicated, so the log cannot
	// grow duplicate lines.
	ReprobeNotLive bool
}

type Engine struct {
	cfg     Config
	fetcher probe.Fetcher
	rules   classify.Rules
	notLive *outcome.Store
	found   *results.Store
	index   *results.Index // optional, derived state
	runID   string

	generated atomic.Uint64
	skipped   atomic.Uint64
	probed    atomic.Uint64
	live      atomic.Uint64
	dead      atomic.Uint64
}

// Stats is a point-in-time snapshot of run counters, safe to read while
// the run is in flight.
type Stats struct {
	Generated uint64
	Skipped   uint64
	Probed    uint64
	Live      uint64
	NotLive   uint64
}

func New(cfg Config, fetcher probe.Fetcher, rules classify.Rules, notLive *outcome.Store, found *results.Store, index *results.Index, runID string) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		rules:   rules,
		notLive: notLive,
		found:   found,
		index:   index,
		runID:   runID,
	}
}

func (e *Engine) Stats() Stats {
	return Stats{
		Generated: e.generated.Load(),
		Skipped:   e.skipped.Load(),
		Probed:    e.probed.Load(),
		Live:      e.live.Load(),
		NotLive:   e.dead.Load(),
	}
}

// Run drains the candidate stream. It returns on an exhausted stream, a
// canceled context, a generation error or a persistence error. Probe
// failures never fail the run, they classify as not-live.
func (e *Engine) Run(ctx context.Context, candidates iter.Seq2[string, error]) error {
	pool := newProbePool(ctx, e.cfg.Workers, e.probeOne)
	for res, err := range pool.iter(e.filter(ctx, candidates)) {
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrGeneration, err)
		}
		if err := e.route(ctx, res); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// filter drops candidates with an already persisted classification and
// in-run duplicates (the two generators may emit the same candidate).
func (e *Engine) filter(ctx context.Context, seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	seen := make(map[string]struct{})
	return func(yield func(string, error) bool) {
		for c, err := range seq {
			if err != nil {
				yield("", err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			e.generated.Add(1)
			if e.found.Contains(c) {
				e.skipped.Add(1)
				continue
			}
			if !e.cfg.ReprobeNotLive && e.notLive.Contains(c) {
				e.skipped.Add(1)
				continue
			}
			if _, ok := seen[c]; ok {
				e.skipped.Add(1)
				continue
			}
			seen[c] = struct{}{}
			if !yield(c, nil) {
				return
			}
		}
	}
}

type probed struct {
	candidate string
	outcome   model.Outcome
	status    int
	err       error
	elapsed   time.Duration
}

func (e *Engine) probeOne(ctx context.Context, candidate string) probed {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.fetcher.Fetch(ctx, candidate)
	elapsed := time.Since(start)
	e.probed.Add(1)

	out := e.rules.Classify(resp.Status, resp.Body, err)
	slog.DebugContext(ctx, "probed",
		"candidate", candidate,
		"outcome", out.String(),
		"status", resp.Status,
		"elapsed", elapsed,
		"error", err,
	)
	return probed{
		candidate: candidate,
		outcome:   out,
		status:    resp.Status,
		err:       err,
		elapsed:   elapsed,
	}
}

// route persists a completion. Writes are funneled through this single
// loop, workers never touch the stores.
func (e *Engine) route(ctx context.Context, res probed) error {
	if res.outcome.NotLive() {
		e.dead.Add(1)
		if err := e.notLive.RecordNotLive(res.candidate); err != nil {
			return fmt.Errorf("%w: %w", model.ErrPersistence, err)
		}
		return nil
	}

	e.live.Add(1)
	slog.InfoContext(ctx, "discovery", "candidate", res.candidate, "elapsed", res.elapsed)
	if err := e.found.MergeAndPersist(res.candidate); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	if e.index != nil {
		// the index is derived state, a failed insert must not lose
		// the discovery which is already in the record
		if err := e.index.Record(ctx, e.runID, res.candidate); err != nil {
			slog.WarnContext(ctx, "updating discovery index failed", "error", err)
		}
	}
	return nil
}

type poolResult struct {
	p probed
	e error
}

// probePool is a bounded parallel map over the candidate stream. One
// producer goroutine walks the stream and spawns up to limit workers, the
// consumer drains completions in completion order. A source error is
// forwarded once and ends the stream.
type probePool struct {
	parentCtx context.Context
	cancel    context.CancelFunc
	g         *errgroup.Group
	gctx      context.Context
	out       chan poolResult
	probeFn   func(context.Context, string) probed
}

func newProbePool(parentCtx context.Context, limit int, probeFn func(context.Context, string) probed) *probePool {
	parentCtx, cancel := context.WithCancel(parentCtx)
	g, gctx := errgroup.WithContext(parentCtx)
	g.SetLimit(limit + 1)

	return &probePool{
		parentCtx: parentCtx,
		cancel:    cancel,
		g:         g,
		gctx:      gctx,
		out:       make(chan poolResult, limit),
		probeFn:   probeFn,
	}
}

func (p *probePool) goWorkers(seq iter.Seq2[string, error]) {
	p.g.Go(func() error {
		for c, err := range seq {
			if err != nil {
				p.send(poolResult{e: err})
				return nil
			}
			p.g.Go(func() error {
				p.send(poolResult{p: p.probeFn(p.gctx, c)})
				return nil
			})
		}
		return nil
	})
}

func (p *probePool) send(r poolResult) {
	select {
	case <-p.gctx.Done():
	case p.out <- r:
	}
}

func (p *probePool) iter(seq iter.Seq2[string, error]) iter.Seq2[probed, error] {
	return func(yield func(probed, error) bool) {
		defer p.cancel()
		p.goWorkers(seq)

		go func() {
			_ = p.g.Wait()
			close(p.out)
		}()

		for r := range p.out {
			if p.parentCtx.Err() != nil {
				return
			}
			if !yield(r.p, r.e) {
				return
			}
		}
	}
}
