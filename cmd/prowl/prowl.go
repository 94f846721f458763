package main

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hostprowl/prowl/internal/candidate"
	"github.com/hostprowl/prowl/internal/classify"
	"github.com/hostprowl/prowl/internal/engine"
	"github.com/hostprowl/prowl/internal/log"
	"github.com/hostprowl/prowl/internal/model"
	"github.com/hostprowl/prowl/internal/outcome"
	"github.com/hostprowl/prowl/internal/probe"
	"github.com/hostprowl/prowl/internal/render"
	"github.com/hostprowl/prowl/internal/results"
	"github.com/hostprowl/prowl/internal/service"
)

// prowler wires the configured stores, the probe client and the engine
// settings together for the lifetime of the process. Engines are
// per-run, the stores survive across timer-mode runs.
type prowler struct {
	cfg model.Config

	notLive *outcome.Store
	found   *results.Store
	index   *results.Index

	fetcher probe.Fetcher
	rules   classify.Rules
	engCfg  engine.Config

	progressEvery time.Duration
}

func newProwler(ctx context.Context, cfg model.Config) (*prowler, error) {
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", cfg.Output.Dir, err)
	}

	timeout, err := service.ParseDuration(cfg.Probe.Timeout)
	if err != nil {
		return nil, fmt.Errorf("probe timeout: %w", err)
	}

	var progressEvery time.Duration
	if cfg.Service.ProgressInterval != "" {
		progressEvery, err = service.ParseDuration(cfg.Service.ProgressInterval)
		if err != nil {
			return nil, fmt.Errorf("progress interval: %w", err)
		}
	}

	notLive, err := outcome.Open(filepath.Join(cfg.Output.Dir, cfg.Output.NotLive))
	if err != nil {
		return nil, fmt.Errorf("opening not-live log: %w", err)
	}

	found, err := results.Open(filepath.Join(cfg.Output.Dir, cfg.Output.Found))
	if err != nil {
		_ = notLive.Close()
		return nil, fmt.Errorf("opening discovery record: %w", err)
	}

	index, err := results.OpenIndex(ctx, filepath.Join(cfg.Output.Dir, cfg.Output.Index))
	if err != nil {
		_ = notLive.Close()
		return nil, fmt.Errorf("opening discovery index: %w", err)
	}

	return &prowler{
		cfg:     cfg,
		notLive: notLive,
		found:   found,
		index:   index,
		fetcher: probe.NewClient(timeout, cfg.Probe.UserAgents),
		rules: classify.Rules{
			MinContentLength: cfg.Probe.MinContentLength,
			ParkedPhrases:    cfg.Probe.ParkedPhrases,
		},
		engCfg: engine.Config{
			Workers:        cfg.Probe.Workers,
			Timeout:        timeout,
			ReprobeNotLive: !cfg.Resume,
		},
		progressEvery: progressEvery,
	}, nil
}

func (p *prowler) Close() error {
	err := p.notLive.Close()
	if err2 := p.index.Close(); err == nil {
		err = err2
	}
	return err
}

// Scan performs one full run: dictionary phase, then the combination
// phase when enabled. Safe to call repeatedly, each run gets a fresh
// engine and picks up where the persisted state left off.
func (p *prowler) Scan(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = log.ContextAttrs(ctx, slog.String("runID", runID))

	wordlist, err := os.Open(p.cfg.Wordlist)
	if err != nil {
		return fmt.Errorf("%w: opening wordlist: %w", model.ErrGeneration, err)
	}
	defer func() {
		_ = wordlist.Close()
	}()

	seqs := []iter.Seq2[string, error]{
		candidate.Dictionary(ctx, wordlist, p.cfg.Suffixes),
	}
	if p.cfg.Combinations.Enabled {
		seqs = append(seqs, candidate.Combinations(ctx, p.cfg.Combinations.Length, p.cfg.Suffixes))
	}

	eng := engine.New(p.engCfg, p.fetcher, p.rules, p.notLive, p.found, p.index, runID)

	slog.InfoContext(ctx, "scan starting",
		"wordlist", p.cfg.Wordlist,
		"suffixes", p.cfg.Suffixes,
		"combinations", p.cfg.Combinations.Enabled,
		"resume", p.cfg.Resume,
		"cursor", p.notLive.Cursor(),
		"known", p.notLive.Len()+p.found.Len(),
	)

	progressCtx, stopProgress := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.NewProgress(os.Stdout, p.progressEvery, eng.Stats).Run(progressCtx)
	}()

	err = eng.Run(ctx, candidate.Join(seqs...))
	stopProgress()
	wg.Wait()

	stats := eng.Stats()
	slog.InfoContext(ctx, "scan finished",
		"generated", stats.Generated,
		"skipped", stats.Skipped,
		"probed", stats.Probed,
		"live", stats.Live,
		"notLive", stats.NotLive,
		"error", err,
	)
	return err
}

func doRun(cmd *cobra.Command, _ []string) error {
	p, err := newProwler(cmd.Context(), config)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Error("closing stores", "error", err)
		}
	}()

	s, err := service.NewSupervisor(config.Service, p.Scan)
	if err != nil {
		return err
	}
	return s.Do(cmd.Context())
}

func doQuery(cmd *cobra.Command, args []string) error {
	var substr string
	if len(args) == 1 {
		substr = args[0]
	}

	index, err := results.OpenIndex(cmd.Context(), filepath.Join(config.Output.Dir, config.Output.Index))
	if err != nil {
		return fmt.Errorf("opening discovery index: %w", err)
	}
	defer func() {
		_ = index.Close()
	}()

	discoveries, err := index.Search(cmd.Context(), substr)
	if err != nil {
		return fmt.Errorf("querying discoveries: %w", err)
	}
	for _, d := range discoveries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.FirstSeen.Format(time.RFC3339), d.RunID, d.Candidate)
	}
	return nil
}

func doRender(cmd *cobra.Command, _ []string) error {
	path := filepath.Join(config.Output.Dir, config.Output.HTMLPage)
	if err := render.WriteFile(path, config.Output.Found); err != nil {
		return err
	}
	slog.Info("page rendered", "path", path)
	return nil
}
