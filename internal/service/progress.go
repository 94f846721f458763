package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/hostprowl/prowl/internal/engine"
)

// Progress prints a one-line status on every tick, replacing the noise
// of per-probe output. It only reads counter snapshots.
type Progress struct {
	out      io.Writer
	interval time.Duration
	snapshot func() engine.Stats

	okColor  *color.Color
	sumColor *color.Color
}

func NewProgress(out io.Writer, interval time.Duration, snapshot func() engine.Stats) *Progress {
	return &Progress{
		out:      out,
		interval: interval,
		snapshot: snapshot,
		okColor:  color.New(color.FgGreen, color.Bold),
		sumColor: color.New(color.FgCyan),
	}
}

// Run ticks until the context ends, then prints a final summary line.
func (p *Progress) Run(ctx context.Context) {
	if p.interval <= 0 {
		<-ctx.Done()
		return
	}
	start := time.Now()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.line(start, true)
			return
		case <-ticker.C:
			p.line(start, false)
		}
	}
}

func (p *Progress) line(start time.Time, final bool) {
	s := p.snapshot()
	elapsed := time.Since(start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(s.Probed) / elapsed
	}

	label := "progress"
	if final {
		label = "finished"
	}
	fmt.Fprintf(p.out, "%s %s live, %d not-live, %d skipped, %s\n",
		p.sumColor.Sprintf("[%s] probed %d,", label, s.Probed),
		p.okColor.Sprintf("%d", s.Live),
		s.NotLive,
		s.Skipped,
		p.sumColor.Sprintf("%.1f/s", rate),
	)
}
