// Package synth runs the synthesis passes over one graph and collects the
// results into a Plan.
package synth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/markphelps/optional"

	"github.com/kingrea/streamsynth/internal/balance"
	"github.com/kingrea/streamsynth/internal/buffer"
	"github.com/kingrea/streamsynth/internal/config"
	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/logging"
	"github.com/kingrea/streamsynth/internal/metrics"
	"github.com/kingrea/streamsynth/internal/primepump"
	"github.com/kingrea/streamsynth/internal/rate"
)

// Options gathers the settings of every pass.
type Options struct {
	Balance   balance.Options
	PrimePump primepump.Options
	CacheSize int
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	return FromConfig(config.Default())
}

// FromConfig maps a loaded configuration onto pass options.
func FromConfig(cfg config.Config) Options {
	opts := Options{
		Balance:   balance.Options{InPlace: cfg.Balance.InPlace, MaxSweeps: cfg.Balance.MaxSweeps},
		PrimePump: primepump.Options{Pipelining: cfg.Pipelining},
		CacheSize: cfg.RateCache.Size,
	}
	if cfg.PrimePump.MaxRounds > 0 {
		opts.PrimePump.MaxRounds = optional.NewInt(cfg.PrimePump.MaxRounds)
	}
	return opts
}

// Synthesizer wires the passes together. It holds no per-graph state, so one
// Synthesizer may serve several graphs concurrently.
type Synthesizer struct {
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Recorder
}

// New returns a synthesizer. logger and recorder may be nil.
func New(opts Options, logger *logging.Logger, recorder *metrics.Recorder) *Synthesizer {
	return &Synthesizer{opts: opts, logger: logger, metrics: recorder}
}

// Run balances g in place, schedules its prime-pump and sizes its channels.
// It returns a complete plan or an error, never both.
func (s *Synthesizer) Run(ctx context.Context, g *graph.Graph) (*Plan, error) {
	plan, err := s.run(ctx, g)
	if err != nil {
		s.metrics.Graph("error")
		return nil, err
	}
	s.metrics.Graph("ok")
	return plan, nil
}

func (s *Synthesizer) run(ctx context.Context, g *graph.Graph) (*Plan, error) {
	if g == nil {
		return nil, fmt.Errorf("synth: graph is required")
	}
	runID := uuid.NewString()
	log := s.logger.WithFields(map[string]any{"graph": g.ID, "run": runID})
	if err := g.Validate(); err != nil {
		return nil, err
	}
	model, err := rate.New(g, s.opts.CacheSize)
	if err != nil {
		return nil, err
	}
	if err := model.Verify(); err != nil {
		return nil, fmt.Errorf("synth: graph %s: %w", g.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Printf("equalizing splits and joins by buffering")
	report, err := balance.New(s.opts.Balance, log, s.metrics).Balance(model)
	if err != nil {
		return nil, fmt.Errorf("synth: graph %s: %w", g.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sched, err := primepump.New(s.opts.PrimePump, log, s.metrics).Schedule(g)
	if err != nil {
		return nil, fmt.Errorf("synth: graph %s: %w", g.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	channels, err := buffer.NewSizer(log, s.metrics).Size(model, sched)
	if err != nil {
		return nil, fmt.Errorf("synth: graph %s: %w", g.ID, err)
	}

	plan := newPlan(runID, g, report, sched, channels)
	log.Printf("plan ready: %d stages, %d channels, %d prime-pump rounds", len(plan.Stages), len(plan.Channels), len(plan.Rounds))
	return plan, nil
}
