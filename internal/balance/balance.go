// Package balance makes every segment boundary fire an integral number of
// times during init by inserting identity buffering into the graph.
package balance

import (
	"errors"
	"fmt"

	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/logging"
	"github.com/kingrea/streamsynth/internal/metrics"
	"github.com/kingrea/streamsynth/internal/rate"
	"github.com/kingrea/streamsynth/internal/ratio"
)

// DefaultMaxSweeps bounds the input sweeps of one Balance call.
const DefaultMaxSweeps = 64

// ErrNoFixpoint is returned when the sweep budget runs out before the graph
// stops changing.
var ErrNoFixpoint = errors.New("balance: no fixpoint")

// Options tune the balancer.
type Options struct {
	// InPlace allows buffering to be appended inside the producing segment.
	InPlace bool
	// MaxSweeps bounds the number of input sweeps; <= 0 selects
	// DefaultMaxSweeps.
	MaxSweeps int
}

// DefaultOptions enables in-place buffering with the default sweep budget.
func DefaultOptions() Options {
	return Options{InPlace: true, MaxSweeps: DefaultMaxSweeps}
}

// Applied describes one mutation made by the balancer.
type Applied struct {
	Kind     FixKind `yaml:"kind"`
	Segment  string  `yaml:"segment"`
	Edge     string  `yaml:"edge,omitempty"`
	Amount   int     `yaml:"amount"`
	Inserted string  `yaml:"inserted"`
	// Fallback is why an in-place fix was rejected in favour of a new
	// segment.
	Fallback string `yaml:"fallback,omitempty"`
}

// Report summarizes a Balance call.
type Report struct {
	Fixes  []Applied `yaml:"fixes,omitempty"`
	Sweeps int       `yaml:"sweeps"`
	Passes int       `yaml:"passes"`
}

// Mutations is the number of fixes applied.
func (r Report) Mutations() int { return len(r.Fixes) }

// Balancer runs the output and input passes to a fixpoint.
type Balancer struct {
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Recorder
}

// New returns a balancer. logger and recorder may be nil.
func New(opts Options, logger *logging.Logger, recorder *metrics.Recorder) *Balancer {
	if opts.MaxSweeps <= 0 {
		opts.MaxSweeps = DefaultMaxSweeps
	}
	return &Balancer{opts: opts, logger: logger, metrics: recorder}
}

// Balance mutates the graph behind m until every output port runs whole
// rounds and every input port receives the same number of rounds from each
// of its edges during init.
func (b *Balancer) Balance(m *rate.Model) (Report, error) {
	var report Report
	sweeps := 0
	for {
		report.Passes++
		changed, err := b.outputPass(m, &report)
		if err != nil {
			return report, err
		}
		for {
			if sweeps >= b.opts.MaxSweeps {
				return report, fmt.Errorf("%w: graph %s still changing after %d sweeps", ErrNoFixpoint, m.Graph().ID, sweeps)
			}
			sweeps++
			report.Sweeps = sweeps
			b.metrics.Sweep()
			swept, err := b.inputSweep(m, &report)
			if err != nil {
				return report, err
			}
			if !swept {
				break
			}
			changed = true
		}
		if !changed {
			break
		}
	}
	if err := m.Verify(); err != nil {
		return report, err
	}
	return report, nil
}

func (b *Balancer) outputPass(m *rate.Model, report *Report) (bool, error) {
	g := m.Graph()
	changed := false
	for _, seg := range g.Segments() {
		if seg.Output.NoOutputs() {
			continue
		}
		last := seg.Last()
		info, err := m.Info(last)
		if err != nil {
			return changed, err
		}
		sent := info.InitItemsSent
		total := seg.Output.TotalWeight()
		if sent == 0 || ratio.Divides(sent, total) {
			continue
		}
		remainder := sent % total
		pass := sent - remainder
		stage := g.AppendBufferingStage(seg, pass, last.SteadyMult()*last.Work().Push)
		b.logger.WithField("graph", g.ID).Printf("adding buffering after %s to equalize output, pass: %d buffer: %d", last.ID, pass, remainder)
		b.record(report, Applied{Kind: KindOutput, Segment: seg.ID, Amount: pass, Inserted: stage.ID})
		changed = true
	}
	return changed, nil
}

func (b *Balancer) inputSweep(m *rate.Model, report *Report) (bool, error) {
	g := m.Graph()
	ledger := NewLedger()
	changed := false
	for _, seg := range g.Segments() {
		portChanged, err := b.balancePort(m, ledger, seg, report)
		if err != nil {
			return changed, err
		}
		changed = changed || portChanged
	}
	if changed {
		b.logger.WithField("graph", g.ID).Debugf("sweep buffered %d segments in place", ledger.Len())
	}
	return changed, nil
}

// balancePort fixes the edges of seg's input port that deliver more than the
// common round count.
func (b *Balancer) balancePort(m *rate.Model, ledger *Ledger, seg *graph.Segment, report *Report) (bool, error) {
	in := seg.Input
	sources := in.Sources()
	if len(sources) == 0 {
		return false, nil
	}
	items := make([]int, len(sources))
	target := -1
	for i, e := range sources {
		items[i] = m.EdgeInitItems(e)
		rounds := ratio.FloorDiv(items[i], in.Weight(e))
		if target < 0 || rounds < target {
			target = rounds
		}
	}
	log := b.logger.WithFields(map[string]any{"graph": m.Graph().ID, "segment": seg.ID})
	changed := false
	for i, e := range sources {
		want := target * in.Weight(e)
		if items[i] == want {
			continue
		}
		log.Printf("for %s change %s from %d to %d items (%d rounds)", seg.ID, e.ID, items[i], want, target)
		changed = true
		candidate, verdict, err := Legality(m, b.opts, ledger, e, target)
		if err != nil {
			return changed, err
		}
		if verdict.Legal() {
			if err := b.applyInPlace(m, ledger, candidate, report); err != nil {
				return changed, err
			}
			continue
		}
		log.Warnf("cannot add buffering inside %s: %s", e.Src().ID, verdict)
		fix := NewSegment{Edge: e, Amount: want, SteadyMult: m.EdgeSteadyItems(e)}
		b.applyNewSegment(m, fix, verdict, report)
	}
	return changed, nil
}

func (b *Balancer) applyInPlace(m *rate.Model, ledger *Ledger, fix InPlace, report *Report) error {
	done, err := ledger.Reserve(fix.Segment, fix.Amount)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	g := m.Graph()
	last := fix.Segment.Last()
	stage := g.AppendBufferingStage(fix.Segment, fix.Amount, last.SteadyMult()*last.Work().Push)
	b.logger.WithField("graph", g.ID).Printf("adding buffering after %s to balance %s, pass: %d", last.ID, fix.Edge.ID, fix.Amount)
	b.record(report, Applied{Kind: fix.Kind(), Segment: fix.Segment.ID, Edge: fix.Edge.ID, Amount: fix.Amount, Inserted: stage.ID})
	return nil
}

func (b *Balancer) applyNewSegment(m *rate.Model, fix NewSegment, verdict Verdict, report *Report) {
	g := m.Graph()
	producer := fix.Edge.Src()
	seg := g.SpliceBufferingSegment(fix.Edge, fix.Amount, fix.SteadyMult)
	b.logger.WithField("graph", g.ID).Printf("adding new buffering segment %s at edge %s with initMult: %d, steadyMult: %d", seg.ID, fix.Edge.ID, fix.Amount, fix.SteadyMult)
	b.record(report, Applied{
		Kind:     fix.Kind(),
		Segment:  producer.ID,
		Edge:     fix.Edge.ID,
		Amount:   fix.Amount,
		Inserted: seg.ID,
		Fallback: verdict.String(),
	})
}

func (b *Balancer) record(report *Report, applied Applied) {
	report.Fixes = append(report.Fixes, applied)
	b.metrics.Fix(string(applied.Kind))
}
