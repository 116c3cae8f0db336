package primepump

import (
	"errors"
	"fmt"
	"strings"

	"github.com/markphelps/optional"

	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/logging"
	"github.com/kingrea/streamsynth/internal/metrics"
)

// ErrLivelock is returned when ramp-up cannot complete: the dependencies form
// a cycle or the round budget ran out.
var ErrLivelock = errors.New("primepump: livelock")

// Options tune the scheduler.
type Options struct {
	// Pipelining enables the prime-pump phase. When false the schedule is
	// empty and every multiplicity is zero.
	Pipelining bool
	// MaxRounds bounds the number of rounds. Unset means one round per
	// segment.
	MaxRounds optional.Int
}

// SkipReason explains why a segment did not fire in a round.
type SkipReason struct {
	Reason SkipReasonCode `yaml:"reason"`
	Detail string         `yaml:"detail,omitempty"`
}

// SkipReasonCode enumerates skip reasons.
type SkipReasonCode string

const (
	SkipReasonBlocked SkipReasonCode = "blocked"
)

// Round is one prime-pump step: every listed segment fires once,
// simultaneously.
type Round struct {
	Segments []string              `yaml:"segments"`
	Skipped  map[string]SkipReason `yaml:"skipped,omitempty"`
}

// Schedule is the ordered list of rounds plus the resulting per-segment
// multiplicities.
type Schedule struct {
	Rounds       []Round        `yaml:"rounds"`
	Multiplicity map[string]int `yaml:"multiplicity"`
}

// Mult returns the prime-pump multiplicity of seg.
func (s Schedule) Mult(seg *graph.Segment) int {
	return s.Multiplicity[seg.ID]
}

// Scheduler drives a resolver through the prime-pump rounds.
type Scheduler struct {
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Recorder
}

// New returns a scheduler. logger and recorder may be nil.
func New(opts Options, logger *logging.Logger, recorder *metrics.Recorder) *Scheduler {
	return &Scheduler{opts: opts, logger: logger, metrics: recorder}
}

// Schedule computes the prime-pump rounds of g.
func (s *Scheduler) Schedule(g *graph.Graph) (Schedule, error) {
	if g == nil {
		return Schedule{}, fmt.Errorf("primepump: graph is required")
	}
	log := s.logger.WithField("graph", g.ID)
	if !s.opts.Pipelining {
		out := Schedule{Multiplicity: make(map[string]int, len(g.Segments()))}
		for _, seg := range g.Segments() {
			out.Multiplicity[seg.ID] = 0
		}
		log.Debugf("software pipelining disabled, empty prime-pump schedule")
		s.metrics.Rounds(g.ID, 0)
		return out, nil
	}
	res, err := NewResolver(g)
	if err != nil {
		if errors.Is(err, graph.ErrCycle) {
			return Schedule{}, fmt.Errorf("%w: %w", ErrLivelock, err)
		}
		return Schedule{}, err
	}
	maxRounds := s.opts.MaxRounds.OrElse(len(g.Segments()))
	var rounds []Round
	for {
		if err := res.Refresh(); err != nil {
			return Schedule{}, err
		}
		if res.AllEligible() {
			break
		}
		if len(rounds) >= maxRounds {
			return Schedule{}, fmt.Errorf("%w: graph %s not ready after %d rounds", ErrLivelock, g.ID, len(rounds))
		}
		eligible := res.Eligible()
		if len(eligible) == 0 {
			return Schedule{}, fmt.Errorf("%w: graph %s has no eligible segment", ErrLivelock, g.ID)
		}
		round := Round{Segments: make([]string, 0, len(eligible))}
		for _, node := range eligible {
			round.Segments = append(round.Segments, node.ID)
		}
		for _, node := range res.Blocked() {
			round.addSkip(node.ID, SkipReason{Reason: SkipReasonBlocked, Detail: "waiting on " + strings.Join(node.BlockedBy, ", ")})
		}
		res.Fire(eligible)
		log.Debugf("prime-pump round %d fires %s", len(rounds)+1, strings.Join(round.Segments, ", "))
		rounds = append(rounds, round)
	}
	out := Schedule{Rounds: rounds, Multiplicity: res.Multiplicities()}
	log.Printf("prime-pump schedule has %d rounds", len(rounds))
	s.metrics.Rounds(g.ID, len(rounds))
	return out, nil
}

func (r *Round) addSkip(id string, reason SkipReason) {
	if id == "" {
		return
	}
	if r.Skipped == nil {
		r.Skipped = make(map[string]SkipReason)
	}
	r.Skipped[id] = reason
}
