// Package buffer sizes the communication channels of a balanced graph and
// derives how many rotating copies each one needs so producers can run ahead
// of their consumers after the prime-pump.
package buffer

import (
	"fmt"

	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/logging"
	"github.com/kingrea/streamsynth/internal/metrics"
	"github.com/kingrea/streamsynth/internal/primepump"
	"github.com/kingrea/streamsynth/internal/rate"
)

// Kind is where a channel sits in the graph.
type Kind string

const (
	// KindCross connects the output port of one segment to the input port
	// of another.
	KindCross Kind = "cross"
	// KindInput feeds the first stage of a segment from its input port.
	KindInput Kind = "input"
	// KindIntra connects two consecutive stages of a segment.
	KindIntra Kind = "intra"
	// KindOutput carries the last stage's items to the output port.
	KindOutput Kind = "output"
)

// Layout is how the consumer addresses the channel.
type Layout string

const (
	// LayoutNone means the consumer never peeks and needs no receive buffer.
	LayoutNone Layout = "none"
	// LayoutFlat is a plain array read front to back.
	LayoutFlat Layout = "flat"
	// LayoutCircular needs wrap-around indexing or a copy-down.
	LayoutCircular Layout = "circular"
)

// Channel is one sized buffer.
type Channel struct {
	ID       string `yaml:"id"`
	Kind     Kind   `yaml:"kind"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Capacity int    `yaml:"capacity"`
	Rotation int    `yaml:"rotation"`
	Layout   Layout `yaml:"layout"`
}

// Slot returns the rotating copy that producer iteration k writes and
// consumer iteration k drains.
func (c Channel) Slot(k int) int {
	if c.Rotation <= 0 {
		return 0
	}
	return k % c.Rotation
}

// Footprint is the number of items held across every rotating copy.
func (c Channel) Footprint() int {
	return c.Capacity * c.Rotation
}

// Sizer computes channels from rate data and a prime-pump schedule.
type Sizer struct {
	logger  *logging.Logger
	metrics *metrics.Recorder
}

// NewSizer returns a sizer. logger and recorder may be nil.
func NewSizer(logger *logging.Logger, recorder *metrics.Recorder) *Sizer {
	return &Sizer{logger: logger, metrics: recorder}
}

// Size returns every channel of the graph behind m, segment by segment:
// input, intra-segment and output channels, followed by the cross edges.
func (s *Sizer) Size(m *rate.Model, sched primepump.Schedule) ([]Channel, error) {
	g := m.Graph()
	var channels []Channel
	for _, seg := range g.Segments() {
		segChannels, err := segmentChannels(m, sched, seg)
		if err != nil {
			return nil, err
		}
		channels = append(channels, segChannels...)
	}
	for _, e := range g.Edges() {
		ch, err := crossChannel(m, sched, e)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	log := s.logger.WithField("graph", g.ID)
	for _, ch := range channels {
		log.Debugf("channel %s (%s) capacity %d rotation %d layout %s", ch.ID, ch.Kind, ch.Capacity, ch.Rotation, ch.Layout)
		s.metrics.Channel(g.ID, string(ch.Layout), ch.Rotation)
	}
	return channels, nil
}

// Size is a convenience wrapper around a Sizer without logging or metrics.
func Size(m *rate.Model, sched primepump.Schedule) ([]Channel, error) {
	return NewSizer(nil, nil).Size(m, sched)
}

// RotationLength is 1 + how far the producer's prime-pump runs ahead of the
// consumer's.
func RotationLength(sched primepump.Schedule, producer, consumer *graph.Segment) int {
	return 1 + max(0, sched.Mult(producer)-sched.Mult(consumer))
}

func crossChannel(m *rate.Model, sched primepump.Schedule, e *graph.Edge) (Channel, error) {
	consumer, err := m.Info(e.Dst().First())
	if err != nil {
		return Channel{}, err
	}
	return Channel{
		ID:       e.ID,
		Kind:     KindCross,
		From:     e.Src().ID,
		To:       e.Dst().ID,
		Capacity: max(m.EdgeInitItems(e), m.EdgeSteadyItems(e)),
		Rotation: RotationLength(sched, e.Src(), e.Dst()),
		Layout:   classify(consumer),
	}, nil
}

func segmentChannels(m *rate.Model, sched primepump.Schedule, seg *graph.Segment) ([]Channel, error) {
	var out []Channel
	stages := seg.Stages()
	if !seg.Input.NoInputs() {
		first, err := m.Info(stages[0])
		if err != nil {
			return nil, err
		}
		steady := (first.SteadyMult-1)*first.Pop + max(first.Peek, first.Pop+first.Remaining)
		rotation := 1
		for _, e := range seg.Input.Sources() {
			rotation = max(rotation, RotationLength(sched, e.Src(), seg))
		}
		out = append(out, Channel{
			ID:       seg.ID + ".in",
			Kind:     KindInput,
			From:     seg.ID,
			To:       stages[0].ID,
			Capacity: max(first.InitItemsReceived, steady),
			Rotation: rotation,
			Layout:   classify(first),
		})
	}
	for i := 0; i+1 < len(stages); i++ {
		producer, err := m.Info(stages[i])
		if err != nil {
			return nil, err
		}
		consumer, err := m.Info(stages[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, Channel{
			ID:       fmt.Sprintf("%s->%s", stages[i].ID, stages[i+1].ID),
			Kind:     KindIntra,
			From:     stages[i].ID,
			To:       stages[i+1].ID,
			Capacity: max(producer.InitPushTotal(), producer.SteadyPushTotal()),
			Rotation: 1,
			Layout:   classify(consumer),
		})
	}
	if !seg.Output.NoOutputs() {
		last, err := m.Info(stages[len(stages)-1])
		if err != nil {
			return nil, err
		}
		rotation := 1
		for _, e := range seg.Output.Dests() {
			rotation = max(rotation, RotationLength(sched, seg, e.Dst()))
		}
		out = append(out, Channel{
			ID:       seg.ID + ".out",
			Kind:     KindOutput,
			From:     last.Stage.ID,
			To:       seg.ID,
			Capacity: max(last.InitPushTotal(), last.SteadyPushTotal()),
			Rotation: rotation,
			Layout:   LayoutFlat,
		})
	}
	return out, nil
}

func classify(consumer rate.Info) Layout {
	switch {
	case consumer.NoBuffer():
		return LayoutNone
	case consumer.IsSimple():
		return LayoutFlat
	default:
		return LayoutCircular
	}
}
