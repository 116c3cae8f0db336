package graph

import (
	"errors"
	"fmt"

	"github.com/kingrea/streamsynth/internal/ratio"
)

// ErrInvalidGraph marks structural problems found while building or validating
// a segment graph.
var ErrInvalidGraph = errors.New("graph: invalid")

// Phase identifies one of the three scheduling phases of a stream program.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePrimePump
	PhaseSteady
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhasePrimePump:
		return "primepump"
	case PhaseSteady:
		return "steady"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Rates are the items a stage peeks, pops and pushes per firing.
type Rates struct {
	Peek int `json:"peek,omitempty" yaml:"peek,omitempty"`
	Pop  int `json:"pop,omitempty" yaml:"pop,omitempty"`
	Push int `json:"push,omitempty" yaml:"push,omitempty"`
}

func (r Rates) validate() error {
	if r.Peek < 0 || r.Pop < 0 || r.Push < 0 {
		return fmt.Errorf("rates must be >= 0 (peek=%d pop=%d push=%d)", r.Peek, r.Pop, r.Push)
	}
	return nil
}

var identityRates = Rates{Peek: 1, Pop: 1, Push: 1}

// Stage is a single computation step inside a segment. Rates change only
// through Graph.SetRates so derived data sees every mutation.
type Stage struct {
	ID        string
	Buffering bool

	work       Rates
	pre        *Rates
	initMult   int
	steadyMult int
	segment    *Segment
}

// Work is the steady per-firing rate triple.
func (s *Stage) Work() Rates { return s.work }

// Pre is the triple used by the first init firing, when the stage has one.
func (s *Stage) Pre() (Rates, bool) {
	if s.pre == nil {
		return Rates{}, false
	}
	return *s.pre, true
}

// InitMult is the number of firings in the init phase.
func (s *Stage) InitMult() int { return s.initMult }

// SteadyMult is the number of firings per steady-state period.
func (s *Stage) SteadyMult() int { return s.steadyMult }

// Segment returns the segment that owns the stage.
func (s *Stage) Segment() *Segment { return s.segment }

// TwoStage reports whether the stage has a distinguished first firing.
func (s *Stage) TwoStage() bool { return s.pre != nil }

// Prev returns the stage feeding this one inside the segment, or nil when
// the stage is fed by the segment's input port.
func (s *Stage) Prev() *Stage {
	idx := s.position()
	if idx <= 0 {
		return nil
	}
	return s.segment.stages[idx-1]
}

// Next returns the stage fed by this one, or nil when the stage feeds the
// segment's output port.
func (s *Stage) Next() *Stage {
	idx := s.position()
	if idx < 0 || idx+1 >= len(s.segment.stages) {
		return nil
	}
	return s.segment.stages[idx+1]
}

func (s *Stage) position() int {
	if s.segment == nil {
		return -1
	}
	for i, candidate := range s.segment.stages {
		if candidate == s {
			return i
		}
	}
	return -1
}

func (s *Stage) String() string { return s.ID }

// Segment is a chain input port -> stages -> output port placed on one core.
type Segment struct {
	ID        string
	Core      int
	Buffering bool
	Input     *InputPort
	Output    *OutputPort

	stages []*Stage
	index  int
}

// Stages returns the stages of the segment in chain order.
func (s *Segment) Stages() []*Stage {
	out := make([]*Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// First returns the stage fed by the input port.
func (s *Segment) First() *Stage {
	if len(s.stages) == 0 {
		return nil
	}
	return s.stages[0]
}

// Last returns the stage feeding the output port.
func (s *Segment) Last() *Stage {
	if len(s.stages) == 0 {
		return nil
	}
	return s.stages[len(s.stages)-1]
}

func (s *Segment) String() string { return s.ID }

// Edge connects the output port of one segment to the input port of another.
type Edge struct {
	ID  string
	src *Segment
	dst *Segment
}

// Src returns the producing segment.
func (e *Edge) Src() *Segment { return e.src }

// Dst returns the consuming segment.
func (e *Edge) Dst() *Segment { return e.dst }

func (e *Edge) String() string {
	return fmt.Sprintf("%s(%s->%s)", e.ID, e.src, e.dst)
}

// InputSlot is one round-robin position of a joiner.
type InputSlot struct {
	Edge   *Edge
	Weight int
}

// InputPort joins incoming edges round-robin in proportion to their weights.
type InputPort struct {
	segment *Segment
	slots   []InputSlot
}

// Segment returns the owning segment.
func (p *InputPort) Segment() *Segment { return p.segment }

// Slots returns a copy of the joiner slots in order.
func (p *InputPort) Slots() []InputSlot {
	out := make([]InputSlot, len(p.slots))
	copy(out, p.slots)
	return out
}

// NoInputs reports whether the port has no incoming edges.
func (p *InputPort) NoInputs() bool { return len(p.slots) == 0 }

// TotalWeight sums the weights of every slot.
func (p *InputPort) TotalWeight() int {
	total := 0
	for _, slot := range p.slots {
		total += slot.Weight
	}
	return total
}

// Weight returns the combined weight of every slot that reads from e.
func (p *InputPort) Weight(e *Edge) int {
	total := 0
	for _, slot := range p.slots {
		if slot.Edge == e {
			total += slot.Weight
		}
	}
	return total
}

// Share returns floor(items * weight(e) / totalWeight).
func (p *InputPort) Share(e *Edge, items int) int {
	return ratio.MulDiv(items, p.Weight(e), p.TotalWeight())
}

// Sources returns the distinct incoming edges in slot order.
func (p *InputPort) Sources() []*Edge {
	seen := make(map[*Edge]struct{}, len(p.slots))
	out := make([]*Edge, 0, len(p.slots))
	for _, slot := range p.slots {
		if _, ok := seen[slot.Edge]; ok {
			continue
		}
		seen[slot.Edge] = struct{}{}
		out = append(out, slot.Edge)
	}
	return out
}

func (p *InputPort) replaceEdge(old, replacement *Edge) {
	for i := range p.slots {
		if p.slots[i].Edge == old {
			p.slots[i].Edge = replacement
		}
	}
}

// OutputSlot is one round-robin position of a splitter. Every destination
// listed in a slot receives a copy of the items written to it.
type OutputSlot struct {
	Weight int
	Dests  []*Edge
}

// OutputPort splits a segment's output over weighted slots.
type OutputPort struct {
	segment *Segment
	slots   []OutputSlot
}

// Segment returns the owning segment.
func (p *OutputPort) Segment() *Segment { return p.segment }

// Slots returns a copy of the splitter slots in order.
func (p *OutputPort) Slots() []OutputSlot {
	out := make([]OutputSlot, len(p.slots))
	for i, slot := range p.slots {
		dests := make([]*Edge, len(slot.Dests))
		copy(dests, slot.Dests)
		out[i] = OutputSlot{Weight: slot.Weight, Dests: dests}
	}
	return out
}

// NoOutputs reports whether the port has no outgoing edges.
func (p *OutputPort) NoOutputs() bool { return len(p.slots) == 0 }

// TotalWeight sums the weights of every slot.
func (p *OutputPort) TotalWeight() int {
	total := 0
	for _, slot := range p.slots {
		total += slot.Weight
	}
	return total
}

// Weight returns the combined weight of every slot that writes to e.
func (p *OutputPort) Weight(e *Edge) int {
	total := 0
	for _, slot := range p.slots {
		for _, dest := range slot.Dests {
			if dest == e {
				total += slot.Weight
				break
			}
		}
	}
	return total
}

// Share returns floor(items * weight(e) / totalWeight), the number of items
// that reach e when the splitter is handed items.
func (p *OutputPort) Share(e *Edge, items int) int {
	return ratio.MulDiv(items, p.Weight(e), p.TotalWeight())
}

// Dests returns the distinct outgoing edges in slot order.
func (p *OutputPort) Dests() []*Edge {
	seen := map[*Edge]struct{}{}
	var out []*Edge
	for _, slot := range p.slots {
		for _, dest := range slot.Dests {
			if _, ok := seen[dest]; ok {
				continue
			}
			seen[dest] = struct{}{}
			out = append(out, dest)
		}
	}
	return out
}

// Latency is an explicit steady-state dependency: To may only fire once From
// has fired strictly more often.
type Latency struct {
	From *Segment
	To   *Segment
}

// Graph is the mutable segment graph the synthesis passes operate on. Every
// mutation bumps Version so derived data can detect staleness.
type Graph struct {
	ID string

	segments []*Segment
	edges    []*Edge
	latency  []Latency
	version  uint64
	names    map[string]struct{}
	seq      int
}

// New returns an empty graph.
func New(id string) *Graph {
	return &Graph{ID: id, names: map[string]struct{}{}}
}

// Version changes every time the graph is mutated.
func (g *Graph) Version() uint64 { return g.version }

// Segments returns the segments in declaration order; inserted segments come
// last.
func (g *Graph) Segments() []*Segment {
	out := make([]*Segment, len(g.segments))
	copy(out, g.segments)
	return out
}

// Segment looks a segment up by ID.
func (g *Graph) Segment(id string) (*Segment, bool) {
	for _, seg := range g.segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return nil, false
}

// Stage looks a stage up by ID.
func (g *Graph) Stage(id string) (*Stage, bool) {
	for _, seg := range g.segments {
		for _, stage := range seg.stages {
			if stage.ID == id {
				return stage, true
			}
		}
	}
	return nil, false
}

// Edge looks an edge up by ID.
func (g *Graph) Edge(id string) (*Edge, bool) {
	for _, e := range g.edges {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Stages returns every stage, segment by segment.
func (g *Graph) Stages() []*Stage {
	var out []*Stage
	for _, seg := range g.segments {
		out = append(out, seg.stages...)
	}
	return out
}

// Edges returns the cross edges in creation order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Latency returns the explicit latency constraints.
func (g *Graph) Latency() []Latency {
	out := make([]Latency, len(g.latency))
	copy(out, g.latency)
	return out
}

// Dependencies returns the segments seg depends on in steady state: the
// producers of its incoming edges followed by its latency constraints.
func (g *Graph) Dependencies(seg *Segment) []*Segment {
	seen := map[*Segment]struct{}{}
	var out []*Segment
	add := func(dep *Segment) {
		if dep == nil || dep == seg {
			return
		}
		if _, ok := seen[dep]; ok {
			return
		}
		seen[dep] = struct{}{}
		out = append(out, dep)
	}
	for _, e := range seg.Input.Sources() {
		add(e.src)
	}
	for _, lat := range g.latency {
		if lat.To == seg {
			add(lat.From)
		}
	}
	return out
}

// Dependents returns the segments that depend on seg in steady state.
func (g *Graph) Dependents(seg *Segment) []*Segment {
	var out []*Segment
	for _, candidate := range g.segments {
		for _, dep := range g.Dependencies(candidate) {
			if dep == seg {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// AddSegment declares a new, empty segment placed on core.
func (g *Graph) AddSegment(id string, core int) (*Segment, error) {
	if err := g.claim(id); err != nil {
		return nil, err
	}
	if core < 0 {
		return nil, fmt.Errorf("%w: segment %s: core must be >= 0", ErrInvalidGraph, id)
	}
	seg := &Segment{ID: id, Core: core, index: len(g.segments)}
	seg.Input = &InputPort{segment: seg}
	seg.Output = &OutputPort{segment: seg}
	g.segments = append(g.segments, seg)
	g.touch()
	return seg, nil
}

// AddStage appends a stage to the end of seg's chain.
func (g *Graph) AddStage(seg *Segment, id string, work Rates, pre *Rates, initMult, steadyMult int) (*Stage, error) {
	if err := g.claim(id); err != nil {
		return nil, err
	}
	pre, err := checkRates(id, work, pre)
	if err != nil {
		return nil, err
	}
	if initMult < 0 || steadyMult < 0 {
		return nil, fmt.Errorf("%w: stage %s: multiplicities must be >= 0", ErrInvalidGraph, id)
	}
	if pre != nil && initMult < 1 {
		return nil, fmt.Errorf("%w: stage %s: a stage with a pre-fire must fire at least once in init", ErrInvalidGraph, id)
	}
	stage := &Stage{ID: id, work: work, pre: pre, initMult: initMult, steadyMult: steadyMult, segment: seg}
	seg.stages = append(seg.stages, stage)
	g.touch()
	return stage, nil
}

// Connect declares a cross edge from -> to. The edge still has to be placed
// in the ports with AddOutputSlot and AddInputSlot.
func (g *Graph) Connect(id string, from, to *Segment) (*Edge, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: edge %s: both endpoints are required", ErrInvalidGraph, id)
	}
	if from == to {
		return nil, fmt.Errorf("%w: edge %s connects segment %s to itself", ErrInvalidGraph, id, from.ID)
	}
	if err := g.claim(id); err != nil {
		return nil, err
	}
	e := &Edge{ID: id, src: from, dst: to}
	g.edges = append(g.edges, e)
	g.touch()
	return e, nil
}

// AddInputSlot appends a joiner slot reading weight items from e per round.
func (g *Graph) AddInputSlot(seg *Segment, e *Edge, weight int) error {
	if e.dst != seg {
		return fmt.Errorf("%w: edge %s does not end at segment %s", ErrInvalidGraph, e.ID, seg.ID)
	}
	if weight <= 0 {
		return fmt.Errorf("%w: segment %s input slot for %s: weight must be > 0", ErrInvalidGraph, seg.ID, e.ID)
	}
	seg.Input.slots = append(seg.Input.slots, InputSlot{Edge: e, Weight: weight})
	g.touch()
	return nil
}

// AddOutputSlot appends a splitter slot writing weight items per round to
// every edge in dests.
func (g *Graph) AddOutputSlot(seg *Segment, weight int, dests ...*Edge) error {
	if weight <= 0 {
		return fmt.Errorf("%w: segment %s output slot: weight must be > 0", ErrInvalidGraph, seg.ID)
	}
	if len(dests) == 0 {
		return fmt.Errorf("%w: segment %s output slot: at least one destination is required", ErrInvalidGraph, seg.ID)
	}
	for _, e := range dests {
		if e.src != seg {
			return fmt.Errorf("%w: edge %s does not start at segment %s", ErrInvalidGraph, e.ID, seg.ID)
		}
	}
	slot := OutputSlot{Weight: weight, Dests: make([]*Edge, len(dests))}
	copy(slot.Dests, dests)
	seg.Output.slots = append(seg.Output.slots, slot)
	g.touch()
	return nil
}

// AddLatency records that to depends on from in steady state.
func (g *Graph) AddLatency(from, to *Segment) error {
	if from == nil || to == nil {
		return fmt.Errorf("%w: latency constraint needs both segments", ErrInvalidGraph)
	}
	if from == to {
		return fmt.Errorf("%w: latency constraint on %s references itself", ErrInvalidGraph, from.ID)
	}
	g.latency = append(g.latency, Latency{From: from, To: to})
	g.touch()
	return nil
}

// SetMultiplicities assigns the init and steady firing counts of a stage.
func (g *Graph) SetMultiplicities(stage *Stage, initMult, steadyMult int) {
	stage.initMult = initMult
	stage.steadyMult = steadyMult
	g.touch()
}

// SetRates replaces a stage's rate triples. A nil pre drops the distinct
// first firing.
func (g *Graph) SetRates(stage *Stage, work Rates, pre *Rates) error {
	pre, err := checkRates(stage.ID, work, pre)
	if err != nil {
		return err
	}
	if pre != nil && stage.initMult < 1 {
		return fmt.Errorf("%w: stage %s: a stage with a pre-fire must fire at least once in init", ErrInvalidGraph, stage.ID)
	}
	stage.work = work
	stage.pre = pre
	g.touch()
	return nil
}

func checkRates(id string, work Rates, pre *Rates) (*Rates, error) {
	if err := work.validate(); err != nil {
		return nil, fmt.Errorf("%w: stage %s: %v", ErrInvalidGraph, id, err)
	}
	if pre == nil {
		return nil, nil
	}
	if err := pre.validate(); err != nil {
		return nil, fmt.Errorf("%w: stage %s pre: %v", ErrInvalidGraph, id, err)
	}
	clone := *pre
	return &clone, nil
}

// AppendBufferingStage adds an identity stage to the end of seg that
// forwards initMult items in init and steadyMult items per steady period.
func (g *Graph) AppendBufferingStage(seg *Segment, initMult, steadyMult int) *Stage {
	stage := &Stage{
		ID:         g.uniqueName(seg.ID + ".buffer"),
		work:       identityRates,
		Buffering:  true,
		initMult:   initMult,
		steadyMult: steadyMult,
		segment:    seg,
	}
	seg.stages = append(seg.stages, stage)
	g.touch()
	return stage
}

// SpliceBufferingSegment inserts a new single-stage segment into e. The old
// edge now ends at the new segment, and a new edge carries the items on to
// the original consumer with the same joiner weights. The new segment is
// placed on the consumer's core.
func (g *Graph) SpliceBufferingSegment(e *Edge, initMult, steadyMult int) *Segment {
	consumer := e.dst
	seg := &Segment{
		ID:        g.uniqueName(e.ID + ".buffer"),
		Core:      consumer.Core,
		Buffering: true,
		index:     len(g.segments),
	}
	seg.Input = &InputPort{segment: seg}
	seg.Output = &OutputPort{segment: seg}
	seg.stages = []*Stage{{
		ID:         g.uniqueName(seg.ID + ".id"),
		work:       identityRates,
		Buffering:  true,
		initMult:   initMult,
		steadyMult: steadyMult,
		segment:    seg,
	}}
	out := &Edge{ID: g.uniqueName(e.ID + ".out"), src: seg, dst: consumer}
	consumer.Input.replaceEdge(e, out)
	e.dst = seg
	seg.Input.slots = []InputSlot{{Edge: e, Weight: 1}}
	seg.Output.slots = []OutputSlot{{Weight: 1, Dests: []*Edge{out}}}
	g.segments = append(g.segments, seg)
	g.edges = append(g.edges, out)
	g.touch()
	return seg
}

// Validate checks the structural invariants the synthesis passes rely on.
func (g *Graph) Validate() error {
	if len(g.segments) == 0 {
		return fmt.Errorf("%w: graph %s has no segments", ErrInvalidGraph, g.ID)
	}
	for _, seg := range g.segments {
		if len(seg.stages) == 0 {
			return fmt.Errorf("%w: segment %s has no stages", ErrInvalidGraph, seg.ID)
		}
		for _, slot := range seg.Input.slots {
			if slot.Weight <= 0 {
				return fmt.Errorf("%w: segment %s input weight for %s must be > 0", ErrInvalidGraph, seg.ID, slot.Edge.ID)
			}
		}
		for _, slot := range seg.Output.slots {
			if slot.Weight <= 0 {
				return fmt.Errorf("%w: segment %s output weight must be > 0", ErrInvalidGraph, seg.ID)
			}
		}
	}
	for _, e := range g.edges {
		if e.dst.Input.Weight(e) == 0 {
			return fmt.Errorf("%w: edge %s is not read by the input port of %s", ErrInvalidGraph, e.ID, e.dst.ID)
		}
		if e.src.Output.Weight(e) == 0 {
			return fmt.Errorf("%w: edge %s is not written by the output port of %s", ErrInvalidGraph, e.ID, e.src.ID)
		}
	}
	return nil
}

func (g *Graph) touch() { g.version++ }

func (g *Graph) claim(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidGraph)
	}
	if g.names == nil {
		g.names = map[string]struct{}{}
	}
	if _, exists := g.names[id]; exists {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidGraph, id)
	}
	g.names[id] = struct{}{}
	return nil
}

func (g *Graph) uniqueName(base string) string {
	if g.names == nil {
		g.names = map[string]struct{}{}
	}
	for {
		g.seq++
		name := fmt.Sprintf("%s%d", base, g.seq)
		if _, exists := g.names[name]; !exists {
			g.names[name] = struct{}{}
			return name
		}
	}
}
