package rate

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kingrea/streamsynth/internal/graph"
)

// DefaultCacheSize bounds the number of memoized stage infos.
const DefaultCacheSize = 512

// ErrInfeasible is returned when a stage would receive fewer items in init
// than it needs to complete its init firings.
var ErrInfeasible = errors.New("rate: infeasible init schedule")

// ViolationError describes a stage that cannot complete its init firings.
type ViolationError struct {
	Stage    string
	Received int
	Needed   int
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("rate: stage %s receives %d items in init but needs %d", e.Stage, e.Received, e.Needed)
}

// Unwrap lets errors.Is match ErrInfeasible.
func (e *ViolationError) Unwrap() error { return ErrInfeasible }

// Model derives rate information for the stages of a graph. Results are
// memoized and dropped whenever the graph version moves.
type Model struct {
	graph   *graph.Graph
	cache   *lru.Cache[*graph.Stage, Info]
	version uint64
	purges  int
}

// New builds a model over g. A size <= 0 selects DefaultCacheSize.
func New(g *graph.Graph, size int) (*Model, error) {
	if g == nil {
		return nil, errors.New("rate: graph is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[*graph.Stage, Info](size)
	if err != nil {
		return nil, fmt.Errorf("rate: cache: %w", err)
	}
	return &Model{graph: g, cache: cache, version: g.Version()}, nil
}

// Graph returns the graph the model derives from.
func (m *Model) Graph() *graph.Graph { return m.graph }

// Purges reports how many times the cache was dropped because the graph
// changed.
func (m *Model) Purges() int { return m.purges }

// Info returns the rate data of stage, computing it if needed.
func (m *Model) Info(stage *graph.Stage) (Info, error) {
	m.sync()
	if info, ok := m.cache.Get(stage); ok {
		return info, nil
	}
	info, err := m.derive(stage)
	if err != nil {
		return Info{}, err
	}
	m.cache.Add(stage, info)
	return info, nil
}

// Verify checks every stage of the graph for init feasibility.
func (m *Model) Verify() error {
	for _, stage := range m.graph.Stages() {
		if _, err := m.Info(stage); err != nil {
			return err
		}
	}
	return nil
}

// EdgeInitItems is the number of items e carries during init.
func (m *Model) EdgeInitItems(e *graph.Edge) int {
	return e.Src().Output.Share(e, InitItemsSent(e.Src().Last()))
}

// EdgeSteadyItems is the number of items e carries per steady period.
func (m *Model) EdgeSteadyItems(e *graph.Edge) int {
	last := e.Src().Last()
	return e.Src().Output.Share(e, last.SteadyMult()*last.Work().Push)
}

// InitItemsReceived is the number of items that reach stage during init,
// from the previous stage or from the segment's input port.
func (m *Model) InitItemsReceived(stage *graph.Stage) int {
	if prev := stage.Prev(); prev != nil {
		return InitItemsSent(prev)
	}
	seg := stage.Segment()
	if seg == nil || seg.Input.NoInputs() {
		return 0
	}
	total := 0
	for _, e := range seg.Input.Sources() {
		total += m.EdgeInitItems(e)
	}
	return total
}

func (m *Model) sync() {
	if v := m.graph.Version(); v != m.version {
		m.cache.Purge()
		m.version = v
		m.purges++
	}
}

func (m *Model) derive(stage *graph.Stage) (Info, error) {
	work := stage.Work()
	info := Info{
		Stage:      stage,
		Peek:       work.Peek,
		Pop:        work.Pop,
		Push:       work.Push,
		InitMult:   stage.InitMult(),
		SteadyMult: stage.SteadyMult(),
		TwoStage:   stage.TwoStage(),
	}
	if pre, ok := stage.Pre(); ok {
		info.PrePeek = pre.Peek
		info.PrePop = pre.Pop
		info.PrePush = pre.Push
	}
	firings := info.initFirings()
	if firings > 1 {
		info.BottomPeek = max(0, info.Peek-(info.PrePeek-info.PrePop))
	}
	info.InitItemsSent = InitItemsSent(stage)
	info.InitItemsReceived = m.InitItemsReceived(stage)
	info.InitItemsNeeded = info.PrePeek + info.BottomPeek + max(firings-2, 0)*info.Pop
	info.Remaining = info.InitItemsReceived - info.InitItemsNeeded
	if info.Remaining < 0 {
		return Info{}, &ViolationError{Stage: stage.ID, Received: info.InitItemsReceived, Needed: info.InitItemsNeeded}
	}
	info.CopyDown = info.InitItemsReceived - info.InitItemsPopped()
	return info, nil
}

// InitItemsSent is the number of items stage pushes during init. It only
// depends on the stage itself.
func InitItemsSent(stage *graph.Stage) int {
	push := stage.Work().Push
	items := push * stage.InitMult()
	if pre, ok := stage.Pre(); ok {
		items += pre.Push - push
	}
	return items
}
