package rate

import (
	"errors"
	"testing"

	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/graph/graphtest"
)

const twoStage = `
id: two-stage
segments:
  - id: s
    stages:
      - {id: src, push: 1, init_mult: 10, steady_mult: 2}
      - {id: f, peek: 3, pop: 1, push: 1, pre: {peek: 4, pop: 2, push: 3}, init_mult: 2, steady_mult: 2}
      - {id: sink, peek: 1, pop: 1, init_mult: 4, steady_mult: 2}
`

func newModel(t *testing.T, g *graph.Graph) *Model {
	t.Helper()
	m, err := New(g, 0)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}

func mustInfo(t *testing.T, m *Model, g *graph.Graph, id string) Info {
	t.Helper()
	info, err := m.Info(graphtest.Stage(t, g, id))
	if err != nil {
		t.Fatalf("info %s: %v", id, err)
	}
	return info
}

func TestSingleStageConsumerOfSplitter(t *testing.T) {
	g := graphtest.Build(t, graphtest.Splitter)
	m := newModel(t, g)

	gen := mustInfo(t, m, g, "gen")
	if gen.InitItemsSent != 7 || gen.InitItemsReceived != 0 || gen.InitItemsNeeded != 0 {
		t.Fatalf("unexpected source info %+v", gen)
	}
	if !gen.NoBuffer() || gen.IsSimple() {
		t.Fatalf("source never peeks and should need no buffer")
	}

	fa := mustInfo(t, m, g, "fa")
	if fa.InitItemsReceived != 2 {
		t.Fatalf("expected floor(7/3)=2 items received, got %d", fa.InitItemsReceived)
	}
	if fa.BottomPeek != 1 || fa.InitItemsNeeded != 2 || fa.Remaining != 0 || fa.CopyDown != 0 {
		t.Fatalf("unexpected consumer info %+v", fa)
	}
	if !fa.IsSimple() {
		t.Fatalf("peek == pop consumer with nothing remaining should be simple")
	}
	if got := m.EdgeInitItems(graphtest.Edge(t, g, "e3")); got != 2 {
		t.Fatalf("expected 2 init items on e3, got %d", got)
	}
	if got := m.EdgeSteadyItems(graphtest.Edge(t, g, "e3")); got != 1 {
		t.Fatalf("expected 1 steady item on e3, got %d", got)
	}
}

func TestTwoStageStage(t *testing.T) {
	g := graphtest.Build(t, twoStage)
	m := newModel(t, g)

	f := mustInfo(t, m, g, "f")
	if !f.TwoStage {
		t.Fatalf("expected two-stage info")
	}
	if f.InitItemsReceived != 10 {
		t.Fatalf("expected 10 items from previous stage, got %d", f.InitItemsReceived)
	}
	if f.BottomPeek != 1 || f.InitItemsNeeded != 5 || f.Remaining != 5 {
		t.Fatalf("unexpected peek accounting %+v", f)
	}
	if f.InitItemsPopped() != 3 || f.CopyDown != 7 {
		t.Fatalf("expected 3 popped and 7 copied down, got %d/%d", f.InitItemsPopped(), f.CopyDown)
	}
	if f.InitItemsSent != 4 || f.InitPushTotal() != 4 || f.SteadyPushTotal() != 2 {
		t.Fatalf("unexpected push totals sent=%d init=%d steady=%d", f.InitItemsSent, f.InitPushTotal(), f.SteadyPushTotal())
	}
	if f.IsSimple() {
		t.Fatalf("peeking two-stage stage should not be simple")
	}

	sink := mustInfo(t, m, g, "sink")
	if sink.InitItemsReceived != 4 || sink.InitItemsNeeded != 4 || sink.Remaining != 0 {
		t.Fatalf("unexpected sink info %+v", sink)
	}
}

func TestPhaseAccessors(t *testing.T) {
	g := graphtest.Build(t, twoStage)
	m := newModel(t, g)
	f := mustInfo(t, m, g, "f")

	cases := []struct {
		name string
		got  int
		want int
	}{
		{"init mult", f.Mult(graph.PhaseInit), 2},
		{"primepump mult", f.Mult(graph.PhasePrimePump), 2},
		{"steady mult", f.Mult(graph.PhaseSteady), 2},
		{"init sent", f.TotalItemsSent(graph.PhaseInit), 4},
		{"steady sent", f.TotalItemsSent(graph.PhaseSteady), 2},
		{"init received", f.TotalItemsReceived(graph.PhaseInit), 10},
		{"steady received", f.TotalItemsReceived(graph.PhaseSteady), 2},
		{"init popped", f.TotalItemsPopped(graph.PhaseInit), 3},
		{"steady popped", f.TotalItemsPopped(graph.PhasePrimePump), 2},
		{"first init firing pushes", f.ItemsFiring(0, true), 3},
		{"later firing pushes", f.ItemsFiring(1, true), 1},
		{"steady firing pushes", f.ItemsFiring(0, false), 1},
		{"first init firing needs", f.ItemsNeededToFire(0, true), 4},
		{"later firing needs", f.ItemsNeededToFire(1, true), 1},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %d want %d", tc.name, tc.got, tc.want)
		}
	}

	sink := mustInfo(t, m, g, "sink")
	if got := sink.ItemsNeededToFire(0, true); got != 1 {
		t.Fatalf("single-stage first firing should need peek, got %d", got)
	}
}

func TestInfeasibleStageReportsViolation(t *testing.T) {
	g := graphtest.Build(t, graphtest.Splitter)
	m := newModel(t, g)
	fb := graphtest.Stage(t, g, "fb")
	g.SetMultiplicities(fb, 3, 1)

	_, err := m.Info(fb)
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
	var violation *ViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected *ViolationError, got %T", err)
	}
	if violation.Stage != "fb" || violation.Received != 2 || violation.Needed != 3 {
		t.Fatalf("unexpected violation %+v", violation)
	}
	if err := m.Verify(); !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected Verify to fail, got %v", err)
	}
}

func TestModelDropsCacheWhenGraphChanges(t *testing.T) {
	g := graphtest.Build(t, graphtest.Splitter)
	m := newModel(t, g)

	if got := mustInfo(t, m, g, "fa").InitItemsReceived; got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	purges := m.Purges()

	g.SetMultiplicities(graphtest.Stage(t, g, "gen"), 9, 3)

	if got := mustInfo(t, m, g, "fa").InitItemsReceived; got != 3 {
		t.Fatalf("expected fresh value 3 after mutation, got %d", got)
	}
	if m.Purges() != purges+1 {
		t.Fatalf("expected one purge, got %d", m.Purges()-purges)
	}
	mustInfo(t, m, g, "fa")
	if m.Purges() != purges+1 {
		t.Fatalf("unchanged graph should not purge again")
	}
}

func TestModelSeesRateChanges(t *testing.T) {
	g := graphtest.Build(t, graphtest.Splitter)
	m := newModel(t, g)
	gen := graphtest.Stage(t, g, "gen")

	if got := mustInfo(t, m, g, "gen").InitItemsSent; got != 7 {
		t.Fatalf("expected 7 items sent, got %d", got)
	}
	if err := g.SetRates(gen, graph.Rates{Push: 3}, nil); err != nil {
		t.Fatalf("set rates: %v", err)
	}

	info := mustInfo(t, m, g, "gen")
	if info.Push != 3 || info.InitItemsSent != 21 {
		t.Fatalf("expected push 3 and 21 items sent, got push %d sent %d", info.Push, info.InitItemsSent)
	}
	if got := mustInfo(t, m, g, "fa").InitItemsReceived; got != 7 {
		t.Fatalf("expected consumer to receive 7, got %d", got)
	}
}

func TestBufferingStageChangesDownstreamReceipts(t *testing.T) {
	g := graphtest.Build(t, graphtest.Splitter)
	m := newModel(t, g)
	g.AppendBufferingStage(graphtest.Segment(t, g, "src"), 6, 3)

	if got := m.EdgeInitItems(graphtest.Edge(t, g, "e1")); got != 2 {
		t.Fatalf("expected 2 items after buffering, got %d", got)
	}
	if err := m.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestNewRequiresGraph(t *testing.T) {
	if _, err := New(nil, 1); err == nil {
		t.Fatalf("expected error for nil graph")
	}
}
