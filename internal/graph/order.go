package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrCycle is returned when the steady-state dependencies are not acyclic.
var ErrCycle = errors.New("graph: dependency cycle")

// DataFlowOrder returns every segment after all of the segments it depends
// on. Ties are broken by declaration order, so the result is deterministic.
func (g *Graph) DataFlowOrder() ([]*Segment, error) {
	dg := g.dependencyGraph()
	sorted, err := topo.SortStabilized(dg, byID)
	if err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) {
			return nil, fmt.Errorf("%w: %s", ErrCycle, g.describeCycles(cycles))
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, err)
	}
	out := make([]*Segment, 0, len(sorted))
	for _, node := range sorted {
		out = append(out, g.segments[node.ID()])
	}
	return out, nil
}

func (g *Graph) dependencyGraph() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for _, seg := range g.segments {
		dg.AddNode(simple.Node(seg.index))
	}
	for _, seg := range g.segments {
		for _, dep := range g.Dependencies(seg) {
			dg.SetEdge(dg.NewEdge(simple.Node(dep.index), simple.Node(seg.index)))
		}
	}
	return dg
}

func (g *Graph) describeCycles(cycles topo.Unorderable) string {
	parts := make([]string, 0, len(cycles))
	for _, component := range cycles {
		ids := make([]string, 0, len(component))
		for _, node := range component {
			ids = append(ids, g.segments[node.ID()].ID)
		}
		sort.Strings(ids)
		parts = append(parts, "{"+strings.Join(ids, ", ")+"}")
	}
	return strings.Join(parts, " ")
}

func byID(nodes []gonum.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}
