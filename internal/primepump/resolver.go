package primepump

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kingrea/streamsynth/internal/graph"
)

// ErrFireCountOrder is returned when a segment has fired more often than one
// of its dependencies.
var ErrFireCountOrder = errors.New("primepump: fire count exceeds dependency")

// NodeState is the resolver's view of a segment in the current round.
type NodeState string

const (
	NodeStateUnknown  NodeState = "unknown"
	NodeStateEligible NodeState = "eligible"
	NodeStateBlocked  NodeState = "blocked"
)

// Node is one segment plus its dependency metadata.
type Node struct {
	ID           string
	Segment      *graph.Segment
	Dependencies []string
	Dependents   []string

	FireCount int
	State     NodeState
	BlockedBy []string
}

// Resolver snapshots the steady-state dependencies of a graph.
type Resolver struct {
	nodes      map[string]*Node
	orderedIDs []string
}

// NewResolver builds nodes for every segment of g in data-flow order.
func NewResolver(g *graph.Graph) (*Resolver, error) {
	if g == nil {
		return nil, fmt.Errorf("primepump: graph is required")
	}
	order, err := g.DataFlowOrder()
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*Node, len(order))
	ordered := make([]string, 0, len(order))
	for _, seg := range order {
		deps := g.Dependencies(seg)
		node := &Node{
			ID:           seg.ID,
			Segment:      seg,
			Dependencies: make([]string, 0, len(deps)),
			State:        NodeStateUnknown,
		}
		for _, dep := range deps {
			node.Dependencies = append(node.Dependencies, dep.ID)
		}
		nodes[seg.ID] = node
		ordered = append(ordered, seg.ID)
	}
	for _, id := range ordered {
		node := nodes[id]
		for _, depID := range node.Dependencies {
			dep, ok := nodes[depID]
			if !ok {
				return nil, fmt.Errorf("primepump: dependency %s of %s not in graph", depID, node.ID)
			}
			dep.Dependents = append(dep.Dependents, node.ID)
		}
	}
	for _, node := range nodes {
		if len(node.Dependents) > 1 {
			sort.Strings(node.Dependents)
		}
	}
	return &Resolver{nodes: nodes, orderedIDs: ordered}, nil
}

// Nodes returns the nodes in data-flow order.
func (r *Resolver) Nodes() []*Node {
	out := make([]*Node, 0, len(r.orderedIDs))
	for _, id := range r.orderedIDs {
		out = append(out, r.nodes[id])
	}
	return out
}

// Node retrieves a node by segment ID.
func (r *Resolver) Node(id string) (*Node, bool) {
	node, ok := r.nodes[id]
	return node, ok
}

// Refresh re-evaluates which segments may fire given the current fire
// counts. A segment is eligible when every dependency has fired strictly more
// often than it has.
func (r *Resolver) Refresh() error {
	for _, id := range r.orderedIDs {
		node := r.nodes[id]
		node.BlockedBy = nil
		blockers, err := r.blockers(node)
		if err != nil {
			return err
		}
		if len(blockers) == 0 {
			node.State = NodeStateEligible
		} else {
			node.State = NodeStateBlocked
			node.BlockedBy = blockers
		}
	}
	return nil
}

// Eligible returns the segments that may fire, in data-flow order.
func (r *Resolver) Eligible() []*Node {
	var ready []*Node
	for _, id := range r.orderedIDs {
		if node := r.nodes[id]; node.State == NodeStateEligible {
			ready = append(ready, node)
		}
	}
	return ready
}

// Blocked returns the segments waiting on a dependency, in data-flow order.
func (r *Resolver) Blocked() []*Node {
	var blocked []*Node
	for _, id := range r.orderedIDs {
		if node := r.nodes[id]; node.State == NodeStateBlocked {
			blocked = append(blocked, node)
		}
	}
	return blocked
}

// AllEligible reports whether ramp-up is complete.
func (r *Resolver) AllEligible() bool {
	for _, node := range r.nodes {
		if node.State != NodeStateEligible {
			return false
		}
	}
	return true
}

// Fire bumps the fire count of the given segments.
func (r *Resolver) Fire(nodes []*Node) {
	for _, node := range nodes {
		node.FireCount++
	}
}

// Multiplicities returns the fire count of every segment.
func (r *Resolver) Multiplicities() map[string]int {
	out := make(map[string]int, len(r.nodes))
	for id, node := range r.nodes {
		out[id] = node.FireCount
	}
	return out
}

func (r *Resolver) blockers(node *Node) ([]string, error) {
	var blockers []string
	for _, depID := range node.Dependencies {
		dep := r.nodes[depID]
		switch {
		case dep.FireCount < node.FireCount:
			return nil, fmt.Errorf("%w: %s fired %d times, dependency %s only %d", ErrFireCountOrder, node.ID, node.FireCount, dep.ID, dep.FireCount)
		case dep.FireCount == node.FireCount:
			blockers = append(blockers, depID)
		}
	}
	return blockers, nil
}
