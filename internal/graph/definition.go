package graph

import (
	"fmt"
	"strings"
)

// Definition is the declarative form of a segment graph as handed over by the
// partitioner: segments with their stages and core placement, the cross edges
// between them and any extra latency constraints.
type Definition struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Segments []SegmentDef      `json:"segments" yaml:"segments"`
	Edges    []EdgeDef         `json:"edges,omitempty" yaml:"edges,omitempty"`
	Latency  []LatencyDef      `json:"latency,omitempty" yaml:"latency,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SegmentDef declares one segment.
type SegmentDef struct {
	ID     string          `json:"id" yaml:"id"`
	Core   int             `json:"core" yaml:"core"`
	Input  []InputSlotDef  `json:"input,omitempty" yaml:"input,omitempty"`
	Stages []StageDef      `json:"stages" yaml:"stages"`
	Output []OutputSlotDef `json:"output,omitempty" yaml:"output,omitempty"`
}

// StageDef declares one stage. Pre is only set for stages whose first init
// firing uses different rates.
type StageDef struct {
	ID         string `json:"id" yaml:"id"`
	Rates      `yaml:",inline"`
	Pre        *Rates `json:"pre,omitempty" yaml:"pre,omitempty"`
	InitMult   int    `json:"init_mult" yaml:"init_mult"`
	SteadyMult int    `json:"steady_mult" yaml:"steady_mult"`
}

// InputSlotDef is one joiner slot.
type InputSlotDef struct {
	Edge   string `json:"edge" yaml:"edge"`
	Weight int    `json:"weight" yaml:"weight"`
}

// OutputSlotDef is one splitter slot; listing several edges duplicates the
// slot's items to each of them.
type OutputSlotDef struct {
	Weight int      `json:"weight" yaml:"weight"`
	Edges  []string `json:"edges" yaml:"edges"`
}

// EdgeDef declares a cross edge between two segments.
type EdgeDef struct {
	ID   string `json:"id" yaml:"id"`
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// LatencyDef makes To depend on From in steady state.
type LatencyDef struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{ID: def.ID, Name: def.Name}
	if len(def.Segments) > 0 {
		clone.Segments = make([]SegmentDef, len(def.Segments))
		for i, seg := range def.Segments {
			clone.Segments[i] = seg.clone()
		}
	}
	if len(def.Edges) > 0 {
		clone.Edges = append([]EdgeDef(nil), def.Edges...)
	}
	if len(def.Latency) > 0 {
		clone.Latency = append([]LatencyDef(nil), def.Latency...)
	}
	if len(def.Metadata) > 0 {
		clone.Metadata = make(map[string]string, len(def.Metadata))
		for key, value := range def.Metadata {
			clone.Metadata[key] = value
		}
	}
	return clone
}

func (seg SegmentDef) clone() SegmentDef {
	out := SegmentDef{ID: seg.ID, Core: seg.Core}
	out.Input = append([]InputSlotDef(nil), seg.Input...)
	out.Stages = make([]StageDef, len(seg.Stages))
	for i, stage := range seg.Stages {
		out.Stages[i] = stage
		if stage.Pre != nil {
			pre := *stage.Pre
			out.Stages[i].Pre = &pre
		}
	}
	if len(seg.Output) > 0 {
		out.Output = make([]OutputSlotDef, len(seg.Output))
		for i, slot := range seg.Output {
			out.Output[i] = OutputSlotDef{Weight: slot.Weight, Edges: append([]string(nil), slot.Edges...)}
		}
	}
	return out
}

// Normalized trims identifiers and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	for i := range clone.Segments {
		seg := &clone.Segments[i]
		seg.ID = strings.TrimSpace(seg.ID)
		for j := range seg.Stages {
			seg.Stages[j].ID = strings.TrimSpace(seg.Stages[j].ID)
		}
		for j := range seg.Input {
			seg.Input[j].Edge = strings.TrimSpace(seg.Input[j].Edge)
		}
		for j := range seg.Output {
			for k := range seg.Output[j].Edges {
				seg.Output[j].Edges[k] = strings.TrimSpace(seg.Output[j].Edges[k])
			}
		}
	}
	for i := range clone.Edges {
		clone.Edges[i].ID = strings.TrimSpace(clone.Edges[i].ID)
		clone.Edges[i].From = strings.TrimSpace(clone.Edges[i].From)
		clone.Edges[i].To = strings.TrimSpace(clone.Edges[i].To)
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// Validate checks identifiers and references. Rate and weight checks happen
// while building the graph.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("%w: definition id is required", ErrInvalidGraph)
	}
	if len(def.Segments) == 0 {
		return fmt.Errorf("%w: graph %s: at least one segment is required", ErrInvalidGraph, def.ID)
	}
	segments := map[string]struct{}{}
	for idx, seg := range def.Segments {
		if seg.ID == "" {
			return fmt.Errorf("%w: graph %s segment[%d]: id is required", ErrInvalidGraph, def.ID, idx)
		}
		if _, exists := segments[seg.ID]; exists {
			return fmt.Errorf("%w: graph %s: duplicate segment id %s", ErrInvalidGraph, def.ID, seg.ID)
		}
		segments[seg.ID] = struct{}{}
		if len(seg.Stages) == 0 {
			return fmt.Errorf("%w: graph %s segment %s: at least one stage is required", ErrInvalidGraph, def.ID, seg.ID)
		}
	}
	edges := map[string]EdgeDef{}
	for idx, e := range def.Edges {
		if e.ID == "" {
			return fmt.Errorf("%w: graph %s edge[%d]: id is required", ErrInvalidGraph, def.ID, idx)
		}
		if _, exists := edges[e.ID]; exists {
			return fmt.Errorf("%w: graph %s: duplicate edge id %s", ErrInvalidGraph, def.ID, e.ID)
		}
		if _, ok := segments[e.From]; !ok {
			return fmt.Errorf("%w: graph %s edge %s: unknown source segment %q", ErrInvalidGraph, def.ID, e.ID, e.From)
		}
		if _, ok := segments[e.To]; !ok {
			return fmt.Errorf("%w: graph %s edge %s: unknown destination segment %q", ErrInvalidGraph, def.ID, e.ID, e.To)
		}
		edges[e.ID] = e
	}
	for _, seg := range def.Segments {
		for _, slot := range seg.Input {
			e, ok := edges[slot.Edge]
			if !ok {
				return fmt.Errorf("%w: graph %s segment %s: input references unknown edge %q", ErrInvalidGraph, def.ID, seg.ID, slot.Edge)
			}
			if e.To != seg.ID {
				return fmt.Errorf("%w: graph %s segment %s: input edge %s ends at %s", ErrInvalidGraph, def.ID, seg.ID, e.ID, e.To)
			}
		}
		for _, slot := range seg.Output {
			for _, id := range slot.Edges {
				e, ok := edges[id]
				if !ok {
					return fmt.Errorf("%w: graph %s segment %s: output references unknown edge %q", ErrInvalidGraph, def.ID, seg.ID, id)
				}
				if e.From != seg.ID {
					return fmt.Errorf("%w: graph %s segment %s: output edge %s starts at %s", ErrInvalidGraph, def.ID, seg.ID, e.ID, e.From)
				}
			}
		}
	}
	for idx, lat := range def.Latency {
		if _, ok := segments[lat.From]; !ok {
			return fmt.Errorf("%w: graph %s latency[%d]: unknown segment %q", ErrInvalidGraph, def.ID, idx, lat.From)
		}
		if _, ok := segments[lat.To]; !ok {
			return fmt.Errorf("%w: graph %s latency[%d]: unknown segment %q", ErrInvalidGraph, def.ID, idx, lat.To)
		}
	}
	return nil
}

// Build materializes the definition into a mutable Graph.
func (def Definition) Build() (*Graph, error) {
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	g := New(normalized.ID)
	segments := make(map[string]*Segment, len(normalized.Segments))
	for _, sd := range normalized.Segments {
		seg, err := g.AddSegment(sd.ID, sd.Core)
		if err != nil {
			return nil, err
		}
		segments[sd.ID] = seg
		for _, st := range sd.Stages {
			if _, err := g.AddStage(seg, st.ID, st.Rates, st.Pre, st.InitMult, st.SteadyMult); err != nil {
				return nil, err
			}
		}
	}
	edges := make(map[string]*Edge, len(normalized.Edges))
	for _, ed := range normalized.Edges {
		e, err := g.Connect(ed.ID, segments[ed.From], segments[ed.To])
		if err != nil {
			return nil, err
		}
		edges[ed.ID] = e
	}
	for _, sd := range normalized.Segments {
		seg := segments[sd.ID]
		for _, slot := range sd.Input {
			if err := g.AddInputSlot(seg, edges[slot.Edge], slot.Weight); err != nil {
				return nil, err
			}
		}
		for _, slot := range sd.Output {
			dests := make([]*Edge, 0, len(slot.Edges))
			for _, id := range slot.Edges {
				dests = append(dests, edges[id])
			}
			if err := g.AddOutputSlot(seg, slot.Weight, dests...); err != nil {
				return nil, err
			}
		}
	}
	for _, lat := range normalized.Latency {
		if err := g.AddLatency(segments[lat.From], segments[lat.To]); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
