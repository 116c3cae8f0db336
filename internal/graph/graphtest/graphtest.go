// Package graphtest holds graph fixtures shared by the synthesis tests.
package graphtest

import (
	"testing"

	"github.com/kingrea/streamsynth/internal/graph"
)

// Splitter is a source emitting 7 items in init into a round-robin splitter
// with three weight-1 slots.
const Splitter = `
id: splitter
segments:
  - id: src
    core: 0
    stages:
      - {id: gen, push: 1, init_mult: 7, steady_mult: 3}
    output:
      - {weight: 1, edges: [e1]}
      - {weight: 1, edges: [e2]}
      - {weight: 1, edges: [e3]}
  - id: a
    core: 1
    input: [{edge: e1, weight: 1}]
    stages: [{id: fa, peek: 1, pop: 1, push: 0, init_mult: 2, steady_mult: 1}]
  - id: b
    core: 2
    input: [{edge: e2, weight: 1}]
    stages: [{id: fb, peek: 1, pop: 1, push: 0, init_mult: 2, steady_mult: 1}]
  - id: c
    core: 3
    input: [{edge: e3, weight: 1}]
    stages: [{id: fc, peek: 1, pop: 1, push: 0, init_mult: 2, steady_mult: 1}]
edges:
  - {id: e1, from: src, to: a}
  - {id: e2, from: src, to: b}
  - {id: e3, from: src, to: c}
`

// Joiner feeds 8 and 9 items into a joiner with weights 2 and 3.
const Joiner = `
id: joiner
segments:
  - id: p
    core: 0
    stages: [{id: fp, push: 1, init_mult: 8, steady_mult: 2}]
    output: [{weight: 1, edges: [ep]}]
  - id: q
    core: 1
    stages: [{id: fq, push: 1, init_mult: 9, steady_mult: 3}]
    output: [{weight: 1, edges: [eq]}]
  - id: j
    core: 2
    input:
      - {edge: ep, weight: 2}
      - {edge: eq, weight: 3}
    stages: [{id: fj, peek: 1, pop: 1, init_mult: 15, steady_mult: 5}]
edges:
  - {id: ep, from: p, to: j}
  - {id: eq, from: q, to: j}
`

// Chain is a three-segment pipeline placed on three cores.
const Chain = `
id: chain
segments:
  - id: s1
    core: 0
    stages: [{id: f1, push: 2, init_mult: 0, steady_mult: 1}]
    output: [{weight: 1, edges: [e12]}]
  - id: s2
    core: 1
    input: [{edge: e12, weight: 1}]
    stages: [{id: f2, peek: 2, pop: 2, push: 2, init_mult: 0, steady_mult: 1}]
    output: [{weight: 1, edges: [e23]}]
  - id: s3
    core: 2
    input: [{edge: e23, weight: 1}]
    stages: [{id: f3, peek: 2, pop: 2, init_mult: 0, steady_mult: 1}]
edges:
  - {id: e12, from: s1, to: s2}
  - {id: e23, from: s2, to: s3}
`

// Build parses and builds a YAML definition, failing the test on error.
func Build(t testing.TB, src string) *graph.Graph {
	t.Helper()
	def, err := graph.ParseDefinitionYAML([]byte(src))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	g, err := def.Build()
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

// Segment returns the named segment or fails the test.
func Segment(t testing.TB, g *graph.Graph, id string) *graph.Segment {
	t.Helper()
	seg, ok := g.Segment(id)
	if !ok {
		t.Fatalf("segment %s not found", id)
	}
	return seg
}

// Stage returns the named stage or fails the test.
func Stage(t testing.TB, g *graph.Graph, id string) *graph.Stage {
	t.Helper()
	stage, ok := g.Stage(id)
	if !ok {
		t.Fatalf("stage %s not found", id)
	}
	return stage
}

// Edge returns the named edge or fails the test.
func Edge(t testing.TB, g *graph.Graph, id string) *graph.Edge {
	t.Helper()
	e, ok := g.Edge(id)
	if !ok {
		t.Fatalf("edge %s not found", id)
	}
	return e
}
