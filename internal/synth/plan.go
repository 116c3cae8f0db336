package synth

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/streamsynth/internal/balance"
	"github.com/kingrea/streamsynth/internal/buffer"
	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/primepump"
)

// Plan is the outcome of one synthesis run.
type Plan struct {
	RunID    string            `yaml:"run_id"`
	Graph    string            `yaml:"graph"`
	Segments []SegmentPlan     `yaml:"segments"`
	Stages   []StagePlan       `yaml:"stages"`
	Rounds   []primepump.Round `yaml:"rounds,omitempty"`
	Channels []buffer.Channel  `yaml:"channels"`
	Balance  balance.Report    `yaml:"balance"`
}

// SegmentPlan is the placement and prime-pump multiplicity of a segment.
type SegmentPlan struct {
	ID        string `yaml:"id"`
	Core      int    `yaml:"core"`
	PrimePump int    `yaml:"primepump"`
	Buffering bool   `yaml:"buffering,omitempty"`
}

// StagePlan is the firing schedule of a stage.
type StagePlan struct {
	ID         string `yaml:"id"`
	Segment    string `yaml:"segment"`
	InitMult   int    `yaml:"init_mult"`
	SteadyMult int    `yaml:"steady_mult"`
	Buffering  bool   `yaml:"buffering,omitempty"`
}

func newPlan(runID string, g *graph.Graph, report balance.Report, sched primepump.Schedule, channels []buffer.Channel) *Plan {
	plan := &Plan{
		RunID:    runID,
		Graph:    g.ID,
		Rounds:   sched.Rounds,
		Channels: channels,
		Balance:  report,
	}
	for _, seg := range g.Segments() {
		plan.Segments = append(plan.Segments, SegmentPlan{
			ID:        seg.ID,
			Core:      seg.Core,
			PrimePump: sched.Mult(seg),
			Buffering: seg.Buffering,
		})
		for _, stage := range seg.Stages() {
			plan.Stages = append(plan.Stages, StagePlan{
				ID:         stage.ID,
				Segment:    seg.ID,
				InitMult:   stage.InitMult(),
				SteadyMult: stage.SteadyMult(),
				Buffering:  stage.Buffering,
			})
		}
	}
	return plan
}

// Segment looks a segment plan up by ID.
func (p *Plan) Segment(id string) (SegmentPlan, bool) {
	for _, seg := range p.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return SegmentPlan{}, false
}

// Channel looks a channel up by ID.
func (p *Plan) Channel(id string) (buffer.Channel, bool) {
	for _, ch := range p.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return buffer.Channel{}, false
}

// Encode writes the plan as YAML.
func (p *Plan) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("synth: encode plan: %w", err)
	}
	return enc.Close()
}

// WriteFile stores the plan at path, creating parent directories.
func (p *Plan) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("synth: ensure %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("synth: write %s: %w", path, err)
	}
	return nil
}

// DecodePlan reads a plan written by Encode.
func DecodePlan(r io.Reader) (*Plan, error) {
	var plan Plan
	if err := yaml.NewDecoder(r).Decode(&plan); err != nil {
		return nil, fmt.Errorf("synth: decode plan: %w", err)
	}
	return &plan, nil
}

// LoadPlanFile reads a plan from disk.
func LoadPlanFile(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("synth: open %s: %w", path, err)
	}
	defer f.Close()
	plan, err := DecodePlan(f)
	if err != nil {
		return nil, fmt.Errorf("synth: %s: %w", path, err)
	}
	return plan, nil
}
