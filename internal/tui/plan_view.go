package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/streamsynth/internal/buffer"
	"github.com/kingrea/streamsynth/internal/synth"
)

var (
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleBuffer  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleGate    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	tabStyleActive    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	tabStyleIdle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Padding(0, 1)
)

type tab int

const (
	tabSegments tab = iota
	tabRounds
	tabChannels
	tabStages
	tabBalance
	tabCount
)

func (t tab) String() string {
	switch t {
	case tabSegments:
		return "Segments"
	case tabRounds:
		return "Prime-pump"
	case tabChannels:
		return "Channels"
	case tabStages:
		return "Stages"
	case tabBalance:
		return "Balance"
	default:
		return "?"
	}
}

type planView struct {
	plan   *synth.Plan
	active tab
	offset int
}

func newPlanView(plan *synth.Plan) *planView {
	return &planView{plan: plan}
}

func (v *planView) nextTab() {
	v.active = (v.active + 1) % tabCount
	v.offset = 0
}

func (v *planView) prevTab() {
	v.active = (v.active + tabCount - 1) % tabCount
	v.offset = 0
}

func (v *planView) scroll(delta int) {
	v.offset += delta
	if limit := len(v.lines()) - 1; v.offset > limit {
		v.offset = limit
	}
	if v.offset < 0 {
		v.offset = 0
	}
}

func (v *planView) render(width, height int) string {
	tabs := make([]string, 0, tabCount)
	for t := tab(0); t < tabCount; t++ {
		style := tabStyleIdle
		if t == v.active {
			style = tabStyleActive
		}
		tabs = append(tabs, style.Render(t.String()))
	}
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("Graph %s", v.plan.Graph))
	lines := v.lines()
	visible := max(1, height-4)
	end := min(len(lines), v.offset+visible)
	body := strings.Join(lines[min(v.offset, end):end], "\n")
	return lipgloss.NewStyle().Width(width).Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		"",
		body,
	))
}

func (v *planView) lines() []string {
	var lines []string
	switch v.active {
	case tabSegments:
		lines = v.segmentLines()
	case tabRounds:
		lines = v.roundLines()
	case tabChannels:
		lines = v.channelLines()
	case tabStages:
		lines = v.stageLines()
	case tabBalance:
		lines = v.balanceLines()
	}
	if len(lines) == 0 {
		return []string{labelStyleSkipped.Render("(empty)")}
	}
	return lines
}

func (v *planView) segmentLines() []string {
	lines := make([]string, 0, len(v.plan.Segments))
	for _, seg := range v.plan.Segments {
		label := labelStyleDefault.Render(seg.ID)
		if seg.Buffering {
			label = labelStyleBuffer.Render(seg.ID + " (buffering)")
		}
		lines = append(lines, fmt.Sprintf("%s  core %d  %s", label, seg.Core, detailTextStyle.Render(fmt.Sprintf("prime-pump ×%d", seg.PrimePump))))
	}
	return lines
}

func (v *planView) roundLines() []string {
	if len(v.plan.Rounds) == 0 {
		return []string{labelStyleSkipped.Render("No prime-pump rounds: every segment starts in steady state.")}
	}
	var lines []string
	for i, round := range v.plan.Rounds {
		lines = append(lines, fmt.Sprintf("Round %d: %s", i+1, labelStyleReady.Render(strings.Join(round.Segments, ", "))))
		skipped := make([]string, 0, len(round.Skipped))
		for id := range round.Skipped {
			skipped = append(skipped, id)
		}
		sort.Strings(skipped)
		for _, id := range skipped {
			lines = append(lines, fmt.Sprintf("  %s %s", labelStyleBlocked.Render(id), detailTextStyle.Render(round.Skipped[id].Detail)))
		}
	}
	return lines
}

func (v *planView) channelLines() []string {
	lines := make([]string, 0, len(v.plan.Channels))
	for _, ch := range v.plan.Channels {
		lines = append(lines, fmt.Sprintf("%-24s %-6s %4d × %-2d %s",
			ch.ID, ch.Kind, ch.Capacity, ch.Rotation, layoutLabel(ch.Layout)))
	}
	return lines
}

func (v *planView) stageLines() []string {
	lines := make([]string, 0, len(v.plan.Stages))
	for _, stage := range v.plan.Stages {
		label := labelStyleDefault.Render(stage.ID)
		if stage.Buffering {
			label = labelStyleBuffer.Render(stage.ID)
		}
		lines = append(lines, fmt.Sprintf("%s  %s  init ×%d  steady ×%d", label, detailTextStyle.Render(stage.Segment), stage.InitMult, stage.SteadyMult))
	}
	return lines
}

func (v *planView) balanceLines() []string {
	report := v.plan.Balance
	lines := []string{detailTextStyle.Render(fmt.Sprintf("%d passes, %d sweeps, %d fixes", report.Passes, report.Sweeps, len(report.Fixes)))}
	for _, fix := range report.Fixes {
		line := fmt.Sprintf("%s %s → %s forwards %d", labelStyleGate.Render(string(fix.Kind)), fix.Segment, fix.Inserted, fix.Amount)
		if fix.Edge != "" {
			line += fmt.Sprintf(" on %s", fix.Edge)
		}
		lines = append(lines, line)
		if fix.Fallback != "" {
			lines = append(lines, "  "+labelStyleSkipped.Render(fix.Fallback))
		}
	}
	return lines
}

func layoutLabel(layout buffer.Layout) string {
	switch layout {
	case buffer.LayoutFlat:
		return labelStyleReady.Render(string(layout))
	case buffer.LayoutCircular:
		return labelStyleGate.Render(string(layout))
	default:
		return labelStyleSkipped.Render(string(layout))
	}
}
