package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/streamsynth/internal/graph/graphtest"
	"github.com/kingrea/streamsynth/internal/synth"
)

func buildPlan(t *testing.T, src string) *synth.Plan {
	t.Helper()
	g := graphtest.Build(t, src)
	plan, err := synth.New(synth.DefaultOptions(), nil, nil).Run(context.Background(), g)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	return plan
}

func press(t *testing.T, app *App, key string) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		msg = tea.KeyMsg{Type: tea.KeyShiftTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	model, _ := app.Update(msg)
	if model != app {
		t.Fatalf("update returned a different model")
	}
}

func TestNewAppRequiresPlans(t *testing.T) {
	if _, err := NewApp(nil); err == nil {
		t.Fatalf("expected error for empty plan list")
	}
}

func TestSinglePlanOpensDirectly(t *testing.T) {
	app, err := NewApp([]*synth.Plan{buildPlan(t, graphtest.Chain)}, WithSize(120, 40))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if app.state != statePlanView {
		t.Fatalf("expected plan view, got %v", app.state)
	}
	view := app.View()
	for _, want := range []string{"STREAMSYNTH", "Graph chain", "s1", "s3"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "Esc → plans") {
		t.Fatalf("single plan view should not offer going back")
	}
}

func TestTabsCycleThroughViews(t *testing.T) {
	app, err := NewApp([]*synth.Plan{buildPlan(t, graphtest.Chain)}, WithSize(120, 40))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	press(t, app, "tab")
	if app.view.active != tabRounds {
		t.Fatalf("expected rounds tab, got %v", app.view.active)
	}
	if view := app.View(); !strings.Contains(view, "Round 1") || !strings.Contains(view, "Round 2") {
		t.Fatalf("rounds tab missing rounds:\n%s", view)
	}

	press(t, app, "tab")
	view := app.View()
	if !strings.Contains(view, "e12") || !strings.Contains(view, "cross") || !strings.Contains(view, "flat") {
		t.Fatalf("channels tab missing rotating edge:\n%s", view)
	}

	press(t, app, "tab")
	if view := app.View(); !strings.Contains(view, "f2") {
		t.Fatalf("stages tab missing f2:\n%s", view)
	}

	press(t, app, "tab")
	if view := app.View(); !strings.Contains(view, "passes") {
		t.Fatalf("balance tab missing summary:\n%s", view)
	}

	press(t, app, "tab")
	if app.view.active != tabSegments {
		t.Fatalf("expected wrap to segments, got %v", app.view.active)
	}
	press(t, app, "shift+tab")
	if app.view.active != tabBalance {
		t.Fatalf("expected wrap back to balance, got %v", app.view.active)
	}
}

func TestBalanceTabListsFixes(t *testing.T) {
	app, err := NewApp([]*synth.Plan{buildPlan(t, graphtest.Joiner)}, WithSize(120, 40))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	press(t, app, "shift+tab")
	view := app.View()
	if !strings.Contains(view, "in_place") || !strings.Contains(view, "forwards 6") {
		t.Fatalf("balance tab missing in-place fix:\n%s", view)
	}
}

func TestPlanPickerOpensAndReturns(t *testing.T) {
	plans := []*synth.Plan{buildPlan(t, graphtest.Chain), buildPlan(t, graphtest.Joiner)}
	app, err := NewApp(plans, WithSize(120, 40))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if app.state != statePlanList {
		t.Fatalf("expected plan list, got %v", app.state)
	}
	if view := app.View(); !strings.Contains(view, "chain") || !strings.Contains(view, "joiner") {
		t.Fatalf("picker missing plans:\n%s", view)
	}

	press(t, app, "down")
	press(t, app, "enter")
	if app.state != statePlanView || app.view.plan != plans[1] {
		t.Fatalf("expected joiner plan to open")
	}
	if view := app.View(); !strings.Contains(view, "Esc → plans") {
		t.Fatalf("footer missing back hint:\n%s", view)
	}

	press(t, app, "esc")
	if app.state != statePlanList || app.view != nil {
		t.Fatalf("expected to return to picker")
	}
}

func TestScrollStaysInRange(t *testing.T) {
	app, err := NewApp([]*synth.Plan{buildPlan(t, graphtest.Chain)}, WithSize(120, 40))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	for i := 0; i < 10; i++ {
		press(t, app, "down")
	}
	if limit := len(app.view.lines()) - 1; app.view.offset != limit {
		t.Fatalf("offset %d, want %d", app.view.offset, limit)
	}
	press(t, app, "k")
	press(t, app, "tab")
	if app.view.offset != 0 {
		t.Fatalf("tab switch should reset scroll, got %d", app.view.offset)
	}
}

func TestQuitKeys(t *testing.T) {
	app, err := NewApp([]*synth.Plan{buildPlan(t, graphtest.Chain)})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestWindowResize(t *testing.T) {
	app, err := NewApp([]*synth.Plan{buildPlan(t, graphtest.Chain)})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	if app.width != 100 || app.height != 30 {
		t.Fatalf("size not applied: %dx%d", app.width, app.height)
	}
}
