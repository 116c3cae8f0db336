// internal/tui/app.go
//
// Interactive viewer for synthesized plans. It uses bubbletea, which follows
// The Elm Architecture:
//
// 1. Model: the loaded plans plus which one is open
// 2. Update: key presses and window resizes turn into state changes
// 3. View: the state rendered to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/streamsynth/internal/synth"
)

// appState represents which "screen" we're on
type appState int

const (
	statePlanList appState = iota // Picker shown when several plans are loaded
	statePlanView                 // Tabs for one plan
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithSize presets the window size, mostly for tests that never receive a
// WindowSizeMsg.
func WithSize(width, height int) AppOption {
	return func(a *App) {
		a.width = width
		a.height = height
	}
}

// App is the main application model.
type App struct {
	state    appState
	plans    []*synth.Plan
	planMenu list.Model
	view     *planView

	statusMsg string
	width     int
	height    int
}

// planItem implements list.Item for the plan picker.
type planItem struct {
	index int
	plan  *synth.Plan
}

func (i planItem) Title() string { return i.plan.Graph }
func (i planItem) Description() string {
	return fmt.Sprintf("%d segments · %d channels · %d rounds · run %s",
		len(i.plan.Segments), len(i.plan.Channels), len(i.plan.Rounds), shortID(i.plan.RunID))
}
func (i planItem) FilterValue() string { return i.plan.Graph }

// NewApp creates the viewer for the given plans. A single plan opens
// directly.
func NewApp(plans []*synth.Plan, opts ...AppOption) (*App, error) {
	if len(plans) == 0 {
		return nil, errors.New("tui: at least one plan is required")
	}
	items := make([]list.Item, len(plans))
	for i, plan := range plans {
		items[i] = planItem{index: i, plan: plan}
	}
	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "⬡ PLANS"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)

	app := &App{state: statePlanList, plans: plans, planMenu: menu}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.resize()
	if len(plans) == 1 {
		app.open(0)
	}
	return app, nil
}

// Run starts the viewer on the alternate screen and blocks until it exits.
func Run(plans []*synth.Plan) error {
	app, err := NewApp(plans)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		a.resize()
		return a, nil
	case tea.KeyMsg:
		switch m.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		}
		if a.state == statePlanView {
			return a.updatePlanView(m)
		}
		return a.updatePlanList(m)
	}
	if a.state == statePlanList {
		var cmd tea.Cmd
		a.planMenu, cmd = a.planMenu.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) updatePlanList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		if item, ok := a.planMenu.SelectedItem().(planItem); ok {
			a.open(item.index)
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.planMenu, cmd = a.planMenu.Update(msg)
	return a, cmd
}

func (a *App) updatePlanView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		if len(a.plans) > 1 {
			a.state = statePlanList
			a.view = nil
			a.statusMsg = ""
		}
	case "tab", "right", "l":
		a.view.nextTab()
	case "shift+tab", "left", "h":
		a.view.prevTab()
	case "down", "j":
		a.view.scroll(1)
	case "up", "k":
		a.view.scroll(-1)
	}
	return a, nil
}

func (a *App) open(index int) {
	a.view = newPlanView(a.plans[index])
	a.state = statePlanView
	a.statusMsg = fmt.Sprintf("run %s", a.plans[index].RunID)
}

func (a *App) resize() {
	width, height := a.width, a.height
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	a.planMenu.SetSize(width-4, height-6)
}

// View renders the current screen.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ STREAMSYNTH")
	var body string
	switch a.state {
	case statePlanView:
		body = a.view.render(max(40, a.width-4), max(10, a.height-8))
	default:
		body = a.planMenu.View()
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(body)
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.footer())
	return strings.Join([]string{header, box, footer}, "\n")
}

func (a *App) footer() string {
	hints := "Enter → open plan    q → quit"
	if a.state == statePlanView {
		hints = "Tab → next view    ↑/↓ → scroll    q → quit"
		if len(a.plans) > 1 {
			hints += "    Esc → plans"
		}
	}
	if a.statusMsg == "" {
		return hints
	}
	return a.statusMsg + "    " + hints
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
