package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plexist/internal/formatter"
	"github.com/desertthunder/plexist/internal/tasks"
)

// row tracks the latest progress for one playlist under sync.
type row struct {
	label      string
	phase      tasks.Phase
	step       int
	total      int
	message    string
	added      int
	removed    int
	unresolved int
}

// Model represents the dashboard application state.
type Model struct {
	ctx          context.Context
	engine       *tasks.Engine
	width        int
	height       int
	order        []string
	rows         map[string]*row
	progressChan chan tasks.ProgressUpdate
	summary      formatter.CycleSummary
	err          error
	running      bool
	help         help.Model
	keys         keyMap
}

// keyMap defines the [key.Binding] mapping for the dashboard.
type keyMap struct {
	quit key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.quit}}
}

type progressUpdateMsg tasks.ProgressUpdate

type cycleCompleteMsg struct {
	summary formatter.CycleSummary
	err     error
}

// NewModel creates a dashboard model around a configured sync engine.
func NewModel(ctx context.Context, engine *tasks.Engine) *Model {
	return &Model{
		ctx:    ctx,
		engine: engine,
		rows:   make(map[string]*row),
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init starts one sync cycle and begins listening for progress.
func (m *Model) Init() tea.Cmd {
	m.running = true
	m.progressChan = make(chan tasks.ProgressUpdate, 50)

	go func() {
		summary, err := m.engine.SyncCycle(m.ctx, m.progressChan)
		m.summary = summary
		m.err = err
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil

	case progressUpdateMsg:
		m.apply(tasks.ProgressUpdate(msg))
		return m, m.waitForProgress()

	case cycleCompleteMsg:
		m.summary = msg.summary
		m.err = msg.err
		m.running = false
		m.progressChan = nil
		return m, nil
	}

	return m, nil
}

func (m *Model) apply(update tasks.ProgressUpdate) {
	k := rowKey(update)
	r, ok := m.rows[k]
	if !ok {
		r = &row{label: k}
		m.rows[k] = r
		m.order = append(m.order, k)
	}

	r.phase = update.Phase
	r.step = update.Step
	r.total = update.Total
	r.message = update.Message

	if update.Phase == tasks.FetchingSource {
		if name, ok := update.Data.(string); ok && name != "" {
			r.label = name
		}
	}
	if update.Phase == tasks.Done {
		if counts, ok := update.Data.([3]int); ok {
			r.added, r.removed, r.unresolved = counts[0], counts[1], counts[2]
		}
	}
}

// rowKey identifies a row by the source playlist so every phase of one
// playlist lands on the same line.
func rowKey(update tasks.ProgressUpdate) string {
	if update.Pair.SourcePlaylistID == "" {
		return update.Pair.String()
	}
	return fmt.Sprintf("%s:%s", update.Pair.SourceService, update.Pair.SourcePlaylistID)
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return cycleCompleteMsg{summary: m.summary, err: m.err}
		}

		update, ok := <-m.progressChan
		if !ok {
			return cycleCompleteMsg{summary: m.summary, err: m.err}
		}
		return progressUpdateMsg(update)
	}
}

// View renders the per-playlist rows plus a summary once the cycle ends.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Plexist Sync"))
	b.WriteString("\n")

	for _, k := range m.order {
		b.WriteString(m.renderRow(m.rows[k]))
		b.WriteString("\n")
	}
	if len(m.order) == 0 && m.running {
		b.WriteString(styles.help.Render("Waiting for playlists..."))
		b.WriteString("\n")
	}

	if !m.running {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(styles.err.Render(fmt.Sprintf("Cycle failed: %v", m.err)))
		} else {
			b.WriteString(styles.ok.Render("✓ Cycle complete"))
			b.WriteString("\n")
			b.WriteString(formatter.FormatCycleSummary(m.summary))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderRow(r *row) string {
	label := styles.pair.Render(r.label)

	switch r.phase {
	case tasks.Done:
		status := fmt.Sprintf("done (+%d -%d, %d unresolved)", r.added, r.removed, r.unresolved)
		if r.unresolved > 0 {
			status = styles.warn.Render(status)
		}
		return fmt.Sprintf("  %s %s  %s", styles.ok.Render("✓"), label, status)
	case tasks.Failed:
		return fmt.Sprintf("  %s %s  %s", styles.err.Render("✗"), label, r.message)
	case tasks.MatchingTracks:
		progress := fmt.Sprintf("matching %d/%d", r.step, r.total)
		return fmt.Sprintf("  %s %s  %s", styles.phase.Render("…"), label, progress)
	default:
		return fmt.Sprintf("  %s %s  %s", styles.phase.Render("…"), label, r.phase.String())
	}
}

// Run starts the dashboard and blocks until the user quits.
func Run(ctx context.Context, engine *tasks.Engine) error {
	program := tea.NewProgram(NewModel(ctx, engine))
	_, err := program.Run()
	return err
}
