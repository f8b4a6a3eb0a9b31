package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/ironnotes/internal/sync"
)

// syncProgressMsg carries one progress line of a running session
type syncProgressMsg string

// syncDoneMsg is sent when a session ends
type syncDoneMsg sync.Outcome

// startRunner wires a runner's callbacks to events
func startRunner(ctx context.Context, s sync.Syncer, events chan tea.Msg) *sync.Runner {
	r := sync.NewRunner(s,
		sync.WithProgress(func(status string) {
			send(events, syncProgressMsg(status))
		}),
		sync.WithCompletion(func(o sync.Outcome) {
			events <- syncDoneMsg(o)
		}))
	r.Start(ctx)
	return r
}

// SyncModel shows the progress of one session and quits when it ends
type SyncModel struct {
	syncer  sync.Syncer
	ctx     context.Context
	events  chan tea.Msg
	runner  *sync.Runner
	spinner spinner.Model

	status     string
	lines      []string
	cancelling bool
	outcome    *sync.Outcome
}

// NewSyncModel creates a progress view for one session of s
func NewSyncModel(ctx context.Context, s sync.Syncer) *SyncModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = HeaderStyle
	return &SyncModel{
		syncer:  s,
		ctx:     ctx,
		events:  make(chan tea.Msg, 64),
		spinner: sp,
		status:  "Starting sync",
	}
}

// Init starts the session
func (m *SyncModel) Init() tea.Cmd {
	m.runner = startRunner(m.ctx, m.syncer, m.events)
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update handles messages
func (m *SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case syncProgressMsg:
		if m.status != "" && m.status != "Starting sync" {
			m.lines = append(m.lines, m.status)
		}
		m.status = string(msg)
		return m, waitForEvent(m.events)

	case syncDoneMsg:
		o := sync.Outcome(msg)
		m.outcome = &o
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, keys.Cancel) && m.runner != nil && !m.cancelling {
			m.cancelling = true
			m.runner.Cancel()
		}
	}
	return m, nil
}

// View renders the progress
func (m *SyncModel) View() string {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(HelpStyle.Render("  ✓ "+line) + "\n")
	}

	if m.outcome != nil {
		b.WriteString(StateStyle(m.outcome.State.String()).Render(m.outcome.Message()) + "\n")
		return b.String()
	}

	status := m.status
	if m.cancelling {
		status += " (cancelling)"
	}
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), status)
	b.WriteString(HelpStyle.Render("esc cancel") + "\n")
	return b.String()
}

// Outcome returns the session outcome once it ended
func (m *SyncModel) Outcome() (sync.Outcome, bool) {
	if m.outcome == nil {
		return sync.Outcome{}, false
	}
	return *m.outcome, true
}

// RunSync runs one session of s behind a progress view
func RunSync(ctx context.Context, s sync.Syncer) (sync.Outcome, error) {
	m := NewSyncModel(ctx, s)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		if m.runner != nil {
			m.runner.Cancel()
			<-m.runner.Done()
		}
		return sync.Outcome{}, fmt.Errorf("progress view failed: %w", err)
	}
	out, ok := m.Outcome()
	if !ok {
		return sync.Outcome{}, fmt.Errorf("sync did not finish")
	}
	return out, nil
}
