package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/ironnotes/internal/sync"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// Init starts listening for sync events
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case syncProgressMsg:
		m.message = string(msg)
		return m, waitForEvent(m.events)

	case syncDoneMsg:
		o := sync.Outcome(msg)
		m.syncing = false
		m.runner = nil
		if errors.Is(o.Err, syncerr.ErrInProgress) {
			m.message = "Sync already running in the background"
			return m, waitForEvent(m.events)
		}
		m.lastSync = o.State.String()
		m.message = o.Message()
		m.loadData()
		return m, waitForEvent(m.events)

	case spinner.TickMsg:
		if !m.syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		// Handle mode-specific input
		switch m.mode {
		case ModeAddNote, ModeAddFolder, ModeEditNote:
			return m.updateInput(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		}

		// Normal mode key handling
		return m.handleNormalKeys(msg)
	}

	return m, nil
}

// handleNormalKeys handles key presses in normal mode
func (m Model) handleNormalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		if m.syncing && m.runner != nil {
			m.runner.Cancel()
			m.message = "Cancelling sync..."
		}

	case key.Matches(msg, keys.Quit):
		if m.runner != nil {
			m.runner.Cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		if m.pane == PaneFolders {
			m.pane = PaneNotes
		} else {
			m.pane = PaneFolders
		}

	case key.Matches(msg, keys.Left):
		m.pane = PaneFolders

	case key.Matches(msg, keys.Right):
		m.pane = PaneNotes

	case key.Matches(msg, keys.Up):
		m.handleUp()

	case key.Matches(msg, keys.Down):
		m.handleDown()

	case key.Matches(msg, keys.Add):
		return m.startInput(ModeAddNote, "Enter note...", "")

	case key.Matches(msg, keys.Folder):
		return m.startInput(ModeAddFolder, "Enter folder name...", "")

	case key.Matches(msg, keys.Edit):
		if n := m.currentNote(); n != nil && m.pane == PaneNotes {
			text, err := m.db.NoteText(context.Background(), n.ID)
			if err != nil {
				m.message = fmt.Sprintf("Error reading note: %v", err)
				return m, nil
			}
			return m.startInput(ModeEditNote, "Edit note...", text)
		}

	case key.Matches(msg, keys.Delete):
		m.handleDelete()

	case key.Matches(msg, keys.Help):
		m.mode = ModeHelp

	case key.Matches(msg, keys.Refresh):
		return m.startSync()
	}

	return m, nil
}

func (m *Model) handleUp() {
	if m.pane == PaneFolders {
		if m.folderCursor > 0 {
			m.folderCursor--
			m.noteCursor = 0
			m.loadData()
		}
	} else if m.noteCursor > 0 {
		m.noteCursor--
	}
}

func (m *Model) handleDown() {
	if m.pane == PaneFolders {
		if m.folderCursor < len(m.folders)-1 {
			m.folderCursor++
			m.noteCursor = 0
			m.loadData()
		}
	} else if m.noteCursor < len(m.notes)-1 {
		m.noteCursor++
	}
}

func (m *Model) handleDelete() {
	ctx := context.Background()
	switch m.pane {
	case PaneNotes:
		n := m.currentNote()
		if n == nil {
			return
		}
		if err := m.db.TrashNote(ctx, n.ID); err != nil {
			m.message = fmt.Sprintf("Error deleting note: %v", err)
			return
		}
		m.message = "Note moved to trash"
	case PaneFolders:
		f := m.currentFolder()
		if f == nil || f.ID <= 0 {
			m.message = "System folders cannot be deleted"
			return
		}
		if err := m.db.TrashNote(ctx, f.ID); err != nil {
			m.message = fmt.Sprintf("Error deleting folder: %v", err)
			return
		}
		m.folderCursor = 0
		m.message = fmt.Sprintf("Folder %s moved to trash", f.Snippet)
	}
	m.changed()
	m.loadData()
}

func (m Model) startInput(mode Mode, placeholder, value string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.input.SetValue(value)
	m.input.Placeholder = placeholder
	m.input.Focus()
	m.input.CursorEnd()
	return m, textinput.Blink
}

// startSync runs a session in the background
func (m Model) startSync() (tea.Model, tea.Cmd) {
	switch {
	case m.manager == nil:
		m.message = "Not logged in - use 'notes auth login' first"
		return m, nil
	case m.syncing:
		m.message = "Sync already running"
		return m, nil
	}

	m.syncing = true
	m.message = "Starting sync..."
	m.runner = startRunner(context.Background(), m.manager, m.events)
	return m, m.spinner.Tick
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.mode = ModeNormal
		return m, nil

	case key.Matches(msg, keys.Enter):
		value := m.input.Value()
		if value == "" {
			m.mode = ModeNormal
			return m, nil
		}

		ctx := context.Background()
		switch m.mode {
		case ModeAddNote:
			if f := m.currentFolder(); f != nil {
				if _, err := m.db.CreateNote(ctx, f.ID, value); err != nil {
					m.message = fmt.Sprintf("Error adding note: %v", err)
				} else {
					m.message = fmt.Sprintf("Added: %s", truncate(value, 40))
				}
			}
		case ModeAddFolder:
			if _, err := m.db.CreateFolder(ctx, value); err != nil {
				m.message = fmt.Sprintf("Error creating folder: %v", err)
			} else {
				m.message = fmt.Sprintf("Created folder: %s", value)
			}
		case ModeEditNote:
			if n := m.currentNote(); n != nil {
				if err := m.db.EditNote(ctx, n.ID, value); err != nil {
					m.message = fmt.Sprintf("Error editing note: %v", err)
				} else {
					m.message = fmt.Sprintf("Updated: %s", truncate(value, 40))
				}
			}
		}

		m.changed()
		m.loadData()
		m.mode = ModeNormal
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}
