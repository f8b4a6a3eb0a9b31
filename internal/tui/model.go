// Package tui is the terminal note browser and sync progress view.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/sync"
)

// Pane represents which pane is focused
type Pane int

const (
	PaneFolders Pane = iota
	PaneNotes
)

// Mode represents the current UI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAddNote
	ModeAddFolder
	ModeEditNote
	ModeHelp
)

// Model is the main TUI model
type Model struct {
	db      *db.DB
	folders []model.Note // root folder first
	notes   []model.Note

	// Sync
	manager  *sync.Manager // nil when not logged in
	autoSync *sync.AutoSync
	events   chan tea.Msg
	runner   *sync.Runner
	spinner  spinner.Model
	syncing  bool
	lastSync string

	// UI state
	width        int
	height       int
	pane         Pane
	mode         Mode
	folderCursor int
	noteCursor   int

	// Input
	input textinput.Model

	message string
}

// NewModel creates a browser over database. manager and auto may be nil.
func NewModel(database *db.DB, manager *sync.Manager, auto *sync.AutoSync) Model {
	logger.Info("Initializing TUI model")

	ti := textinput.New()
	ti.Placeholder = "Enter note..."
	ti.CharLimit = 1024
	ti.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = HeaderStyle

	m := Model{
		db:       database,
		manager:  manager,
		autoSync: auto,
		events:   make(chan tea.Msg, 64),
		spinner:  sp,
		pane:     PaneFolders,
		mode:     ModeNormal,
		input:    ti,
	}

	if auto != nil {
		events := m.events
		auto.SetOnSync(func(o sync.Outcome) {
			logger.Debug("Auto sync callback", logger.F("state", o.State.String()))
			send(events, syncDoneMsg(o))
		})
	}

	m.loadData()
	logger.Debug("TUI model initialized",
		logger.F("folders", len(m.folders)),
		logger.F("notes", len(m.notes)))
	return m
}

func (m *Model) loadData() {
	ctx := context.Background()

	root, err := m.db.GetNote(ctx, model.RootFolderID)
	if err != nil {
		m.message = "Error loading folders: " + err.Error()
		return
	}
	folders, err := m.db.ListFolders(ctx)
	if err != nil {
		m.message = "Error loading folders: " + err.Error()
		return
	}
	m.folders = append([]model.Note{*root}, folders...)
	if m.folderCursor >= len(m.folders) {
		m.folderCursor = 0
	}

	children, err := m.db.ListChildren(ctx, m.folders[m.folderCursor].ID)
	if err != nil {
		m.message = "Error loading notes: " + err.Error()
		return
	}
	m.notes = nil
	for _, n := range children {
		if n.Type == model.TypeNote {
			m.notes = append(m.notes, n)
		}
	}
	if m.noteCursor >= len(m.notes) {
		m.noteCursor = max(len(m.notes)-1, 0)
	}
}

func (m *Model) currentFolder() *model.Note {
	if m.folderCursor < len(m.folders) {
		return &m.folders[m.folderCursor]
	}
	return nil
}

func (m *Model) currentNote() *model.Note {
	if m.noteCursor < len(m.notes) {
		return &m.notes[m.noteCursor]
	}
	return nil
}

// folderLabel names a folder for display
func folderLabel(f *model.Note) string {
	if f.ID == model.RootFolderID {
		return "Notes"
	}
	return f.Snippet
}

// changed tells watchers that the store changed
func (m *Model) changed() {
	m.db.NotifyChange()
}
