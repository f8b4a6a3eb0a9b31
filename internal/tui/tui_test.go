package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/sync"
	"github.com/existflow/ironnotes/internal/syncerr"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m tea.Model, text string) tea.Model {
	for _, r := range text {
		m, _ = m.Update(runes(string(r)))
	}
	return m
}

func TestModelAddsFolderAndNote(t *testing.T) {
	d := setupTestDB(t)
	var m tea.Model = NewModel(d, nil, nil)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = m.Update(runes("f"))
	m = typeText(m, "Work")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	ctx := context.Background()
	folder, err := d.FolderByName(ctx, "Work")
	if err != nil {
		t.Fatalf("expected folder created: %v", err)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(runes("a"))
	m = typeText(m, "buy milk")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	children, _ := d.ListChildren(ctx, folder.ID)
	if len(children) != 1 {
		t.Fatalf("expected one note in Work, got %d", len(children))
	}
	if text, _ := d.NoteText(ctx, children[0].ID); text != "buy milk" {
		t.Errorf("unexpected note text %q", text)
	}

	view := m.View()
	if !strings.Contains(view, "Work") || !strings.Contains(view, "buy milk") {
		t.Errorf("expected folder and note in view:\n%s", view)
	}
}

func TestModelSyncNeedsLogin(t *testing.T) {
	d := setupTestDB(t)
	var m tea.Model = NewModel(d, nil, nil)
	m, _ = m.Update(runes("R"))
	if got := m.(Model).message; !strings.Contains(got, "Not logged in") {
		t.Errorf("unexpected message %q", got)
	}
}

func TestModelTrashesNote(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	id, _ := d.CreateNote(ctx, model.RootFolderID, "old")

	var m tea.Model = NewModel(d, nil, nil)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m, _ = m.Update(runes("d"))

	n, err := d.GetNote(ctx, id)
	if err != nil || !n.InTrash() {
		t.Errorf("expected note in trash, got %+v (%v)", n, err)
	}
	if len(m.(Model).notes) != 0 {
		t.Error("expected note list refreshed")
	}
}

// fakeSyncer reports progress and returns a fixed result
type fakeSyncer struct {
	err error
}

func (f fakeSyncer) Sync(ctx context.Context, cancelled func() bool, progress func(string)) (*sync.Result, error) {
	progress("Logging in to test")
	progress("Synchronizing notes")
	if f.err != nil {
		return nil, f.err
	}
	return &sync.Result{Account: "alice"}, nil
}

// drive feeds the model its own events until the session ends
func drive(t *testing.T, m *SyncModel) {
	t.Helper()
	m.Init()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-m.events:
			_, cmd := m.Update(msg)
			if _, done := msg.(syncDoneMsg); done {
				if cmd == nil {
					t.Error("expected quit command")
				}
				return
			}
		case <-timeout:
			t.Fatal("session never finished")
		}
	}
}

func TestSyncModelShowsOutcome(t *testing.T) {
	m := NewSyncModel(context.Background(), fakeSyncer{})
	drive(t, m)

	out, ok := m.Outcome()
	if !ok || out.State != sync.StateSuccess {
		t.Fatalf("unexpected outcome %+v", out)
	}
	view := m.View()
	if !strings.Contains(view, "Synchronized with alice") || !strings.Contains(view, "Logging in to test") {
		t.Errorf("unexpected view:\n%s", view)
	}
}

func TestSyncModelNetworkError(t *testing.T) {
	m := NewSyncModel(context.Background(), fakeSyncer{err: syncerr.Network("login", errors.New("refused"))})
	drive(t, m)

	out, _ := m.Outcome()
	if out.State != sync.StateNetworkError {
		t.Errorf("expected network error, got %v", out.State)
	}
}
