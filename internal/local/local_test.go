package local

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/model"
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

func TestSqlDataCreateCommit(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	noteID, _ := d.CreateNote(ctx, model.RootFolderID, "x")

	sd := NewSqlData()
	if _, err := sd.JSON(); !errors.Is(err, ErrNotCommitted) {
		t.Errorf("expected ErrNotCommitted before commit, got %v", err)
	}
	sd.ApplyRemote(model.DataJSON{MimeType: model.Ptr(model.MimeCallNote), Content: model.Ptr("call"), Data3: model.Ptr("555")})

	if err := sd.Commit(ctx, d, noteID, false, 0); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if sd.ID() == InvalidID || sd.ID() <= 0 {
		t.Fatalf("expected assigned id, got %d", sd.ID())
	}
	if sd.Dirty() {
		t.Errorf("expected clean row after commit, dirty=%v", sd.DirtyFields())
	}

	rows, _ := d.ListData(ctx, noteID)
	var found bool
	for _, r := range rows {
		if r.ID == sd.ID() {
			found = true
			if r.MimeType != model.MimeCallNote || r.Content != "call" || r.Data3 != "555" {
				t.Errorf("unexpected stored row %+v", r)
			}
		}
	}
	if !found {
		t.Error("committed row not found")
	}
}

func TestSqlDataOnlyDirtyFieldsTracked(t *testing.T) {
	sd := LoadSqlData(model.Data{ID: 4, MimeType: model.MimeTextNote, Content: "a", Data1: 1})
	sd.ApplyRemote(model.DataJSON{Content: model.Ptr("a"), Data1: model.Ptr(int64(2))})

	got := sd.DirtyFields()
	sort.Strings(got)
	if len(got) != 1 || got[0] != "data1" {
		t.Errorf("expected only data1 dirty, got %v", got)
	}
}

func TestSqlDataRoundTripIsClean(t *testing.T) {
	sd := LoadSqlData(model.Data{ID: 9, MimeType: model.MimeCallNote, Content: "c", Data1: 77, Data3: "num"})
	js, err := sd.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	sd.ApplyRemote(js)
	if sd.Dirty() {
		t.Errorf("expected no dirty fields after round trip, got %v", sd.DirtyFields())
	}
}

func TestSqlDataGuardedCommitMisses(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	noteID, _ := d.CreateNote(ctx, model.RootFolderID, "original")
	note, _ := d.GetNote(ctx, noteID)
	rows, _ := d.ListData(ctx, noteID)

	sd := LoadSqlData(rows[0])
	sd.ApplyRemote(model.DataJSON{Content: model.Ptr("from remote")})

	// The user edits while the sync is in flight.
	if err := d.EditNote(ctx, noteID, "user edit"); err != nil {
		t.Fatalf("EditNote failed: %v", err)
	}

	err := sd.Commit(ctx, d, noteID, true, note.Version)
	if !errors.Is(err, syncerr.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
	if sd.Dirty() {
		t.Error("expected diff cleared after a failed commit")
	}
	text, _ := d.NoteText(ctx, noteID)
	if text != "user edit" {
		t.Errorf("expected local edit kept, got %q", text)
	}
}

func TestSqlDataGuardedCommitLands(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	noteID, _ := d.CreateNote(ctx, model.RootFolderID, "original")
	note, _ := d.GetNote(ctx, noteID)
	rows, _ := d.ListData(ctx, noteID)

	sd := LoadSqlData(rows[0])
	sd.ApplyRemote(model.DataJSON{Content: model.Ptr("from remote")})
	if err := sd.Commit(ctx, d, noteID, true, note.Version); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	text, _ := d.NoteText(ctx, noteID)
	if text != "from remote" {
		t.Errorf("expected remote content, got %q", text)
	}
}

type failingStore struct{}

func (failingStore) InsertData(context.Context, db.Values) (int64, error) { return 0, nil }
func (failingStore) UpdateData(context.Context, int64, int64, db.Values, int64) (int64, error) {
	return 0, nil
}

func TestSqlDataInsertWithoutIDIsActionFailure(t *testing.T) {
	sd := NewSqlData()
	sd.ApplyRemote(model.DataJSON{Content: model.Ptr("x")})
	err := sd.Commit(context.Background(), failingStore{}, 1, false, 0)
	if !syncerr.IsAction(err) {
		t.Errorf("expected action failure, got %v", err)
	}
	if len(sd.DirtyFields()) != 0 {
		t.Error("expected diff cleared")
	}
}

func TestSqlNoteCreateAndUpdate(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	n := NewSqlNote(model.TypeNote, model.RootFolderID)
	n.SetContent(model.LocalContent{Data: []model.DataJSON{{
		MimeType: model.Ptr(model.MimeTextNote), Content: model.Ptr("new note"),
	}}})
	n.SetGTaskID("g-1")
	n.SetSyncID(42)
	if err := n.Commit(ctx, d, false, 0); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	row, err := d.GetNote(ctx, n.ID())
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if row.GTaskID != "g-1" || row.SyncID != 42 || row.Snippet != "new note" {
		t.Errorf("unexpected row %+v", row)
	}

	loaded, err := LoadSqlNote(ctx, d, n.ID())
	if err != nil {
		t.Fatalf("LoadSqlNote failed: %v", err)
	}
	content, err := loaded.Content()
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	// Feeding a note its own content changes nothing.
	loaded.SetContent(content)
	if loaded.Dirty() {
		t.Error("expected clean note after own content round trip")
	}

	loaded.SetContent(model.LocalContent{Data: []model.DataJSON{{Content: model.Ptr("remote text")}}})
	loaded.SetSyncID(43)
	if err := loaded.Commit(ctx, d, true, row.Version); err != nil {
		t.Fatalf("guarded Commit failed: %v", err)
	}
	text, _ := d.NoteText(ctx, n.ID())
	if text != "remote text" {
		t.Errorf("expected remote text, got %q", text)
	}
	after, _ := d.GetNote(ctx, n.ID())
	if after.Version <= row.Version {
		t.Errorf("expected version bump, %d -> %d", row.Version, after.Version)
	}
}

func TestSqlNoteGuardMissRollsBackInTx(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	id, _ := d.CreateNote(ctx, model.RootFolderID, "mine")
	start, _ := d.GetNote(ctx, id)

	if err := d.EditNote(ctx, id, "edited during sync"); err != nil {
		t.Fatalf("EditNote failed: %v", err)
	}

	err := d.WithTx(ctx, func(tx *db.Tx) error {
		n, err := LoadSqlNote(ctx, tx, id)
		if err != nil {
			return err
		}
		n.SetContent(model.LocalContent{Data: []model.DataJSON{{Content: model.Ptr("theirs")}}})
		n.SetSyncID(99)
		return n.Commit(ctx, tx, true, start.Version)
	})
	if !errors.Is(err, syncerr.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	row, _ := d.GetNote(ctx, id)
	if row.SyncID == 99 {
		t.Error("expected note untouched after guard miss")
	}
	text, _ := d.NoteText(ctx, id)
	if text != "edited during sync" {
		t.Errorf("expected user edit kept, got %q", text)
	}
}
