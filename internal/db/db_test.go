package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/existflow/ironnotes/internal/model"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenCreatesSystemFolders(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []int64{model.RootFolderID, model.TempFolderID, model.CallRecordFolderID, model.TrashFolderID} {
		n, err := d.GetNote(ctx, id)
		if err != nil {
			t.Fatalf("GetNote(%d) failed: %v", id, err)
		}
		if n.Type != model.TypeSystem {
			t.Errorf("expected system folder %d, got type %d", id, n.Type)
		}
	}
}

func TestUpdateNoteBumpsVersionAndGuards(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, err := d.CreateNote(ctx, model.RootFolderID, "hello")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	before, _ := d.GetNote(ctx, id)

	n, err := d.UpdateNote(ctx, id, Values{"sync_id": int64(5)}, before.Version)
	if err != nil {
		t.Fatalf("UpdateNote failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}

	after, _ := d.GetNote(ctx, id)
	if after.Version != before.Version+1 {
		t.Errorf("expected version %d, got %d", before.Version+1, after.Version)
	}

	// Stale guard no longer matches.
	n, err = d.UpdateNote(ctx, id, Values{"sync_id": int64(6)}, before.Version)
	if err != nil {
		t.Fatalf("UpdateNote failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected stale guard to affect 0 rows, got %d", n)
	}
}

func TestUpdateDataGuardedByNoteVersion(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.CreateNote(ctx, model.RootFolderID, "first")
	note, _ := d.GetNote(ctx, id)
	data, err := d.ListData(ctx, id)
	if err != nil || len(data) != 1 {
		t.Fatalf("ListData failed: %v (%d rows)", err, len(data))
	}

	if err := d.EditNote(ctx, id, "concurrent edit"); err != nil {
		t.Fatalf("EditNote failed: %v", err)
	}

	n, err := d.UpdateData(ctx, data[0].ID, id, Values{"content": "remote"}, note.Version)
	if err != nil {
		t.Fatalf("UpdateData failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected guarded update to miss, got %d rows", n)
	}
	text, _ := d.NoteText(ctx, id)
	if text != "concurrent edit" {
		t.Errorf("expected local edit to survive, got %q", text)
	}
}

func TestUnknownColumnRejected(t *testing.T) {
	d := setupTestDB(t)
	if _, err := d.InsertNote(context.Background(), Values{"version": 3}); err == nil {
		t.Error("expected error for non-writable column")
	}
}

func TestSnippetFollowsContent(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.CreateNote(ctx, model.RootFolderID, "snippet text")
	n, _ := d.GetNote(ctx, id)
	if n.Snippet != "snippet text" {
		t.Errorf("expected snippet to follow content, got %q", n.Snippet)
	}
}

func TestTrashFolderMovesNotes(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	folder, err := d.CreateFolder(ctx, "Work")
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	noteID, _ := d.CreateNote(ctx, folder, "in work")

	f, _ := d.GetNote(ctx, folder)
	if f.NotesCount != 1 {
		t.Errorf("expected notes_count 1, got %d", f.NotesCount)
	}

	if err := d.TrashNote(ctx, folder); err != nil {
		t.Fatalf("TrashNote failed: %v", err)
	}
	n, _ := d.GetNote(ctx, noteID)
	if !n.InTrash() {
		t.Errorf("expected note to follow folder into trash, parent=%d", n.ParentID)
	}
}

func TestDeleteFolderCascades(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	folder, _ := d.CreateFolder(ctx, "Gone")
	noteID, _ := d.CreateNote(ctx, folder, "child")

	if _, err := d.Apply(ctx, []Op{DeleteNoteOp(folder)}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := d.GetNote(ctx, noteID); !IsNotFound(err) {
		t.Errorf("expected child note deleted, got %v", err)
	}
	data, _ := d.ListData(ctx, noteID)
	if len(data) != 0 {
		t.Errorf("expected child data deleted, got %d rows", len(data))
	}
}

func TestApplyRollsBackOnError(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.CreateNote(ctx, model.RootFolderID, "keep")
	_, err := d.Apply(ctx, []Op{
		UpdateNoteOp(id, Values{"gtask_id": "g1"}, NoGuard),
		UpdateNoteOp(id, Values{"bogus": 1}, NoGuard),
	})
	if err == nil {
		t.Fatal("expected batch error")
	}
	n, _ := d.GetNote(ctx, id)
	if n.GTaskID != "" {
		t.Errorf("expected rollback, gtask_id=%q", n.GTaskID)
	}
}

func TestSyncState(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	v, err := d.GetState(ctx, "latest_sync_point")
	if err != nil || v != "" {
		t.Fatalf("expected empty state, got %q, %v", v, err)
	}
	if err := d.SetState(ctx, "latest_sync_point", "42"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := d.SetState(ctx, "latest_sync_point", "43"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	v, _ = d.GetState(ctx, "latest_sync_point")
	if v != "43" {
		t.Errorf("expected 43, got %q", v)
	}
}

func TestSubscribeNotify(t *testing.T) {
	d := setupTestDB(t)
	calls := 0
	unsubscribe := d.Subscribe(func() { calls++ })
	d.NotifyChange()
	unsubscribe()
	d.NotifyChange()
	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}
}

func TestGuardedDelete(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.CreateNote(ctx, model.RootFolderID, "racy")
	n, _ := d.GetNote(ctx, id)
	if err := d.EditNote(ctx, id, "edited"); err != nil {
		t.Fatalf("EditNote failed: %v", err)
	}

	affected, err := d.Apply(ctx, []Op{GuardedDeleteNoteOp(id, n.Version)})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if affected[0] != 0 {
		t.Errorf("expected stale delete to miss, got %d", affected[0])
	}
	if _, err := d.GetNote(ctx, id); err != nil {
		t.Errorf("expected note to survive, got %v", err)
	}
}
