package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/existflow/ironnotes/internal/model"
)

// Values is a set of column assignments for an insert or update
type Values map[string]any

var noteColumns = map[string]bool{
	"parent_id":        true,
	"alert_date":       true,
	"bg_color_id":      true,
	"created_date":     true,
	"modified_date":    true,
	"snippet":          true,
	"type":             true,
	"sync_id":          true,
	"local_modified":   true,
	"origin_parent_id": true,
	"gtask_id":         true,
}

var dataColumns = map[string]bool{
	"mime_type":     true,
	"note_id":       true,
	"created_date":  true,
	"modified_date": true,
	"content":       true,
	"data1":         true,
	"data2":         true,
	"data3":         true,
	"data4":         true,
	"data5":         true,
}

// columns returns the keys of v in a stable order after checking them against allowed
func (v Values) columns(table string, allowed map[string]bool) ([]string, error) {
	cols := make([]string, 0, len(v))
	for k := range v {
		if !allowed[k] {
			return nil, fmt.Errorf("unknown %s column %q", table, k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// normalize converts Go bools to SQLite integers
func normalize(v any) any {
	if b, ok := v.(bool); ok {
		return boolInt(b)
	}
	return v
}

type queries struct {
	q execer
}

const noteSelect = `
SELECT id, parent_id, alert_date, bg_color_id, created_date, modified_date, notes_count,
       snippet, type, sync_id, local_modified, origin_parent_id, gtask_id, version
FROM note`

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*model.Note, error) {
	var n model.Note
	var localModified int
	if err := s.Scan(&n.ID, &n.ParentID, &n.AlertDate, &n.BgColorID, &n.CreatedDate,
		&n.ModifiedDate, &n.NotesCount, &n.Snippet, &n.Type, &n.SyncID, &localModified,
		&n.OriginParentID, &n.GTaskID, &n.Version); err != nil {
		return nil, err
	}
	n.LocalModified = localModified != 0
	return &n, nil
}

func (s queries) queryNotes(ctx context.Context, where string, args ...any) ([]model.Note, error) {
	rows, err := s.q.QueryContext(ctx, noteSelect+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// GetNote returns the note row with the given id
func (s queries) GetNote(ctx context.Context, id int64) (*model.Note, error) {
	n, err := scanNote(s.q.QueryRowContext(ctx, noteSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %d: %w", id, err)
	}
	return n, nil
}

// NoteByGID returns the row bound to a remote id
func (s queries) NoteByGID(ctx context.Context, gid string) (*model.Note, error) {
	n, err := scanNote(s.q.QueryRowContext(ctx, noteSelect+" WHERE gtask_id = ? AND gtask_id <> ''", gid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note with gid %q: %w", gid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note by gid: %w", err)
	}
	return n, nil
}

// ListChildren returns rows whose parent is parentID, newest first
func (s queries) ListChildren(ctx context.Context, parentID int64) ([]model.Note, error) {
	return s.queryNotes(ctx, "WHERE parent_id = ? AND id <> ? ORDER BY modified_date DESC", parentID, parentID)
}

// ListSyncFolders returns every folder that takes part in sync: user folders
// (including trashed ones), the root folder and the call record folder.
func (s queries) ListSyncFolders(ctx context.Context) ([]model.Note, error) {
	return s.queryNotes(ctx, "WHERE type = ? OR id IN (?, ?) ORDER BY id",
		model.TypeFolder, model.RootFolderID, model.CallRecordFolderID)
}

// ListSyncNotes returns every note row that takes part in sync, trashed ones included
func (s queries) ListSyncNotes(ctx context.Context) ([]model.Note, error) {
	return s.queryNotes(ctx, "WHERE type = ? AND parent_id <> ? ORDER BY id",
		model.TypeNote, model.TempFolderID)
}

// InsertNote inserts a note row and returns its id
func (s queries) InsertNote(ctx context.Context, v Values) (int64, error) {
	cols, err := v.columns("note", noteColumns)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("insert note: no values")
	}

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = normalize(v[c])
	}
	query := fmt.Sprintf("INSERT INTO note (%s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders(len(cols)))

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert note: %w", err)
	}
	return res.LastInsertId()
}

// UpdateNote updates a note row and bumps its version. With a guard other
// than NoGuard the row is only touched if its version still equals guard.
// Returns the number of rows affected.
func (s queries) UpdateNote(ctx context.Context, id int64, v Values, guard int64) (int64, error) {
	cols, err := v.columns("note", noteColumns)
	if err != nil {
		return 0, err
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, normalize(v[c]))
	}
	sets = append(sets, "version = version + 1")

	query := "UPDATE note SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if guard != NoGuard {
		query += " AND version = ?"
		args = append(args, guard)
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update note %d: %w", id, err)
	}
	return res.RowsAffected()
}

// DeleteNote removes a note row. Triggers remove its data rows and, for
// folders, its children.
func (s queries) DeleteNote(ctx context.Context, id int64) error {
	_, err := s.DeleteNoteAt(ctx, id, NoGuard)
	return err
}

// DeleteNoteAt removes note id. With a guard other than NoGuard the row is
// only removed while its version still equals guard. Returns the number of
// rows removed.
func (s queries) DeleteNoteAt(ctx context.Context, id, guard int64) (int64, error) {
	if id <= model.RootFolderID {
		return 0, fmt.Errorf("cannot delete system folder %d", id)
	}
	query := "DELETE FROM note WHERE id = ?"
	args := []any{id}
	if guard != NoGuard {
		query += " AND version = ?"
		args = append(args, guard)
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	return res.RowsAffected()
}

// GetState returns a value from the sync_state table, or "" if unset
func (s queries) GetState(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.q.QueryRowContext(ctx, "SELECT value FROM sync_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync state %q: %w", key, err)
	}
	return value.String, nil
}

// SetState stores a value in the sync_state table
func (s queries) SetState(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO sync_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write sync state %q: %w", key, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
