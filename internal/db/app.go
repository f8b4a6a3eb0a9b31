package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/existflow/ironnotes/internal/model"
)

// The operations below are the user-facing edits made by the CLI. Each one
// marks the touched row as locally modified so the next sync pushes it.

// CreateFolder creates a top-level folder
func (db *DB) CreateFolder(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("folder name cannot be empty")
	}
	if _, err := db.FolderByName(ctx, name); err == nil {
		return 0, fmt.Errorf("folder %q already exists", name)
	}

	now := NowMillis()
	return db.InsertNote(ctx, Values{
		"type":           model.TypeFolder,
		"parent_id":      model.RootFolderID,
		"snippet":        name,
		"created_date":   now,
		"modified_date":  now,
		"local_modified": true,
	})
}

// FolderByName finds a user folder outside the trash by name
func (db *DB) FolderByName(ctx context.Context, name string) (*model.Note, error) {
	notes, err := db.queryNotes(ctx, "WHERE type = ? AND snippet = ? AND parent_id <> ?",
		model.TypeFolder, name, model.TrashFolderID)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	return &notes[0], nil
}

// ListFolders returns the user folders outside the trash
func (db *DB) ListFolders(ctx context.Context) ([]model.Note, error) {
	return db.queryNotes(ctx, "WHERE type = ? AND parent_id <> ? ORDER BY snippet",
		model.TypeFolder, model.TrashFolderID)
}

// CreateNote creates a text note in folderID
func (db *DB) CreateNote(ctx context.Context, folderID int64, text string) (int64, error) {
	var id int64
	err := db.WithTx(ctx, func(tx *Tx) error {
		now := NowMillis()
		var err error
		id, err = tx.InsertNote(ctx, Values{
			"type":           model.TypeNote,
			"parent_id":      folderID,
			"created_date":   now,
			"modified_date":  now,
			"local_modified": true,
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertData(ctx, Values{
			"mime_type":     model.MimeTextNote,
			"note_id":       id,
			"content":       text,
			"created_date":  now,
			"modified_date": now,
		})
		return err
	})
	return id, err
}

// EditNote replaces the text of a note
func (db *DB) EditNote(ctx context.Context, id int64, text string) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		n, err := tx.GetNote(ctx, id)
		if err != nil {
			return err
		}
		if n.Type != model.TypeNote {
			return fmt.Errorf("row %d is not a note", id)
		}

		now := NowMillis()
		data, err := tx.ListData(ctx, id)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			_, err = tx.InsertData(ctx, Values{
				"mime_type": model.MimeTextNote, "note_id": id, "content": text,
				"created_date": now, "modified_date": now,
			})
		} else {
			_, err = tx.UpdateData(ctx, data[0].ID, id, Values{"content": text, "modified_date": now}, NoGuard)
		}
		if err != nil {
			return err
		}

		_, err = tx.UpdateNote(ctx, id, Values{"modified_date": now, "local_modified": true}, NoGuard)
		return err
	})
}

// MoveNote moves a note into another folder
func (db *DB) MoveNote(ctx context.Context, id, folderID int64) error {
	if folderID == model.TrashFolderID {
		return db.TrashNote(ctx, id)
	}
	if _, err := db.GetNote(ctx, folderID); err != nil {
		return err
	}
	_, err := db.UpdateNote(ctx, id, Values{
		"parent_id":      folderID,
		"modified_date":  NowMillis(),
		"local_modified": true,
	}, NoGuard)
	return err
}

// TrashNote moves a note or folder to the trash. A trashed folder takes its notes with it.
func (db *DB) TrashNote(ctx context.Context, id int64) error {
	if id <= model.RootFolderID {
		return fmt.Errorf("cannot trash system folder %d", id)
	}
	n, err := db.UpdateNote(ctx, id, Values{
		"parent_id":      model.TrashFolderID,
		"modified_date":  NowMillis(),
		"local_modified": true,
	}, NoGuard)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	return nil
}

// NoteText returns the primary text of a note
func (db *DB) NoteText(ctx context.Context, id int64) (string, error) {
	data, err := db.ListData(ctx, id)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	return data[0].Content, nil
}

// IsNotFound reports whether err is a missing-row error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
