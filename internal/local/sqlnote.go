package local

import (
	"context"
	"fmt"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// Store is the subset of the local store a note mirror needs.
// *db.DB and *db.Tx both satisfy it.
type Store interface {
	DataStore
	GetNote(ctx context.Context, id int64) (*model.Note, error)
	ListData(ctx context.Context, noteID int64) ([]model.Data, error)
	InsertNote(ctx context.Context, v db.Values) (int64, error)
	UpdateNote(ctx context.Context, id int64, v db.Values, guard int64) (int64, error)
}

// SqlNote mirrors one note row and its data rows
type SqlNote struct {
	isCreate bool
	row      model.Note
	diff     db.Values
	data     []*SqlData
}

// NewSqlNote returns a mirror for a note that does not exist yet
func NewSqlNote(noteType int, parentID int64) *SqlNote {
	n := &SqlNote{
		isCreate: true,
		row:      model.Note{ID: InvalidID},
		diff:     db.Values{},
	}
	now := db.NowMillis()
	n.set("type", noteType)
	n.set("parent_id", parentID)
	n.set("created_date", now)
	n.set("modified_date", now)
	return n
}

// LoadSqlNote reads note id and its data rows
func LoadSqlNote(ctx context.Context, store Store, id int64) (*SqlNote, error) {
	row, err := store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := store.ListData(ctx, id)
	if err != nil {
		return nil, err
	}

	n := &SqlNote{row: *row, diff: db.Values{}}
	for _, r := range rows {
		n.data = append(n.data, LoadSqlData(r))
	}
	return n, nil
}

// ID returns the local row id, InvalidID before the first commit
func (n *SqlNote) ID() int64 { return n.row.ID }

// Row returns the mirrored note row
func (n *SqlNote) Row() model.Note { return n.row }

// Data returns the mirrored data rows
func (n *SqlNote) Data() []*SqlData { return n.data }

// Dirty reports whether a commit would write anything
func (n *SqlNote) Dirty() bool {
	if n.isCreate || len(n.diff) > 0 {
		return true
	}
	for _, d := range n.data {
		if d.Dirty() {
			return true
		}
	}
	return false
}

func (n *SqlNote) set(col string, value any) {
	if !n.isCreate && currentValue(&n.row, col) == value {
		return
	}
	n.diff[col] = value
	applyValue(&n.row, col, value)
}

func currentValue(r *model.Note, col string) any {
	switch col {
	case "type":
		return r.Type
	case "parent_id":
		return r.ParentID
	case "created_date":
		return r.CreatedDate
	case "modified_date":
		return r.ModifiedDate
	case "alert_date":
		return r.AlertDate
	case "bg_color_id":
		return r.BgColorID
	case "snippet":
		return r.Snippet
	case "sync_id":
		return r.SyncID
	case "local_modified":
		return r.LocalModified
	case "origin_parent_id":
		return r.OriginParentID
	case "gtask_id":
		return r.GTaskID
	}
	return nil
}

func applyValue(r *model.Note, col string, value any) {
	switch col {
	case "type":
		r.Type = value.(int)
	case "parent_id":
		r.ParentID = value.(int64)
	case "created_date":
		r.CreatedDate = value.(int64)
	case "modified_date":
		r.ModifiedDate = value.(int64)
	case "alert_date":
		r.AlertDate = value.(int64)
	case "bg_color_id":
		r.BgColorID = value.(int64)
	case "snippet":
		r.Snippet = value.(string)
	case "sync_id":
		r.SyncID = value.(int64)
	case "local_modified":
		r.LocalModified = value.(bool)
	case "origin_parent_id":
		r.OriginParentID = value.(int64)
	case "gtask_id":
		r.GTaskID = value.(string)
	}
}

// SetContent merges local content into the mirror. Data rows are matched by
// id, then by position; extra entries become new rows.
func (n *SqlNote) SetContent(c model.LocalContent) error {
	if c.Note.Type != nil {
		if !n.isCreate && *c.Note.Type != n.row.Type {
			return fmt.Errorf("note %d: cannot change type %d to %d", n.row.ID, n.row.Type, *c.Note.Type)
		}
		n.set("type", *c.Note.Type)
	}
	if c.Note.ParentID != nil {
		n.set("parent_id", *c.Note.ParentID)
	}
	if c.Note.ModifiedDate != nil {
		n.set("modified_date", *c.Note.ModifiedDate)
	}
	if c.Note.AlertDate != nil {
		n.set("alert_date", *c.Note.AlertDate)
	}
	if c.Note.BgColorID != nil {
		n.set("bg_color_id", *c.Note.BgColorID)
	}
	// Note snippets follow their data through triggers; folders keep their name here.
	if c.Note.Snippet != nil && n.row.Type != model.TypeNote {
		n.set("snippet", *c.Note.Snippet)
	}

	for i, js := range c.Data {
		var target *SqlData
		if js.ID != nil {
			for _, d := range n.data {
				if d.ID() == *js.ID {
					target = d
					break
				}
			}
		}
		if target == nil && i < len(n.data) {
			target = n.data[i]
		}
		if target == nil {
			target = NewSqlData()
			n.data = append(n.data, target)
		}
		target.ApplyRemote(js)
	}
	return nil
}

// Content renders the mirror. Fails before the first commit.
func (n *SqlNote) Content() (model.LocalContent, error) {
	if n.isCreate {
		return model.LocalContent{}, ErrNotCommitted
	}
	r := n.row
	c := model.LocalContent{Note: model.NoteJSON{
		ID:           model.Ptr(r.ID),
		Type:         model.Ptr(r.Type),
		ParentID:     model.Ptr(r.ParentID),
		Snippet:      model.Ptr(r.Snippet),
		ModifiedDate: model.Ptr(r.ModifiedDate),
		AlertDate:    model.Ptr(r.AlertDate),
		BgColorID:    model.Ptr(r.BgColorID),
	}}
	for _, d := range n.data {
		js, err := d.JSON()
		if err != nil {
			return model.LocalContent{}, err
		}
		c.Data = append(c.Data, js)
	}
	return c, nil
}

// SetParentID moves the note
func (n *SqlNote) SetParentID(id int64) { n.set("parent_id", id) }

// SetGTaskID binds the note to a remote id
func (n *SqlNote) SetGTaskID(gid string) { n.set("gtask_id", gid) }

// SetSyncID records the remote last_modified the note is in sync with
func (n *SqlNote) SetSyncID(v int64) { n.set("sync_id", v) }

// SetOriginParentID records the parent at the time of sync
func (n *SqlNote) SetOriginParentID(id int64) { n.set("origin_parent_id", id) }

// SetModifiedDate sets the modification time
func (n *SqlNote) SetModifiedDate(ms int64) { n.set("modified_date", ms) }

// SetLocalModified sets or clears the dirty flag
func (n *SqlNote) SetLocalModified(v bool) { n.set("local_modified", v) }

// Commit writes the note and then its data rows. With useGuard the writes
// only land while the note is still at expectedVersion; a miss returns
// ErrVersionConflict. Run it inside a transaction to make the note and its
// data all-or-nothing. Diff sets are cleared whatever the outcome.
func (n *SqlNote) Commit(ctx context.Context, store Store, useGuard bool, expectedVersion int64) error {
	defer func() { n.diff = db.Values{} }()

	if n.isCreate {
		id, err := store.InsertNote(ctx, n.diff)
		if err != nil {
			return syncerr.WrapAction("insert note", err)
		}
		if id <= 0 {
			return syncerr.Action("insert note", "no id returned")
		}
		n.row.ID = id
		n.isCreate = false
		for _, d := range n.data {
			if err := d.Commit(ctx, store, id, false, 0); err != nil {
				return err
			}
		}
		return n.reload(ctx, store)
	}

	version := expectedVersion
	if len(n.diff) > 0 {
		guard := db.NoGuard
		if useGuard {
			guard = expectedVersion
		}
		affected, err := store.UpdateNote(ctx, n.row.ID, n.diff, guard)
		if err != nil {
			return syncerr.WrapAction("update note", err)
		}
		if affected == 0 {
			for _, d := range n.data {
				d.diff = db.Values{}
			}
			if useGuard {
				logger.Warn("Note update skipped, note changed during sync",
					logger.F("note_id", n.row.ID), logger.F("version", expectedVersion))
				return fmt.Errorf("note %d: %w", n.row.ID, syncerr.ErrVersionConflict)
			}
			return syncerr.Action("update note", "note %d not found", n.row.ID)
		}
		// The update bumped the version the data guard must see.
		version++
	}

	for _, d := range n.data {
		if err := d.Commit(ctx, store, n.row.ID, useGuard, version); err != nil {
			return err
		}
	}
	return n.reload(ctx, store)
}

func (n *SqlNote) reload(ctx context.Context, store Store) error {
	row, err := store.GetNote(ctx, n.row.ID)
	if err != nil {
		return syncerr.WrapAction("reload note", err)
	}
	n.row = *row
	return nil
}
