// Package local mirrors note and data rows in memory, tracks which fields
// changed, and writes only those fields back.
package local

import (
	"context"
	"errors"
	"fmt"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// InvalidID marks a row that has not been inserted yet
const InvalidID int64 = -99999

// ErrNotCommitted is returned when a row with no local id is serialized
var ErrNotCommitted = errors.New("row has not been committed")

// DataStore is the subset of the local store a data row needs
type DataStore interface {
	InsertData(ctx context.Context, v db.Values) (int64, error)
	UpdateData(ctx context.Context, id, noteID int64, v db.Values, guard int64) (int64, error)
}

// SqlData mirrors one data row
type SqlData struct {
	isCreate bool

	id       int64
	mimeType string
	content  string
	data1    int64
	data3    string

	diff db.Values
}

// NewSqlData returns a mirror for a row that does not exist yet. Every
// field is written on its first commit.
func NewSqlData() *SqlData {
	return &SqlData{
		isCreate: true,
		id:       InvalidID,
		mimeType: model.MimeTextNote,
		diff:     db.Values{},
	}
}

// LoadSqlData returns a mirror of an existing row
func LoadSqlData(row model.Data) *SqlData {
	d := &SqlData{}
	d.Load(row)
	return d
}

// Load replaces the mirrored state with row and clears the diff set
func (d *SqlData) Load(row model.Data) {
	d.isCreate = false
	d.id = row.ID
	d.mimeType = row.MimeType
	d.content = row.Content
	d.data1 = row.Data1
	d.data3 = row.Data3
	d.diff = db.Values{}
}

// ID returns the local row id, InvalidID before the first commit
func (d *SqlData) ID() int64 { return d.id }

// Content returns the current text
func (d *SqlData) Content() string { return d.content }

// MimeType returns the current mime type
func (d *SqlData) MimeType() string { return d.mimeType }

// Dirty reports whether a commit would write anything
func (d *SqlData) Dirty() bool {
	return d.isCreate || len(d.diff) > 0
}

// DirtyFields returns the columns in the diff set
func (d *SqlData) DirtyFields() []string {
	out := make([]string, 0, len(d.diff))
	for k := range d.diff {
		out = append(out, k)
	}
	return out
}

// ApplyRemote merges the fields present in js, marking changed ones dirty.
// The id in js is informational; the local id is never reassigned.
func (d *SqlData) ApplyRemote(js model.DataJSON) {
	if js.MimeType != nil && (d.isCreate || *js.MimeType != d.mimeType) {
		d.diff["mime_type"] = *js.MimeType
		d.mimeType = *js.MimeType
	}
	if js.Content != nil && (d.isCreate || *js.Content != d.content) {
		d.diff["content"] = *js.Content
		d.content = *js.Content
	}
	if js.Data1 != nil && (d.isCreate || *js.Data1 != d.data1) {
		d.diff["data1"] = *js.Data1
		d.data1 = *js.Data1
	}
	if js.Data3 != nil && (d.isCreate || *js.Data3 != d.data3) {
		d.diff["data3"] = *js.Data3
		d.data3 = *js.Data3
	}
}

// JSON renders the mirrored row. Fails before the first commit.
func (d *SqlData) JSON() (model.DataJSON, error) {
	if d.isCreate {
		return model.DataJSON{}, ErrNotCommitted
	}
	return model.DataJSON{
		ID:       model.Ptr(d.id),
		MimeType: model.Ptr(d.mimeType),
		Content:  model.Ptr(d.content),
		Data1:    model.Ptr(d.data1),
		Data3:    model.Ptr(d.data3),
	}, nil
}

// Commit writes the row for note noteID. A new row is inserted with every
// field; an existing row gets only its dirty fields, and with useGuard the
// update only lands while the note is still at expectedVersion. The diff set
// is cleared whatever the outcome.
func (d *SqlData) Commit(ctx context.Context, store DataStore, noteID int64, useGuard bool, expectedVersion int64) error {
	defer func() { d.diff = db.Values{} }()

	if d.isCreate {
		id, err := store.InsertData(ctx, db.Values{
			"mime_type": d.mimeType,
			"note_id":   noteID,
			"content":   d.content,
			"data1":     d.data1,
			"data3":     d.data3,
		})
		if err != nil {
			return syncerr.WrapAction("insert data", err)
		}
		if id <= 0 {
			return syncerr.Action("insert data", "no id returned for note %d", noteID)
		}
		d.id = id
		d.isCreate = false
		return nil
	}

	if len(d.diff) == 0 {
		return nil
	}

	guard := db.NoGuard
	if useGuard {
		guard = expectedVersion
	}
	n, err := store.UpdateData(ctx, d.id, noteID, d.diff, guard)
	if err != nil {
		return syncerr.WrapAction("update data", err)
	}
	if n == 0 {
		if useGuard {
			logger.Warn("Data update skipped, note changed during sync",
				logger.F("data_id", d.id), logger.F("note_id", noteID), logger.F("version", expectedVersion))
			return fmt.Errorf("data %d: %w", d.id, syncerr.ErrVersionConflict)
		}
		return syncerr.Action("update data", "data row %d not found", d.id)
	}
	return nil
}
