package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/existflow/ironnotes/internal/model"
)

// ListData returns the data rows of a note in insertion order
func (s queries) ListData(ctx context.Context, noteID int64) ([]model.Data, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, mime_type, note_id, created_date, modified_date, content, data1, data3
		FROM data WHERE note_id = ? ORDER BY id`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data for note %d: %w", noteID, err)
	}
	defer rows.Close()

	var out []model.Data
	for rows.Next() {
		var d model.Data
		if err := rows.Scan(&d.ID, &d.MimeType, &d.NoteID, &d.CreatedDate, &d.ModifiedDate,
			&d.Content, &d.Data1, &d.Data3); err != nil {
			return nil, fmt.Errorf("failed to scan data: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertData inserts a data row and returns its id
func (s queries) InsertData(ctx context.Context, v Values) (int64, error) {
	cols, err := v.columns("data", dataColumns)
	if err != nil {
		return 0, err
	}
	if _, ok := v["mime_type"]; !ok {
		return 0, fmt.Errorf("insert data: mime_type is required")
	}

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = normalize(v[c])
	}
	query := fmt.Sprintf("INSERT INTO data (%s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders(len(cols)))

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert data: %w", err)
	}
	return res.LastInsertId()
}

// UpdateData updates a data row. With a guard other than NoGuard the row is
// only touched while its owning note noteID is still at version guard.
// Returns the number of rows affected.
func (s queries) UpdateData(ctx context.Context, id, noteID int64, v Values, guard int64) (int64, error) {
	cols, err := v.columns("data", dataColumns)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, nil
	}

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+3)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, normalize(v[c]))
	}

	query := "UPDATE data SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if guard != NoGuard {
		query += " AND ? IN (SELECT id FROM note WHERE version = ?)"
		args = append(args, noteID, guard)
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update data %d: %w", id, err)
	}
	return res.RowsAffected()
}

// DeleteData removes a single data row
func (s queries) DeleteData(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM data WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete data %d: %w", id, err)
	}
	return nil
}
