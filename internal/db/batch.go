package db

import (
	"context"
	"fmt"
)

// OpKind selects what a batch operation does
type OpKind int

const (
	OpUpdateNote OpKind = iota
	OpDeleteNote
	OpUpdateData
	OpDeleteData
)

// Op is one write in a batch. Guard applies to updates and note deletions.
type Op struct {
	Kind   OpKind
	ID     int64
	NoteID int64 // owning note, for data updates
	Values Values
	Guard  int64
}

// UpdateNoteOp builds a guarded note update
func UpdateNoteOp(id int64, v Values, guard int64) Op {
	return Op{Kind: OpUpdateNote, ID: id, Values: v, Guard: guard}
}

// DeleteNoteOp builds a note deletion
func DeleteNoteOp(id int64) Op {
	return Op{Kind: OpDeleteNote, ID: id, Guard: NoGuard}
}

// GuardedDeleteNoteOp deletes note id only while it is still at version guard
func GuardedDeleteNoteOp(id, guard int64) Op {
	return Op{Kind: OpDeleteNote, ID: id, Guard: guard}
}

// Apply runs ops in one transaction. Any error rolls back the whole batch.
// A guarded write that matches no row is not an error; its slot in the
// returned slice holds 0.
func (db *DB) Apply(ctx context.Context, ops []Op) ([]int64, error) {
	affected := make([]int64, len(ops))

	err := db.WithTx(ctx, func(tx *Tx) error {
		for i, op := range ops {
			var err error
			switch op.Kind {
			case OpUpdateNote:
				affected[i], err = tx.UpdateNote(ctx, op.ID, op.Values, op.Guard)
			case OpDeleteNote:
				affected[i], err = tx.DeleteNoteAt(ctx, op.ID, op.Guard)
			case OpUpdateData:
				affected[i], err = tx.UpdateData(ctx, op.ID, op.NoteID, op.Values, op.Guard)
			case OpDeleteData:
				err = tx.DeleteData(ctx, op.ID)
				affected[i] = 1
			default:
				err = fmt.Errorf("unknown op kind %d", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}
