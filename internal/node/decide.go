package node

import "github.com/existflow/ironnotes/internal/model"

// LocalRow is the sync-relevant state of a local note or folder row
type LocalRow struct {
	ID           int64
	Kind         Kind
	GID          string
	SyncID       int64 // remote last_modified seen at the last sync
	Modified     bool  // local_modified
	Deleted      bool  // in trash
	ModifiedDate int64
	Version      int64
}

// RowFromNote extracts the sync state of a note row
func RowFromNote(n *model.Note) *LocalRow {
	kind := KindTask
	if n.IsFolder() {
		kind = KindTaskList
	}
	return &LocalRow{
		ID:           n.ID,
		Kind:         kind,
		GID:          n.GTaskID,
		SyncID:       n.SyncID,
		Modified:     n.LocalModified,
		Deleted:      n.InTrash(),
		ModifiedDate: n.ModifiedDate,
		Version:      n.Version,
	}
}

// Decide computes the sync action for a local row and the remote node bound
// to it. Either side may be nil: a nil remote means the node was not
// reported by an incremental fetch, so it is unchanged remotely.
func Decide(local *LocalRow, remote Node) SyncAction {
	if local == nil {
		if remote == nil {
			return ActionNone
		}
		h := remote.header()
		if h.GID == "" {
			return ActionError
		}
		if h.Deleted {
			return ActionNone
		}
		return ActionAddLocal
	}

	if local.GID == "" {
		if remote != nil {
			return ActionError
		}
		if local.Deleted {
			return ActionNone
		}
		return ActionAddRemote
	}

	if remote == nil {
		switch {
		case local.Deleted:
			return ActionDelRemote
		case local.Modified:
			return ActionUpdateRemote
		default:
			return ActionNone
		}
	}

	h := remote.header()
	if h.GID != local.GID || remote.Kind() != local.Kind {
		return ActionError
	}

	if h.Deleted {
		return ActionDelLocal
	}
	if local.Deleted {
		return ActionDelRemote
	}

	if !local.Modified {
		if local.SyncID == h.LastModified {
			return ActionNone
		}
		return ActionUpdateLocal
	}
	if local.SyncID == h.LastModified {
		return ActionUpdateRemote
	}
	return ActionUpdateConflict
}

// ResolveConflict settles an UPDATE_CONFLICT by last writer wins: the side
// with the newer timestamp is kept, and a tie keeps the local edit.
func ResolveConflict(local *LocalRow, remote Node) SyncAction {
	if local.ModifiedDate >= remote.header().LastModified {
		return ActionUpdateRemote
	}
	return ActionUpdateLocal
}
