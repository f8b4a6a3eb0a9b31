package node

import (
	"fmt"
	"strings"

	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/protocol"
)

// TaskList is a folder as the remote side sees it. Its name carries the
// reserved folder prefix.
type TaskList struct {
	Header
	Index int
}

// IsOwnedList reports whether a remote list name belongs to this application
func IsOwnedList(name string) bool {
	return strings.HasPrefix(name, protocol.FolderPrefix)
}

// IsMetaList reports whether name is the reserved metadata list
func IsMetaList(name string) bool {
	return name == protocol.FolderPrefix+protocol.FolderMeta
}

// ListName returns the remote list name for a local folder
func ListName(folder *model.Note) string {
	switch folder.ID {
	case model.RootFolderID:
		return protocol.FolderPrefix + protocol.FolderDefault
	case model.CallRecordFolderID:
		return protocol.FolderPrefix + protocol.FolderCallNote
	default:
		return protocol.FolderPrefix + folder.Snippet
	}
}

func (l *TaskList) Kind() Kind { return KindTaskList }

func (l *TaskList) CreateAction(actionID int) protocol.Action {
	name := l.Name
	index := l.Index
	return protocol.Action{
		ActionID:   actionID,
		ActionType: protocol.ActionCreate,
		Index:      &index,
		EntityDelta: &protocol.EntityDelta{
			Name:       &name,
			EntityType: protocol.TypeGroup,
			CreatorID:  protocol.CreatorNull,
		},
	}
}

func (l *TaskList) UpdateAction(actionID int, base Node) protocol.Action {
	var prev *TaskList
	if b, ok := base.(*TaskList); ok {
		prev = b
	}

	name, deleted := l.Name, l.Deleted
	delta := &protocol.EntityDelta{}
	if prev == nil || prev.Name != name {
		delta.Name = &name
	}
	if deleted || (prev != nil && prev.Deleted != deleted) {
		delta.Deleted = &deleted
	}

	return protocol.Action{
		ActionID:    actionID,
		ActionType:  protocol.ActionUpdate,
		ID:          l.GID,
		EntityDelta: delta,
	}
}

func (l *TaskList) SetContentByRemote(e protocol.Entity) error {
	if e.Type != protocol.TypeGroup {
		return fmt.Errorf("entity %s is a %s, not a list", e.ID, e.Type)
	}
	l.GID = e.ID
	l.Name = e.Name
	l.LastModified = e.LastModified
	l.Deleted = e.Deleted
	l.Index = e.Index
	return nil
}

func (l *TaskList) SetContentByLocal(c model.LocalContent) error {
	if c.Note.Type == nil || (*c.Note.Type != model.TypeFolder && *c.Note.Type != model.TypeSystem) {
		return fmt.Errorf("local row is not a folder")
	}
	folder := &model.Note{}
	if c.Note.ID != nil {
		folder.ID = *c.Note.ID
	}
	if c.Note.Snippet != nil {
		folder.Snippet = *c.Note.Snippet
	}
	if *c.Note.Type == model.TypeFolder && folder.Snippet == "" {
		return fmt.Errorf("folder %d has no name", folder.ID)
	}
	l.Name = ListName(folder)
	return nil
}

// LocalContent maps the reserved default and call-note lists onto the
// matching system folders.
func (l *TaskList) LocalContent() (model.LocalContent, error) {
	folderName := strings.TrimPrefix(l.Name, protocol.FolderPrefix)
	switch folderName {
	case protocol.FolderDefault:
		return model.LocalContent{Note: model.NoteJSON{
			ID: model.Ptr(model.RootFolderID), Type: model.Ptr(model.TypeSystem),
		}}, nil
	case protocol.FolderCallNote:
		return model.LocalContent{Note: model.NoteJSON{
			ID: model.Ptr(model.CallRecordFolderID), Type: model.Ptr(model.TypeSystem),
		}}, nil
	case "":
		return model.LocalContent{}, fmt.Errorf("list %s has no folder name", l.GID)
	}
	return model.LocalContent{Note: model.NoteJSON{
		Type:     model.Ptr(model.TypeFolder),
		ParentID: model.Ptr(model.RootFolderID),
		Snippet:  model.Ptr(folderName),
	}}, nil
}

func (l *TaskList) SyncAction(local *LocalRow) SyncAction {
	return Decide(local, l)
}
