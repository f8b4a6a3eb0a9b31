package node

import (
	"encoding/json"
	"fmt"

	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/protocol"
)

// Task is a note as the remote side sees it. Name carries the text; Notes
// carries the non-text payload of call notes and the like.
type Task struct {
	Header
	Notes           string
	Completed       bool
	ListGID         string
	PriorSiblingGID string
	Index           int
}

// payload is the JSON kept in Task.Notes for rows that are not plain text
type payload struct {
	MimeType string `json:"mime_type"`
	Data1    int64  `json:"data1,omitempty"`
	Data3    string `json:"data3,omitempty"`
}

func (t *Task) Kind() Kind { return KindTask }

func (t *Task) CreateAction(actionID int) protocol.Action {
	name, notes := t.Name, t.Notes
	delta := &protocol.EntityDelta{
		Name:       &name,
		EntityType: protocol.TypeTask,
		CreatorID:  protocol.CreatorNull,
	}
	if notes != "" {
		delta.Notes = &notes
	}
	index := t.Index
	return protocol.Action{
		ActionID:       actionID,
		ActionType:     protocol.ActionCreate,
		EntityDelta:    delta,
		Index:          &index,
		ParentID:       t.ListGID,
		DestParentType: protocol.TypeGroup,
		ListID:         t.ListGID,
		PriorSiblingID: t.PriorSiblingGID,
	}
}

func (t *Task) UpdateAction(actionID int, base Node) protocol.Action {
	var prev *Task
	if b, ok := base.(*Task); ok {
		prev = b
	}

	name, notes, deleted := t.Name, t.Notes, t.Deleted
	delta := &protocol.EntityDelta{}
	if prev == nil || prev.Name != name {
		delta.Name = &name
	}
	if prev == nil || prev.Notes != notes {
		delta.Notes = &notes
	}
	if deleted || (prev != nil && prev.Deleted != deleted) {
		delta.Deleted = &deleted
	}

	return protocol.Action{
		ActionID:    actionID,
		ActionType:  protocol.ActionUpdate,
		ID:          t.GID,
		EntityDelta: delta,
	}
}

func (t *Task) SetContentByRemote(e protocol.Entity) error {
	if e.Type != protocol.TypeTask {
		return fmt.Errorf("entity %s is a %s, not a task", e.ID, e.Type)
	}
	t.GID = e.ID
	t.Name = e.Name
	t.Notes = e.Notes
	t.LastModified = e.LastModified
	t.Deleted = e.Deleted
	t.Completed = e.Completed
	t.ListGID = e.ListID
	t.PriorSiblingGID = e.PriorSiblingID
	t.Index = e.Index
	return nil
}

func (t *Task) SetContentByLocal(c model.LocalContent) error {
	if c.Note.Type != nil && *c.Note.Type != model.TypeNote {
		return fmt.Errorf("local row of type %d is not a note", *c.Note.Type)
	}

	t.Name, t.Notes = "", ""
	if len(c.Data) == 0 {
		return nil
	}

	d := c.Data[0]
	if d.Content != nil {
		t.Name = *d.Content
	}

	p := payload{MimeType: model.MimeTextNote}
	if d.MimeType != nil {
		p.MimeType = *d.MimeType
	}
	if d.Data1 != nil {
		p.Data1 = *d.Data1
	}
	if d.Data3 != nil {
		p.Data3 = *d.Data3
	}
	if p.MimeType != model.MimeTextNote || p.Data1 != 0 || p.Data3 != "" {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		t.Notes = string(data)
	}
	return nil
}

func (t *Task) LocalContent() (model.LocalContent, error) {
	content := t.Name
	p := payload{MimeType: model.MimeTextNote}
	if t.Notes != "" {
		if err := json.Unmarshal([]byte(t.Notes), &p); err != nil || p.MimeType == "" {
			// Free text typed on the remote side; keep it with the body.
			p = payload{MimeType: model.MimeTextNote}
			content = t.Name + "\n\n" + t.Notes
		}
	}

	return model.LocalContent{
		Note: model.NoteJSON{Type: model.Ptr(model.TypeNote)},
		Data: []model.DataJSON{{
			MimeType: model.Ptr(p.MimeType),
			Content:  model.Ptr(content),
			Data1:    model.Ptr(p.Data1),
			Data3:    model.Ptr(p.Data3),
		}},
	}, nil
}

func (t *Task) SyncAction(local *LocalRow) SyncAction {
	return Decide(local, t)
}
