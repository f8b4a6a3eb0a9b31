package node

import (
	"encoding/json"
	"fmt"

	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/protocol"
)

// MetaData is the hidden task, stored in the metadata list, that records
// which remote list a local folder is bound to. It only ever originates from
// remote state or from NewMetaData; the local-row paths of Node panic.
type MetaData struct {
	Header
	Notes   string
	ListGID string // the metadata list holding this record

	RelatedGID string // remote list the folder is bound to
	FolderID   int64
	FolderName string

	parseErr error
}

type metaFolder struct {
	ID      int64  `json:"id"`
	Snippet string `json:"snippet,omitempty"`
}

type metaNotes struct {
	GID  string     `json:"meta_gid"`
	Note metaFolder `json:"meta_note"`
}

// NewMetaData binds folder to the remote list relatedGID
func NewMetaData(relatedGID string, folder *model.Note, metaListGID string) *MetaData {
	m := &MetaData{
		ListGID:    metaListGID,
		RelatedGID: relatedGID,
		FolderID:   folder.ID,
		FolderName: folder.Snippet,
	}
	m.Name = protocol.MetaNoteName
	m.Notes = m.encode()
	return m
}

func (m *MetaData) encode() string {
	data, _ := json.Marshal(metaNotes{
		GID:  m.RelatedGID,
		Note: metaFolder{ID: m.FolderID, Snippet: m.FolderName},
	})
	return string(data)
}

// Valid reports whether the notes payload named a related list
func (m *MetaData) Valid() bool {
	return m.parseErr == nil && m.RelatedGID != ""
}

// ParseErr returns the error from decoding the notes payload, if any
func (m *MetaData) ParseErr() error {
	return m.parseErr
}

func (m *MetaData) Kind() Kind { return KindMeta }

func (m *MetaData) CreateAction(actionID int) protocol.Action {
	name, notes := m.Name, m.Notes
	index := 0
	return protocol.Action{
		ActionID:   actionID,
		ActionType: protocol.ActionCreate,
		EntityDelta: &protocol.EntityDelta{
			Name:       &name,
			Notes:      &notes,
			EntityType: protocol.TypeTask,
			CreatorID:  protocol.CreatorNull,
		},
		Index:          &index,
		ParentID:       m.ListGID,
		DestParentType: protocol.TypeGroup,
		ListID:         m.ListGID,
	}
}

func (m *MetaData) UpdateAction(actionID int, base Node) protocol.Action {
	var prev *MetaData
	if b, ok := base.(*MetaData); ok {
		prev = b
	}

	notes, deleted := m.Notes, m.Deleted
	delta := &protocol.EntityDelta{}
	if prev == nil || prev.Notes != notes {
		delta.Notes = &notes
	}
	if deleted || (prev != nil && prev.Deleted != deleted) {
		delta.Deleted = &deleted
	}

	return protocol.Action{
		ActionID:    actionID,
		ActionType:  protocol.ActionUpdate,
		ID:          m.GID,
		EntityDelta: delta,
	}
}

// SetContentByRemote loads the record. A notes payload that does not parse
// leaves RelatedGID empty; see ParseErr.
func (m *MetaData) SetContentByRemote(e protocol.Entity) error {
	if e.Type != protocol.TypeTask {
		return fmt.Errorf("entity %s is a %s, not a metadata task", e.ID, e.Type)
	}
	m.GID = e.ID
	m.Name = e.Name
	m.Notes = e.Notes
	m.LastModified = e.LastModified
	m.Deleted = e.Deleted
	m.ListGID = e.ListID

	m.RelatedGID, m.FolderID, m.FolderName, m.parseErr = "", 0, "", nil
	var mn metaNotes
	if err := json.Unmarshal([]byte(e.Notes), &mn); err != nil {
		m.parseErr = fmt.Errorf("metadata %s: %w", e.ID, err)
		return nil
	}
	m.RelatedGID = mn.GID
	m.FolderID = mn.Note.ID
	m.FolderName = mn.Note.Snippet
	return nil
}

func (m *MetaData) SetContentByLocal(model.LocalContent) error {
	panic("node: MetaData cannot be set from local content")
}

func (m *MetaData) LocalContent() (model.LocalContent, error) {
	panic("node: MetaData has no local content")
}

func (m *MetaData) SyncAction(*LocalRow) SyncAction {
	panic("node: MetaData does not take part in sync decisions")
}
