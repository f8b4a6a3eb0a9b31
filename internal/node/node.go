// Package node models the entities that take part in a sync: tasks, task
// lists and the hidden metadata records that bind folders to lists.
package node

import (
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/protocol"
)

// SyncAction is what a sync pass must do for one node
type SyncAction int

const (
	ActionNone SyncAction = iota
	ActionAddRemote
	ActionAddLocal
	ActionDelRemote
	ActionDelLocal
	ActionUpdateRemote
	ActionUpdateLocal
	ActionUpdateConflict
	ActionError
)

func (a SyncAction) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionAddRemote:
		return "ADD_REMOTE"
	case ActionAddLocal:
		return "ADD_LOCAL"
	case ActionDelRemote:
		return "DEL_REMOTE"
	case ActionDelLocal:
		return "DEL_LOCAL"
	case ActionUpdateRemote:
		return "UPDATE_REMOTE"
	case ActionUpdateLocal:
		return "UPDATE_LOCAL"
	case ActionUpdateConflict:
		return "UPDATE_CONFLICT"
	case ActionError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Kind tells the node variants apart
type Kind int

const (
	KindTask Kind = iota
	KindTaskList
	KindMeta
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindTaskList:
		return "list"
	case KindMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Header holds the fields every node carries
type Header struct {
	GID          string // empty until the remote side has seen the node
	Name         string
	LastModified int64 // ms, 0 when never set
	Deleted      bool
}

func (h *Header) header() *Header { return h }

// Node is implemented by *Task, *TaskList and *MetaData only.
type Node interface {
	header() *Header
	Kind() Kind

	// CreateAction builds the action that creates this node remotely
	CreateAction(actionID int) protocol.Action
	// UpdateAction builds an update carrying the fields that differ from
	// base, or every field when base is nil
	UpdateAction(actionID int, base Node) protocol.Action
	// SetContentByRemote loads the node from a remote entity
	SetContentByRemote(e protocol.Entity) error
	// SetContentByLocal loads the node from a local row
	SetContentByLocal(c model.LocalContent) error
	// LocalContent renders the node as a local row
	LocalContent() (model.LocalContent, error)
	// SyncAction decides what to do given the matching local row, which may be nil
	SyncAction(local *LocalRow) SyncAction
}

// HeaderOf returns the shared fields of n
func HeaderOf(n Node) *Header {
	return n.header()
}

// FromEntity builds the node variant matching e. Tasks inside the metadata
// list become MetaData nodes.
func FromEntity(e protocol.Entity, metaListGID string) (Node, error) {
	var n Node
	switch {
	case e.Type == protocol.TypeGroup:
		n = &TaskList{}
	case metaListGID != "" && e.ListID == metaListGID:
		n = &MetaData{}
	default:
		n = &Task{}
	}
	if err := n.SetContentByRemote(e); err != nil {
		return nil, err
	}
	return n, nil
}
