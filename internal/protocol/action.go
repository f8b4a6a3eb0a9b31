package protocol

import "fmt"

// EntityDelta holds the entity fields carried by create and update actions.
// Nil fields are left unchanged by the remote side.
type EntityDelta struct {
	Name       *string `json:"name,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	Completed  *bool   `json:"completed,omitempty"`
	Deleted    *bool   `json:"deleted,omitempty"`
	EntityType string  `json:"entity_type,omitempty"`
	CreatorID  string  `json:"creator_id,omitempty"`
}

// Empty reports whether the delta changes nothing
func (d *EntityDelta) Empty() bool {
	return d == nil || (d.Name == nil && d.Notes == nil && d.Completed == nil && d.Deleted == nil)
}

// Action is one operation in a batch
type Action struct {
	ActionID        int          `json:"action_id"`
	ActionType      string       `json:"action_type"`
	EntityDelta     *EntityDelta `json:"entity_delta,omitempty"`
	ID              string       `json:"id,omitempty"`
	Index           *int         `json:"index,omitempty"`
	ParentID        string       `json:"parent_id,omitempty"`
	DestParentType  string       `json:"dest_parent_type,omitempty"`
	ListID          string       `json:"list_id,omitempty"`
	PriorSiblingID  string       `json:"prior_sibling_id,omitempty"`
	SourceList      string       `json:"source_list,omitempty"`
	DestParent      string       `json:"dest_parent,omitempty"`
	DestList        string       `json:"dest_list,omitempty"`
	GetDeleted      bool         `json:"get_deleted,omitempty"`
	LatestSyncPoint int64        `json:"latest_sync_point,omitempty"`
}

// Validate checks the fields each action type requires
func (a *Action) Validate() error {
	switch a.ActionType {
	case ActionCreate:
		if a.EntityDelta == nil {
			return fmt.Errorf("action %d: create without %s", a.ActionID, FieldEntityDelta)
		}
		switch a.EntityDelta.EntityType {
		case TypeGroup:
		case TypeTask:
			if a.ListID == "" {
				return fmt.Errorf("action %d: task create without %s", a.ActionID, FieldListID)
			}
		default:
			return fmt.Errorf("action %d: unknown %s %q", a.ActionID, FieldEntityType, a.EntityDelta.EntityType)
		}
	case ActionUpdate:
		if a.ID == "" {
			return fmt.Errorf("action %d: update without %s", a.ActionID, FieldID)
		}
	case ActionMove:
		if a.ID == "" || a.SourceList == "" || a.DestList == "" {
			return fmt.Errorf("action %d: move needs %s, %s and %s", a.ActionID, FieldID, FieldSourceList, FieldDestList)
		}
	case ActionGetAll:
	default:
		return fmt.Errorf("action %d: unknown %s %q", a.ActionID, FieldActionType, a.ActionType)
	}
	return nil
}

// Mutating reports whether the action changes remote state
func (a *Action) Mutating() bool {
	return a.ActionType != ActionGetAll
}

// Request is the envelope posted to the remote service
type Request struct {
	ActionList    []Action `json:"action_list"`
	ClientVersion int      `json:"client_version"`
}

// NewRequest creates an empty request
func NewRequest(clientVersion int) *Request {
	return &Request{ActionList: []Action{}, ClientVersion: clientVersion}
}

// Add appends an action
func (r *Request) Add(a Action) {
	r.ActionList = append(r.ActionList, a)
}

// Len returns the number of queued actions
func (r *Request) Len() int {
	return len(r.ActionList)
}

// Validate checks every action and that action ids are unique
func (r *Request) Validate() error {
	seen := make(map[int]bool, len(r.ActionList))
	for i := range r.ActionList {
		a := &r.ActionList[i]
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.ActionID] {
			return fmt.Errorf("duplicate %s %d", FieldActionID, a.ActionID)
		}
		seen[a.ActionID] = true
	}
	return nil
}

// Sequence hands out sequential action ids, starting at 1
type Sequence struct {
	next int
}

// Next returns the next action id
func (s *Sequence) Next() int {
	s.next++
	return s.next
}

// GetAllAction builds a get_all action. since is the last sync point seen, 0 for a full fetch.
func GetAllAction(actionID int, since int64, getDeleted bool) Action {
	return Action{
		ActionID:        actionID,
		ActionType:      ActionGetAll,
		GetDeleted:      getDeleted,
		LatestSyncPoint: since,
	}
}

// MoveAction builds a move of task id from list src to list dst, placed after priorSibling.
func MoveAction(actionID int, id, src, dst, priorSibling string) Action {
	return Action{
		ActionID:       actionID,
		ActionType:     ActionMove,
		ID:             id,
		SourceList:     src,
		DestParent:     dst,
		DestParentType: TypeGroup,
		DestList:       dst,
		PriorSiblingID: priorSibling,
	}
}
