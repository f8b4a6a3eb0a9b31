package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/existflow/ironnotes/internal/syncerr"
)

// Entity is a list or task as the remote service reports it
type Entity struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	Notes          string `json:"notes,omitempty"`
	LastModified   int64  `json:"last_modified"`
	Deleted        bool   `json:"deleted"`
	Completed      bool   `json:"completed,omitempty"`
	ListID         string `json:"list_id,omitempty"`
	ParentID       string `json:"parent_id,omitempty"`
	PriorSiblingID string `json:"prior_sibling_id,omitempty"`
	Index          int    `json:"index,omitempty"`
	CreatorID      string `json:"creator_id,omitempty"`
}

// User is the account the session is bound to
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Result is the outcome of one action
type Result struct {
	ActionID    int     `json:"action_id"`
	NewID       string  `json:"new_id,omitempty"`
	ChildEntity *Entity `json:"child_entity,omitempty"`
}

// Response is the envelope returned for a Request. Lists and tasks stay raw
// so a single malformed entity does not sink the whole response.
type Response struct {
	Results         []Result          `json:"results"`
	Lists           []json.RawMessage `json:"lists,omitempty"`
	Tasks           []json.RawMessage `json:"tasks,omitempty"`
	LatestSyncPoint int64             `json:"latest_sync_point,omitempty"`
	DefaultListID   string            `json:"default_list_id,omitempty"`
	CurrentListID   string            `json:"current_list_id,omitempty"`
	User            *User             `json:"user,omitempty"`
}

// DecodeResponse parses a response body. An undecodable envelope is an action failure.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, syncerr.WrapAction("decode response", err)
	}
	return &r, nil
}

// ResultFor returns the result carrying actionID
func (r *Response) ResultFor(actionID int) (*Result, bool) {
	for i := range r.Results {
		if r.Results[i].ActionID == actionID {
			return &r.Results[i], true
		}
	}
	return nil, false
}

// EntityError describes why a remote entity could not be decoded
type EntityError struct {
	ID     string // may be empty when the id itself is missing
	Field  string
	Reason string
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("entity: field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("entity %s: field %s: %s", e.ID, e.Field, e.Reason)
}

type wireEntity struct {
	ID             *string `json:"id"`
	Type           *string `json:"type"`
	Name           *string `json:"name"`
	Notes          *string `json:"notes"`
	LastModified   *int64  `json:"last_modified"`
	Deleted        *bool   `json:"deleted"`
	Completed      *bool   `json:"completed"`
	ListID         *string `json:"list_id"`
	ParentID       *string `json:"parent_id"`
	PriorSiblingID *string `json:"prior_sibling_id"`
	Index          *int    `json:"index"`
	CreatorID      *string `json:"creator_id"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// DecodeEntity parses one entity. kind is TypeGroup or TypeTask and is used
// when the payload omits its own type. Missing required fields yield an *EntityError.
func DecodeEntity(raw json.RawMessage, kind string) (Entity, error) {
	var w wireEntity
	if err := json.Unmarshal(raw, &w); err != nil {
		return Entity{}, &EntityError{Field: "*", Reason: err.Error()}
	}

	if w.ID == nil || *w.ID == "" {
		return Entity{}, &EntityError{Field: FieldID, Reason: "missing"}
	}
	id := *w.ID

	e := Entity{
		ID:             id,
		Type:           kind,
		Notes:          str(w.Notes),
		ListID:         str(w.ListID),
		ParentID:       str(w.ParentID),
		PriorSiblingID: str(w.PriorSiblingID),
		CreatorID:      str(w.CreatorID),
	}
	if w.Type != nil {
		e.Type = *w.Type
	}
	if e.Type != TypeGroup && e.Type != TypeTask {
		return Entity{}, &EntityError{ID: id, Field: FieldType, Reason: fmt.Sprintf("unknown type %q", e.Type)}
	}
	if kind != "" && e.Type != kind {
		return Entity{}, &EntityError{ID: id, Field: FieldType, Reason: fmt.Sprintf("expected %s, got %s", kind, e.Type)}
	}
	if w.Name == nil {
		return Entity{}, &EntityError{ID: id, Field: FieldName, Reason: "missing"}
	}
	e.Name = *w.Name
	if w.LastModified == nil {
		return Entity{}, &EntityError{ID: id, Field: FieldLastModified, Reason: "missing"}
	}
	e.LastModified = *w.LastModified
	if w.Deleted != nil {
		e.Deleted = *w.Deleted
	}
	if w.Completed != nil {
		e.Completed = *w.Completed
	}
	if w.Index != nil {
		e.Index = *w.Index
	}
	if e.Type == TypeTask && e.ListID == "" && !e.Deleted {
		return Entity{}, &EntityError{ID: id, Field: FieldListID, Reason: "missing"}
	}
	return e, nil
}

// PeekID extracts the id of a raw entity, or "" when there is none
func PeekID(raw json.RawMessage) string {
	var w struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &w) != nil {
		return ""
	}
	return w.ID
}

// RawEntity encodes e for a Response list
func RawEntity(e Entity) json.RawMessage {
	data, _ := json.Marshal(e)
	return data
}
