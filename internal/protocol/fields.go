// Package protocol implements the batched JSON action protocol spoken with
// the remote task service.
package protocol

// Action types
const (
	ActionCreate = "create"
	ActionGetAll = "get_all"
	ActionMove   = "move"
	ActionUpdate = "update"
)

// Entity types
const (
	TypeGroup = "GROUP"
	TypeTask  = "TASK"
)

// Wire field names
const (
	FieldActionID        = "action_id"
	FieldActionList      = "action_list"
	FieldActionType      = "action_type"
	FieldCreatorID       = "creator_id"
	FieldChildEntity     = "child_entity"
	FieldClientVersion   = "client_version"
	FieldCompleted       = "completed"
	FieldCurrentListID   = "current_list_id"
	FieldDefaultListID   = "default_list_id"
	FieldDeleted         = "deleted"
	FieldDestList        = "dest_list"
	FieldDestParent      = "dest_parent"
	FieldDestParentType  = "dest_parent_type"
	FieldEntityDelta     = "entity_delta"
	FieldEntityType      = "entity_type"
	FieldGetDeleted      = "get_deleted"
	FieldID              = "id"
	FieldIndex           = "index"
	FieldLastModified    = "last_modified"
	FieldLatestSyncPoint = "latest_sync_point"
	FieldListID          = "list_id"
	FieldLists           = "lists"
	FieldName            = "name"
	FieldNewID           = "new_id"
	FieldNotes           = "notes"
	FieldParentID        = "parent_id"
	FieldPriorSiblingID  = "prior_sibling_id"
	FieldResults         = "results"
	FieldSourceList      = "source_list"
	FieldTasks           = "tasks"
	FieldType            = "type"
	FieldUser            = "user"
)

// Reserved names shared with the remote side
const (
	FolderPrefix    = "[MIUI_Notes]"
	FolderDefault   = "Default"
	FolderCallNote  = "Call_Note"
	FolderMeta      = "METADATA"
	MetaHeadGTaskID = "meta_gid"
	MetaHeadNote    = "meta_note"
	MetaHeadData    = "meta_data"
	MetaNoteName    = "[META INFO] DON'T UPDATE AND DELETE"

	// CreatorNull is sent as creator_id on creates
	CreatorNull = "null"
)
