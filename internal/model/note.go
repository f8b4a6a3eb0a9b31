package model

// Note row types
const (
	TypeNote   = 0
	TypeFolder = 1
	TypeSystem = 2
)

// System folder ids
const (
	RootFolderID       int64 = 0
	TempFolderID       int64 = -1
	CallRecordFolderID int64 = -2
	TrashFolderID      int64 = -3
)

// Data row mime types
const (
	MimeTextNote = "vnd.android.cursor.item/text_note"
	MimeCallNote = "vnd.android.cursor.item/call_note"
)

// Note is a row of the note table. Folders are notes with Type TypeFolder or TypeSystem.
type Note struct {
	ID             int64  `json:"id"`
	ParentID       int64  `json:"parent_id"`
	AlertDate      int64  `json:"alert_date"`
	BgColorID      int64  `json:"bg_color_id"`
	CreatedDate    int64  `json:"created_date"`
	ModifiedDate   int64  `json:"modified_date"`
	NotesCount     int64  `json:"notes_count"`
	Snippet        string `json:"snippet"`
	Type           int    `json:"type"`
	SyncID         int64  `json:"sync_id"`
	LocalModified  bool   `json:"local_modified"`
	OriginParentID int64  `json:"origin_parent_id"`
	GTaskID        string `json:"gtask_id"`
	Version        int64  `json:"version"`
}

// IsFolder reports whether the row is a user or system folder
func (n *Note) IsFolder() bool {
	return n.Type == TypeFolder || n.Type == TypeSystem
}

// InTrash reports whether the row has been moved to the trash folder
func (n *Note) InTrash() bool {
	return n.ParentID == TrashFolderID
}

// Data is a row of the data table, the content attached to a note.
type Data struct {
	ID           int64  `json:"id"`
	MimeType     string `json:"mime_type"`
	NoteID       int64  `json:"note_id"`
	CreatedDate  int64  `json:"created_date"`
	ModifiedDate int64  `json:"modified_date"`
	Content      string `json:"content"`
	Data1        int64  `json:"data1"`
	Data3        string `json:"data3"`
}

// DataJSON is the JSON form of a data row exchanged between the local
// mirror and nodes. Absent fields are nil.
type DataJSON struct {
	ID       *int64  `json:"id,omitempty"`
	MimeType *string `json:"mime_type,omitempty"`
	Content  *string `json:"content,omitempty"`
	Data1    *int64  `json:"data1,omitempty"`
	Data3    *string `json:"data3,omitempty"`
}

// NoteJSON is the JSON form of the note-level fields of a local row.
type NoteJSON struct {
	ID           *int64  `json:"id,omitempty"`
	Type         *int    `json:"type,omitempty"`
	ParentID     *int64  `json:"parent_id,omitempty"`
	Snippet      *string `json:"snippet,omitempty"`
	ModifiedDate *int64  `json:"modified_date,omitempty"`
	AlertDate    *int64  `json:"alert_date,omitempty"`
	BgColorID    *int64  `json:"bg_color_id,omitempty"`
}

// LocalContent is a local row together with its data rows.
type LocalContent struct {
	Note NoteJSON   `json:"note"`
	Data []DataJSON `json:"data,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
