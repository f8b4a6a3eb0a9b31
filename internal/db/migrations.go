package db

import "fmt"

// migrate runs all database migrations
func (db *DB) migrate() error {
	migrations := []string{
		migrationCreateNote,
		migrationCreateData,
		migrationCreateSyncState,
		migrationFolderCountTriggers,
		migrationSnippetTriggers,
		migrationCascadeTriggers,
		migrationInsertSystemFolders,
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

const migrationCreateNote = `
CREATE TABLE IF NOT EXISTS note (
    id INTEGER PRIMARY KEY,
    parent_id INTEGER NOT NULL DEFAULT 0,
    alert_date INTEGER NOT NULL DEFAULT 0,
    bg_color_id INTEGER NOT NULL DEFAULT 0,
    created_date INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000),
    modified_date INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000),
    notes_count INTEGER NOT NULL DEFAULT 0,
    snippet TEXT NOT NULL DEFAULT '',
    type INTEGER NOT NULL DEFAULT 0,
    sync_id INTEGER NOT NULL DEFAULT 0,
    local_modified INTEGER NOT NULL DEFAULT 0,
    origin_parent_id INTEGER NOT NULL DEFAULT 0,
    gtask_id TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_note_parent ON note(parent_id);
CREATE INDEX IF NOT EXISTS idx_note_gtask ON note(gtask_id);
`

const migrationCreateData = `
CREATE TABLE IF NOT EXISTS data (
    id INTEGER PRIMARY KEY,
    mime_type TEXT NOT NULL,
    note_id INTEGER NOT NULL DEFAULT 0,
    created_date INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000),
    modified_date INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000),
    content TEXT NOT NULL DEFAULT '',
    data1 INTEGER NOT NULL DEFAULT 0,
    data2 INTEGER NOT NULL DEFAULT 0,
    data3 TEXT NOT NULL DEFAULT '',
    data4 TEXT NOT NULL DEFAULT '',
    data5 TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_data_note ON data(note_id);
`

const migrationCreateSyncState = `
CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

const migrationFolderCountTriggers = `
CREATE TRIGGER IF NOT EXISTS increase_folder_count_on_insert
AFTER INSERT ON note
BEGIN
    UPDATE note SET notes_count = notes_count + 1 WHERE id = new.parent_id;
END;

CREATE TRIGGER IF NOT EXISTS increase_folder_count_on_update
AFTER UPDATE OF parent_id ON note
WHEN new.parent_id <> old.parent_id
BEGIN
    UPDATE note SET notes_count = notes_count + 1 WHERE id = new.parent_id;
END;

CREATE TRIGGER IF NOT EXISTS decrease_folder_count_on_update
AFTER UPDATE OF parent_id ON note
WHEN new.parent_id <> old.parent_id
BEGIN
    UPDATE note SET notes_count = notes_count - 1
    WHERE id = old.parent_id AND notes_count > 0;
END;

CREATE TRIGGER IF NOT EXISTS decrease_folder_count_on_delete
AFTER DELETE ON note
BEGIN
    UPDATE note SET notes_count = notes_count - 1
    WHERE id = old.parent_id AND notes_count > 0;
END;
`

const migrationSnippetTriggers = `
CREATE TRIGGER IF NOT EXISTS update_note_content_on_insert
AFTER INSERT ON data
WHEN new.mime_type IN ('vnd.android.cursor.item/text_note', 'vnd.android.cursor.item/call_note')
BEGIN
    UPDATE note SET snippet = new.content WHERE id = new.note_id;
END;

CREATE TRIGGER IF NOT EXISTS update_note_content_on_update
AFTER UPDATE ON data
WHEN old.mime_type IN ('vnd.android.cursor.item/text_note', 'vnd.android.cursor.item/call_note')
BEGIN
    UPDATE note SET snippet = new.content WHERE id = new.note_id;
END;

CREATE TRIGGER IF NOT EXISTS update_note_content_on_delete
AFTER DELETE ON data
WHEN old.mime_type IN ('vnd.android.cursor.item/text_note', 'vnd.android.cursor.item/call_note')
BEGIN
    UPDATE note SET snippet = '' WHERE id = old.note_id;
END;
`

const migrationCascadeTriggers = `
CREATE TRIGGER IF NOT EXISTS delete_data_on_delete
AFTER DELETE ON note
BEGIN
    DELETE FROM data WHERE note_id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS folder_delete_notes_on_delete
AFTER DELETE ON note
BEGIN
    DELETE FROM note WHERE parent_id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS folder_move_notes_on_trash
AFTER UPDATE OF parent_id ON note
WHEN new.parent_id = -3 AND old.parent_id <> -3
BEGIN
    UPDATE note SET parent_id = -3 WHERE parent_id = old.id;
END;
`

// System folders carry fixed ids so both sides of a sync agree on them.
const migrationInsertSystemFolders = `
INSERT OR IGNORE INTO note (id, parent_id, type, snippet) VALUES (0, 0, 2, '');
INSERT OR IGNORE INTO note (id, parent_id, type, snippet) VALUES (-1, 0, 2, '');
INSERT OR IGNORE INTO note (id, parent_id, type, snippet) VALUES (-2, 0, 2, '');
INSERT OR IGNORE INTO note (id, parent_id, type, snippet) VALUES (-3, 0, 2, '');
`
