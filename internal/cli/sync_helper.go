package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/remote"
	"github.com/existflow/ironnotes/internal/sync"
)

func openDB() (*db.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open database", logger.F("path", cfg.DBPath), logger.F("error", err))
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

func loadCredentials() (*remote.Credentials, error) {
	path, err := remote.DefaultCredentialsPath()
	if err != nil {
		return nil, err
	}
	return remote.LoadCredentials(path, cfg.Sync.ServerURL)
}

// newManager returns a sync manager for database, or nil when not logged in
func newManager(database *db.DB) (*sync.Manager, error) {
	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}
	if !creds.IsLoggedIn() {
		return nil, nil
	}
	t := remote.NewHTTPTransport(creds.ServerURL, creds.Token, cfg.Sync.Timeout)
	return sync.NewManager(database, t, sync.Options{
		BatchSize: cfg.Sync.BatchSize,
		Server:    creds.ServerURL,
	}), nil
}

// runPlainSync runs one session and prints its progress lines to w
func runPlainSync(ctx context.Context, s sync.Syncer, w io.Writer) sync.Outcome {
	r := sync.NewRunner(s, sync.WithProgress(func(status string) {
		fmt.Fprintf(w, "  %s...\n", status)
	}))
	return r.Run(ctx)
}

func printOutcome(w io.Writer, o sync.Outcome) {
	if o.State != sync.StateSuccess {
		fmt.Fprintf(w, "✗ %s\n", o.Message())
		if o.Err != nil && o.State == sync.StateInternalError {
			fmt.Fprintf(w, "  %v\n", o.Err)
		}
		return
	}
	res := o.Result
	fmt.Fprintf(w, "✓ %s (↑%d ↓%d, %d deleted", o.Message(), res.Uploaded, res.Downloaded, res.Deleted)
	if res.Conflicts > 0 {
		fmt.Fprintf(w, ", %d conflicts", res.Conflicts)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", res.Skipped)
	}
	fmt.Fprintln(w, ")")
}

// MaybeSyncAfterChange syncs after a write when --sync is set and the user
// is logged in
func MaybeSyncAfterChange(ctx context.Context, database *db.DB, w io.Writer, force bool) {
	if !force {
		return
	}
	manager, err := newManager(database)
	if err != nil {
		fmt.Fprintf(w, "⚠️  Sync unavailable: %v\n", err)
		return
	}
	if manager == nil {
		fmt.Fprintln(w, "⚠️  Not logged in, skipping sync")
		return
	}
	fmt.Fprintln(w, "🔄 Syncing changes...")
	printOutcome(w, runPlainSync(ctx, manager, w))
}

// resolveFolder finds a folder by name. An empty name or "notes" is the root.
func resolveFolder(ctx context.Context, database *db.DB, name string) (*model.Note, error) {
	if name == "" || name == "notes" || name == "Notes" {
		return database.GetNote(ctx, model.RootFolderID)
	}
	f, err := database.FolderByName(ctx, name)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("folder not found: %s", name)
		}
		return nil, err
	}
	return f, nil
}

func folderName(f *model.Note) string {
	if f.ID == model.RootFolderID {
		return "Notes"
	}
	return f.Snippet
}
