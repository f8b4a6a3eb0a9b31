package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List notes",
	Long: `List notes, optionally filtered by folder.

Notes marked * have local changes that are not yet on the server.

Examples:
  notes list
  notes list --folder work
  notes list --sync`,
	RunE: runList,
}

var (
	listFolder string
	listSync   bool
)

func init() {
	listCmd.Flags().StringVarP(&listFolder, "folder", "f", "", "Filter by folder")
	listCmd.Flags().BoolVarP(&listSync, "sync", "s", false, "Sync with server before listing")
}

func runList(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	MaybeSyncAfterChange(ctx, database, out, listSync)

	var folders []model.Note
	if cmd.Flags().Changed("folder") {
		f, err := resolveFolder(ctx, database, listFolder)
		if err != nil {
			return err
		}
		folders = []model.Note{*f}
	} else {
		root, err := database.GetNote(ctx, model.RootFolderID)
		if err != nil {
			return fmt.Errorf("failed to list folders: %w", err)
		}
		user, err := database.ListFolders(ctx)
		if err != nil {
			return fmt.Errorf("failed to list folders: %w", err)
		}
		folders = append([]model.Note{*root}, user...)
	}

	total := 0
	for i := range folders {
		n, err := printFolder(ctx, out, database, &folders[i])
		if err != nil {
			return err
		}
		total += n
	}
	if total == 0 {
		fmt.Fprintln(out, "No notes found. Add one with: notes add \"Your note\"")
	}
	return nil
}

func printFolder(ctx context.Context, w io.Writer, database *db.DB, f *model.Note) (int, error) {
	children, err := database.ListChildren(ctx, f.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list notes: %w", err)
	}
	var notes []model.Note
	for _, n := range children {
		if n.Type == model.TypeNote {
			notes = append(notes, n)
		}
	}
	if len(notes) == 0 {
		return 0, nil
	}

	fmt.Fprintf(w, "\n📁 %s (%d)\n", folderName(f), len(notes))
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, n := range notes {
		printNote(w, n)
	}
	fmt.Fprintln(w)
	return len(notes), nil
}

func printNote(w io.Writer, n model.Note) {
	marker := " "
	if n.LocalModified {
		marker = "*"
	}

	snippet := strings.ReplaceAll(n.Snippet, "\n", " ")
	if r := []rune(snippet); len(r) > 40 {
		snippet = string(r[:37]) + "..."
	}

	modified := time.UnixMilli(n.ModifiedDate).Format("Jan 2 15:04")
	fmt.Fprintf(w, "  %s %-6d  %-40s  %s\n", marker, n.ID, snippet, modified)
}
