package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a new note",
	Long: `Add a new note to a folder.

Examples:
  notes add "Buy groceries"
  notes add "Sprint retro" --folder work
  notes add "Call back" -f work --sync`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addFolder string
	addSync   bool
)

func init() {
	addCmd.Flags().StringVarP(&addFolder, "folder", "f", "", "Folder to add the note to")
	addCmd.Flags().BoolVarP(&addSync, "sync", "s", false, "Sync with the server after adding")
}

func runAdd(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	text := strings.Join(args, " ")

	// Use context if no folder specified
	name := addFolder
	if !cmd.Flags().Changed("folder") {
		name = GetCurrentContext()
	}
	folder, err := resolveFolder(ctx, database, name)
	if err != nil {
		return err
	}

	id, err := database.CreateNote(ctx, folder.ID, text)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Added to [%s]: %q (id: %d)\n", folderName(folder), text, id)
	MaybeSyncAfterChange(ctx, database, out, addSync)
	return nil
}
