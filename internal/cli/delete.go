package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [note-id]",
	Aliases: []string{"rm"},
	Short:   "Move a note to the trash",
	Long: `Move a note to the trash. The deletion reaches the server on the next sync.

Examples:
  notes delete 12
  notes rm 12 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var (
	deleteYes  bool
	deleteSync bool
)

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
	deleteCmd.Flags().BoolVarP(&deleteSync, "sync", "s", false, "Sync with the server after deleting")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseNoteID(args[0])
	if err != nil {
		return err
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	n, err := database.GetNote(ctx, id)
	if err != nil {
		return fmt.Errorf("note not found: %d", id)
	}
	if n.IsFolder() {
		return fmt.Errorf("%d is a folder, use 'notes folder rm'", id)
	}

	out := cmd.OutOrStdout()
	if cfg.ConfirmDelete && !deleteYes {
		fmt.Fprintf(out, "About to delete: %q (ID: %d)\n", n.Snippet, n.ID)
		fmt.Fprint(out, "Are you sure? [y/N]: ")
		var confirm string
		fmt.Fscanln(cmd.InOrStdin(), &confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := database.TrashNote(ctx, id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	fmt.Fprintf(out, "🗑️  Deleted: %q\n", n.Snippet)
	MaybeSyncAfterChange(ctx, database, out, deleteSync)
	return nil
}
