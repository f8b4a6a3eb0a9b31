package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit [note-id] [text]",
	Short: "Replace the text of a note",
	Long: `Replace the text of a note.

Examples:
  notes edit 12 "Buy groceries and bread"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEdit,
}

var moveCmd = &cobra.Command{
	Use:     "move [note-id] [folder]",
	Aliases: []string{"mv"},
	Short:   "Move a note to another folder",
	Long: `Move a note to another folder. Use "notes" for the top level.

Examples:
  notes mv 12 work
  notes mv 12 notes`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

var (
	editSync bool
	moveSync bool
)

func init() {
	editCmd.Flags().BoolVarP(&editSync, "sync", "s", false, "Sync with the server after editing")
	moveCmd.Flags().BoolVarP(&moveSync, "sync", "s", false, "Sync with the server after moving")
}

func parseNoteID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id: %s", arg)
	}
	return id, nil
}

func runEdit(cmd *cobra.Command, args []string) error {
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
	text := strings.Join(args[1:], " ")
	if err := database.EditNote(ctx, id, text); err != nil {
		return fmt.Errorf("failed to edit note %d: %w", id, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Updated %d: %q\n", id, text)
	MaybeSyncAfterChange(ctx, database, out, editSync)
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
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
	folder, err := resolveFolder(ctx, database, args[1])
	if err != nil {
		return err
	}
	if err := database.MoveNote(ctx, id, folder.ID); err != nil {
		return fmt.Errorf("failed to move note %d: %w", id, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Moved %d to [%s]\n", id, folderName(folder))
	MaybeSyncAfterChange(ctx, database, out, moveSync)
	return nil
}
