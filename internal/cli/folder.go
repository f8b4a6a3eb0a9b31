package cli

import (
	"fmt"
	"strings"

	"github.com/existflow/ironnotes/internal/model"
	"github.com/spf13/cobra"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
	Long:  `Create, list, and remove the folders that organize notes.`,
}

var folderAddCmd = &cobra.Command{
	Use:     "add [name]",
	Aliases: []string{"new"},
	Short:   "Create a new folder",
	Long: `Create a new top-level folder.

Examples:
  notes folder add "Work"`,
	Args: cobra.ExactArgs(1),
	RunE: runFolderAdd,
}

var folderListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all folders",
	RunE:    runFolderList,
}

var folderDeleteCmd = &cobra.Command{
	Use:     "delete [name]",
	Aliases: []string{"rm"},
	Short:   "Move a folder and its notes to the trash",
	Args:    cobra.ExactArgs(1),
	RunE:    runFolderDelete,
}

func init() {
	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderDeleteCmd)
}

func runFolderAdd(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	id, err := database.CreateFolder(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created folder: %s (id: %d)\n", strings.TrimSpace(args[0]), id)
	return nil
}

func runFolderList(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	root, err := database.GetNote(ctx, model.RootFolderID)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	folders, err := database.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	folders = append([]model.Note{*root}, folders...)

	out := cmd.OutOrStdout()
	current := GetCurrentContext()

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %-6s  %-24s  %s\n", "ID", "Name", "Notes")
	fmt.Fprintln(out, strings.Repeat("─", 44))

	total := 0
	for _, f := range folders {
		marker := "  "
		if f.ID != model.RootFolderID && f.Snippet == current {
			marker = "❯ "
		}
		pending := ""
		if f.LocalModified {
			pending = " *"
		}
		total += int(f.NotesCount)
		fmt.Fprintf(out, "%s%-6d  %-24s  %d%s\n", marker, f.ID, folderName(&f), f.NotesCount, pending)
	}

	fmt.Fprintln(out, strings.Repeat("─", 44))
	fmt.Fprintf(out, "  %d folders, %d notes\n\n", len(folders), total)
	return nil
}

func runFolderDelete(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	folder, err := resolveFolder(ctx, database, args[0])
	if err != nil {
		return err
	}
	if folder.ID <= model.RootFolderID {
		return fmt.Errorf("cannot delete the %s folder", folderName(folder))
	}

	if err := database.TrashNote(ctx, folder.ID); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	if GetCurrentContext() == folder.Snippet {
		_ = ClearContext()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Deleted folder: %s\n", folder.Snippet)
	return nil
}
