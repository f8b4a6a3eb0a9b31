package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/existflow/ironnotes/internal/config"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage folder context",
	Long: `Set or view the current folder context.

When a context is set, new notes are added to that folder by default.

Examples:
  notes context              # Show current context
  notes context ls           # List all folders
  notes context set work     # Add new notes to 'work'
  notes context clear        # Add new notes to the top level`,
	RunE: runContextShow,
}

var contextLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List all folders",
	RunE:    runFolderList,
}

var contextSetCmd = &cobra.Command{
	Use:   "set [folder]",
	Short: "Set the current folder context",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextSet,
}

var contextClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the current context",
	RunE:  runContextClear,
}

func init() {
	contextCmd.AddCommand(contextLsCmd)
	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextClearCmd)
}

func contextFilePath() string {
	return filepath.Join(config.Dir(), "context")
}

// GetCurrentContext returns the current folder name (empty means top level)
func GetCurrentContext() string {
	data, err := os.ReadFile(contextFilePath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetContext saves the current context
func SetContext(folder string) error {
	path := contextFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(folder), 0644)
}

// ClearContext removes the context file
func ClearContext() error {
	if err := os.Remove(contextFilePath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func runContextShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	name := GetCurrentContext()
	if name == "" {
		fmt.Fprintln(out, "📥 Current context: Notes (default)")
		return nil
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	folder, err := database.FolderByName(cmd.Context(), name)
	if err != nil {
		fmt.Fprintf(out, "⚠️  Context set to '%s' but folder not found\n", name)
		return nil
	}
	fmt.Fprintf(out, "📁 Current context: %s (%d notes)\n", folder.Snippet, folder.NotesCount)
	return nil
}

func runContextSet(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	folder, err := resolveFolder(cmd.Context(), database, args[0])
	if err != nil {
		return err
	}
	if folder.ID == model.RootFolderID {
		err = ClearContext()
	} else {
		err = SetContext(folder.Snippet)
	}
	if err != nil {
		return fmt.Errorf("failed to set context: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "📁 Switched to: %s\n", folderName(folder))
	return nil
}

func runContextClear(cmd *cobra.Command, args []string) error {
	if err := ClearContext(); err != nil {
		return fmt.Errorf("failed to clear context: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "📥 Context cleared, using Notes")
	return nil
}
