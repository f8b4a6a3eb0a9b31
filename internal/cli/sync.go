package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/sync"
	"github.com/existflow/ironnotes/internal/syncerr"
	"github.com/existflow/ironnotes/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync notes with the server",
	Long: `Sync your notes across devices.

Commands:
  notes sync              # Sync now
  notes sync --plain      # Sync without the progress view
  notes sync status       # Show sync status
  notes sync watch        # Sync on every local change until interrupted
  notes sync config       # Show or change sync settings`,
	RunE: runSync,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE:  runSyncStatus,
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync on local changes and on a poll interval",
	RunE:  runSyncWatch,
}

var syncConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure sync settings",
	RunE:  runSyncConfig,
}

var syncPlain bool

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncWatchCmd)
	syncCmd.AddCommand(syncConfigCmd)

	syncCmd.Flags().BoolVar(&syncPlain, "plain", false, "Print progress lines instead of the progress view")

	syncConfigCmd.Flags().String("server", "", "Set server URL")
	syncConfigCmd.Flags().Int("batch-size", 0, "Actions sent per request")
	syncConfigCmd.Flags().Duration("poll-interval", 0, "Background poll interval (0 disables)")
	syncConfigCmd.Flags().Duration("debounce", 0, "Wait after the last change before syncing")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func requireManager() (*sync.Manager, func(), error) {
	database, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	manager, err := newManager(database)
	if err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	if manager == nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("not logged in, use 'notes auth login' first")
	}
	return manager, func() { _ = database.Close() }, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	manager, closeDB, err := requireManager()
	if err != nil {
		return err
	}
	defer closeDB()

	out := cmd.OutOrStdout()
	interactive := !syncPlain && term.IsTerminal(int(os.Stdout.Fd()))

	var o sync.Outcome
	if interactive {
		o, err = tui.RunSync(cmd.Context(), manager)
		if err != nil {
			return err
		}
	} else {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		fmt.Fprintln(out, "🔄 Synchronizing...")
		o = runPlainSync(ctx, manager, out)
	}

	printOutcome(out, o)
	switch o.State {
	case sync.StateSuccess, sync.StateCancelled:
		return nil
	default:
		return fmt.Errorf("sync %s: %w", o.State, o.Err)
	}
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server:     %s\n", creds.ServerURL)
	if !creds.IsLoggedIn() {
		fmt.Fprintln(out, "Status:     Not logged in")
		return nil
	}
	fmt.Fprintf(out, "User:       %s (%s)\n", creds.Username, creds.UserID)
	fmt.Fprintln(out, "Status:     ✓ Logged in")

	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	account, err := database.GetState(ctx, sync.StateAccount)
	if err != nil {
		return err
	}
	point, err := database.GetState(ctx, sync.StateSyncPoint)
	if err != nil {
		return err
	}
	if point == "" {
		fmt.Fprintln(out, "Last Sync:  never")
		return nil
	}
	fmt.Fprintf(out, "Account:    %s\n", account)
	fmt.Fprintf(out, "Sync Point: %s\n", point)
	return nil
}

func runSyncWatch(cmd *cobra.Command, args []string) error {
	manager, closeDB, err := requireManager()
	if err != nil {
		return err
	}
	defer closeDB()

	out := cmd.OutOrStdout()
	auto := sync.NewAutoSync(manager, sync.AutoOptions{
		Debounce:     cfg.Sync.Debounce,
		PollInterval: cfg.Sync.PollInterval,
	})
	auto.SetOnSync(func(o sync.Outcome) {
		if errors.Is(o.Err, syncerr.ErrInProgress) {
			return
		}
		fmt.Fprintf(out, "[%s] ", time.Now().Format("15:04:05"))
		printOutcome(out, o)
	})

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if err := auto.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer auto.Stop()

	fmt.Fprintf(out, "👀 Watching %s (Ctrl+C to stop)\n", cfg.DBPath)
	printOutcome(out, auto.SyncNow(ctx))

	<-ctx.Done()
	logger.Info("Sync watch stopped")
	fmt.Fprintln(out, "Stopped.")
	return nil
}

func runSyncConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	changed := false

	if cmd.Flags().Changed("server") {
		server, _ := cmd.Flags().GetString("server")
		if server == "" {
			return fmt.Errorf("server URL cannot be empty")
		}
		creds, err := loadCredentials()
		if err != nil {
			return err
		}
		if creds.ServerURL != server && creds.IsLoggedIn() {
			creds.Clear()
			fmt.Fprintln(out, "⚠️  Session dropped, log in to the new server")
		}
		creds.ServerURL = server
		if err := creds.Save(); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
		cfg.Sync.ServerURL = server
		changed = true
	}
	if cmd.Flags().Changed("batch-size") {
		n, _ := cmd.Flags().GetInt("batch-size")
		if n <= 0 {
			return fmt.Errorf("batch size must be positive")
		}
		cfg.Sync.BatchSize = n
		changed = true
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.Sync.PollInterval, _ = cmd.Flags().GetDuration("poll-interval")
		changed = true
	}
	if cmd.Flags().Changed("debounce") {
		cfg.Sync.Debounce, _ = cmd.Flags().GetDuration("debounce")
		changed = true
	}

	if changed {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintln(out, "✓ Sync settings saved")
	}

	server := cfg.Sync.ServerURL
	if creds, err := loadCredentials(); err == nil {
		server = creds.ServerURL
	}
	fmt.Fprintf(out, "Server:        %s\n", server)
	fmt.Fprintf(out, "Batch size:    %d\n", cfg.Sync.BatchSize)
	fmt.Fprintf(out, "Timeout:       %s\n", cfg.Sync.Timeout)
	fmt.Fprintf(out, "Poll interval: %s\n", cfg.Sync.PollInterval)
	fmt.Fprintf(out, "Debounce:      %s\n", cfg.Sync.Debounce)
	return nil
}
