package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/remote"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long:  `Manage authentication with the sync server.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the sync server",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from the sync server",
	RunE:  runLogout,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account on the sync server",
	RunE:  runRegister,
}

func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(registerCmd)

	loginCmd.Flags().String("server", "", "Server to log in to (defaults to the configured server)")
	registerCmd.Flags().String("server", "", "Server to register with (defaults to the configured server)")
}

// prompter reads answers from stdin. Passwords are read without echo when
// stdin is a terminal.
type prompter struct {
	raw io.Reader
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	raw := cmd.InOrStdin()
	return &prompter{raw: raw, in: bufio.NewReader(raw), out: cmd.OutOrStdout()}
}

func (p *prompter) line(label string) string {
	fmt.Fprint(p.out, label)
	s, _ := p.in.ReadString('\n')
	return strings.TrimSpace(s)
}

func (p *prompter) secret(label string) string {
	f, ok := p.raw.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.line(label)
	}
	fd := int(f.Fd())
	fmt.Fprint(p.out, label)
	b, _ := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	return string(b)
}

// authTarget loads the stored credentials and applies a --server override
func authTarget(cmd *cobra.Command) (*remote.Credentials, error) {
	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		creds.ServerURL = server
	}
	return creds, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	creds, err := authTarget(cmd)
	if err != nil {
		return err
	}

	p := newPrompter(cmd)
	username := p.line("Username: ")
	password := p.secret("Password: ")
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🔄 Logging in to %s...\n", creds.ServerURL)
	session, err := remote.NewAuth(creds.ServerURL, cfg.Sync.Timeout).Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}

	creds.SetSession(session, username)
	if err := creds.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	logger.Info("Logged in", logger.F("user", username), logger.F("server", creds.ServerURL))

	fmt.Fprintln(out, "✅ Logged in successfully!")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !creds.IsLoggedIn() {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}

	fmt.Fprintln(out, "🔄 Logging out...")
	if err := remote.NewAuth(creds.ServerURL, cfg.Sync.Timeout).Logout(cmd.Context(), creds.Token); err != nil {
		// the local session is dropped either way
		logger.Warn("Server logout failed", logger.F("error", err))
		fmt.Fprintf(out, "⚠️  %v\n", err)
	}

	creds.Clear()
	if err := creds.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(out, "✅ Logged out successfully.")
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	creds, err := authTarget(cmd)
	if err != nil {
		return err
	}

	p := newPrompter(cmd)
	username := p.line("Username: ")
	email := p.line("Email: ")
	password := p.secret("Password: ")
	confirm := p.secret("Confirm Password: ")

	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔄 Creating account...")
	session, err := remote.NewAuth(creds.ServerURL, cfg.Sync.Timeout).Register(cmd.Context(), username, email, password)
	if err != nil {
		return err
	}

	creds.SetSession(session, username)
	if err := creds.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(out, "✅ Account created and logged in!")
	return nil
}
