package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Credentials is the session stored in ~/.ironnotes/sync.json
type Credentials struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`

	path string
}

// DefaultCredentialsPath returns ~/.ironnotes/sync.json
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ironnotes", "sync.json"), nil
}

// LoadCredentials reads the credentials file at path. A missing file yields
// empty credentials pointing at defaultServer.
func LoadCredentials(path, defaultServer string) (*Credentials, error) {
	c := &Credentials{ServerURL: defaultServer, path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	if c.ServerURL == "" {
		c.ServerURL = defaultServer
	}
	return c, nil
}

// Save writes the credentials back with owner-only permissions
func (c *Credentials) Save() error {
	if c.path == "" {
		return fmt.Errorf("credentials have no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// Path returns the file the credentials are stored in
func (c *Credentials) Path() string {
	return c.path
}

// IsLoggedIn returns true if a session token is present
func (c *Credentials) IsLoggedIn() bool {
	return c.Token != ""
}

// SetSession stores a session returned by Login or Register
func (c *Credentials) SetSession(s Session, username string) {
	c.Token = s.Token
	c.UserID = s.UserID
	c.Username = username
}

// Clear drops the session but keeps the server
func (c *Credentials) Clear() {
	c.Token = ""
	c.UserID = ""
	c.Username = ""
}
