package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Session is what the server returns on login and register
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Auth performs the account calls that happen outside a sync session
type Auth struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuth creates an account client for the server at baseURL
func NewAuth(baseURL string, timeout time.Duration) *Auth {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Auth{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Register creates a new account
func (a *Auth) Register(ctx context.Context, username, email, password string) (Session, error) {
	return a.post(ctx, "register", "/api/v1/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

// Login authenticates with username and password
func (a *Auth) Login(ctx context.Context, username, password string) (Session, error) {
	return a.post(ctx, "login", "/api/v1/login", map[string]string{
		"username": username,
		"password": password,
	})
}

// Logout revokes token on the server
func (a *Auth) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout failed: %s", errorMessage(respBody))
	}
	return nil
}

func (a *Auth) post(ctx context.Context, op, path string, payload map[string]string) (Session, error) {
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return Session{}, fmt.Errorf("%s failed: %s", op, errorMessage(respBody))
	}

	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Session{}, err
	}
	if s.Token == "" {
		return Session{}, fmt.Errorf("%s failed: no token in response", op)
	}
	return s, nil
}
