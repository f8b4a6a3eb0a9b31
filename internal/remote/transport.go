// Package remote talks to the remote task service: it authenticates,
// submits action batches and fetches the remote node set.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/protocol"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// ClientVersion is sent with every request
const ClientVersion = 1

// Transport carries requests to the remote service
type Transport interface {
	// Login checks the session and returns the account it belongs to
	Login(ctx context.Context) (protocol.User, error)
	// Post submits one batch of actions
	Post(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HTTPTransport is a Transport over the JSON HTTP API
type HTTPTransport struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the server at baseURL
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

func (t *HTTPTransport) Login(ctx context.Context) (protocol.User, error) {
	if t.token == "" {
		return protocol.User{}, syncerr.Network("login", errors.New("not logged in"))
	}

	body, err := t.do(ctx, "login", http.MethodGet, "/api/v1/me", nil)
	if err != nil {
		return protocol.User{}, err
	}

	var user protocol.User
	if err := json.Unmarshal(body, &user); err != nil {
		return protocol.User{}, syncerr.WrapAction("login", err)
	}
	if user.ID == "" {
		return protocol.User{}, syncerr.Action("login", "response has no user id")
	}
	return user, nil
}

func (t *HTTPTransport) Post(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	body, err := t.do(ctx, "post actions", http.MethodPost, "/api/v1/actions", req)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeResponse(body)
}

func (t *HTTPTransport) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, syncerr.WrapAction(op, err)
		}
		reader = bytes.NewReader(data)
	}

	url := t.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, syncerr.WrapAction(op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	logger.Debug("HTTP Request",
		logger.F("method", method),
		logger.F("url", url),
		logger.F("request_id", requestID))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		logger.Error("HTTP request failed", logger.F("error", err), logger.F("url", url))
		return nil, syncerr.Network(op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncerr.Network(op, err)
	}

	logger.Debug("HTTP Response",
		logger.F("status", resp.StatusCode),
		logger.F("request_id", requestID),
		logger.F("bodySize", len(body)))

	if err := statusError(op, resp.StatusCode, body); err != nil {
		logger.Error("Request failed",
			logger.F("status", resp.StatusCode),
			logger.F("response", string(body)))
		return nil, err
	}
	return body, nil
}

// statusError classifies a non-2xx reply. Authentication and server-side
// failures end the session as network errors; anything else the server
// understood but refused is an action failure.
func statusError(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return syncerr.Network(op, fmt.Errorf("unauthorized: %s", errorMessage(body)))
	case status >= 500:
		return syncerr.Network(op, fmt.Errorf("server error %d: %s", status, errorMessage(body)))
	default:
		return syncerr.Action(op, "status %d: %s", status, errorMessage(body))
	}
}

// errorMessage extracts the "error" field of a JSON error body
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
