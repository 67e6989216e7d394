// Package backend is the session client's view of the REST collaborator:
// accounts, rooms and chat history.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"liveclass/pkg/types"
)

var ErrNoBaseURL = errors.New("backend base URL is required")

// APIError is a non-2xx response. Detail is the server's explanation when
// it sent one.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client calls the backend on behalf of one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient targets baseURL. token may be empty until Register is called.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("backend"),
	}, nil
}

func (c *Client) Token() string {
	return c.token
}

type registerRequest struct {
	Username string     `json:"username"`
	UserType types.Role `json:"user_type"`
}

type registerResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

// Register creates an account and adopts its token for later calls.
func (c *Client) Register(ctx context.Context, username string, role types.Role) (*types.User, error) {
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register/", registerRequest{username, role}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return resp.User, nil
}

// Me returns the account behind the token.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var user types.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me/", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]types.Room, error) {
	var rooms []types.Room
	if err := c.do(ctx, http.MethodGet, "/api/chatrooms/", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

type createRoomRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

// CreateRoom creates a room with the caller and the named participants.
func (c *Client) CreateRoom(ctx context.Context, name string, participants []string) (*types.Room, error) {
	if participants == nil {
		participants = []string{}
	}
	var room types.Room
	if err := c.do(ctx, http.MethodPost, "/api/chatrooms/", createRoomRequest{name, participants}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID string) (*types.Room, error) {
	var room types.Room
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "join"), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Messages returns the room's recent chat history, oldest first.
func (c *Client) Messages(ctx context.Context, roomID string) ([]types.ChatMessage, error) {
	var msgs []types.ChatMessage
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "messages"), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

type sendRequest struct {
	Content string `json:"content"`
}

// PostMessage stores text in the room and returns the stored message.
func (c *Client) PostMessage(ctx context.Context, roomID, text string) (*types.ChatMessage, error) {
	var msg types.ChatMessage
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "send"), sendRequest{text}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func roomPath(roomID, action string) string {
	return "/api/chatrooms/" + url.PathEscape(roomID) + "/" + action + "/"
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&detail); err == nil {
			apiErr.Detail = detail.Detail
		}
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", apiErr.Detail))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
