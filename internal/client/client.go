package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/npezzotti/go-teamsession/internal/types"
)

// ErrNetwork wraps every transport failure so callers can tell it apart
// from a rejected operation.
var ErrNetwork = errors.New("network error")

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

var sessionErrors = []error{
	session.ErrInvalidConfig,
	session.ErrSessionFull,
	session.ErrAlreadyStarted,
	session.ErrNotStarted,
	session.ErrNotHost,
	session.ErrInsufficientParticipants,
	session.ErrSessionClosed,
	session.ErrInvalidCode,
	session.ErrNotParticipant,
	session.ErrInvalidMessage,
	session.ErrSessionNotFound,
}

// Unwrap maps the server's message back onto the matching session error.
func (e *APIError) Unwrap() error {
	for _, err := range sessionErrors {
		if e.Message == err.Error() {
			return err
		}
	}
	return nil
}

// Client talks to a team session server over HTTP and websocket. The auth
// cookie set by Login or Register is kept in a cookie jar.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func New(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout, Jar: jar},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read: %w", ErrNetwork, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.ToLower(http.StatusText(resp.StatusCode))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if s, ok := out.(*string); ok {
		*s = string(data)
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, email, username, password string) (types.User, error) {
	var u types.User
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}, &u)
	return u, err
}

func (c *Client) Login(ctx context.Context, email, password string) (types.User, error) {
	var u types.User
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &u)
	return u, err
}

type CreatedSession struct {
	SessionId string `json:"session_id"`
	Code      string `json:"code"`
}

func (c *Client) Create(ctx context.Context, topic string, maxParticipants int) (CreatedSession, error) {
	var created CreatedSession
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]any{
		"topic":            topic,
		"max_participants": maxParticipants,
	}, &created)
	return created, err
}

// Join returns the id of the session that owns code.
func (c *Client) Join(ctx context.Context, code string) (string, error) {
	var resp struct {
		SessionId string `json:"session_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/join", map[string]string{"code": code}, &resp)
	return resp.SessionId, err
}

func (c *Client) sessionOp(ctx context.Context, id, op string) (types.Session, error) {
	var s types.Session
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/"+op, nil, &s)
	return s, err
}

func (c *Client) Start(ctx context.Context, id string) (types.Session, error) {
	return c.sessionOp(ctx, id, "start")
}

func (c *Client) End(ctx context.Context, id string) (types.Session, error) {
	return c.sessionOp(ctx, id, "end")
}

func (c *Client) Leave(ctx context.Context, id string) error {
	_, err := c.sessionOp(ctx, id, "leave")
	return err
}

func (c *Client) Get(ctx context.Context, id string) (types.Session, error) {
	var s types.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &s)
	return s, err
}

// SendMessage appends a chat or transcript message and returns its id.
func (c *Client) SendMessage(ctx context.Context, id, content string, t session.MessageType) (string, error) {
	var resp struct {
		MessageId string `json:"message_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/messages", map[string]string{
		"content": content,
		"type":    string(t),
	}, &resp)
	return resp.MessageId, err
}

func (c *Client) ListMessages(ctx context.Context, id string) ([]types.Message, error) {
	var msgs []types.Message
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id)+"/messages", nil, &msgs)
	return msgs, err
}

// Transcript returns the plain text export of a session rendered in tz.
func (c *Client) Transcript(ctx context.Context, id, tz string) (string, error) {
	path := "/api/sessions/" + url.PathEscape(id) + "/transcript"
	if tz != "" {
		path += "?tz=" + url.QueryEscape(tz)
	}

	var text string
	err := c.do(ctx, http.MethodGet, path, nil, &text)
	return text, err
}

func (c *Client) History(ctx context.Context) ([]types.Session, error) {
	var sessions []types.Session
	err := c.do(ctx, http.MethodGet, "/api/history", nil, &sessions)
	return sessions, err
}

func (c *Client) AwardScore(ctx context.Context, id string, userId, delta int) (types.Session, error) {
	var s types.Session
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/score", map[string]int{
		"user_id": userId,
		"delta":   delta,
	}, &s)
	return s, err
}

func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &st)
	return st, err
}
