package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamsession/internal/server"
)

// Subscription is a live feed of one session's notifications.
type Subscription struct {
	C <-chan server.Notification

	conn      *websocket.Conn
	sessionId string
	nextId    atomic.Int64
	writeLock sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	// responses carries frame responses to Signal callers
	responses chan *server.Response
}

// Subscribe opens a websocket to the server and subscribes to sessionId.
// The returned subscription is closed when ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, sessionId string) (*Subscription, error) {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path += "/ws"

	dialer := websocket.Dialer{Jar: c.httpClient.Jar, HandshakeTimeout: defaultTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, fmt.Errorf("%w: dial: %w", ErrNetwork, err)
	}

	notifications := make(chan server.Notification, 64)
	sub := &Subscription{
		C:         notifications,
		conn:      conn,
		sessionId: sessionId,
		responses: make(chan *server.Response, 8),
		done:      make(chan struct{}),
	}

	if err := sub.write(map[string]any{
		"id":        sub.nextId.Add(1),
		"subscribe": server.Subscribe{SessionId: sessionId},
	}); err != nil {
		conn.Close()
		return nil, err
	}

	var first server.ServerMessage
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: read: %w", ErrNetwork, err)
	}
	if err := responseError(first.Response); err != nil {
		conn.Close()
		return nil, err
	}

	go sub.readLoop(notifications)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

func (s *Subscription) readLoop(out chan<- server.Notification) {
	defer close(out)
	defer close(s.responses)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg server.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch {
		case msg.Notification != nil:
			select {
			case out <- *msg.Notification:
			case <-s.done:
				return
			}
		case msg.Response != nil:
			select {
			case s.responses <- msg.Response:
			default:
			}
		}
	}
}

// Signal relays a WebRTC offer, answer or candidate to participant to and
// waits for the server to accept it.
func (s *Subscription) Signal(to int, sigType, payload string) error {
	if err := s.write(map[string]any{
		"id": s.nextId.Add(1),
		"signal": server.Signal{
			SessionId: s.sessionId,
			To:        to,
			Type:      sigType,
			Payload:   payload,
		},
	}); err != nil {
		return err
	}

	resp, ok := <-s.responses
	if !ok {
		return fmt.Errorf("%w: subscription closed", ErrNetwork)
	}
	return responseError(resp)
}

func (s *Subscription) write(v any) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: write: %w", ErrNetwork, err)
	}
	return nil
}

func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeLock.Lock()
		s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeLock.Unlock()
		err = s.conn.Close()
	})
	return err
}

func responseError(resp *server.Response) error {
	if resp == nil {
		return fmt.Errorf("%w: missing response", ErrNetwork)
	}
	if resp.ResponseCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.ResponseCode, Message: resp.Error}
	}
	return nil
}
