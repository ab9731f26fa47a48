package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamsession/internal/database"
	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/npezzotti/go-teamsession/internal/stats"
	"github.com/npezzotti/go-teamsession/internal/testutil"
	"github.com/npezzotti/go-teamsession/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		assert.True(t, c.queueMessage(&ServerMessage{}), "expected queueMessage to return true when channel is not full")
		assert.Len(t, c.send, 1)
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		assert.False(t, c.queueMessage(&ServerMessage{}), "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
		UserId: 5,
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected internal routing fields to be omitted")
}

func Test_stopClient(t *testing.T) {
	c := &Client{stop: make(chan struct{})}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopping twice to be safe")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_leaveAllRooms(t *testing.T) {
	h := NewHub(testutil.TestLogger(t), &database.MockSessionRepository{}, stats.NewNopStatsUpdater())
	rooms := []*Room{newRoom(h, types.Session{Id: "sess1"}), newRoom(h, types.Session{Id: "sess2"})}

	c := newTestClient(h, 1)
	for _, r := range rooms {
		c.addRoom(r)
	}

	c.leaveAllRooms()

	for _, r := range rooms {
		select {
		case msg := <-r.unsubscribeChan:
			assert.Equal(t, r.sessionId, msg.Unsubscribe.SessionId)
			assert.Equal(t, c, msg.client)
			assert.Zero(t, msg.UserId, "expected internal leave to carry no user id")
		default:
			t.Errorf("expected unsubscribe for room %s", r.sessionId)
		}
	}
}

func TestClient_dispatch(t *testing.T) {
	h := NewHub(testutil.TestLogger(t), &database.MockSessionRepository{}, stats.NewNopStatsUpdater())
	r := newRoom(h, types.NewSession(storedSession(session.StatusActive)))

	t.Run("subscribe goes to hub", func(t *testing.T) {
		c := newTestClient(h, 1)
		c.dispatch(&ClientMessage{Subscribe: &Subscribe{SessionId: "sess1"}, client: c})
		assert.Len(t, h.subscribeChan, 1)
		<-h.subscribeChan
	})

	t.Run("signal goes to subscribed room", func(t *testing.T) {
		c := newTestClient(h, 1)
		c.addRoom(r)
		c.dispatch(&ClientMessage{Signal: &Signal{SessionId: "sess1", To: 2, Type: SignalOffer}, client: c})
		assert.Len(t, r.signalChan, 1)
		<-r.signalChan
	})

	t.Run("unsubscribe from unknown room", func(t *testing.T) {
		c := newTestClient(h, 1)
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 9}, Unsubscribe: &Unsubscribe{SessionId: "nope"}, client: c})
		assert.Equal(t, http.StatusNotFound, receive(t, c).Response.ResponseCode)
	})

	t.Run("room busy", func(t *testing.T) {
		busy := newRoom(h, types.Session{Id: "busy"})
		busy.signalChan = make(chan *ClientMessage)
		c := newTestClient(h, 1)
		c.addRoom(busy)
		c.dispatch(&ClientMessage{Signal: &Signal{SessionId: "busy"}, client: c})
		assert.Equal(t, http.StatusServiceUnavailable, receive(t, c).Response.ResponseCode)
	})

	t.Run("empty frame", func(t *testing.T) {
		c := newTestClient(h, 1)
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, client: c})
		assert.Equal(t, http.StatusBadRequest, receive(t, c).Response.ResponseCode)
	})
}

func TestClient_ReadWrite(t *testing.T) {
	h := NewHub(testutil.TestLogger(t), &database.MockSessionRepository{}, stats.NewNopStatsUpdater())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		c := NewClient(types.User{Id: 1, Username: "host"}, conn, h, h.log)
		h.RegisterClient(c)
		go c.Write()
		go c.Read()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var resp ServerMessage
	conn.SetReadDeadline(time.Now().Add(time.Second))
	assert.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode)
	assert.Equal(t, "invalid message format", resp.Response.Error)

	assert.NoError(t, conn.WriteJSON(map[string]any{"id": 3, "unsubscribe": map[string]string{"session_id": "sess1"}}))
	resp = ServerMessage{}
	assert.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, 3, resp.Id)
	assert.Equal(t, http.StatusNotFound, resp.Response.ResponseCode)

	conn.Close()
	assert.Eventually(t, func() bool {
		return len(h.getClients(1)) == 0
	}, time.Second, 10*time.Millisecond, "expected closed connection to be deregistered")
}
