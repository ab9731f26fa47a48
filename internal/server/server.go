package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/npezzotti/go-teamsession/internal/stats"
	"github.com/npezzotti/go-teamsession/internal/types"
)

const (
	defaultIdleRoomTimeout = 5 * time.Second
	loadSessionTimeout     = 5 * time.Second
)

// SessionLoader fetches the current state of a session when its room is
// loaded.
type SessionLoader interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
}

type stopReq struct {
	done chan struct{}
}

// event is a committed session change waiting to be fanned out to the
// session's room.
type event struct {
	sessionId string
	session   *types.Session
	messages  []types.Message
	media     *MediaNotice
}

// Hub keeps one room per session that has live subscribers and relays
// session changes and WebRTC signals to them.
type Hub struct {
	log             *log.Logger
	db              SessionLoader
	stats           stats.StatsProvider
	idleRoomTimeout time.Duration

	clients     map[*Client]struct{}
	userMap     map[int]map[*Client]struct{}
	clientsLock sync.RWMutex

	rooms     map[string]*Room
	roomsLock sync.RWMutex

	subscribeChan  chan *ClientMessage
	eventChan      chan *event
	unloadRoomChan chan string
	stop           chan stopReq
}

func NewHub(logger *log.Logger, db SessionLoader, su stats.StatsProvider) *Hub {
	su.RegisterMetric(stats.ConnectedClients)
	su.RegisterMetric(stats.LoadedRooms)
	su.RegisterMetric(stats.SignalsRelayed)

	return &Hub{
		log:             logger,
		db:              db,
		stats:           su,
		idleRoomTimeout: defaultIdleRoomTimeout,
		clients:         make(map[*Client]struct{}),
		userMap:         make(map[int]map[*Client]struct{}),
		rooms:           make(map[string]*Room),
		subscribeChan:   make(chan *ClientMessage, 256),
		eventChan:       make(chan *event, 1024),
		unloadRoomChan:  make(chan string, 256),
		stop:            make(chan stopReq),
	}
}

// SetIdleRoomTimeout changes how long a room without subscribers stays
// loaded. It must be called before Run.
func (h *Hub) SetIdleRoomTimeout(d time.Duration) {
	if d > 0 {
		h.idleRoomTimeout = d
	}
}

func (h *Hub) Run() {
	for {
		select {
		case msg := <-h.subscribeChan:
			h.handleSubscribe(msg)
		case ev := <-h.eventChan:
			h.handleEvent(ev)
		case id := <-h.unloadRoomChan:
			h.unloadRoom(id)
		case req := <-h.stop:
			h.log.Println("shutting down rooms")
			h.roomsLock.RLock()
			rooms := make([]*Room, 0, len(h.rooms))
			for _, r := range h.rooms {
				rooms = append(rooms, r)
			}
			h.roomsLock.RUnlock()

			for _, r := range rooms {
				h.stopRoom(r)
			}

			close(req.done)
			return
		}
	}
}

func (h *Hub) handleSubscribe(msg *ClientMessage) {
	id := msg.Subscribe.SessionId
	if r, ok := h.getRoom(id); ok {
		select {
		case r.subscribeChan <- msg:
		default:
			h.log.Printf("subscribe channel full on room %q", id)
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadSessionTimeout)
	defer cancel()

	s, err := h.db.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			msg.client.queueMessage(ErrSessionNotFound(msg.Id))
			return
		}
		h.log.Printf("load session %q: %v", id, err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	r := newRoom(h, types.NewSession(s))
	h.addRoom(id, r)
	go r.start()

	r.subscribeChan <- msg
}

func (h *Hub) handleEvent(ev *event) {
	r, ok := h.getRoom(ev.sessionId)
	if !ok {
		// nobody is watching this session
		return
	}

	select {
	case r.eventChan <- ev:
	default:
		h.log.Printf("event channel full on room %q, dropping event", ev.sessionId)
	}
}

func (h *Hub) unloadRoom(id string) {
	r, ok := h.getRoom(id)
	if !ok {
		return
	}

	h.log.Printf("unloading room %q", id)
	h.stopRoom(r)
}

func (h *Hub) stopRoom(r *Room) {
	close(r.exit)
	<-r.done
	h.deleteRoom(r.sessionId)
}

// publish hands ev to the run loop without blocking the caller.
func (h *Hub) publish(ev *event) {
	select {
	case h.eventChan <- ev:
	default:
		h.log.Printf("hub event channel full, dropping event for session %q", ev.sessionId)
	}
}

func (h *Hub) SessionChanged(s types.Session) {
	h.publish(&event{sessionId: s.Id, session: &s})
}

func (h *Hub) MessagesAppended(sessionId string, msgs []types.Message) {
	h.publish(&event{sessionId: sessionId, messages: msgs})
}

func (h *Hub) MediaChanged(sessionId string, enabled bool) {
	h.publish(&event{sessionId: sessionId, media: &MediaNotice{SessionId: sessionId, Enabled: enabled}})
}

func (h *Hub) RegisterClient(c *Client) {
	h.addClient(c)
}

func (h *Hub) addClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	h.clients[c] = struct{}{}
	if h.userMap[c.user.Id] == nil {
		h.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	h.userMap[c.user.Id][c] = struct{}{}
	h.stats.Incr(stats.ConnectedClients)
	h.log.Printf("added connection from %q", c.user.Username)
}

func (h *Hub) removeClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	if userClients, ok := h.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(h.userMap, c.user.Id)
		}
	}
	h.stats.Decr(stats.ConnectedClients)
	h.log.Printf("removed connection from %q", c.user.Username)
}

func (h *Hub) getClients(userId int) []*Client {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	var clients []*Client
	for c := range h.userMap[userId] {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) addRoom(id string, r *Room) {
	h.roomsLock.Lock()
	defer h.roomsLock.Unlock()

	h.rooms[id] = r
	h.stats.Incr(stats.LoadedRooms)
}

func (h *Hub) getRoom(id string) (*Room, bool) {
	h.roomsLock.RLock()
	defer h.roomsLock.RUnlock()

	r, ok := h.rooms[id]
	return r, ok
}

func (h *Hub) deleteRoom(id string) {
	h.roomsLock.Lock()
	defer h.roomsLock.Unlock()

	if _, ok := h.rooms[id]; ok {
		delete(h.rooms, id)
		h.stats.Decr(stats.LoadedRooms)
	}
}

// Shutdown stops every client and room. It returns ctx.Err() if the hub
// does not finish in time.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Println("received shutdown signal")

	h.clientsLock.RLock()
	for c := range h.clients {
		c.stopClient()
	}
	h.clientsLock.RUnlock()

	req := stopReq{done: make(chan struct{})}
	select {
	case h.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
