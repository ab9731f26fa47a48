package server

import (
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-teamsession/internal/session"
	"github.com/npezzotti/go-teamsession/internal/stats"
	"github.com/npezzotti/go-teamsession/internal/types"
	"github.com/samber/lo"
)

// Room fans out the changes of one session to the clients subscribed to
// it. All room state is owned by the start goroutine.
type Room struct {
	sessionId string
	snapshot  types.Session
	// lastSeqId is the highest message sequence id delivered to subscribers
	lastSeqId int
	hub       *Hub
	log       *log.Logger

	subscribeChan   chan *ClientMessage
	unsubscribeChan chan *ClientMessage
	signalChan      chan *ClientMessage
	eventChan       chan *event

	clients    map[*Client]struct{}
	userMap    map[int]map[*Client]struct{}
	clientLock sync.RWMutex

	// killTimer unloads the room once it has had no subscribers for a while
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(h *Hub, s types.Session) *Room {
	return &Room{
		sessionId:       s.Id,
		snapshot:        s,
		lastSeqId:       s.SeqId,
		hub:             h,
		log:             h.log,
		subscribeChan:   make(chan *ClientMessage, 256),
		unsubscribeChan: make(chan *ClientMessage, 256),
		signalChan:      make(chan *ClientMessage, 256),
		eventChan:       make(chan *event, 256),
		clients:         make(map[*Client]struct{}),
		userMap:         make(map[int]map[*Client]struct{}),
		exit:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.sessionId)
	r.killTimer = time.NewTimer(r.hub.idleRoomTimeout)
	r.killTimer.Stop()
	defer close(r.done)

	for {
		select {
		case msg := <-r.subscribeChan:
			r.handleSubscribe(msg)
		case msg := <-r.unsubscribeChan:
			r.handleUnsubscribe(msg)
		case msg := <-r.signalChan:
			r.handleSignal(msg)
		case ev := <-r.eventChan:
			r.handleEvent(ev)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case <-r.exit:
			r.handleRoomExit()
			return
		}
	}
}

// isJoined reports whether userId currently takes part in the session.
func (r *Room) isJoined(userId int) bool {
	return lo.ContainsBy(r.snapshot.Participants, func(p types.Participant) bool {
		return p.UserId == userId && p.Status == string(session.ParticipantJoined)
	})
}

func (r *Room) handleSubscribe(msg *ClientMessage) {
	r.killTimer.Stop()

	c := msg.client
	if !r.isJoined(c.user.Id) {
		r.log.Printf("user %q is not a participant of session %q", c.user.Username, r.sessionId)
		c.queueMessage(ErrNotParticipant(msg.Id))
		r.resetTimerIfEmpty()
		return
	}

	r.addClient(c)
	c.queueMessage(NoErrOK(msg.Id, r.snapshot))
}

func (r *Room) handleUnsubscribe(msg *ClientMessage) {
	r.removeClient(msg.client)

	if msg.GetUserId() != 0 && msg.Id > 0 {
		msg.client.queueMessage(NoErrOK(msg.Id, nil))
	}
}

// handleSignal relays a signal to the clients of its addressee. Both peers
// must be joined to an active session.
func (r *Room) handleSignal(msg *ClientMessage) {
	sig := msg.Signal
	c := msg.client

	if !sig.validType() {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	if r.snapshot.Status != string(session.StatusActive) {
		c.queueMessage(ErrSessionNotActive(msg.Id))
		return
	}

	if !r.isJoined(msg.UserId) || !r.isJoined(sig.To) {
		c.queueMessage(ErrNotParticipant(msg.Id))
		return
	}

	r.clientLock.RLock()
	for target := range r.userMap[sig.To] {
		target.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				Signal: &types.Signal{
					SessionId: r.sessionId,
					From:      msg.UserId,
					To:        sig.To,
					Type:      sig.Type,
					Payload:   sig.Payload,
				},
			},
		})
	}
	r.clientLock.RUnlock()

	r.hub.stats.Incr(stats.SignalsRelayed)
	c.queueMessage(NoErrAccepted(msg.Id))
}

// handleEvent applies a committed change. Snapshots older than the current
// one and messages at or below the last delivered sequence id are dropped.
func (r *Room) handleEvent(ev *event) {
	if ev.session != nil {
		if ev.session.Revision < r.snapshot.Revision {
			r.log.Printf("dropping stale snapshot of session %q at revision %d", r.sessionId, ev.session.Revision)
		} else {
			r.snapshot = *ev.session
			r.broadcast(&ServerMessage{
				Notification: &Notification{Session: ev.session},
			})
			r.evictDeparted()
		}
	}

	for i := range ev.messages {
		if ev.messages[i].SeqId <= r.lastSeqId {
			r.log.Printf("dropping stale message %d of session %q", ev.messages[i].SeqId, r.sessionId)
			continue
		}
		r.lastSeqId = ev.messages[i].SeqId
		r.broadcast(&ServerMessage{
			Notification: &Notification{Message: &ev.messages[i]},
		})
	}

	if ev.media != nil {
		r.broadcast(&ServerMessage{
			Notification: &Notification{Media: ev.media},
		})
	}
}

// evictDeparted drops the clients of users who are no longer joined. They
// have already received the session notification telling them so.
func (r *Room) evictDeparted() {
	r.clientLock.RLock()
	var departed []int
	for userId := range r.userMap {
		if !r.isJoined(userId) {
			departed = append(departed, userId)
		}
	}
	r.clientLock.RUnlock()

	for _, userId := range departed {
		r.removeAllClientsForUser(userId)
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.sessionId)
	select {
	case r.hub.unloadRoomChan <- r.sessionId:
	default:
		r.log.Printf("unload channel full, retrying room %q later", r.sessionId)
		r.killTimer.Reset(r.hub.idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit() {
	r.log.Printf("room %q is exiting", r.sessionId)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.sessionId)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[int]map[*Client]struct{})
	r.clientLock.Unlock()

	// subscriptions that raced with the unload go back to the hub, which
	// loads a fresh room for them
	for {
		select {
		case msg := <-r.subscribeChan:
			select {
			case r.hub.subscribeChan <- msg:
			default:
				msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
			}
		default:
			return
		}
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	if _, ok := r.clients[c]; !ok {
		r.clientLock.Unlock()
		return
	}

	delete(r.clients, c)
	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}
	r.clientLock.Unlock()

	c.delRoom(r.sessionId)
	r.log.Printf("removed client %q from room %q", c.user.Username, r.sessionId)
	r.resetTimerIfEmpty()
}

func (r *Room) removeAllClientsForUser(userId int) {
	r.clientLock.Lock()
	userClients := r.userMap[userId]
	for c := range userClients {
		delete(r.clients, c)
	}
	delete(r.userMap, userId)
	r.clientLock.Unlock()

	for c := range userClients {
		c.delRoom(r.sessionId)
	}

	r.log.Printf("removed all clients for user %d from room %q", userId, r.sessionId)
	r.resetTimerIfEmpty()
}

func (r *Room) clientCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	return len(r.clients)
}

func (r *Room) resetTimerIfEmpty() {
	if r.clientCount() == 0 && r.killTimer != nil {
		r.log.Printf("no clients in %q, starting kill timer", r.sessionId)
		r.killTimer.Reset(r.hub.idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	for client := range r.clients {
		client.queueMessage(msg)
	}
}
