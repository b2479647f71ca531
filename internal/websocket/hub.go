package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/presence"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix = "project_room:"
	storeTimeout  = 5 * time.Second
)

// Hub owns the live-socket registry. Room membership lives in the shared
// store under project_room: sets and may reference users with no live socket;
// such members are skipped at broadcast time, not pruned.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	done       chan struct{} // closed when Run() exits
	stopped    bool
	rdb        *redis.Client
	tracker    *presence.Tracker
	mu         sync.RWMutex
}

func NewHub(rdb *redis.Client, tracker *presence.Tracker) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		rdb:        rdb,
		tracker:    tracker,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			for _, conns := range h.clients {
				for client := range conns {
					client.Close()
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

// Stop gracefully shuts down the hub, closing all sockets. It blocks until
// Run() has exited.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	close(h.stop)
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]bool)
	}
	h.clients[c.userID][c] = true
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.tracker.SetStatus(ctx, c.userID, presence.StatusOnline, nil, c.device); err != nil {
		logger.Error().Err(err).Str("user_id", c.userID.String()).Msg("failed to mark presence online")
	}

	c.Send(mustMessage(MessageTypeConnectionSuccess, ConnectionSuccessPayload{User: c.user}))

	logger.Info().Str("user_id", c.userID.String()).Str("email", c.user.Email).Msg("websocket client connected")
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok || !conns[c] {
		h.mu.Unlock()
		c.Close()
		return
	}
	delete(conns, c)
	lastSocket := len(conns) == 0
	if lastSocket {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	c.Close()

	if lastSocket {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if err := h.tracker.SetStatus(ctx, c.userID, presence.StatusOffline, nil, c.device); err != nil {
			logger.Error().Err(err).Str("user_id", c.userID.String()).Msg("failed to mark presence offline")
		}
	}

	logger.Info().Str("user_id", c.userID.String()).Msg("websocket client disconnected")
}

// JoinProject adds the client's user to the project room. Authorization of
// membership is the route layer's concern; the gateway trusts the caller's
// own user id only.
func (h *Hub) JoinProject(c *Client, projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.rdb.SAdd(ctx, roomKeyPrefix+projectID, c.userID.String()).Err(); err != nil {
		logger.Error().Err(err).Str("project_id", projectID).Msg("failed to join project room")
		c.sendError("Failed to join project")
		return
	}

	c.Send(mustMessage(MessageTypeJoinProject, ProjectPayload{ProjectID: projectID}))
}

func (h *Hub) LeaveProject(c *Client, projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.rdb.SRem(ctx, roomKeyPrefix+projectID, c.userID.String()).Err(); err != nil {
		logger.Error().Err(err).Str("project_id", projectID).Msg("failed to leave project room")
		c.sendError("Failed to leave project")
		return
	}

	c.Send(mustMessage(MessageTypeLeaveProject, ProjectPayload{ProjectID: projectID}))
}

// RelayTaskUpdate re-broadcasts a client's task_update to the room with the
// sender's own sockets excluded.
func (h *Hub) RelayTaskUpdate(c *Client, projectID string, payload map[string]interface{}) {
	payload["updated_by"] = c.user

	msg, err := NewMessage(MessageTypeTaskUpdate, payload)
	if err != nil {
		c.sendError("Invalid task update payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.BroadcastToProject(ctx, projectID, msg, &c.userID); err != nil {
		logger.Error().Err(err).Str("project_id", projectID).Msg("failed to broadcast task update")
	}
}

// BroadcastToProject resolves room membership to the subset of members with
// live sockets and delivers to each. Members without a socket are skipped.
func (h *Hub) BroadcastToProject(ctx context.Context, projectID string, msg *Message, excludeUserID *uuid.UUID) error {
	members, err := h.rdb.SMembers(ctx, roomKeyPrefix+projectID).Result()
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, member := range members {
		userID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		if excludeUserID != nil && userID == *excludeUserID {
			continue
		}
		for client := range h.clients[userID] {
			client.Send(msg)
		}
	}
	return nil
}

func (h *Hub) BroadcastToUser(userID uuid.UUID, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		client.Send(msg)
	}
}

func (h *Hub) BroadcastAll(msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.clients {
		for client := range conns {
			client.Send(msg)
		}
	}
}

// BroadcastPresence implements presence.Broadcaster.
func (h *Hub) BroadcastPresence(ctx context.Context, userID uuid.UUID, status presence.Status) {
	msg := mustMessage(MessageTypeUserPresence, PresencePayload{
		UserID: userID.String(),
		Status: string(status),
	})
	h.BroadcastAll(msg)
}

// BroadcastActivity implements activity.Broadcaster.
func (h *Hub) BroadcastActivity(ctx context.Context, projectID uuid.UUID, entry *activity.Entry) {
	msg, err := NewMessage(MessageTypeActivityCreated, entry)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build activity message")
		return
	}
	if err := h.BroadcastToProject(ctx, projectID.String(), msg, nil); err != nil {
		logger.Error().Err(err).Str("project_id", projectID.String()).Msg("failed to broadcast activity")
	}
}

// NotifyTaskMutation pushes a task_created/task_updated/task_deleted frame to
// the project room on behalf of the REST layer.
func (h *Hub) NotifyTaskMutation(ctx context.Context, msgType MessageType, projectID uuid.UUID, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		logger.Error().Err(err).Str("type", string(msgType)).Msg("failed to build task notification")
		return
	}
	if err := h.BroadcastToProject(ctx, projectID.String(), msg, nil); err != nil {
		logger.Error().Err(err).Str("project_id", projectID.String()).Msg("failed to broadcast task notification")
	}
}

// ConnectedUsers returns the ids of users with at least one live socket.
func (h *Hub) ConnectedUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// UserConnectionCount reports the number of live sockets for a user.
func (h *Hub) UserConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
