package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/davidm/taskflow/internal/domain"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/presence"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one authenticated socket. It exists only between a successful
// handshake and close; the hub owns registration.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    uuid.UUID
	sessionID string
	user      *domain.User
	device    *presence.DeviceInfo

	closeMu sync.Mutex
	closed  bool
}

func NewClient(hub *Hub, conn *websocket.Conn, user *domain.User, sessionID string, device *presence.DeviceInfo) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    user.ID,
		sessionID: sessionID,
		user:      user,
		device:    device,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Str("user_id", c.userID.String()).Msg("websocket read error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("Invalid message format")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		c.Send(mustMessage(MessageTypePong, nil))

	case MessageTypeJoinProject:
		var payload ProjectPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ProjectID == "" {
			c.sendError("Invalid join project payload")
			return
		}
		c.hub.JoinProject(c, payload.ProjectID)

	case MessageTypeLeaveProject:
		var payload ProjectPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ProjectID == "" {
			c.sendError("Invalid leave project payload")
			return
		}
		c.hub.LeaveProject(c, payload.ProjectID)

	case MessageTypeTaskUpdate:
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("Invalid task update payload")
			return
		}
		projectID, _ := payload["project_id"].(string)
		if projectID == "" {
			c.sendError("Invalid task update payload")
			return
		}
		c.hub.RelayTaskUpdate(c, projectID, payload)

	default:
		// Unknown types are non-fatal; the connection stays open.
		c.sendError(fmt.Sprintf("Invalid message type: %s", msg.Type))
	}
}

// Send marshals and queues a frame. Delivery is fire-and-forget: frames to a
// closed or saturated client are dropped, never retried.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal websocket message")
		return
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(message string) {
	c.Send(mustMessage(MessageTypeError, ErrorPayload{Message: message}))
}

// Close shuts the send channel exactly once.
func (c *Client) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func mustMessage(msgType MessageType, payload interface{}) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		logger.Error().Err(err).Str("type", string(msgType)).Msg("failed to build websocket message")
		return &Message{Type: msgType, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	}
	return msg
}
