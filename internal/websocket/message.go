package websocket

import (
	"encoding/json"
	"time"

	"github.com/davidm/taskflow/internal/domain"
)

type MessageType string

const (
	// Client to Server
	MessageTypePing         MessageType = "ping"
	MessageTypeJoinProject  MessageType = "join_project"
	MessageTypeLeaveProject MessageType = "leave_project"
	MessageTypeTaskUpdate   MessageType = "task_update"

	// Server to Client
	MessageTypePong              MessageType = "pong"
	MessageTypeConnectionSuccess MessageType = "connection_success"
	MessageTypeUserPresence      MessageType = "user_presence"
	MessageTypeTaskCreated       MessageType = "task_created"
	MessageTypeTaskUpdated       MessageType = "task_updated"
	MessageTypeTaskDeleted       MessageType = "task_deleted"
	MessageTypeActivityCreated   MessageType = "activity_created"
	MessageTypeError             MessageType = "error"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = payloadBytes
	}
	return msg, nil
}

// Client to Server payloads

type ProjectPayload struct {
	ProjectID string `json:"project_id"`
}

// Server to Client payloads

type ConnectionSuccessPayload struct {
	User *domain.User `json:"user"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
