package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davidm/taskflow/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Type string

const (
	TypeTaskCreated   Type = "task_created"
	TypeTaskUpdated   Type = "task_updated"
	TypeTaskCompleted Type = "task_completed"
	TypeTaskAssigned  Type = "task_assigned"
	TypeUserJoined    Type = "user_joined"
	TypeUserLeft      Type = "user_left"
)

const (
	projectKeyPrefix = "activities:project:"
	globalKey        = "activities:global"

	projectCap = 100
	globalCap  = 500

	retention = 7 * 24 * time.Hour
)

type Entry struct {
	ID          string                 `json:"id"`
	Type        Type                   `json:"type"`
	UserID      uuid.UUID              `json:"user_id"`
	UserName    string                 `json:"user_name"`
	ProjectID   uuid.UUID              `json:"project_id"`
	EntityID    *uuid.UUID             `json:"entity_id,omitempty"`
	EntityName  string                 `json:"entity_name,omitempty"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Broadcaster pushes a recorded entry to the sockets of the project room.
type Broadcaster interface {
	BroadcastActivity(ctx context.Context, projectID uuid.UUID, entry *Entry)
}

// Log keeps a most-recent-first, bounded history per project plus a global
// one, both time-boxed by a multi-day TTL.
type Log struct {
	rdb         *redis.Client
	broadcaster Broadcaster
}

func NewLog(rdb *redis.Client) *Log {
	return &Log{rdb: rdb}
}

func (l *Log) SetBroadcaster(b Broadcaster) {
	l.broadcaster = b
}

// Record assigns the entry an id and timestamp, prepends it to the project
// and global lists and broadcasts it to the project room.
func (l *Log) Record(ctx context.Context, entry *Entry) (*Entry, error) {
	entry.ID = uuid.New().String()
	entry.Timestamp = time.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	projectKey := projectKeyPrefix + entry.ProjectID.String()

	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, projectKey, data)
	pipe.LTrim(ctx, projectKey, 0, projectCap-1)
	pipe.LPush(ctx, globalKey, data)
	pipe.LTrim(ctx, globalKey, 0, globalCap-1)
	pipe.Expire(ctx, projectKey, retention)
	pipe.Expire(ctx, globalKey, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	if l.broadcaster != nil {
		l.broadcaster.BroadcastActivity(ctx, entry.ProjectID, entry)
	}
	return entry, nil
}

func (l *Log) ProjectActivities(ctx context.Context, projectID uuid.UUID, limit int) ([]*Entry, error) {
	return l.list(ctx, projectKeyPrefix+projectID.String(), limit)
}

func (l *Log) GlobalActivities(ctx context.Context, limit int) ([]*Entry, error) {
	return l.list(ctx, globalKey, limit)
}

func (l *Log) list(ctx context.Context, key string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	raw, err := l.rdb.LRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Convenience constructors. All share the Record path.

func (l *Log) TaskCreated(ctx context.Context, user *domain.User, projectID, taskID uuid.UUID, taskTitle string) error {
	_, err := l.Record(ctx, &Entry{
		Type:        TypeTaskCreated,
		UserID:      user.ID,
		UserName:    user.FullName(),
		ProjectID:   projectID,
		EntityID:    &taskID,
		EntityName:  taskTitle,
		Description: fmt.Sprintf("%s created task %q", user.FullName(), taskTitle),
	})
	return err
}

func (l *Log) TaskUpdated(ctx context.Context, user *domain.User, projectID, taskID uuid.UUID, taskTitle string, changes map[string]interface{}) error {
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	_, err := l.Record(ctx, &Entry{
		Type:        TypeTaskUpdated,
		UserID:      user.ID,
		UserName:    user.FullName(),
		ProjectID:   projectID,
		EntityID:    &taskID,
		EntityName:  taskTitle,
		Description: fmt.Sprintf("%s updated %s in task %q", user.FullName(), strings.Join(fields, ", "), taskTitle),
		Metadata:    map[string]interface{}{"changes": changes},
	})
	return err
}

func (l *Log) TaskCompleted(ctx context.Context, user *domain.User, projectID, taskID uuid.UUID, taskTitle string) error {
	_, err := l.Record(ctx, &Entry{
		Type:        TypeTaskCompleted,
		UserID:      user.ID,
		UserName:    user.FullName(),
		ProjectID:   projectID,
		EntityID:    &taskID,
		EntityName:  taskTitle,
		Description: fmt.Sprintf("%s completed task %q", user.FullName(), taskTitle),
	})
	return err
}

func (l *Log) UserJoined(ctx context.Context, user *domain.User, projectID uuid.UUID) error {
	_, err := l.Record(ctx, &Entry{
		Type:        TypeUserJoined,
		UserID:      user.ID,
		UserName:    user.FullName(),
		ProjectID:   projectID,
		Description: fmt.Sprintf("%s joined the project", user.FullName()),
	})
	return err
}
