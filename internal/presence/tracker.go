package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/davidm/taskflow/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"

	// Offline records expire fast so staleness self-heals; live statuses
	// are refreshed on every connection event.
	offlineTTL = 5 * time.Minute
	liveTTL    = time.Hour

	staleAfter = 5 * time.Minute
)

type DeviceInfo struct {
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
}

// Record is advisory: absence of a fresh record implies offline.
type Record struct {
	UserID         uuid.UUID   `json:"user_id"`
	Status         Status      `json:"status"`
	LastSeen       time.Time   `json:"last_seen"`
	CurrentProject *string     `json:"current_project,omitempty"`
	DeviceInfo     *DeviceInfo `json:"device_info,omitempty"`
}

// Broadcaster pushes a presence change to every connected socket.
type Broadcaster interface {
	BroadcastPresence(ctx context.Context, userID uuid.UUID, status Status)
}

type Tracker struct {
	rdb         *redis.Client
	broadcaster Broadcaster
}

func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb}
}

// SetBroadcaster wires the gateway in after construction; the gateway itself
// depends on the tracker for connect/disconnect updates.
func (t *Tracker) SetBroadcaster(b Broadcaster) {
	t.broadcaster = b
}

func (t *Tracker) SetStatus(ctx context.Context, userID uuid.UUID, status Status, currentProject *string, device *DeviceInfo) error {
	rec := Record{
		UserID:         userID,
		Status:         status,
		LastSeen:       time.Now(),
		CurrentProject: currentProject,
		DeviceInfo:     device,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ttl := liveTTL
	if status == StatusOffline {
		ttl = offlineTTL
	}
	if err := t.rdb.Set(ctx, presenceKeyPrefix+userID.String(), data, ttl).Err(); err != nil {
		return err
	}

	if status == StatusOnline {
		err = t.rdb.SAdd(ctx, onlineSetKey, userID.String()).Err()
	} else {
		err = t.rdb.SRem(ctx, onlineSetKey, userID.String()).Err()
	}
	if err != nil {
		return err
	}

	if t.broadcaster != nil {
		t.broadcaster.BroadcastPresence(ctx, userID, status)
	}
	return nil
}

func (t *Tracker) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	data, err := t.rdb.Get(ctx, presenceKeyPrefix+userID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *Tracker) OnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	members, err := t.rdb.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SweepStale demotes users still marked online whose last_seen is older than
// the staleness threshold. It compensates for ungraceful disconnects the
// close handler never observes, and is safe to run concurrently with live
// connection traffic: demoting an already-offline user is idempotent.
func (t *Tracker) SweepStale(ctx context.Context) error {
	ids, err := t.OnlineUsers(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		rec, err := t.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			// Record expired on its own; the set entry is just stale.
			if err := t.rdb.SRem(ctx, onlineSetKey, id.String()).Err(); err != nil {
				return err
			}
			continue
		}
		if time.Since(rec.LastSeen) > staleAfter {
			if err := t.SetStatus(ctx, id, StatusOffline, rec.CurrentProject, rec.DeviceInfo); err != nil {
				return err
			}
		}
	}
	return nil
}

// StartSweeper schedules SweepStale at the given interval and returns the
// running scheduler so the caller can stop it at shutdown.
func (t *Tracker) StartSweeper(interval time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := t.SweepStale(ctx); err != nil {
			logger.Error().Err(err).Msg("presence sweep failed")
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
