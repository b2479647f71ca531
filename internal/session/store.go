package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix   = "session:"
	userSetKeyPrefix   = "user_sessions:"
	blacklistKeyPrefix = "blacklist:"
)

// Session is the server-side record bound to a session id. It is the
// authoritative source for whether a token's session is still live: a token
// whose signature verifies is still rejected once this record is gone.
type Session struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Store keeps sessions, per-user session sets and the token blacklist in
// redis under disjoint key prefixes. All mutating operations are idempotent.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Put(ctx context.Context, sessionID string, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKeyPrefix+sessionID, data, ttl).Err()
}

// Get returns the session record, or nil when the id does not resolve.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

// Touch re-stamps last_activity and refreshes the TTL of both the session
// record and the user's session set, keeping the two expiry clocks aligned.
// Touching an absent session is a no-op.
func (s *Store) Touch(ctx context.Context, sessionID string, ttl time.Duration) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil || sess == nil {
		return err
	}

	sess.LastActivity = time.Now()
	if err := s.Put(ctx, sessionID, sess, ttl); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, userSetKeyPrefix+sess.UserID.String(), ttl).Err()
}

func (s *Store) AddToUserSet(ctx context.Context, userID uuid.UUID, sessionID string, ttl time.Duration) error {
	key := userSetKeyPrefix + userID.String()
	if err := s.rdb.SAdd(ctx, key, sessionID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, ttl).Err()
}

func (s *Store) ListUserSet(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.rdb.SMembers(ctx, userSetKeyPrefix+userID.String()).Result()
}

func (s *Store) RemoveFromUserSet(ctx context.Context, userID uuid.UUID, sessionID string) error {
	return s.rdb.SRem(ctx, userSetKeyPrefix+userID.String(), sessionID).Err()
}

func (s *Store) ClearUserSet(ctx context.Context, userID uuid.UUID) error {
	return s.rdb.Del(ctx, userSetKeyPrefix+userID.String()).Err()
}

func (s *Store) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, blacklistKeyPrefix+token, "true", ttl).Err()
}

func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, blacklistKeyPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Invalidate removes a single session and its user-set entry. Both deletions
// succeed silently when the target is already gone.
func (s *Store) Invalidate(ctx context.Context, sessionID string, userID uuid.UUID) error {
	if err := s.Delete(ctx, sessionID); err != nil {
		return err
	}
	return s.RemoveFromUserSet(ctx, userID, sessionID)
}

// InvalidateAll removes every session registered under the user, then drops
// the set itself. The set may list ids whose records already expired on their
// own clock; deleting those is a no-op.
func (s *Store) InvalidateAll(ctx context.Context, userID uuid.UUID) error {
	ids, err := s.ListUserSet(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return s.ClearUserSet(ctx, userID)
}
