package presence_test

import (
	"context"
	"sync"
	"testing"

	"github.com/davidm/taskflow/internal/presence"
	"github.com/davidm/taskflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []presence.Status
}

func (b *recordingBroadcaster) BroadcastPresence(ctx context.Context, userID uuid.UUID, status presence.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, status)
}

func (b *recordingBroadcaster) Events() []presence.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]presence.Status(nil), b.events...)
}

func TestTracker_SetStatus(t *testing.T) {
	tr := testutil.NewTestRedis(t)
	tracker := presence.NewTracker(tr.Client)
	broadcaster := &recordingBroadcaster{}
	tracker.SetBroadcaster(broadcaster)
	ctx := context.Background()

	userID := uuid.New()
	device := &presence.DeviceInfo{UserAgent: "test-agent", IP: "1.2.3.4"}

	require.NoError(t, tracker.SetStatus(ctx, userID, presence.StatusOnline, nil, device))

	rec, err := tracker.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, presence.StatusOnline, rec.Status)
	assert.Equal(t, "test-agent", rec.DeviceInfo.UserAgent)

	online, err := tracker.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Contains(t, online, userID)

	require.NoError(t, tracker.SetStatus(ctx, userID, presence.StatusOffline, nil, device))

	online, err = tracker.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, online, userID)

	assert.Equal(t, []presence.Status{presence.StatusOnline, presence.StatusOffline}, broadcaster.Events())
}

func TestTracker_GetUnknownUser(t *testing.T) {
	tr := testutil.NewTestRedis(t)
	tracker := presence.NewTracker(tr.Client)

	rec, err := tracker.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTracker_SweepStale(t *testing.T) {
	tr := testutil.NewTestRedis(t)
	tracker := presence.NewTracker(tr.Client)
	ctx := context.Background()

	fresh := uuid.New()
	require.NoError(t, tracker.SetStatus(ctx, fresh, presence.StatusOnline, nil, nil))

	// A set entry without a backing record simulates an expired presence key
	orphan := uuid.New()
	require.NoError(t, tr.Client.SAdd(ctx, "online_users", orphan.String()).Err())

	require.NoError(t, tracker.SweepStale(ctx))

	online, err := tracker.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Contains(t, online, fresh)
	assert.NotContains(t, online, orphan)
}
