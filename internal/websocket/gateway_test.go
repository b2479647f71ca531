package websocket_test

import (
	"context"
	"testing"
	"time"

	"github.com/davidm/taskflow/internal/testutil"
	"github.com/davidm/taskflow/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultTimeout = 5 * time.Second

func TestGateway_ConnectWithValidToken(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, token := testutil.NewUserBuilder().
		WithEmail("jane@example.com").
		BuildAndAuthenticate(t, ts)

	wsClient := testutil.NewWSClient(t, ts.WebSocketURL(token))

	payload := wsClient.ExpectConnectionSuccess(defaultTimeout)
	require.NotNil(t, payload.User)
	assert.Equal(t, user.ID, payload.User.ID)
	assert.Equal(t, "jane@example.com", payload.User.Email)

	wsClient.DrainMessages()
}

func TestGateway_ConnectWithoutToken(t *testing.T) {
	ts := testutil.NewTestServer(t)

	// The handshake upgrades, then the server sends one error frame and closes
	wsClient := testutil.NewWSClient(t, ts.WebSocketURL(""))

	errPayload := wsClient.ExpectError(defaultTimeout)
	assert.Equal(t, "Authentication token is required", errPayload.Message)

	wsClient.ExpectClosed(defaultTimeout)
}

func TestGateway_ConnectWithInvalidToken(t *testing.T) {
	ts := testutil.NewTestServer(t)

	wsClient := testutil.NewWSClient(t, ts.WebSocketURL("not-a-real-token"))

	errPayload := wsClient.ExpectError(defaultTimeout)
	assert.Equal(t, "Authentication failed", errPayload.Message)

	wsClient.ExpectClosed(defaultTimeout)
}

func TestGateway_ConnectWithRevokedToken(t *testing.T) {
	ts := testutil.NewTestServer(t)

	auth := testutil.NewUserBuilder().BuildAndAuthenticateFull(t, ts)
	token := auth.Data.AccessToken

	require.NoError(t, ts.Services.Auth.Logout(context.Background(), token))

	wsClient := testutil.NewWSClient(t, ts.WebSocketURL(token))

	errPayload := wsClient.ExpectError(defaultTimeout)
	assert.Equal(t, "Authentication failed", errPayload.Message)

	wsClient.ExpectClosed(defaultTimeout)
}

func TestGateway_PingPong(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	wsClient := testutil.NewWSClient(t, ts.WebSocketURL(token))
	wsClient.ExpectConnectionSuccess(defaultTimeout)
	wsClient.DrainMessages()

	wsClient.Ping()
	wsClient.ExpectMessage(websocket.MessageTypePong, defaultTimeout)
}

func TestGateway_UnknownMessageTypeIsNonFatal(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	wsClient := testutil.NewWSClient(t, ts.WebSocketURL(token))
	wsClient.ExpectConnectionSuccess(defaultTimeout)
	wsClient.DrainMessages()

	wsClient.SendRaw([]byte(`{"type":"bogus","timestamp":"2026-01-01T00:00:00Z"}`))

	errPayload := wsClient.ExpectError(defaultTimeout)
	assert.Equal(t, "Invalid message type: bogus", errPayload.Message)

	// The connection survived
	wsClient.Ping()
	wsClient.ExpectMessage(websocket.MessageTypePong, defaultTimeout)
}

func TestGateway_JoinProjectAck(t *testing.T) {
	ts := testutil.NewTestServer(t)

	user, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	project := testutil.NewProjectBuilder().Build(t, ts.DB.DB)

	wsClient := testutil.NewWSClient(t, ts.WebSocketURL(token))
	wsClient.ExpectConnectionSuccess(defaultTimeout)
	wsClient.DrainMessages()

	wsClient.JoinProject(project.ID.String())
	wsClient.ExpectMessage(websocket.MessageTypeJoinProject, defaultTimeout)

	members, err := ts.Redis.Client.SMembers(context.Background(), "project_room:"+project.ID.String()).Result()
	require.NoError(t, err)
	assert.Contains(t, members, user.ID.String())

	wsClient.LeaveProject(project.ID.String())
	wsClient.ExpectMessage(websocket.MessageTypeLeaveProject, defaultTimeout)

	members, err = ts.Redis.Client.SMembers(context.Background(), "project_room:"+project.ID.String()).Result()
	require.NoError(t, err)
	assert.NotContains(t, members, user.ID.String())
}

func TestGateway_TaskUpdateRelayExcludesSender(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, tokenA := testutil.NewUserBuilder().WithEmail("a@example.com").BuildAndAuthenticate(t, ts)
	_, tokenB := testutil.NewUserBuilder().WithEmail("b@example.com").BuildAndAuthenticate(t, ts)
	project := testutil.NewProjectBuilder().Build(t, ts.DB.DB)

	clientA := testutil.NewWSClient(t, ts.WebSocketURL(tokenA))
	clientA.ExpectConnectionSuccess(defaultTimeout)

	clientB := testutil.NewWSClient(t, ts.WebSocketURL(tokenB))
	clientB.ExpectConnectionSuccess(defaultTimeout)

	clientA.JoinProject(project.ID.String())
	clientA.ExpectMessage(websocket.MessageTypeJoinProject, defaultTimeout)

	clientB.JoinProject(project.ID.String())
	clientB.ExpectMessage(websocket.MessageTypeJoinProject, defaultTimeout)

	clientA.DrainMessages()
	clientB.DrainMessages()

	clientA.SendTaskUpdate(map[string]interface{}{
		"project_id": project.ID.String(),
		"task_id":    "task-1",
		"status":     "in_progress",
	})

	msg := clientB.ExpectMessage(websocket.MessageTypeTaskUpdate, defaultTimeout)
	assert.Contains(t, string(msg.Payload), "a@example.com")
	assert.Contains(t, string(msg.Payload), "in_progress")

	// The sender's own sockets never see the echo
	clientA.ExpectNoMessage(500 * time.Millisecond)
}

func TestGateway_DisconnectBroadcastsOffline(t *testing.T) {
	ts := testutil.NewTestServer(t)

	userA, tokenA := testutil.NewUserBuilder().WithEmail("a@example.com").BuildAndAuthenticate(t, ts)
	_, tokenB := testutil.NewUserBuilder().WithEmail("b@example.com").BuildAndAuthenticate(t, ts)

	clientA := testutil.NewWSClient(t, ts.WebSocketURL(tokenA))
	clientA.ExpectConnectionSuccess(defaultTimeout)

	clientB := testutil.NewWSClient(t, ts.WebSocketURL(tokenB))
	clientB.ExpectConnectionSuccess(defaultTimeout)
	clientB.DrainMessages()

	clientA.Close()

	deadline := time.Now().Add(defaultTimeout)
	for {
		payload := clientB.ExpectPresenceFor(userA.ID.String(), time.Until(deadline))
		if payload.Status == "offline" {
			break
		}
	}

	online, err := ts.Tracker.OnlineUsers(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, online, userA.ID)
}
