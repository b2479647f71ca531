package handlers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/davidm/taskflow/internal/auth"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/presence"
	"github.com/davidm/taskflow/internal/service"
	"github.com/davidm/taskflow/internal/websocket"
	ws "github.com/gorilla/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub         *websocket.Hub
	authService *service.AuthService
}

func NewWebSocketHandler(hub *websocket.Hub, authService *service.AuthService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		authService: authService,
	}
}

// Handle upgrades the connection first and authenticates afterwards so a
// failed handshake can still deliver one error frame before the policy
// violation close. A connection that fails here never touches the registry.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.ExtractBearer(r.Header.Get("Authorization"))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if token == "" {
		rejectConn(conn, "Authentication token is required")
		return
	}

	user, sessionID, err := h.authService.Authenticate(r.Context(), token)
	if err != nil {
		// Internal detail never reaches the client.
		logger.Warn().Err(err).Msg("websocket authentication failed")
		rejectConn(conn, "Authentication failed")
		return
	}

	device := &presence.DeviceInfo{
		UserAgent: r.Header.Get("User-Agent"),
		IP:        remoteIP(r),
	}

	client := websocket.NewClient(h.hub, conn, user, sessionID, device)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// rejectConn sends a single error frame and closes with 1008.
func rejectConn(conn *ws.Conn, message string) {
	defer conn.Close()

	msg, err := websocket.NewMessage(websocket.MessageTypeError, websocket.ErrorPayload{Message: message})
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		conn.WriteJSON(msg)
	}

	conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.ClosePolicyViolation, message),
		time.Now().Add(5*time.Second),
	)
}

func remoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
