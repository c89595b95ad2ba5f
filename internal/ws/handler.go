// Package ws serves the admin live channel over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backoffice/internal/delivery"
	"backoffice/internal/protocol"
	"backoffice/pkg/logger"
	"backoffice/pkg/rbac"
	"backoffice/pkg/trace"
	"backoffice/pkg/util"
)

const DefaultQueueSize = 64

type Handler struct {
	mux       *delivery.Multiplexer
	jwtSecret string
	queueSize int
	upgrader  websocket.Upgrader
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewHandler(mux *delivery.Multiplexer, jwtSecret string, queueSize int, logger *zap.Logger) *Handler {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Handler{
		mux:       mux,
		jwtSecret: jwtSecret,
		queueSize: queueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Serve upgrades the request and runs the session until the client goes
// away. GET /ws
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := trace.Ensure(c.Request.Context())
	log := logger.WithTrace(ctx, h.logger)
	client := newClient(uuid.NewString(), conn, h.queueSize, log)

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	log.Debug("Websocket connected",
		zap.String("connection_id", client.id),
		zap.String("remote_addr", c.ClientIP()),
	)

	go client.writePump()
	h.readPump(ctx, client, log)
}

func (h *Handler) readPump(ctx context.Context, client *Client, log *zap.Logger) {
	defer func() {
		h.mux.Leave(client.id)
		client.close()

		h.mu.Lock()
		delete(h.clients, client.id)
		h.mu.Unlock()
		log.Debug("Websocket disconnected", zap.String("connection_id", client.id))
	}()

	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	joined := false
	for {
		var in protocol.Inbound
		if err := conn.ReadJSON(&in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				_ = client.Send(protocol.NewError("Malformed message"))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Websocket read failed", zap.String("connection_id", client.id), zap.Error(err))
			}
			return
		}

		switch in.Event {
		case protocol.EventJoin:
			if joined {
				_ = client.Send(protocol.NewError("Already joined"))
				continue
			}
			joined = h.join(ctx, client, in.Data, log)
		default:
			_ = client.Send(protocol.NewError("Unknown event"))
		}
	}
}

// join authenticates the join frame and hands the client to the
// multiplexer. It reports whether the client is now registered.
func (h *Handler) join(ctx context.Context, client *Client, data json.RawMessage, log *zap.Logger) bool {
	var req protocol.Join
	if err := json.Unmarshal(data, &req); err != nil || req.AdminID == "" {
		_ = client.Send(protocol.NewError("adminId is required"))
		return false
	}

	tokenAdminID, err := util.ParseJWT(req.AuthToken, h.jwtSecret)
	if err != nil {
		log.Info("Join with invalid token", zap.String("admin_id", req.AdminID), zap.Error(err))
		_ = client.Send(protocol.NewError("Invalid auth token"))
		return false
	}
	if err := rbac.ValidateAdminID(tokenAdminID, req.AdminID); err != nil {
		log.Warn("Join admin id does not match token",
			zap.String("admin_id", req.AdminID),
			zap.String("token_admin_id", tokenAdminID),
		)
		_ = client.Send(protocol.NewError("Invalid auth token"))
		return false
	}

	if _, err := h.mux.Join(ctx, client, req.AdminID); err != nil {
		return false
	}
	return true
}

// Shutdown closes every open session.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
	h.logger.Info("Websocket sessions closed", zap.Int("count", len(clients)))
}

// Len is the number of open sessions, joined or not.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
