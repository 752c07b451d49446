package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leroytan/the-website-sub000/internal/common"
	"github.com/leroytan/the-website-sub000/internal/logging"
	"github.com/leroytan/the-website-sub000/internal/server/connections"
	"github.com/leroytan/the-website-sub000/internal/server/models"
)

const maxFrameSize = 16 << 10

// Gateway stores and delivers a message; *services.ChatService implements it.
type Gateway interface {
	Send(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (*models.Message, error)
}

type ConnRegistry interface {
	Connect(conn connections.Conn, userID string) error
	Disconnect(conn connections.Conn, userID string)
}

type TokenVerifier interface {
	UserID(token string) (string, error)
}

type inboundFrame struct {
	ChatID      string `json:"chat_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorFrame struct {
	Error errorBody `json:"error"`
}

// frameFor renders err for the client. Errors without a code are reported as
// internal so driver details never reach the socket.
func frameFor(err error) []byte {
	body := errorBody{Code: string(common.CodeInternal), Message: "internal error"}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		body = errorBody{Code: string(appErr.Code), Message: appErr.Message}
	}
	b, _ := json.Marshal(errorFrame{Error: body})
	return b
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsHandler struct {
	gateway  Gateway
	registry ConnRegistry
	verifier TokenVerifier
	log      logging.Logger

	writeTimeout time.Duration
	pongWait     time.Duration
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	return r.URL.Query().Get("token")
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.UserID(bearerToken(r))
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, string(common.CodeUnauthenticated), "missing or invalid access token")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(ws, h.writeTimeout, h.pongWait)
	if err := h.registry.Connect(conn, userID); err != nil {
		h.log.Warn(r.Context(), "connect failed", "user_id", userID, "error", err)
		_ = conn.Close()
		return
	}
	defer func() {
		h.registry.Disconnect(conn, userID)
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go conn.keepAlive(ctx, h.pongWait*9/10)

	h.log.Info(ctx, "connected", "user_id", userID)
	h.readLoop(ctx, conn, userID)
	h.log.Info(ctx, "disconnected", "user_id", userID)
}

func (h *wsHandler) readLoop(ctx context.Context, conn *wsConn, userID string) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn(ctx, "read failed", "user_id", userID, "error", err)
			}
			return
		}

		var in inboundFrame
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			h.log.Warn(ctx, "dropping malformed frame", "user_id", userID, "error", err)
			continue
		}

		msgType, ok := models.ParseMessageType(in.MessageType)
		if !ok {
			h.reply(ctx, conn, userID, common.ErrUnknownMsgType)
			continue
		}

		if _, err := h.gateway.Send(ctx, in.ChatID, userID, in.Content, msgType); err != nil {
			if common.CodeOf(err) == common.CodeUnknown {
				h.log.Error(ctx, "send failed", "user_id", userID, "chat_id", in.ChatID, "error", err)
			}
			h.reply(ctx, conn, userID, err)
		}
	}
}

func (h *wsHandler) reply(ctx context.Context, conn *wsConn, userID string, err error) {
	if werr := conn.WriteText(frameFor(err)); werr != nil {
		h.log.Warn(ctx, "error frame not written", "user_id", userID, "error", werr)
	}
}

// wsConn adapts a websocket to connections.Conn. Writes are serialized since
// the registry and the read loop both write.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, writeTimeout, pongWait time.Duration) *wsConn {
	return &wsConn{ws: ws, writeTimeout: writeTimeout, pongWait: pongWait}
}

// Accept arms the read deadline that pongs keep extending.
func (c *wsConn) Accept() error {
	c.ws.SetReadLimit(maxFrameSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	return nil
}

func (c *wsConn) WriteText(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}

func (c *wsConn) keepAlive(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		}
	}
}
