package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/talkabout/talkabout/internal/repository"
	"github.com/talkabout/talkabout/internal/waitingroom"
)

// Close codes sent before dropping an unwanted websocket.  Values in
// the 4000 range are application defined.
const (
	closeRoomClosed  = 4001
	closeNotEnrolled = 4003
)

// upgrader performs the HTTP to websocket handshake.  Origin checking
// is left to the CORS layer in front; the token in the query string
// already authenticated the caller.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WaitingRoomHandler serves the waiting-room websocket endpoint.
type WaitingRoomHandler struct {
	Registry *waitingroom.Registry
	Hub      *waitingroom.Hub
}

func NewWaitingRoomHandler(reg *waitingroom.Registry, hub *waitingroom.Hub) *WaitingRoomHandler {
	return &WaitingRoomHandler{Registry: reg, Hub: hub}
}

// Connect upgrades the request and runs the connection's read loop
// until the client goes away.  The lifecycle is strict: join the
// registry, register with the hub, push the initial participant list,
// then read ping/ready messages.  Every exit path marks the
// participant disconnected exactly once.
func (h *WaitingRoomHandler) Connect(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Upgrade already wrote the error response
	}
	client := waitingroom.NewClient(conn)
	go client.WritePump()

	ctx := c.Request().Context()
	connID := c.Request().Header.Get("Sec-WebSocket-Key")
	if err := h.Registry.Join(ctx, eventID, uid, connID); err != nil {
		closeWith(conn, joinCloseCode(err), err.Error())
		client.Close()
		return nil
	}

	// The join broadcast went out before this socket subscribed, so
	// hand the initial participant list to the new client directly.
	h.Hub.Add(eventID, client)
	if entries, err := h.Registry.Snapshot(ctx, eventID); err == nil {
		if payload, err := json.Marshal(waitingroom.NewParticipantList(entries)); err == nil {
			client.Send(payload)
		}
	}

	h.readLoop(ctx, client, eventID, uid)

	h.Hub.Remove(eventID, client)
	if err := h.Registry.MarkDisconnected(context.Background(), eventID, uid); err != nil {
		log.Printf("waiting-room: mark disconnected user %d event %d: %v", uid, eventID, err)
	}
	return nil
}

// readLoop consumes client messages until the socket dies.
func (h *WaitingRoomHandler) readLoop(ctx context.Context, client *waitingroom.Client, eventID, uid uint64) {
	for {
		payload, err := client.ReadMessage()
		if err != nil {
			return
		}
		var msg waitingroom.ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue // garbage frames are ignored, not fatal
		}
		switch msg.Type {
		case waitingroom.TypePing:
			if err := h.Registry.Heartbeat(ctx, eventID, uid); err != nil {
				log.Printf("waiting-room: heartbeat user %d event %d: %v", uid, eventID, err)
			}
			if reply, err := json.Marshal(waitingroom.Pong(time.Now())); err == nil {
				client.Send(reply)
			}
		case waitingroom.TypeReady:
			if err := h.Registry.MarkReady(ctx, eventID, uid); err != nil {
				log.Printf("waiting-room: mark ready user %d event %d: %v", uid, eventID, err)
			}
		}
	}
}

func joinCloseCode(err error) int {
	switch err {
	case repository.ErrNotEnrolled:
		return closeNotEnrolled
	case waitingroom.ErrRoomClosed:
		return closeRoomClosed
	}
	return websocket.CloseInternalServerErr
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}
