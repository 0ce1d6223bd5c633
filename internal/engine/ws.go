package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsUpgrader allows all origins; cmd/server/main.go mounts no auth
// middleware in front of this handler.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WebSocketHandler bridges the EventBus onto
// GET /ws?topic=workflow:{id}|execution:{id}. Each connection
// subscribes to exactly one topic for its lifetime; there is no
// subscribe/unsubscribe message protocol, unlike a general-purpose hub,
// because a client only ever wants progress for the execution or workflow
// it asked for in the URL.
type WebSocketHandler struct {
	bus *EventBus
}

func NewWebSocketHandler(bus *EventBus) *WebSocketHandler {
	return &WebSocketHandler{bus: bus}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		http.Error(w, "topic query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := h.bus.Subscribe(topic)
	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

// readPump's only job is detecting client disconnect; progress events flow
// one-way from server to client, so anything the client sends is discarded.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, sub *Subscription) {
	defer func() {
		h.bus.Unsubscribe(sub)
		conn.Close()
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
