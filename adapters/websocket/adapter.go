package websocket

import (
	"net/http"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"reputationkit/core"
	"reputationkit/realtime"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Handler returns an http.Handler that upgrades to WebSocket and streams
// events from the hub. Optional query parameters narrow the stream:
// user=<id> and types=<type>[,<type>...].
func Handler(hub *realtime.Hub) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := filterFromQuery(r)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id, ch := hub.Subscribe(256, filter)
		defer hub.Unsubscribe(id)

		// the read loop only services control frames and notices closure
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(gorillaws.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			case <-r.Context().Done():
				return
			}
		}
	})
}

func filterFromQuery(r *http.Request) realtime.Filter {
	q := r.URL.Query()
	f := realtime.Filter{}
	if u := strings.TrimSpace(q.Get("user")); u != "" {
		if id, err := core.NormalizeUserID(core.UserID(u)); err == nil {
			f.UserID = id
		}
	}
	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, core.EventType(t))
			}
		}
	}
	return f
}
