package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ebalan/recordlock/metrics"
	"github.com/ebalan/recordlock/service"
)

const (
	watchWriteTimeout = 5 * time.Second
	watchPingInterval = 30 * time.Second
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// V1LockWatch handles GET /v1/locks/watch: a websocket stream of
// lease-state transitions. Optional repeated "scope" query parameters
// narrow the stream to the watched scopes. Delivery is best-effort;
// polling stays the correctness mechanism for guard clients.
func V1LockWatch(hub *service.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scopes := map[string]struct{}{}
		for _, scope := range r.URL.Query()["scope"] {
			scopes[scope] = struct{}{}
		}

		conn, err := watchUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Failed to upgrade watch websocket", zap.Error(err))
			return
		}
		defer conn.Close()

		updates := hub.Subscribe()
		defer hub.Unsubscribe(updates)

		metrics.WatchSubscribersActive.Inc()
		defer metrics.WatchSubscribersActive.Dec()

		// Reader goroutine: the client never sends data frames; reading
		// only surfaces the close handshake.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pings := time.NewTicker(watchPingInterval)
		defer pings.Stop()

		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if len(scopes) > 0 {
					if _, watched := scopes[update.Scope]; !watched {
						continue
					}
				}
				conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
				if err := conn.WriteJSON(update); err != nil {
					logger.Debug("Watch subscriber write failed", zap.Error(err))
					return
				}
			case <-pings.C:
				conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(watchWriteTimeout))
				return
			}
		}
	}
}
