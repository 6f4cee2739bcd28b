package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// totalMessage is the only frame the feed sends.
type totalMessage struct {
	Total int `json:"total"`
}

// HandleTotalFeed streams the stored swap total: one frame immediately, then
// one whenever the total changes, checked once per second. The read loop
// exists only to notice the peer closing.
// Endpoint: GET /ws/total
func (c *Controller) HandleTotalFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := -1
	for {
		total, err := c.Store.Total(r.Context())
		if err == nil && total != last {
			if err := conn.WriteJSON(totalMessage{Total: total}); err != nil {
				return
			}
			last = total
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
