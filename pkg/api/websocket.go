package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/frostwall/collabd/pkg/events"
)

// writeTimeout bounds each WebSocket write so a stalled peer cannot pin
// the session goroutine forever.
const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // peers are local, no origin policy
	},
}

// wsHandler handles GET /ws. After the upgrade it attaches to the bus,
// sends the snapshot as the first frame, then forwards every live event
// until the peer disconnects or the subscriber is dropped.
func (s *Server) wsHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	snapshot, sub := s.store.Attach()
	slog.Debug("websocket client attached", "subscriber_id", sub.ID())

	sess := &wsSession{
		conn:  conn,
		sub:   sub,
		pings: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	sess.run(events.Event{Type: events.TypeSnapshot, Data: snapshot})
	slog.Debug("websocket client detached",
		"subscriber_id", sub.ID(), "lagged", sub.Lagged())
}

// wsSession pumps one subscriber's events onto one connection. All
// writes happen on the goroutine running run(); the read loop only
// signals (ping requests, disconnect), never writes.
type wsSession struct {
	conn  *websocket.Conn
	sub   *events.Subscriber
	pings chan struct{}
	done  chan struct{}
}

func (w *wsSession) run(snapshot events.Event) {
	defer func() {
		w.sub.Close()
		_ = w.conn.Close()
	}()

	go w.readLoop()

	// The snapshot is always the first frame. The subscriber was
	// registered in the same critical section the snapshot was taken in,
	// so everything after this frame is strictly newer state.
	if err := w.writeFrame(snapshot); err != nil {
		return
	}

	for {
		select {
		case evt, ok := <-w.sub.Events():
			if !ok {
				if w.sub.Lagged() {
					w.closeWith(websocket.ClosePolicyViolation, "lagged")
				}
				return
			}
			if err := w.writeFrame(evt); err != nil {
				return
			}
		case <-w.pings:
			if err := w.writeFrame(events.Event{Type: "pong"}); err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

// readLoop drains client frames until the peer disconnects. The only
// interpreted message is {"type":"ping"}; everything else is ignored.
func (w *wsSession) readLoop() {
	defer close(w.done)
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case w.pings <- struct{}{}:
			default:
			}
		}
	}
}

// writeFrame sends one JSON object per text frame.
func (w *wsSession) writeFrame(evt events.Event) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := w.conn.WriteJSON(evt); err != nil {
		slog.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

// closeWith sends a close frame with the given code and reason. Best
// effort: the peer may already be gone.
func (w *wsSession) closeWith(code int, reason string) {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason))
}
