package monitor

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/logging"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

const writeDeadline = 5 * time.Second

// Hub broadcasts the live event stream to connected websocket clients. It
// is itself a sink factory, so browsers observe exactly the event sequence
// the other sinks consume. Slow or broken clients are dropped, never
// waited for.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logging.Logger
	idSeq    atomic.Uint64

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub returns an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log.WithComponent("live-tail"),
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// drain (and discard) client frames so pings and closes are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(v interface{}) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.WriteJSON(v); err != nil {
			h.drop(c)
		}
	}
}

// MakeStream returns a sink broadcasting one stream's events.
func (h *Hub) MakeStream() sink.Sink {
	return &hubSink{hub: h, id: h.idSeq.Add(1)}
}

func (h *Hub) Update() {}

// Close disconnects all clients.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	return nil
}

type hubSink struct {
	hub *Hub
	id  uint64
}

func (s *hubSink) Consume(ev event.Event) {
	s.hub.broadcast(wireEvent(s.id, ev))
}

// wireEvent flattens an event into the JSON shape sent to live-tail
// clients.
func wireEvent(stream uint64, ev event.Event) map[string]interface{} {
	out := map[string]interface{}{"stream": stream}
	switch e := ev.(type) {
	case *event.BeginInfo:
		out["type"] = "begin"
		out["session"] = e.Session
		out["identity"] = e.Identity
	case *event.MessageInfo:
		out["type"] = "message"
		out["offset"] = e.Offset.Seconds()
		out["severity"] = e.Severity.String()
		out["source"] = e.Source.String()
		out["tag"] = e.Tag.String()
		out["instance"] = e.Instance
		out["text"] = sink.FormatMessage(e)
		if len(e.Args) > 0 {
			args := make(map[string]string, len(e.Args))
			for _, a := range e.Args {
				args[a.Name.String()] = sink.FormatValue(a.Value)
			}
			out["args"] = args
		}
	case *event.DeclareStateInfo:
		out["type"] = "declare-state"
		out["source"] = e.Source.String()
		out["state"] = e.StateTag.String()
	case *event.ActiveStateInfo:
		out["type"] = "active-state"
		out["source"] = e.Source.String()
		out["state"] = e.Tag.String()
	case *event.IntervalInfo:
		out["type"] = "interval"
		out["tag"] = e.Tag.String()
		out["instance"] = e.Instance
		out["duration_ns"] = e.Duration.Nanoseconds()
	case *event.AggregateIntervalInfo:
		out["type"] = "interval-summary"
		out["tag"] = e.Tag.String()
		out["instance"] = e.Instance
		out["hit_count"] = e.HitCount
		out["min_ms"] = float64(e.MinDuration) / 1e6
		out["avg_ms"] = float64(e.AvgDuration) / 1e6
		out["max_ms"] = float64(e.MaxDuration) / 1e6
	case *event.HeartbeatInfo:
		out["type"] = "heartbeat"
		out["offset"] = e.Offset.Seconds()
	case *event.FinishInfo:
		out["type"] = "finish"
		out["offset"] = e.Offset.Seconds()
		out["clean"] = e.Clean
	case *event.DescriptionInfo:
		out["type"] = "description"
		out["source"] = e.Source.String()
		out["display_name"] = e.DisplayName
		out["description"] = e.Description
	}
	return out
}
