package trainer

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"
)

// Monitor exposes the trainer's current stats over HTTP and pushes each
// new snapshot to connected websocket clients, giving the "log the scalar
// loss" / "throughput metric" bullets of §4.4 an observable surface
// beyond stderr.
type Monitor struct {
	mu       sync.Mutex
	latest   Snapshot
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]struct{}
}

// NewMonitor returns a Monitor ready to be attached to a Trainer via
// Trainer.OnSnapshot(monitor.Publish) and served with Handler().
func NewMonitor() *Monitor {
	return &Monitor{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Publish records snap as the latest stats and fans it out to every
// connected websocket client, dropping any client whose write fails.
func (m *Monitor) Publish(snap Snapshot) {
	m.mu.Lock()
	m.latest = snap
	clients := make([]*websocket.Conn, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		if err := c.WriteJSON(snap); err != nil {
			klog.V(1).Infof("trainer monitor: dropping client: %v", err)
			m.mu.Lock()
			delete(m.clients, c)
			m.mu.Unlock()
			c.Close()
		}
	}
}

// Handler returns the mux router serving GET /stats (latest snapshot as
// JSON) and GET /ws (a websocket stream of every subsequent snapshot).
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/stats", m.serveStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", m.serveWS).Methods(http.MethodGet)
	return r
}

func (m *Monitor) serveStats(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	snap := m.latest
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		klog.Warningf("trainer monitor: encode stats response: %v", err)
	}
}

func (m *Monitor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.Warningf("trainer monitor: websocket upgrade failed: %v", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = struct{}{}
	snap := m.latest
	m.mu.Unlock()

	if err := conn.WriteJSON(snap); err != nil {
		conn.Close()
		m.mu.Lock()
		delete(m.clients, conn)
		m.mu.Unlock()
	}
}
