package presenter

import (
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vncconn/pkg/auth"
	"vncconn/pkg/dialer"
)

// Event types broadcast by the Hub.
const (
	EventMessage   = "message"
	EventError     = "error"
	EventClear     = "clear"
	EventConnected = "connected"
	EventFailed    = "failed"
)

const writeWait = 5 * time.Second

// Event is the JSON envelope sent to subscribers.
type Event struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	Addr string    `json:"addr,omitempty"`
	Time time.Time `json:"time"`
}

// Hub mirrors presenter callbacks to websocket subscribers and forwards them
// to the wrapped presenter, which keeps ownership of the connection.
type Hub struct {
	upgrader websocket.Upgrader
	signer   *auth.Signer
	next     dialer.Presenter

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
	last *Event
}

// NewHub wraps next. With a nil signer subscribers are not authenticated.
func NewHub(next dialer.Presenter, signer *auth.Signer) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		signer: signer,
		next:   next,
		subs:   map[*websocket.Conn]struct{}{},
	}
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.signer == nil {
		return true
	}
	token := r.URL.Query().Get("token")
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		token = strings.TrimPrefix(v, "Bearer ")
	}
	if token == "" {
		return false
	}
	_, err := h.signer.Parse(token)
	return err == nil
}

// ServeHTTP upgrades a subscriber and replays the latest event to it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	if h.last != nil {
		h.writeLocked(c, *h.last)
	}
	h.mu.Unlock()
	log.Printf("hub subscriber connected: %s", r.RemoteAddr)
	go h.readLoop(c)
}

// readLoop discards client frames and notices disconnects.
func (h *Hub) readLoop(c *websocket.Conn) {
	defer h.drop(c)
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.subs, c)
	h.mu.Unlock()
	_ = c.Close()
}

func (h *Hub) writeLocked(c *websocket.Conn, ev Event) {
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteJSON(ev); err != nil {
		log.Printf("hub send failed: %v", err)
		delete(h.subs, c)
		_ = c.Close()
	}
}

func (h *Hub) broadcast(ev Event) {
	ev.Time = time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &ev
	for c := range h.subs {
		h.writeLocked(c, ev)
	}
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		_ = c.Close()
	}
	h.subs = map[*websocket.Conn]struct{}{}
}

func (h *Hub) ShowMessage(text string) {
	h.broadcast(Event{Type: EventMessage, Text: text})
	if h.next != nil {
		h.next.ShowMessage(text)
	}
}

func (h *Hub) ShowConnectionErrorDialog(text string) {
	h.broadcast(Event{Type: EventError, Text: text})
	if h.next != nil {
		h.next.ShowConnectionErrorDialog(text)
	}
}

func (h *Hub) ClearMessage() {
	h.broadcast(Event{Type: EventClear})
	if h.next != nil {
		h.next.ClearMessage()
	}
}

func (h *Hub) SuccessfulConnection(conn net.Conn) {
	h.broadcast(Event{Type: EventConnected, Addr: conn.RemoteAddr().String()})
	if h.next != nil {
		h.next.SuccessfulConnection(conn)
		return
	}
	_ = conn.Close()
}

func (h *Hub) ConnectionFailed() {
	h.broadcast(Event{Type: EventFailed})
	if h.next != nil {
		h.next.ConnectionFailed()
	}
}
