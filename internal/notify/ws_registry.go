// Package notify pushes order status transitions to connected customers.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StatusUpdate is the payload pushed when a contract or reservation changes
// state.
type StatusUpdate struct {
	OrderID    uuid.UUID  `json:"order_id"`
	ContractID *uuid.UUID `json:"contract_id,omitempty"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	At         time.Time  `json:"at"`
}

// Notifier delivers one status update for an order. Best-effort: delivery
// failures never fail the underlying transaction.
type Notifier interface {
	Notify(orderID uuid.UUID, update StatusUpdate) error
}

// WSSession is one connected customer socket.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(update StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(update)
}

// WSRegistry holds the live sockets, keyed by order ID.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[uuid.UUID]*WSSession)}
}

// Add registers the socket and starts its read pump. A reconnect for the same
// order replaces the previous session and closes its socket.
func (r *WSRegistry) Add(orderID uuid.UUID, conn *websocket.Conn) {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	if old, ok := r.sessions[orderID]; ok {
		old.conn.Close()
	}
	r.sessions[orderID] = s
	r.mu.Unlock()

	go r.readPump(orderID, s)
}

// readPump drains the socket until it errors. Customers do not send anything
// we act on; the reader exists so a closed socket is noticed and dropped from
// the registry instead of lingering until process restart.
func (r *WSRegistry) readPump(orderID uuid.UUID, s *WSSession) {
	defer func() {
		r.dropSession(orderID, s)
		s.conn.Close()
	}()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// dropSession removes the session only while it is still the registered one,
// so the old pump of a replaced connection cannot tear down its successor.
func (r *WSRegistry) dropSession(orderID uuid.UUID, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[orderID]; ok && cur == s {
		delete(r.sessions, orderID)
	}
}

func (r *WSRegistry) Remove(orderID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, orderID)
}

func (r *WSRegistry) Notify(orderID uuid.UUID, update StatusUpdate) error {
	r.mu.RLock()
	s, ok := r.sessions[orderID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(update)
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
