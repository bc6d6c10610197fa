// Package session holds per-user transient dialog state. Sessions track the
// active flow, its current step, and flow-scoped scratch values. State lives
// in memory only and is discarded on flow completion, cancellation, or
// process restart.
package session

import (
	"sync"

	"github.com/usmnv/gdbot/internal/database"
)

// Session is the scratch state of one user's active flow. A step's handler
// writes the values the next step reads, so messages for one user must be
// processed in arrival order.
type Session struct {
	Owner int64
	Flow  string
	Step  string

	// Rates is the exchange-rate list fetched at flow entry; selection
	// steps resolve button labels against it.
	Rates        []database.ExchangeRate
	FromCurrency string
	ToCurrency   string

	Methods    []database.DeliveryMethod
	MethodCode string

	Shipments  []database.Shipment
	ShipmentID int64

	TrackCode   string
	Description string

	Audience database.BroadcastAudience
}

// Store keeps at most one session per user identity. Each user's session is
// exclusively owned by that user's handler invocation; the map itself is
// guarded for concurrent access across users.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Begin replaces any existing session for the user with a fresh one at the
// given flow entry step and returns it.
func (st *Store) Begin(userID int64, flow, step string) *Session {
	s := &Session{Owner: userID, Flow: flow, Step: step}
	st.mu.Lock()
	st.sessions[userID] = s
	st.mu.Unlock()
	return s
}

// Get returns the user's active session, if any.
func (st *Store) Get(userID int64) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[userID]
	st.mu.RUnlock()
	return s, ok
}

// Active reports whether the user has an active flow.
func (st *Store) Active(userID int64) bool {
	_, ok := st.Get(userID)
	return ok
}

// Clear discards the user's session and all its scratch data.
func (st *Store) Clear(userID int64) {
	st.mu.Lock()
	delete(st.sessions, userID)
	st.mu.Unlock()
}
