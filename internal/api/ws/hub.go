package ws

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

// Hub tracks the subscriber of each session.
//
// A session whose subscriber disconnects without being replaced is
// reported to the session-lost listeners, which makes the hub a
// watchdog.SessionLifecycle.
type Hub struct {
	mu     sync.Mutex
	subs   map[watchdog.SessionID]*client
	closed bool
	lost   []func(watchdog.SessionID)

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		subs:    make(map[watchdog.SessionID]*client),
		logger:  logger.Named("ws"),
		metrics: metrics,
	}
}

// Publish pushes a dispatched event to the session's subscriber. It returns
// false when nobody is subscribed or the subscriber is too far behind.
func (h *Hub) Publish(sessionID watchdog.SessionID, eventID watchdog.EventID, dispatchTimeMs int64) bool {
	h.mu.Lock()
	c := h.subs[sessionID]
	h.mu.Unlock()

	if c == nil {
		return false
	}
	if !c.enqueue(transport.EventMessage(sessionID, eventID, dispatchTimeMs)) {
		h.logger.Warn("subscriber send buffer full, event not forwarded",
			logging.Session(sessionID), logging.Event(eventID),
			zap.String("conn_id", c.id.String()))
		return false
	}
	return true
}

// Subscribed reports whether sessionID has a subscriber.
func (h *Hub) Subscribed(sessionID watchdog.SessionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[sessionID]
	return ok
}

// Len returns the number of subscribed sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// register installs c as its session's subscriber and returns the one it
// replaced, if any.
func (h *Hub) register(c *client) (replaced *client, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	replaced = h.subs[c.sessionID]
	h.subs[c.sessionID] = c
	return replaced, true
}

// SubscribeSessionLost registers fn to run when a session loses its
// subscriber.
func (h *Hub) SubscribeSessionLost(fn func(watchdog.SessionID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lost = append(h.lost, fn)
}

// unregister removes c unless it was already replaced. Listeners run
// outside the lock.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if h.subs[c.sessionID] != c {
		h.mu.Unlock()
		return
	}
	delete(h.subs, c.sessionID)
	listeners := slices.Clone(h.lost)
	h.mu.Unlock()

	c.logger.Info("session lost its subscriber")
	for _, fn := range listeners {
		fn(c.sessionID)
	}
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[watchdog.SessionID]*client)
	h.mu.Unlock()

	for _, c := range subs {
		c.shutdown("server shutting down")
	}
}
