package http

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

// Bundle names are reverse-DNS style identifiers.
var bundlePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

const maxBundleLength = 256

// Watchdog is the subset of the watchdog the API drives.
type Watchdog interface {
	AddTimer(eventID watchdog.EventID, dispatchTime int64, sessionID watchdog.SessionID) bool
	MarkProcessed(eventID watchdog.EventID, sessionID watchdog.SessionID)
	RemoveTimers(sessionID watchdog.SessionID)
	OnSessionLost(sessionID watchdog.SessionID)
	SetApplicationInfo(sessionID watchdog.SessionID, pid int32, bundleName string)
	Session(sessionID watchdog.SessionID) watchdog.SessionStatus
	Stats() watchdog.Stats
}

// Publisher forwards dispatched events to a session's consumer.
type Publisher interface {
	Publish(sessionID watchdog.SessionID, eventID watchdog.EventID, dispatchTimeMs int64) bool
	Len() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	wd      Watchdog
	pub     Publisher
	clock   clock.Clock
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandlers creates a new handler set. pub and metrics may be nil.
func NewHandlers(wd Watchdog, pub Publisher, clk clock.Clock, metrics *monitoring.Metrics, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		wd:      wd,
		pub:     pub,
		clock:   clk,
		metrics: metrics,
		logger:  logger.Named("api"),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	v1.GET("/stats", h.Stats)

	sessions := v1.Group("/sessions/:id")
	sessions.POST("/events", h.DispatchEvent)
	sessions.POST("/ack", h.Ack)
	sessions.GET("", h.GetSession)
	sessions.PUT("/app", h.SetAppInfo)
	sessions.DELETE("/timers", h.RemoveTimers)
	sessions.DELETE("", h.SessionLost)
}

type appInfoRequest struct {
	PID        int32  `json:"pid"`
	BundleName string `json:"bundle_name" binding:"required"`
}

type eventRequest struct {
	EventID        *int64 `json:"event_id" binding:"required,min=0"`
	DispatchTimeMs *int64 `json:"dispatch_time_ms"`
}

type ackRequest struct {
	EventID *int64 `json:"event_id" binding:"required,min=0"`
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func sessionParam(c *gin.Context) (watchdog.SessionID, bool) {
	n, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "session id must be an int32")
		return 0, false
	}
	return watchdog.SessionID(n), true
}

func sessionState(s watchdog.SessionStatus) transport.SessionState {
	return transport.SessionState{
		SessionID:     s.SessionID,
		Frozen:        s.Frozen,
		PendingEvents: s.PendingEvents,
		PID:           s.PID,
		BundleName:    s.BundleName,
	}
}

// Root identifies the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "anrd",
	})
}

// Health handles liveness checks
func (h *Handlers) Health(c *gin.Context) {
	stats := h.wd.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"outstanding_timers": stats.OutstandingTimers,
		"frozen_sessions":    stats.FrozenSessions,
	})
}

// DispatchEvent arms the deadline of a dispatched event and forwards the
// event to the session's stream subscriber. The deadline always counts from
// now; a supplied dispatch_time_ms only decides whether an ack leaves the
// session frozen.
func (h *Handlers) DispatchEvent(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	now := h.clock.NowMs()
	dispatchTime := now
	if req.DispatchTimeMs != nil {
		dispatchTime = *req.DispatchTimeMs
		if dispatchTime < 0 || dispatchTime > now {
			badRequest(c, "dispatch_time_ms must be between 0 and the daemon's current time "+strconv.FormatInt(now, 10))
			return
		}
	}
	eventID := *req.EventID

	tracked := h.wd.AddTimer(eventID, dispatchTime, sessionID)

	forwarded := false
	if h.pub != nil {
		forwarded = h.pub.Publish(sessionID, eventID, dispatchTime)
	}

	status := http.StatusAccepted
	if !tracked {
		status = http.StatusOK
		h.logger.Debug("event not tracked", logging.Session(sessionID), logging.Event(eventID))
	}
	c.JSON(status, gin.H{
		"session_id": sessionID,
		"event_id":   eventID,
		"tracked":    tracked,
		"forwarded":  forwarded,
	})
}

// Ack acknowledges every event of the session up to event_id.
func (h *Handlers) Ack(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	h.wd.MarkProcessed(*req.EventID, sessionID)
	c.JSON(http.StatusOK, sessionState(h.wd.Session(sessionID)))
}

// GetSession returns the session state. Unknown sessions report defaults.
func (h *Handlers) GetSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionState(h.wd.Session(sessionID)))
}

// SetAppInfo registers the process behind a session.
func (h *Handlers) SetAppInfo(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req appInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.BundleName) > maxBundleLength || !bundlePattern.MatchString(req.BundleName) {
		badRequest(c, "bundle_name must be at most 256 characters of letters, digits, '.', '_' or '-'")
		return
	}

	h.wd.SetApplicationInfo(sessionID, req.PID, req.BundleName)
	h.logger.Info("app info registered", logging.Session(sessionID),
		zap.Int32("pid", req.PID), zap.String("bundle", req.BundleName))
	c.Status(http.StatusNoContent)
}

// RemoveTimers cancels every armed deadline of the session.
func (h *Handlers) RemoveTimers(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	h.wd.RemoveTimers(sessionID)
	c.Status(http.StatusNoContent)
}

// SessionLost tears the session down.
func (h *Handlers) SessionLost(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	h.wd.OnSessionLost(sessionID)
	c.Status(http.StatusNoContent)
}

// Stats returns watchdog counters and the ack latency summary.
func (h *Handlers) Stats(c *gin.Context) {
	subscribers := 0
	if h.pub != nil {
		subscribers = h.pub.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"watchdog":    h.wd.Stats(),
		"ack_latency": h.metrics.AckLatencySummary(),
		"subscribers": subscribers,
	})
}
