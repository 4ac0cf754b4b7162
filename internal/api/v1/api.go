// Package api implements the v1 HTTP control API over a session registry.
package api

import (
	"crypto/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/boards"
	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/journal"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// BoardFactory builds a board from a request's board config
type BoardFactory func(cfg boards.Config) (acquisition.Board, error)

// SessionHistory is the read side of the session journal
type SessionHistory interface {
	List(limit int) ([]journal.SessionRecord, error)
	Get(sessionID string) (*journal.SessionRecord, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Registry *acquisition.Registry

	boardFactory BoardFactory
	history      SessionHistory
	defaults     SessionDefaults
	recordings   string
	metrics      http.Handler
	startTime    time.Time
}

// SessionDefaults fill fields omitted from acquire requests
type SessionDefaults struct {
	Capacity int
	Overflow acquisition.OverflowPolicy
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithBoardFactory replaces boards.Create
func WithBoardFactory(f BoardFactory) Option {
	return func(c *Controller) {
		c.boardFactory = f
	}
}

// WithHistory exposes journal records under /journal
func WithHistory(h SessionHistory) Option {
	return func(c *Controller) {
		c.history = h
	}
}

// WithDefaults sets capacity and overflow used when a request omits them
func WithDefaults(d SessionDefaults) Option {
	return func(c *Controller) {
		c.defaults = d
	}
}

// WithRecordingsDir confines playback boards requested over the API to dir.
// Without it playback sessions cannot be acquired over the API.
func WithRecordingsDir(dir string) Option {
	return func(c *Controller) {
		c.recordings = dir
	}
}

// WithMetricsHandler mounts a Prometheus handler at /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(c *Controller) {
		c.metrics = h
	}
}

// GetLogger returns the api module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, registry *acquisition.Registry, opts ...Option) *Controller {
	c := &Controller{
		Echo:         e,
		Registry:     registry,
		boardFactory: boards.Create,
		defaults:     SessionDefaults{Capacity: 45000},
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/boards", c.ListBoards)

	sessions := c.Group.Group("/sessions")
	sessions.GET("", c.ListSessions)
	sessions.POST("", c.AcquireSession)
	sessions.GET("/:device", c.GetSession)
	sessions.POST("/:device/prepare", c.PrepareSession)
	sessions.POST("/:device/start", c.StartSession)
	sessions.POST("/:device/stop", c.StopSession)
	sessions.POST("/:device/release", c.ReleaseSession)
	sessions.POST("/:device/marker", c.InsertMarker)
	sessions.GET("/:device/data", c.GetData)

	if c.history != nil {
		c.Group.GET("/journal", c.ListJournal)
		c.Group.GET("/journal/:session", c.GetJournalEntry)
	}
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics))
	}
}

// HealthCheck handles GET /api/v1/health
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": c.Registry.Len(),
		"uptime":   time.Since(c.startTime).Round(time.Second).String(),
	})
}

// ListBoards handles GET /api/v1/boards
func (c *Controller) ListBoards(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, boards.Available())
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError writes an error response and logs it
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	log := GetLogger()
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Error(err),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
	}
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Debug("API request rejected", fields...)
	}
	return ctx.JSON(code, resp)
}

// StatusFor maps a session or registry error to an HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, acquisition.ErrDeviceBusy),
		errors.Is(err, acquisition.ErrAlreadyStreaming),
		errors.Is(err, acquisition.ErrInvalidTransition),
		errors.Is(err, acquisition.ErrNotPrepared),
		errors.Is(err, acquisition.ErrNotStreaming):
		return http.StatusConflict
	case errors.Is(err, acquisition.ErrNotFound), errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, acquisition.ErrSessionReleased):
		return http.StatusGone
	case errors.Is(err, acquisition.ErrChannelCountMismatch),
		errors.Is(err, acquisition.ErrInvalidConfig),
		errors.Is(err, acquisition.ErrInvalidCapacity),
		errors.Is(err, acquisition.ErrInvalidChannelCount),
		errors.Is(err, acquisition.ErrInvalidMarker),
		errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.Is(err, acquisition.ErrPrepareFailed),
		errors.IsCategory(err, errors.CategoryBoard):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
