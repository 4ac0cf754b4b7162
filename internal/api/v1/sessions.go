package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/boards"
	"github.com/tphakala/biosignal-go/internal/conf"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// Read modes for GET /sessions/:device/data
const (
	ModeDrain  = "drain"
	ModePeek   = "peek"
	ModeLatest = "latest"
)

// maxFramesPerRequest caps a single data response
const maxFramesPerRequest = 10000

// AcquireRequest is the body of POST /api/v1/sessions
type AcquireRequest struct {
	DeviceID   string        `json:"device_id"`
	Board      boards.Config `json:"board"`
	Capacity   int           `json:"capacity,omitempty"`
	Channels   int           `json:"channels,omitempty"`
	SampleRate float64       `json:"sample_rate,omitempty"`
	Overflow   string        `json:"overflow,omitempty"`
}

// MarkerRequest is the body of POST /sessions/:device/marker
type MarkerRequest struct {
	Value float64 `json:"value"`
}

// DataResponse carries frames read from a session buffer
type DataResponse struct {
	DeviceID string                    `json:"device_id"`
	Mode     string                    `json:"mode"`
	Count    int                       `json:"count"`
	Unread   int                       `json:"unread"`
	Frames   []acquisition.SampleFrame `json:"frames"`
}

// ListSessions handles GET /api/v1/sessions
func (c *Controller) ListSessions(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Registry.Snapshot())
}

// AcquireSession handles POST /api/v1/sessions
func (c *Controller) AcquireSession(ctx echo.Context) error {
	var req AcquireRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	policy := c.defaults.Overflow
	if req.Overflow != "" {
		p, err := acquisition.ParseOverflowPolicy(req.Overflow)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid overflow policy", http.StatusBadRequest)
		}
		policy = p
	}
	if req.Capacity == 0 {
		req.Capacity = c.defaults.Capacity
	}
	if req.Board.Channels == 0 {
		req.Board.Channels = req.Channels
	}
	if req.Board.SampleRate == 0 {
		req.Board.SampleRate = req.SampleRate
	}
	if req.Board.Type == conf.BoardPlayback {
		path, err := boards.ResolveRecording(c.recordings, req.Board.File)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid recording", http.StatusBadRequest)
		}
		req.Board.File = path
	}

	board, err := c.boardFactory(req.Board)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid board configuration", http.StatusBadRequest)
	}

	session, err := c.Registry.Acquire(req.DeviceID, acquisition.SessionConfig{
		Board:      board,
		Capacity:   req.Capacity,
		Channels:   req.Channels,
		SampleRate: req.SampleRate,
		Overflow:   policy,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to acquire session", StatusFor(err))
	}

	GetLogger().Info("session acquired over API",
		logger.String("device_id", session.DeviceID()),
		logger.String("session_id", session.ID()),
		logger.String("board", req.Board.Type))
	return ctx.JSON(http.StatusCreated, session.Stats())
}

// GetSession handles GET /api/v1/sessions/:device
func (c *Controller) GetSession(ctx echo.Context) error {
	session, err := c.Registry.Lookup(ctx.Param("device"))
	if err != nil {
		return c.HandleError(ctx, err, "Session not found", StatusFor(err))
	}
	return ctx.JSON(http.StatusOK, session.Stats())
}

// PrepareSession handles POST /api/v1/sessions/:device/prepare
func (c *Controller) PrepareSession(ctx echo.Context) error {
	return c.transition(ctx, "prepare", func(s *acquisition.Session) error {
		return s.Prepare(ctx.Request().Context())
	})
}

// StartSession handles POST /api/v1/sessions/:device/start
func (c *Controller) StartSession(ctx echo.Context) error {
	return c.transition(ctx, "start", func(s *acquisition.Session) error {
		return s.Start(ctx.Request().Context())
	})
}

// StopSession handles POST /api/v1/sessions/:device/stop
func (c *Controller) StopSession(ctx echo.Context) error {
	return c.transition(ctx, "stop", func(s *acquisition.Session) error {
		return s.Stop(ctx.Request().Context())
	})
}

// ReleaseSession handles POST /api/v1/sessions/:device/release
func (c *Controller) ReleaseSession(ctx echo.Context) error {
	return c.transition(ctx, "release", func(s *acquisition.Session) error {
		return s.Release()
	})
}

func (c *Controller) transition(ctx echo.Context, op string, fn func(*acquisition.Session) error) error {
	session, err := c.Registry.Lookup(ctx.Param("device"))
	if err != nil {
		return c.HandleError(ctx, err, "Session not found", StatusFor(err))
	}

	start := time.Now()
	if err := fn(session); err != nil {
		return c.HandleError(ctx, err, "Failed to "+op+" session", StatusFor(err))
	}

	GetLogger().Debug("session transition over API",
		logger.String("operation", op),
		logger.String("device_id", session.DeviceID()),
		logger.Duration("elapsed", time.Since(start)))
	return ctx.JSON(http.StatusOK, session.Stats())
}

// InsertMarker handles POST /api/v1/sessions/:device/marker
func (c *Controller) InsertMarker(ctx echo.Context) error {
	var req MarkerRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	session, err := c.Registry.Lookup(ctx.Param("device"))
	if err != nil {
		return c.HandleError(ctx, err, "Session not found", StatusFor(err))
	}
	if err := session.InsertMarker(req.Value); err != nil {
		return c.HandleError(ctx, err, "Failed to insert marker", StatusFor(err))
	}
	return ctx.NoContent(http.StatusAccepted)
}

// GetData handles GET /api/v1/sessions/:device/data?n=&mode=drain|peek|latest
func (c *Controller) GetData(ctx echo.Context) error {
	n := maxFramesPerRequest
	if raw := ctx.QueryParam("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return c.HandleError(ctx, err, "Parameter n must be a positive integer", http.StatusBadRequest)
		}
		n = min(v, maxFramesPerRequest)
	}

	mode := ctx.QueryParam("mode")
	if mode == "" {
		mode = ModeDrain
	}

	session, err := c.Registry.Lookup(ctx.Param("device"))
	if err != nil {
		return c.HandleError(ctx, err, "Session not found", StatusFor(err))
	}

	var frames []acquisition.SampleFrame
	switch mode {
	case ModeDrain:
		frames, err = session.Drain(n)
	case ModePeek:
		frames, err = session.Peek(n)
	case ModeLatest:
		frames, err = session.Latest(n)
	default:
		return c.HandleError(ctx, nil, "Mode must be drain, peek or latest", http.StatusBadRequest)
	}
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read session data", StatusFor(err))
	}

	unread, err := session.UnreadCount()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read session data", StatusFor(err))
	}

	if frames == nil {
		frames = []acquisition.SampleFrame{}
	}
	return ctx.JSON(http.StatusOK, DataResponse{
		DeviceID: session.DeviceID(),
		Mode:     mode,
		Count:    len(frames),
		Unread:   unread,
		Frames:   frames,
	})
}
