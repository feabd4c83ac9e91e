package api

import (
	"errors"
	"net/http"
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/service/ratelimit"
	"EdgeScan/internal/services/backtest"
	"EdgeScan/internal/usecase"
	xhttp "EdgeScan/pkg/http"
	xlogger "EdgeScan/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// OptimizeHandler exposes the scanner and the optimization tasks over HTTP.
type OptimizeHandler struct {
	logger   *xlogger.Logger
	tasks    *usecase.TaskManager
	backtest *usecase.BacktestUseCase
	rl       *ratelimit.Limiter

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeWait    time.Duration
}

func NewOptimizeHandler(logger *xlogger.Logger, tasks *usecase.TaskManager, bt *usecase.BacktestUseCase, rl *ratelimit.Limiter) *OptimizeHandler {
	return &OptimizeHandler{
		logger:   logger,
		tasks:    tasks,
		backtest: bt,
		rl:       rl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: 20 * time.Second,
		writeWait:    10 * time.Second,
	}
}

func (h *OptimizeHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/backtest", h.Backtest)
	g.POST("/optimize", h.Start)
	g.GET("/optimize/:id", h.Get)
	g.DELETE("/optimize/:id", h.Cancel)
	g.GET("/optimize/:id/stream", h.Stream)
}

func (h *OptimizeHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Backtest evaluates one explicit configuration synchronously.
func (h *OptimizeHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.backtest.Evaluate(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "backtest", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Start submits an optimization and answers 202 with the task snapshot.
func (h *OptimizeHandler) Start(c echo.Context) error {
	if h.rl != nil && !h.rl.Allow(c.RealIP()) {
		h.logger.Warn("optimize rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}
	req := &models.OptimizePayload{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.tasks.Submit(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "optimize", err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/optimize/"+snap.ID)
	return xhttp.AcceptedResponse(c, snap)
}

func (h *OptimizeHandler) Get(c echo.Context) error {
	snap, err := h.tasks.Get(c.Param("id"))
	if err != nil {
		return h.fail(c, "optimize.get", err)
	}
	return xhttp.SuccessResponse(c, snap)
}

// Cancel requests cancellation; the task confirms with a cancelled event.
func (h *OptimizeHandler) Cancel(c echo.Context) error {
	snap, err := h.tasks.Cancel(c.Param("id"))
	if err != nil {
		return h.fail(c, "optimize.cancel", err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, snap)
}

// Stream relays task events over a WebSocket until the terminal event.
func (h *OptimizeHandler) Stream(c echo.Context) error {
	id := c.Param("id")
	events, unsubscribe, err := h.tasks.Subscribe(id)
	if err != nil {
		return h.fail(c, "optimize.stream", err)
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.logger.Warn("optimize.stream upgrade failed", xlogger.String("task_id", id), xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	// reader goroutine notices client close; incoming frames are discarded
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				h.closeStream(conn, websocket.CloseNormalClosure, "")
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Warn("optimize.stream write failed", xlogger.String("task_id", id), xlogger.Error(err))
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return nil
			}
		case <-closed:
			h.logger.Debug("optimize.stream client closed", xlogger.String("task_id", id))
			return nil
		}
	}
}

func (h *OptimizeHandler) closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeWait))
}

func (h *OptimizeHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto the HTTP error taxonomy.
func toAppError(err error) *xhttp.AppError {
	switch {
	case backtest.IsSampleError(err):
		return xhttp.InsufficientSampleError(err.Error()).WithError(err)
	case backtest.IsInputError(err),
		errors.Is(err, usecase.ErrInvalidRequest),
		errors.Is(err, usecase.ErrNoSeries),
		errors.Is(err, usecase.ErrNoCandleStore):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrTaskNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrTooManyTasks):
		return xhttp.TooManyRequestsError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrNonFinite):
		return xhttp.InternalError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
