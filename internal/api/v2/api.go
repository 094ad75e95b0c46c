// internal/api/v2/api.go
package api

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gifttrack/gifttrack-go/internal/analytics"
	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/logging"
	"github.com/gifttrack/gifttrack-go/internal/observability"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Analytics *analytics.Engine

	logger         *log.Logger
	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
	metrics        *observability.Metrics
	startTime      time.Time
}

// New creates a new API controller and registers its routes on the given
// echo instance.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	engine *analytics.Engine, logger *log.Logger,
	metrics *observability.Metrics) (*Controller, error) {

	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:        e,
		DS:          ds,
		Settings:    settings,
		Analytics:   engine,
		logger:      logger,
		apiLevelVar: new(slog.LevelVar),
		metrics:     metrics,
		startTime:   time.Now(),
	}

	if settings.Debug {
		c.apiLevelVar.Set(slog.LevelDebug)
	} else {
		c.apiLevelVar.Set(slog.LevelInfo)
	}

	var err error
	logFilePath := filepath.Join("logs", "api.log")
	c.apiLogger, c.apiLoggerClose, err = logging.NewFileLogger(logFilePath, "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Failed to initialize API file logger: %v, structured logging disabled", err)
		c.apiLogger = nil
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	c.Group = e.Group("/api/v2")
	c.initRoutes()

	return c, nil
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.GetHealth)

	c.initGiftRoutes()
	c.initAnalyticsRoutes()
}

// Shutdown closes the API log file.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}
}

// HealthResponse is the payload for the health probe.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	TrackedGifts  int64  `json:"tracked_gifts"`
}

// GetHealth handles GET /api/v2/health
func (c *Controller) GetHealth(ctx echo.Context) error {
	count, err := c.DS.CountGifts()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query gift count", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		TrackedGifts:  count,
	})
}

// ErrorResponse is the uniform error envelope returned by all handlers.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp"`
}

// NewErrorResponse builds an error envelope with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorMessage := message
	if err != nil {
		errorMessage = err.Error()
	}

	return &ErrorResponse{
		Error:         errorMessage,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.New().String()[:8],
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}

// HandleError logs the error and writes the JSON error envelope.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	c.logger.Printf("API Error [%s]: %s: %v", errorResp.CorrelationID, message, err)
	if c.apiLogger != nil {
		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", fmt.Sprint(err),
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ctx.RealIP(),
		)
	}

	return ctx.JSON(code, errorResp)
}

// Debug logs debug messages when debug mode is enabled
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)
		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}

// paginationParams reads limit and offset query parameters with defaults
// and bounds.
func paginationParams(ctx echo.Context) (limit, offset int) {
	limit = defaultPageLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if raw := ctx.QueryParam("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
