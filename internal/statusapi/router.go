package statusapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rohmanhakim/crawl-engine/internal/engine"
)

// Controller is the part of the engine the endpoint exposes.
type Controller interface {
	Status() engine.Status
	Stop(force bool)
	OpenOrigin(key string) error
	CloseOrigin(key string) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type actionResponse struct {
	Action string       `json:"action"`
	Origin string       `json:"origin,omitempty"`
	State  engine.State `json:"state"`
}

/*
NewRouter builds the status and control endpoint.

	GET  /status              engine.Status as JSON
	GET  /status.txt          engine.FormatStatus
	POST /stop?force=bool     Stop(force)
	POST /origins/:key/open   OpenOrigin
	POST /origins/:key/close  CloseOrigin

The origin key is path-escaped ("https%3A%2F%2Fexample.com%3A443") or a bare host.
*/
func NewRouter(ctrl Controller, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/status", status(ctrl))
	r.GET("/status.txt", statusText(ctrl))
	r.POST("/stop", stop(ctrl))
	r.POST("/origins/:key/open", originAction(ctrl, "open", ctrl.OpenOrigin))
	r.POST("/origins/:key/close", originAction(ctrl, "close", ctrl.CloseOrigin))
	return r
}

func status(ctrl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Status())
	}
}

func statusText(ctrl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, engine.FormatStatus(ctrl.Status()))
	}
}

func stop(ctrl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		force := false
		if raw := c.Query("force"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "force must be a boolean"})
				return
			}
			force = parsed
		}
		ctrl.Stop(force)
		action := "stop"
		if force {
			action = "force-stop"
		}
		c.JSON(http.StatusAccepted, actionResponse{Action: action, State: ctrl.Status().State})
	}
}

func originAction(ctrl Controller, action string, apply func(key string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("key")
		if err := apply(raw); err != nil {
			c.JSON(statusFor(err), errorResponse{Error: err.Error()})
			return
		}
		key, _ := engine.ParseOriginKey(raw)
		c.JSON(http.StatusOK, actionResponse{Action: action, Origin: key, State: ctrl.Status().State})
	}
}

func statusFor(err error) int {
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) {
		return http.StatusInternalServerError
	}
	switch engErr.Cause {
	case engine.ErrCauseInvalidOrigin:
		return http.StatusBadRequest
	case engine.ErrCauseNotRunning:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("status api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
