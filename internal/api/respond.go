package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"asset-tracker/internal/apperr"
	"asset-tracker/internal/auth"
	"asset-tracker/internal/logging"
)

// respondError writes the error envelope for err. Only unexpected failures
// are logged; their detail never reaches the client.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		logging.LogError(log.With("request_id", c.GetString(RequestIDHeader), "path", c.FullPath()), "request failed", err)
	}
	var throttled *auth.ThrottledError
	if errors.As(err, &throttled) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(throttled.RetryAfter.Seconds()))))
	}
	c.AbortWithStatusJSON(status, apperr.BodyOf(err))
}

func badRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apperr.Body{Error: apperr.Detail{
		Code:    "BAD_REQUEST",
		Message: "invalid request body",
	}})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, apperr.BodyOf(apperr.ErrNotFound))
		return 0, false
	}
	return uint(id), true
}
