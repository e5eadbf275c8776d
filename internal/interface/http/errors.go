package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/pkg/response"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, app.ErrPartialFailure), errors.Is(err, app.ErrTransient), errors.Is(err, app.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with its mapped status. Server-side failures are
// logged and their cause is not echoed to the client.
func writeError(c *gin.Context, logger *logrus.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
		}).Error(msg)
		if status == http.StatusServiceUnavailable && !errors.Is(err, app.ErrUnavailable) {
			c.Header("Retry-After", "1")
		}
		response.Error[any](c, status, msg, nil)
		return
	}
	response.Error[any](c, status, msg, err.Error())
}
