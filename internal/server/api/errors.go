package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/service"
)

// Stable machine-readable reasons returned with every error body.
const (
	ReasonUnauthorized     = "Unauthorized"
	ReasonNotFound         = "NotFound"
	ReasonLimitExceeded    = "LimitExceeded"
	ReasonBadRequest       = "BadRequest"
	ReasonMissingFile      = "MissingFile"
	ReasonFileTooLarge     = "FileTooLarge"
	ReasonInvalidSignature = "InvalidSignature"
	ReasonRateLimited      = "RateLimited"
	ReasonInternal         = "Internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func errorJSON(c echo.Context, status int, reason, message string) error {
	return c.JSON(status, ErrorResponse{Error: message, Reason: reason})
}

// mapServiceError translates service-layer errors into HTTP responses.
// Anything unrecognised is logged and reported as a generic failure.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingIdentity):
		return errorJSON(c, http.StatusUnauthorized, ReasonUnauthorized, "missing identity")
	case errors.Is(err, service.ErrUserNotFound):
		return errorJSON(c, http.StatusNotFound, ReasonNotFound, "user not found")
	case errors.Is(err, service.ErrLimitExceeded):
		return errorJSON(c, http.StatusForbidden, ReasonLimitExceeded, "free upload limit reached, upgrade to continue")
	case errors.Is(err, service.ErrMissingFile):
		return errorJSON(c, http.StatusBadRequest, ReasonMissingFile, "file is required (use form field 'file')")
	case errors.Is(err, service.ErrFileTooLarge):
		return errorJSON(c, http.StatusRequestEntityTooLarge, ReasonFileTooLarge, "file exceeds maximum allowed size")
	case errors.Is(err, service.ErrInvalidSignature):
		return errorJSON(c, http.StatusBadRequest, ReasonInvalidSignature, "invalid signature")
	case errors.Is(err, service.ErrInvalidPayload):
		return errorJSON(c, http.StatusBadRequest, ReasonBadRequest, "invalid payload")
	default:
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		return errorJSON(c, http.StatusInternalServerError, ReasonInternal, "internal server error")
	}
}

// httpErrorHandler renders errors that escape handlers, including recovered
// panics and router misses, in the same body shape as mapServiceError.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		}
	} else {
		slog.Error("unhandled error", "path", c.Request().URL.Path, "error", err)
	}

	reason := ReasonInternal
	switch {
	case status == http.StatusUnauthorized:
		reason = ReasonUnauthorized
	case status == http.StatusNotFound:
		reason = ReasonNotFound
	case status == http.StatusRequestEntityTooLarge:
		reason = ReasonFileTooLarge
	case status == http.StatusTooManyRequests:
		reason = ReasonRateLimited
	case status >= 400 && status < 500:
		reason = ReasonBadRequest
	}
	if status >= 500 {
		message = "internal server error"
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = errorJSON(c, status, reason, message)
	}
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
