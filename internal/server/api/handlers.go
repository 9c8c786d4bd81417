package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/auth"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/metrics"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/service"
)

// webhookBodyLimit bounds webhook payloads read into memory.
const webhookBodyLimit = 1 << 20

// Handler contains the HTTP handlers for the voice note API.
type Handler struct {
	users   *service.UserService
	uploads *service.UploadService
	billing *service.BillingService
	// identityWebhook is nil when no signing secret is configured.
	identityWebhook *auth.WebhookVerifier
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(users *service.UserService, uploads *service.UploadService, billing *service.BillingService, identityWebhook *auth.WebhookVerifier) *Handler {
	return &Handler{
		users:           users,
		uploads:         uploads,
		billing:         billing,
		identityWebhook: identityWebhook,
	}
}

type createUserRequest struct {
	IdentityKey string `json:"identityKey"`
}

type userResponse struct {
	IdentityKey string `json:"identityKey"`
	HasPaid     bool   `json:"hasPaid"`
	Created     bool   `json:"created"`
}

// HandleCreateUser handles POST /users/create.
// Returns 201 when the record was inserted and 200 when it already existed.
func (h *Handler) HandleCreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.IdentityKey) == "" {
		return errorJSON(c, http.StatusBadRequest, ReasonBadRequest, "identityKey is required")
	}

	user, created, err := h.users.Register(c.Request().Context(), req.IdentityKey)
	if err != nil {
		return mapServiceError(c, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, userResponse{
		IdentityKey: user.IdentityKey,
		HasPaid:     user.HasPaid,
		Created:     created,
	})
}

// HandleMe handles GET /users/me.
func (h *Handler) HandleMe(c echo.Context) error {
	profile, err := h.users.Profile(c.Request().Context(), auth.IdentityKey(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// HandleTranscribe handles POST /voice/transcribe.
// Accepts a multipart form with a "file" field.
func (h *Handler) HandleTranscribe(c echo.Context) error {
	key := auth.IdentityKey(c)
	if key == "" {
		return mapServiceError(c, service.ErrMissingIdentity)
	}

	// Gate before parsing the multipart body.
	if err := h.uploads.Admit(c.Request().Context(), key); err != nil {
		return mapServiceError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return mapServiceError(c, service.ErrFileTooLarge)
		}
		return mapServiceError(c, service.ErrMissingFile)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return mapServiceError(c, err)
	}
	defer src.Close()

	result, err := h.uploads.Transcribe(c.Request().Context(), key, service.FileUpload{
		Name:    fileHeader.Filename,
		Size:    fileHeader.Size,
		Content: src,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// HandleCreateCheckoutSession handles POST /payment/create-checkout-session.
func (h *Handler) HandleCreateCheckoutSession(c echo.Context) error {
	url, err := h.billing.StartCheckout(c.Request().Context(), auth.IdentityKey(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

// HandlePaymentWebhook handles POST /payment/webhook.
// The raw body is verified against the Stripe-Signature header before
// anything is trusted.
func (h *Handler) HandlePaymentWebhook(c echo.Context) error {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		slog.Debug("payment webhook handled", "type", eventType, "status", status, "duration", time.Since(start))
	}()

	payload, err := readLimited(c, webhookBodyLimit)
	if err != nil {
		status = http.StatusBadRequest
		return errorJSON(c, status, ReasonBadRequest, "failed to read request body")
	}

	out, err := h.billing.HandlePaymentEvent(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		status = statusFor(err)
		return mapServiceError(c, err)
	}
	eventType = out.EventType

	resp := echo.Map{"received": true}
	if out.Duplicate {
		resp["status"] = "duplicate"
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleIdentityWebhook handles POST /webhooks/identity-provider.
func (h *Handler) HandleIdentityWebhook(c echo.Context) error {
	payload, err := readLimited(c, webhookBodyLimit)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, ReasonBadRequest, "failed to read request body")
	}

	if h.identityWebhook != nil {
		if err := h.identityWebhook.Verify(c.Request().Header, payload); err != nil {
			slog.Warn("identity webhook rejected", "error", err)
			return mapServiceError(c, service.ErrInvalidSignature)
		}
	}

	if err := h.users.HandleIdentityEvent(c.Request().Context(), payload); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including store connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "connected"
	if err := h.users.Ping(ctx); err != nil {
		status = "degraded"
		dbStatus = "unreachable"
		slog.Warn("health check failed", "error", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /stats.
// Returns aggregate user and upload counts.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.users.Stats(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_users":   stats.TotalUsers,
		"paid_users":    stats.PaidUsers,
		"total_uploads": stats.TotalUploads,
	})
}

func readLimited(c echo.Context, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, limit)
	return io.ReadAll(body)
}

// statusFor mirrors mapServiceError's status choice for metrics labels.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidSignature), errors.Is(err, service.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
