package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/auth"
	"github.com/Serge-Moskalenko/SaaS-project/internal/server/config"
)

// multipartSlack covers form boundaries and headers around the file part.
const multipartSlack = 64 << 10

// SetupRouter creates and configures the echo router with all routes and middleware.
// verifier may be nil, in which case the X-User-Id header identifies callers.
func SetupRouter(handler *Handler, cfg *config.Config, verifier auth.TokenVerifier) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpErrorHandler

	// Global middleware
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.AllowedOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, auth.HeaderUserID},
	}))

	// Health, stats & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/stats", handler.HandleStats)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Registration and provider callbacks carry their own identity or signature
	e.POST("/users/create", handler.HandleCreateUser)
	e.POST("/payment/webhook", handler.HandlePaymentWebhook)
	e.POST("/webhooks/identity-provider", handler.HandleIdentityWebhook)

	// Caller-identified routes
	identify := auth.Middleware(verifier)
	e.GET("/users/me", handler.HandleMe, identify)
	e.POST("/payment/create-checkout-session", handler.HandleCreateCheckoutSession, identify)

	// Upload (rate-limited per identity, body-limited)
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	e.POST("/voice/transcribe", handler.HandleTranscribe,
		middleware.BodyLimit(bodyLimit(cfg.MaxFileSize+multipartSlack)),
		identify,
		uploadLimiter.Middleware(),
	)

	return e
}

// bodyLimit formats n bytes for middleware.BodyLimit, rounding up to KiB.
func bodyLimit(n int64) string {
	return fmt.Sprintf("%dK", (n+1023)/1024)
}
