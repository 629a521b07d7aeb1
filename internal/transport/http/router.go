package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/facevote-api/internal/config"
	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/transport/http/handler"
	appmiddleware "github.com/facevote-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background work such as rate limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// Endpoints that trigger a delivery or accept a guessable code: 5
	// requests/second per client IP with a burst of 10, and by default one
	// request every 20 seconds per identity with a burst of 5.
	trusted, err := cfg.TrustedProxyNets()
	if err != nil {
		slog.Error("ignoring trusted proxies", "err", err)
		trusted = nil
	}
	idInterval, idBurst := cfg.IdentityRateInterval, cfg.IdentityRateBurst
	if idInterval <= 0 {
		idInterval = 20 * time.Second
	}
	if idBurst <= 0 {
		idBurst = 5
	}
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10, trusted)
	identityRL := appmiddleware.NewRateLimiter(ctx, rate.Every(idInterval), idBurst, trusted)
	throttled := chi.Chain(sensitiveRL.Limit, identityRL.LimitByIdentity)

	healthH := handler.NewHealthHandler()
	otpH := handler.NewOTPHandler(deps.OTP)
	sessionH := handler.NewSessionHandler(deps.Sessions)
	faceH := handler.NewFaceHandler(deps.Faces, cfg.FaceMaxBytes)
	voteH := handler.NewVoteHandler(deps.VoteTokens, deps.Ballots)
	targetH := handler.NewTargetHandler(deps.Targets)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(throttled...).Post("/otp", otpH.Issue)
		r.With(throttled...).Post("/otp/verify", otpH.Verify)
		r.With(throttled...).Post("/sessions", sessionH.Login)
		r.Get("/votes/{id}", voteH.Receipt)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/face", faceH.Register)
			r.Get("/face", faceH.GetReference)
			r.Post("/vote-token", voteH.MintToken)
			r.Post("/vote", voteH.Cast)
			r.Get("/targets/{id}", targetH.Get)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/targets", targetH.Create)
			})
		})
	})

	return r
}
