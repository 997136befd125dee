package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Health serves GET /healthz. If nil, /healthz always answers 200.
	Health http.Handler
	// AllowedOrigins enables CORS for these browser origins. Empty disables CORS.
	AllowedOrigins []string
	// RequestTimeout bounds each request; 0 uses 15s.
	RequestTimeout time.Duration
}

// NewRouter mounts the auth endpoints on a chi router.
func NewRouter(h *AuthHandler, auth Service, opts RouterOptions) http.Handler {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(auth))
			r.Post("/password", h.ChangePassword)
			r.Get("/session", h.Session)
		})
	})

	if opts.Health != nil {
		r.Method(http.MethodGet, "/healthz", opts.Health)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		})
	}
	return r
}
