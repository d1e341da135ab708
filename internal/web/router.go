// Package web exposes correspondence lookups and account administration over HTTP.
package web

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/vijay-prabhu/crmgmail/internal/account"
	"github.com/vijay-prabhu/crmgmail/internal/correspondence"
	"github.com/vijay-prabhu/crmgmail/internal/metrics"
	"github.com/vijay-prabhu/crmgmail/internal/oauthflow"
	"github.com/vijay-prabhu/crmgmail/internal/settings"
)

// Correspondence builds contact profile sections
type Correspondence interface {
	Section(ctx context.Context, contact string, limit int) correspondence.Section
	ClearCache(ctx context.Context) (int64, error)
}

// Accounts is the slice of the account registry the handlers need
type Accounts interface {
	Sorted(ctx context.Context) ([]account.Account, error)
	IsAuthorized(ctx context.Context, id string) bool
	Upsert(ctx context.Context, raw map[string]account.RawAccount) (map[string]account.Account, error)
}

// OAuth drives the connect and disconnect round trips
type OAuth interface {
	Begin(ctx context.Context, user, accountID string) (string, error)
	Complete(ctx context.Context, user string, params oauthflow.CallbackParams) (string, error)
	DisconnectNonce(user, accountID string) (string, error)
	Disconnect(ctx context.Context, user, accountID, nonce string) string
}

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the collaborators served by the router
type Deps struct {
	Correspondence Correspondence
	Accounts       Accounts
	OAuth          OAuth
	Settings       *settings.Settings
	Health         HealthChecker

	AdminUser      string
	AdminPassword  string
	MetricsEnabled bool

	Logger *slog.Logger
}

type server struct {
	Deps
	logger *slog.Logger
}

// NewRouter wires all HTTP routes
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &server{Deps: deps, logger: logger}

	// OAuth endpoints: 2 requests per second, burst of 10
	oauthLimiter := newIPRateLimiter(rate.Limit(2), 10, 10000)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if s.Health != nil {
			if err := s.Health.Health(ctx); err != nil {
				http.Error(w, "unready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.MetricsEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	// An empty password locks every admin route.
	creds := map[string]string{}
	if s.AdminUser != "" && s.AdminPassword != "" {
		creds[s.AdminUser] = s.AdminPassword
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth("crmgmail", creds))

		r.Get("/", s.index)
		r.Get("/contacts/{email}/correspondence", s.correspondence)
		r.With(requireJSON).Post("/cache/clear", s.clearCache)

		r.Get("/settings", s.getSettings)
		r.With(requireJSON).Post("/settings", s.postSettings)

		r.Get("/accounts", s.listAccounts)
		r.Put("/accounts", s.putAccounts)
		r.Get("/accounts/{accountID}/disconnect-nonce", s.disconnectNonce)
		r.Post("/accounts/{accountID}/disconnect", s.disconnect)

		r.Route("/oauth", func(r chi.Router) {
			r.Use(oauthLimiter.Middleware())
			r.Get("/connect/{accountID}", s.connect)
			r.Get("/callback", s.callback)
		})
	})

	return r
}

// requireJSON rejects requests whose Content-Type is not application/json,
// empty bodies included. Cross-site forms cannot send that type without a
// preflight, so basic auth credentials cached by a browser cannot be replayed.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request with its chi request id
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// currentUser is the authenticated admin; BasicAuth has already vetted it
func currentUser(r *http.Request) string {
	user, _, _ := r.BasicAuth()
	return user
}
