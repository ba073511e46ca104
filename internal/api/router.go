package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/twinsync/internal/identity"
	"github.com/ashureev/twinsync/internal/middleware"
	"github.com/ashureev/twinsync/internal/store"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// SessionParam names the request parameter carrying the session token.
	SessionParam   string
	AllowedOrigins []string
	// RequestLog enables chi's request logger.
	RequestLog bool
	Logger     *slog.Logger
}

// NewRouter assembles the remote store: middleware stack, health check and
// every endpoint.
func NewRouter(db store.Accounts, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if opts.RequestLog {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(opts.AllowedOrigins))

	NewHealthHandler(db).RegisterHealth(r)

	h := NewRemoteHandler(NewHandler(db, opts.Logger))
	h.RegisterRoutes(r, identity.Middleware(db, opts.SessionParam))
	return r
}
