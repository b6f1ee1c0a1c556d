package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/installhub/api/internal/platform/httpx"
)

// RouteRegistrar mounts a handler set on r.
type RouteRegistrar func(r chi.Router)

// Middleware is the standard net/http middleware shape.
type Middleware = func(http.Handler) http.Handler

type groupName int

const (
	quoteGroup groupName = iota
	shipmentGroup
	internalGroup
	groupCount
)

// routeGroup is a registrar with the middleware that wraps only its routes. prefix is
// relative to the API base path.
type routeGroup struct {
	prefix     string
	register   RouteRegistrar
	middleware []Middleware
}

type routerConfig struct {
	basePath string
	global   []Middleware
	health   *HealthHandlers
	groups   [groupCount]routeGroup
}

// Option customises NewRouter.
type Option func(*routerConfig)

// requestTimeout covers the synchronous backfill endpoint, which can take minutes.
const requestTimeout = 10 * time.Minute

// NewRouter builds the service router: health probes at the root and the API under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: "/api/v1",
		global:   []Middleware{middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout)},
	}
	cfg.groups[internalGroup].prefix = "/internal"
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	use(r, cfg.global)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})
	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, g := range cfg.groups {
			if g.register == nil {
				continue
			}
			mount := func(sub chi.Router) {
				use(sub, g.middleware)
				g.register(sub)
			}
			if g.prefix == "" {
				api.Group(mount)
			} else {
				api.Route(g.prefix, mount)
			}
		}
	})
	return r
}

func use(r chi.Router, mws []Middleware) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// WithMiddlewares appends middleware applied to every route, health probes included.
func WithMiddlewares(mw ...Middleware) Option {
	return func(cfg *routerConfig) { cfg.global = append(cfg.global, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func WithQuoteRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups[quoteGroup].register = reg }
}

// WithQuoteMiddlewares wraps quote routes only, e.g. with idempotent replay.
func WithQuoteMiddlewares(mw ...Middleware) Option {
	return func(cfg *routerConfig) {
		cfg.groups[quoteGroup].middleware = append(cfg.groups[quoteGroup].middleware, mw...)
	}
}

func WithShipmentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups[shipmentGroup].register = reg }
}

// WithInternalRoutes mounts operator endpoints under /api/v1/internal.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups[internalGroup].register = reg }
}

func WithInternalMiddlewares(mw ...Middleware) Option {
	return func(cfg *routerConfig) {
		cfg.groups[internalGroup].middleware = append(cfg.groups[internalGroup].middleware, mw...)
	}
}
