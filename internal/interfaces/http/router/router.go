package router

import (
	"fmt"

	appadmission "github.com/cozmiclearning/backend/internal/application/admission"
	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/telemetry"
	"github.com/cozmiclearning/backend/internal/interfaces/http/handler"
	"github.com/cozmiclearning/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultBillingBodyLimit caps billing webhook payloads.
const DefaultBillingBodyLimit int64 = 64 << 10

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one area of the API
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle("GET", path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle("POST", path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	DB         *gorm.DB
	Logger     *zap.Logger
	Controller *appadmission.Controller
	Tokens     middleware.TokenValidator
	Accounts   account.Repository

	Features *handler.FeatureHandler
	Usage    *handler.UsageHandler
	Billing  *handler.BillingHandler
	Health   *handler.HealthHandler

	FailureSink       logger.FailureSink
	ResilienceMetrics *telemetry.ResilienceMetrics
	// Meter is optional; nil disables HTTP metrics.
	Meter   metric.Meter
	Tracing middleware.TracingConfig

	// BillingBodyLimit defaults to DefaultBillingBodyLimit.
	BillingBodyLimit int64
}

// New builds the engine. Middleware order, outermost first:
// request id, request logger, failure boundary, tracing, metrics, session.
// The logger sits outside the boundary so recovered panics and pushed
// errors are logged with the status the boundary wrote.
// Authenticated routes then run the principal loader and, for gated
// features, admission before the handler.
func New(deps Dependencies) (*gin.Engine, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.BillingBodyLimit <= 0 {
		deps.BillingBodyLimit = DefaultBillingBodyLimit
	}

	httpMetrics, err := middleware.HTTPMetrics(deps.Meter)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID(), logger.GinMiddleware(deps.Logger))
	engine.Use(middleware.FailureBoundary(middleware.FailureBoundaryConfig{
		Sink:    deps.FailureSink,
		Metrics: deps.ResilienceMetrics,
	}))
	engine.Use(middleware.Tracing(deps.Tracing)...)
	engine.Use(httpMetrics, middleware.Session(deps.DB))

	engine.GET("/health", deps.Health.Health)

	authenticated := middleware.Principal(middleware.PrincipalConfig{
		Tokens:   deps.Tokens,
		Accounts: deps.Accounts,
	})

	features := NewDomainGroup("features", "/features").Use(authenticated)
	features.POST("/:feature/invocations",
		middleware.AdmissionFromParam(deps.Controller, "feature"),
		deps.Features.Invoke,
	)

	usage := NewDomainGroup("usage", "").Use(authenticated)
	usage.GET("/usage", deps.Usage.GetUsage)

	billing := NewDomainGroup("billing", "/billing").Use(middleware.BodyLimit(deps.BillingBodyLimit))
	billing.POST("/events", deps.Billing.ApplyEvent)

	NewRouter(engine).
		Register(features).
		Register(usage).
		Register(billing).
		Setup()

	return engine, nil
}
