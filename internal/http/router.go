package http

import (
	"log/slog"

	"github.com/geocoder89/rolegate/internal/access"
	"github.com/geocoder89/rolegate/internal/http/handlers"
	"github.com/geocoder89/rolegate/internal/http/middlewares"
	"github.com/geocoder89/rolegate/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// AccountService is everything the HTTP layer needs from the account package.
type AccountService interface {
	handlers.Registrar
	handlers.Authenticator
	handlers.UserAdmin
}

type Deps struct {
	Log            *slog.Logger
	Env            string
	ServiceName    string
	Accounts       AccountService
	Gate           middlewares.AccessChecker
	Prom           *observability.Prom
	Gatherer       prometheus.Gatherer
	Limiter        *middlewares.RateLimiter
	ReadyChecks    map[string]handlers.Pinger
	Draining       func() bool
	AllowedOrigins []string
	MaxBodyBytes   int64
}

const defaultMaxBodyBytes = 1 << 20

func NewRouter(d Deps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = defaultMaxBodyBytes
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(d.Log, d.ReadyChecks, d.Draining)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authH := handlers.NewAuthHandler(d.Accounts, d.Accounts, d.Log)
	usersH := handlers.NewUsersHandler(d.Accounts, d.Log)
	authMW := middlewares.NewAuthMiddleware(d.Gate, d.Log)

	limit := func(c *gin.Context) { c.Next() }
	limitUser := limit
	if d.Limiter != nil {
		limit = d.Limiter.RateLimiterMiddleware(middlewares.KeyByIP)
		// runs after the gate, so the key is the admin's user id
		limitUser = d.Limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP)
	}

	mountAuth := func(g gin.IRoutes) {
		g.POST("/register", limit, authH.Register)
		g.POST("/login", limit, authH.Login)
		g.GET("/me", authMW.Require(access.Authenticated()), handlers.Me)
	}

	mountAdmin := func(g gin.IRoutes) {
		admin := authMW.RequireAdmin()
		g.GET("/users", admin, limitUser, usersH.List)
		g.PATCH("/users/:id/status", admin, limitUser, usersH.SetStatus)
		g.DELETE("/users/:id", admin, limitUser, usersH.Delete)
	}

	mountAuth(r)
	mountAdmin(r)

	api := r.Group("/api")
	mountAuth(api.Group("/auth"))
	mountAdmin(api.Group("/admin"))

	return r
}
