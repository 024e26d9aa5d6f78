package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/http/handlers"
	"github.com/geocoder89/backoffice/internal/http/middlewares"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// jsonBodyLimit caps JSON request bodies; uploads get UploadMaxBytes instead.
const jsonBodyLimit = 1 << 20

type Deps struct {
	Log         *slog.Logger
	Env         string
	ServiceName string
	CORSOrigins []string
	// UploadMaxBytes is the largest accepted image; multipart framing is
	// allowed on top of it.
	UploadMaxBytes int64

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Verifier middlewares.TokenVerifier

	Health    *handlers.HealthHandler
	Auth      *handlers.AuthHandler
	Users     *handlers.UsersHandler
	Products  *handlers.ProductsHandler
	Services  *handlers.ServicesHandler
	Bookings  *handlers.BookingsHandler
	Orders    *handlers.OrdersHandler
	Activity  *handlers.ActivityHandler
	Settings  *handlers.SettingsHandler
	Dashboard *handlers.DashboardHandler
	Jobs      *handlers.AdminJobsHandler
	Realtime  *handlers.RealtimeHandler
	Files     *handlers.FilesHandler

	LoginLimiter *middlewares.RateLimiter
	APILimiter   *middlewares.RateLimiter
}

func NewRouter(d Deps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = observability.NopLogger()
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = middlewares.NewRateLimiter(10, time.Minute)
	}
	if d.APILimiter == nil {
		d.APILimiter = middlewares.NewRateLimiter(600, time.Minute)
	}

	middlewares.RegisterValidators()

	r := gin.New()
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
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))

	r.GET("/healthz", d.Health.Healthz)
	r.GET("/readyz", d.Health.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/files/:bucket/*key", d.Files.Get)

	authMW := middlewares.NewAuthMiddleware(d.Verifier)
	admin := authMW.RequireRole(string(user.RoleAdmin))
	staff := authMW.RequireAnyRole(string(user.RoleAdmin), string(user.RoleStaff))

	jsonBody := []gin.HandlerFunc{middlewares.MaxBodyBytes(jsonBodyLimit), middlewares.RequireJSON()}
	uploadBody := middlewares.MaxBodyBytes(d.UploadMaxBytes + 64<<10)

	// session routes
	a := r.Group("/auth", jsonBody...)
	a.POST("/login", d.LoginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), d.Auth.Login)
	a.POST("/refresh", d.LoginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), d.Auth.Refresh)
	a.POST("/logout", d.Auth.Logout)
	a.GET("/me", authMW.RequireAuth(), d.Auth.Me)

	apiLimit := d.APILimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP)

	r.GET("/realtime/:table", authMW.RequireStreamAuth(), apiLimit, staff, d.Realtime.Stream)

	api := r.Group("/", authMW.RequireAuth(), apiLimit, staff)

	// uploads live outside the JSON group
	api.POST("/products/:id/image", uploadBody, d.Products.UploadImage)
	api.POST("/services/:id/image", uploadBody, d.Services.UploadImage)
	api.POST("/users/:id/avatar", uploadBody, d.Users.UploadAvatar)

	j := api.Group("/", jsonBody...)

	j.GET("/dashboard", d.Dashboard.Get)
	j.GET("/activity", d.Activity.List)

	j.GET("/settings", d.Settings.Get)
	j.PUT("/settings", admin, d.Settings.Update)

	j.GET("/users", admin, d.Users.List)
	j.POST("/users", admin, d.Users.Create)
	j.GET("/users/:id", admin, d.Users.Get)
	j.PUT("/users/:id", admin, d.Users.Update)
	j.DELETE("/users/:id", admin, d.Users.Delete)

	j.GET("/products", d.Products.List)
	j.POST("/products", d.Products.Create)
	j.GET("/products/:id", d.Products.Get)
	j.PUT("/products/:id", d.Products.Update)
	j.DELETE("/products/:id", admin, d.Products.Delete)
	j.POST("/products/:id/stock", d.Products.AdjustStock)

	j.GET("/services", d.Services.List)
	j.POST("/services", d.Services.Create)
	j.GET("/services/:id", d.Services.Get)
	j.PUT("/services/:id", d.Services.Update)
	j.DELETE("/services/:id", admin, d.Services.Delete)

	j.GET("/bookings", d.Bookings.List)
	j.POST("/bookings", d.Bookings.Create)
	j.GET("/bookings/:id", d.Bookings.Get)
	j.PUT("/bookings/:id", d.Bookings.Update)
	j.PATCH("/bookings/:id/status", d.Bookings.ChangeStatus)
	j.DELETE("/bookings/:id", d.Bookings.Delete)

	j.GET("/orders", d.Orders.List)
	j.POST("/orders", d.Orders.Create)
	j.GET("/orders/:id", d.Orders.Get)
	j.PATCH("/orders/:id/status", d.Orders.ChangeStatus)
	j.DELETE("/orders/:id", admin, d.Orders.Delete)

	jobs := j.Group("/admin/jobs", admin)
	jobs.GET("", d.Jobs.List)
	jobs.GET("/:id", d.Jobs.GetByID)
	jobs.POST("/:id/retry", d.Jobs.Retry)
	jobs.POST("/reprocess-dead", d.Jobs.ReprocessDead)

	return r
}
