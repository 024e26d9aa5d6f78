package http

import (
	"log/slog"

	"github.com/geocoder89/backoffice/internal/activity"
	"github.com/geocoder89/backoffice/internal/auth"
	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/http/handlers"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/realtime"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Wire builds the Postgres-backed handlers for every route. The caller owns
// pool, store and hub and adds Gatherer when /metrics should be served.
func Wire(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, prom *observability.Prom, store storage.Store, hub *realtime.Hub) Deps {
	jobsRepo := postgres.NewJobsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool, prom)
	productsRepo := postgres.NewProductsRepo(pool, prom, jobsRepo)
	activityRepo := postgres.NewActivityRepo(pool, prom)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	recorder := activity.NewRecorder(activityRepo, log)

	// a nil *Prom must not reach the interface as a typed nil
	var uploadMetrics handlers.UploadMetrics
	if prom != nil {
		uploadMetrics = prom
	}
	uploader := handlers.NewUploader(store, uploadMetrics)
	settings := handlers.NewSettingsHandler(postgres.NewSettingsRepo(pool, prom), nil, recorder)

	return Deps{
		Log:            log,
		Env:            cfg.Env,
		ServiceName:    cfg.OTelServiceName,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		UploadMaxBytes: cfg.UploadMaxBytes,
		Prom:           prom,
		Verifier:       jwtManager,

		Health:    handlers.NewHealthHandler(pool.Ping),
		Auth:      handlers.NewAuthHandler(usersRepo, postgres.NewRefreshTokensRepo(pool, prom), jwtManager, recorder, cfg),
		Users:     handlers.NewUsersHandler(usersRepo, recorder, uploader),
		Products:  handlers.NewProductsHandler(productsRepo, settings, recorder, uploader),
		Services:  handlers.NewServicesHandler(postgres.NewServicesRepo(pool, prom), recorder, uploader),
		Bookings:  handlers.NewBookingsHandler(postgres.NewBookingsRepo(pool, prom, jobsRepo), settings, recorder),
		Orders:    handlers.NewOrdersHandler(postgres.NewOrdersRepo(pool, prom, productsRepo), recorder),
		Activity:  handlers.NewActivityHandler(activityRepo),
		Settings:  settings,
		Dashboard: handlers.NewDashboardHandler(postgres.NewDashboardRepo(pool, prom)),
		Jobs:      handlers.NewAdminJobsHandler(jobsRepo),
		Realtime:  handlers.NewRealtimeHandler(hub),
		Files:     handlers.NewFilesHandler(store),
	}
}
