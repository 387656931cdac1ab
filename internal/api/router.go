package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/api/handlers"
	"github.com/acectf/registration/internal/api/middleware"
	"github.com/acectf/registration/internal/auth"
	"github.com/acectf/registration/internal/captcha"
	"github.com/acectf/registration/internal/ctfd"
	"github.com/acectf/registration/internal/leaderboard"
	"github.com/acectf/registration/internal/reporting"
	"github.com/acectf/registration/internal/rooms"
	"github.com/acectf/registration/internal/tasks"
	"github.com/acectf/registration/internal/teams"
	"github.com/acectf/registration/pkg/config"
	"github.com/acectf/registration/pkg/queue"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Logger      *slog.Logger
	Config      *config.Config
	JWTService  *auth.JWTService
	AuthService *auth.Service
	TeamService *teams.Service
	Queue       tasks.Enqueuer
	Hub         *leaderboard.Hub
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	allowedOrigins := cfg.Config.Server.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	bypass := middleware.BypassConfig{TrustedEnv: cfg.Config.Server.TrustedEnv}
	rl := cfg.Config.RateLimit
	apiLimit := middleware.RateLimit(rl.APIRequests, rl.APIWindowSeconds, bypass)
	authLimit := middleware.AuthRateLimit(rl.AuthRequests, rl.AuthWindowSeconds, bypass)

	ctfdClient := ctfd.NewClient(&cfg.Config.CTFd, cfg.Logger)
	syncer := ctfd.NewSyncer(cfg.DB, ctfdClient, cfg.Logger)
	verifier := captcha.NewVerifier(&cfg.Config.Captcha, cfg.Logger)
	reportingService := reporting.NewService(cfg.DB)
	roomService := rooms.NewService(cfg.DB, cfg.Logger)

	var inspector *asynq.Inspector
	if cfg.Redis != nil {
		inspector = queue.NewInspector(&cfg.Config.Redis)
	}

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, inspector)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, verifier, ctfdClient, cfg.Logger)
	teamHandler := handlers.NewTeamHandler(cfg.TeamService, cfg.Logger)
	adminHandler := handlers.NewAdminHandler(reportingService, roomService, cfg.TeamService, cfg.Logger)
	ctfdHandler := handlers.NewCTFdHandler(ctfdClient, syncer, cfg.Queue, cfg.Logger)
	publicHandler := handlers.NewPublicHandler(cfg.DB, cfg.Hub, cfg.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimit)

		// Public auth endpoints, throttled per email
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/resend-verification", authHandler.ResendVerification)
		})
		r.Get("/auth/verify", authHandler.VerifyEmail)
		r.Post("/auth/verify", authHandler.VerifyEmail)
		r.Post("/auth/logout", authHandler.Logout)

		// Public leaderboard, no auth so it can run on the venue projector
		r.Get("/public/leaderboard", publicHandler.Leaderboard)
		r.Get("/public/leaderboard/ws", publicHandler.LeaderboardWS)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Get("/auth/profile", authHandler.Me)

			r.Route("/teams", func(r chi.Router) {
				r.Post("/create", teamHandler.Create)
				r.Post("/join", teamHandler.Join)
				r.Post("/leave", teamHandler.Leave)
				r.Get("/my-team", teamHandler.MyTeam)
				r.Get("/{id}", teamHandler.Get)
			})

			// Admin
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Get("/stats", adminHandler.Stats)
				r.Get("/registrations", adminHandler.Registrations)
				r.Get("/export/csv", adminHandler.ExportCSV)
				r.Get("/teams", adminHandler.Teams)
				r.Get("/scores", adminHandler.Scores)

				r.Put("/users/{id}", adminHandler.UpdateUser)
				r.Delete("/teams/{id}", adminHandler.DeleteTeam)

				r.Route("/rooms", func(r chi.Router) {
					r.Get("/", adminHandler.ListRooms)
					r.Post("/", adminHandler.AddRoom)
					r.Post("/assign", adminHandler.AssignRooms)
					r.Patch("/{number}", adminHandler.RenameRoom)
					r.Delete("/{number}", adminHandler.DeleteRoom)
				})

				r.Post("/registrations/{id}/check-in", adminHandler.CheckInRegistration)
				r.Post("/registrations/{id}/complete", adminHandler.CompleteRegistration)
				r.Post("/registrations/{id}/cancel", adminHandler.CancelRegistration)

				r.Post("/ctfd/sync-scores", ctfdHandler.SyncScores)
				r.Get("/ctfd/health", ctfdHandler.Health)
			})
		})
	})

	return &Router{r}
}
