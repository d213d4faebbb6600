package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_backend/internal/audit"
	"crm_backend/internal/config"
	"crm_backend/internal/database"
	"crm_backend/internal/handlers"
	"crm_backend/internal/history"
	"crm_backend/internal/metrics"
	"crm_backend/internal/middleware"
	"crm_backend/internal/repositories"
	"crm_backend/internal/router"
	"crm_backend/internal/services"
	"crm_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// stores bundles the repositories chosen by STORE_DRIVER and how to release them.
type stores struct {
	clients repositories.ClientRepository
	users   repositories.UserRepository
	close   func(context.Context) error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		db, disconnect, err := database.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = disconnect(ctx)
			return nil, err
		}
		return &stores{
			clients: repositories.NewMongoClientRepository(db),
			users:   repositories.NewMongoUserRepository(db),
			close:   disconnect,
		}, nil
	case config.DriverMemory:
		utils.LogInfo("Using in-memory store; data is lost on restart")
		return &stores{
			clients: repositories.NewMemoryClientRepository(),
			users:   repositories.NewMemoryUserRepository(),
			close:   func(context.Context) error { return nil },
		}, nil
	default:
		db, err := database.OpenPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		if err := database.ApplySchema(ctx, db, cfg.Postgres.SchemaPath); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			clients: repositories.NewClientRepository(db),
			users:   repositories.NewUserRepository(db),
			close:   func(context.Context) error { return db.Close() },
		}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.InitLogger("info", "console")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	st, err := openStores(startupCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to initialize store")
	}

	var publisher audit.Publisher = audit.NopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := audit.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect audit publisher")
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		utils.LogInfo("Audit trail enabled", map[string]interface{}{"url": cfg.NATSURL, "prefix": cfg.NATSSubjectPrefix})
	}

	tokens, err := utils.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token manager")
	}

	engine := history.NewEngine(time.Now)
	clientService := services.NewClientService(st.clients, engine, publisher, time.Now)
	authService := services.NewAuthService(st.users, tokens)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.GinLogger())
	r.Use(metrics.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))
	r.Use(middleware.BodyLimitMiddleware(cfg.MaxBodyBytes))

	router.Setup(r, router.Dependencies{
		AuthHandler:   handlers.NewAuthHandler(authService),
		ClientHandler: handlers.NewClientHandler(clientService),
		Verifier:      tokens,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Port, "driver": cfg.StoreDriver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.LogInfo("Shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.LogError(err, "Server forced to shutdown")
	}
	if err := st.close(shutdownCtx); err != nil {
		utils.LogError(err, "Failed to close store")
	}
}
