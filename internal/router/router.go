package router

import (
	"net/http"

	"crm_backend/internal/handlers"
	"crm_backend/internal/metrics"
	"crm_backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Dependencies are the handlers and verifier the routes are bound to.
type Dependencies struct {
	AuthHandler   *handlers.AuthHandler
	ClientHandler *handlers.ClientHandler
	Verifier      middleware.TokenVerifier
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, deps Dependencies) {
	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := engine.Group("/api")

	SetupPublicAuthRoutes(api.Group("/auth"), deps.AuthHandler)

	authenticated := api.Group("")
	authenticated.Use(middleware.AuthMiddleware(deps.Verifier))
	{
		SetupAuthenticatedAuthRoutes(authenticated.Group("/auth"), deps.AuthHandler)
		SetupClientRoutes(authenticated, deps.ClientHandler)
	}
}
