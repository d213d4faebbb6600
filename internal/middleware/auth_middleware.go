package middleware

import (
	"net/http"
	"strings"

	"crm_backend/internal/models"
	"crm_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	ValidateToken(tokenString string) (*utils.Claims, error)
}

// AuthMiddleware creates a Gin middleware for JWT authentication. On success the caller's
// identity is available to handlers through ActorFromContext.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "No token", "Authorization header required"))
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Token inválido", "Use Bearer <token>"))
			return
		}

		claims, err := verifier.ValidateToken(parts[1])
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Token inválido", err.Error()))
			return
		}

		c.Set(actorKey, models.Actor{ID: claims.UserID, Name: claims.Name, Username: claims.Username})
		c.Next()
	}
}

// ActorFromContext returns the identity set by AuthMiddleware.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	raw, exists := c.Get(actorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := raw.(models.Actor)
	return actor, ok
}
