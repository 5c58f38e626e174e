package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"cargoride/internal/utils"
	"cargoride/pkg/logger"
)

// AuthRequired middleware validates the bearer token and sets user_id and role on the context
func AuthRequired(signer *utils.TokenSigner, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		claims, err := signer.ValidateToken(tokenString)
		if err != nil {
			log.LogSecurityEvent("invalid_token", "medium", map[string]interface{}{
				"client_ip": c.ClientIP(),
				"path":      c.FullPath(),
				"reason":    err.Error(),
			})
			utils.ErrorResponse(c, 401, "UNAUTHORIZED", utils.ErrInvalidToken)
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, claims.UserID))

		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to the access_token query
// parameter browsers must use for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return ""
		}
		return token
	}
	return c.Query("access_token")
}

// RoleRequired middleware ensures the caller holds one of roles
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c)
		c.Abort()
	}
}

func DriverRequired() gin.HandlerFunc {
	return RoleRequired(utils.RoleDriver, utils.RoleAdmin)
}

func AdminRequired() gin.HandlerFunc {
	return RoleRequired(utils.RoleAdmin)
}
