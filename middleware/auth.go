package middleware

import (
	"rag-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// RequireAdmin accepts only bearer tokens signed with secret that carry the
// admin role. With no secret configured the admin API is closed.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			utils.RespondWithForbidden(c, "Admin API is disabled")
			c.Abort()
			return
		}

		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(tokenString, secret)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}
		if claims.Role != utils.RoleAdmin {
			utils.RespondWithForbidden(c, "Admin role required")
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func GetClaims(c *gin.Context) *utils.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*utils.Claims); ok {
			return claims
		}
	}
	return nil
}
