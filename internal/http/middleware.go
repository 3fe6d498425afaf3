package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// AccessChecker is the gate's view of the entitlement service.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userID, requiredTier string) *models.AccessResponse
	GetRoles(ctx context.Context, userID string) ([]string, error)
}

// JWTAuthMiddleware validates JWT tokens for user endpoints.
// Compatible with the auth-service token format, parsed via MapClaims.
func JWTAuthMiddleware(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(secretKey), nil
		})

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}

		// Prefer the uid claim, fall back to the standard sub claim.
		if uid, ok := claims["uid"].(string); ok {
			c.Set("userID", uid)
		} else if sub, ok := claims["sub"].(string); ok {
			c.Set("userID", sub)
		}

		c.Next()
	}
}

// InternalAuthMiddleware validates internal service calls.
// Constant-time comparison to avoid timing attacks.
func InternalAuthMiddleware(internalSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Internal-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(internalSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized internal access"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireActiveEntitlement gates a route on a usable entitlement. The gate
// fails closed: if resolution errors, access is denied rather than guessed.
func RequireActiveEntitlement(svc AccessChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}

		access := svc.CheckAccess(c.Request.Context(), userID, "")
		if !access.Allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": access.Reason})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireTier gates a route on a minimum tier. Fails closed on resolution
// errors; a lower tier gets a 403 with the current tier so the client can
// prompt an upgrade.
func RequireTier(svc AccessChecker, tier string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}

		access := svc.CheckAccess(c.Request.Context(), userID, tier)
		if !access.Allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": access.Reason, "tier": access.Tier})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole gates a route on an operational role. Used for the admin
// console endpoints.
func RequireRole(svc AccessChecker, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}

		roles, err := svc.GetRoles(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "role check unavailable"})
			c.Abort()
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		c.Abort()
	}
}
