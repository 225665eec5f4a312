package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/pkg/jwt"
)

// AdminContextKey is the key used to store the admin identity in Gin context
const AdminContextKey = "admin"

// AdminContext represents the authenticated admin
type AdminContext struct {
	AdminID int64 `json:"admin_id"`
}

// AdminAuth validates the bearer token and requires its admin to still be in the
// configured admin set, so removing an id revokes its tokens.
func AdminAuth(jwtService *jwt.Service, isAdmin func(int64) bool, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()})

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Admin auth failed: missing authorization header")
			abort(c, http.StatusUnauthorized, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			log.Warn("Admin auth failed: invalid authorization format")
			abort(c, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateAdminToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if jwt.IsExpired(err) {
				log.WithError(err).Warn("Admin auth failed: token expired")
				abort(c, http.StatusUnauthorized, "token_expired", "Admin token has expired", "TOKEN_EXPIRED")
				return
			}
			log.WithError(err).Warn("Admin auth failed: invalid token")
			abort(c, http.StatusUnauthorized, "invalid_token", "Invalid admin token", "INVALID_TOKEN")
			return
		}

		if !isAdmin(claims.AdminID) {
			log.WithField("admin_id", claims.AdminID).Warn("Admin auth failed: not in admin set")
			abort(c, http.StatusForbidden, "forbidden", "You don't have permission to access this resource", "INSUFFICIENT_PERMISSIONS")
			return
		}

		c.Set(AdminContextKey, AdminContext{AdminID: claims.AdminID})
		c.Next()
	}
}

// GetAdminContext retrieves the admin set by AdminAuth
func GetAdminContext(c *gin.Context) (AdminContext, bool) {
	value, exists := c.Get(AdminContextKey)
	if !exists {
		return AdminContext{}, false
	}
	admin, ok := value.(AdminContext)
	return admin, ok
}

func abort(c *gin.Context, status int, errCode, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errCode,
		"message": message,
		"code":    code,
	})
}
