package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/auth"
)

const (
	// UserIDKey is the gin context key holding the authenticated user id.
	UserIDKey = "user_id"
	// TeamsKey holds the []string of teams named in the token.
	TeamsKey = "teams"

	// InvalidTokenMessage is the message clients match to end the session.
	InvalidTokenMessage = "Invalid or expired token"
)

type AuthzConfig struct {
	Secret string
	Issuer string
	Logger *log.Logger
}

// AuthzMiddleware requires a valid bearer token and stores its user id
// under UserIDKey and its teams under TeamsKey. Every refusal is a 401 carrying InvalidTokenMessage.
func AuthzMiddleware(config AuthzConfig) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": InvalidTokenMessage,
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token_format",
				"message": InvalidTokenMessage,
			})
			return
		}

		claims, err := auth.ParseToken(config.Secret, config.Issuer, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, auth.ErrTokenExpired) {
				code = "expired_token"
			}
			logger.WithFields(log.Fields{"path": c.Request.URL.Path, "reason": code}).Info("auth.token.rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   code,
				"message": InvalidTokenMessage,
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(TeamsKey, claims.Teams)
		c.Next()
	}
}
