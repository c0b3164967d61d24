package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/victornm/livequiz/internal/auth"
	"github.com/victornm/livequiz/internal/errors"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextAvatar   = "avatar"
)

// Logger logs every request once it has been served.
func Logger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := c.GetString(ContextUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}

		l.Info("request", fields...)
	}
}

// authenticate validates the bearer token and stores the caller in the context.
func (a *API) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		a.fail(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token")))
		return
	}

	claims, err := a.jwt.Validate(token)
	if err != nil {
		a.fail(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid or expired token"), errors.WithCause(err)))
		return
	}

	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUsername, claims.Username)
	c.Set(ContextAvatar, claims.Avatar)
	c.Next()
}

func caller(c *gin.Context) auth.Claims {
	return auth.Claims{
		UserID:   c.GetString(ContextUserID),
		Username: c.GetString(ContextUsername),
		Avatar:   c.GetString(ContextAvatar),
	}
}
