package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/utils"
	"github.com/huangang/larkticket/pkg/response"
)

const ContextOperator = "operator"

// AuthRequired checks the Bearer token on web API calls. When disabled every
// request passes through as the anonymous operator.
func AuthRequired(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			response.Unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, utils.ErrTokenExpired) {
				msg = "token expired"
			}
			response.Unauthorized(c, msg)
			return
		}

		c.Set(ContextOperator, claims.Operator)
		c.Next()
	}
}

// GetOperator returns the authenticated operator, or "" for anonymous calls.
func GetOperator(c *gin.Context) string {
	return c.GetString(ContextOperator)
}
