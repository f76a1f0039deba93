package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/himnu2025-blip/synka-billing/pkg/logctx"
	"github.com/himnu2025-blip/synka-billing/pkg/response"
)

const (
	authHeaderPrefix = "Bearer "
	// ServiceRole is the role claim of backend service tokens.
	ServiceRole = "service_role"
)

var errAdminDisabled = errors.New("admin api disabled: no jwt secret configured")

// AdminAuthMiddleware admits requests bearing an HS256 token signed with
// secret whose role claim is service_role.
func AdminAuthMiddleware(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := validateServiceToken(c.GetHeader("Authorization"), secret); err != nil {
			logctx.FromGin(c, base).Warnw("admin authentication failed", "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}
		c.Next()
	}
}

func validateServiceToken(header, secret string) error {
	if secret == "" {
		return errAdminDisabled
	}
	if !strings.HasPrefix(header, authHeaderPrefix) {
		return errors.New("missing bearer token")
	}
	token, err := jwt.Parse(strings.TrimPrefix(header, authHeaderPrefix), func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return errors.New("invalid token claims")
	}
	if role, _ := claims["role"].(string); role != ServiceRole {
		return fmt.Errorf("role %q is not allowed", role)
	}
	return nil
}
