package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/dto"
	"github.com/imrishuroy/go-jewelry-orders/internal/users"
)

// CtxUser is the gin context key holding the *users.User of the caller.
const CtxUser = "user"

// UserResolver turns a verified identity into a stored user.
type UserResolver interface {
	GetOrCreate(ctx context.Context, id users.Identity) (*users.User, error)
}

// AuthRequired verifies the bearer token, resolves the caller through
// dir and stores the user in the gin context.
func AuthRequired(v *Verifier, dir UserResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("missing Authorization header"))
			return
		}
		token, ok := ExtractBearerToken(authz)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("invalid Authorization header"))
			return
		}

		id, err := v.Parse(token)
		if err != nil {
			log.Debug("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("invalid token"))
			return
		}
		u, err := dir.GetOrCreate(c.Request.Context(), id)
		if err != nil {
			log.Error("resolve user failed", zap.String("user_id", id.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewInternalError("resolve user"))
			return
		}

		c.Set(CtxUser, u)
		c.Next()
	}
}

// AdminOnly rejects callers without the admin role. It must run after
// AuthRequired.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("not authenticated"))
			return
		}
		if !u.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewForbiddenError("admin role required"))
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthRequired.
func CurrentUser(c *gin.Context) (*users.User, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*users.User)
	return u, ok && u != nil
}

// ExtractBearerToken pulls the token out of an Authorization header.
// Surrounding quotes and anything after a comma are dropped.
func ExtractBearerToken(authz string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(authz), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	t := strings.Trim(strings.TrimSpace(parts[1]), " \"'")
	if i := strings.IndexRune(t, ','); i >= 0 {
		t = strings.Trim(strings.TrimSpace(t[:i]), " \"'")
	}
	if i := strings.IndexByte(t, ' '); i >= 0 {
		t = t[:i]
	}
	return t, true
}
