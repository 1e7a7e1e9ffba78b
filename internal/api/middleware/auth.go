package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/google/uuid"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// TokenValidator verifies access tokens
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, string, error)
}

// Auth requires a valid "Authorization: Bearer <token>" header and stores
// the caller's user_id and role in the context
func Auth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abort(c, apperrors.ErrInvalidToken.Withf("Missing bearer token"))
			return
		}

		userID, role, err := tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			abort(c, apperrors.ErrInvalidToken)
			return
		}

		SetIdentity(c, userID, role)
		c.Next()
	}
}

// RequireRoles only lets callers with one of the given roles through.
// It must run after Auth.
func RequireRoles(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}

	return func(c *gin.Context) {
		role := Role(c)
		if role == "" {
			abort(c, apperrors.ErrInvalidToken)
			return
		}
		if _, ok := allowed[strings.ToLower(role)]; !ok {
			abort(c, apperrors.ErrRoleNotAllowed)
			return
		}
		c.Next()
	}
}

// SetIdentity stores the authenticated caller in the context
func SetIdentity(c *gin.Context, userID uuid.UUID, role string) {
	c.Set(userIDKey, userID)
	c.Set(roleKey, role)
}

// UserID returns the authenticated caller's ID
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Role returns the authenticated caller's role
func Role(c *gin.Context) string {
	return c.GetString(roleKey)
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.Status, gin.H{"code": err.Code, "message": err.Message})
}
