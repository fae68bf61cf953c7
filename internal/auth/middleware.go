package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campus/internal/attendance"
	"campus/internal/session"
)

const sessionKey = "session"

// Authenticate enforces bearer access tokens signed with HS256 and stores the
// caller's session on the gin context.
func Authenticate(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil || claims.Type != typeAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		sess, err := claims.Session()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// RequireTeacher lets only teacher sessions through.
func RequireTeacher() gin.HandlerFunc {
	return requireRole(session.RoleTeacher, session.ErrNotTeacher)
}

// RequireStudent lets only student sessions through.
func RequireStudent() gin.HandlerFunc {
	return requireRole(session.RoleStudent, session.ErrNotStudent)
}

func requireRole(role session.Role, denied error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Current(c).Role() != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": denied.Error(), "code": attendance.ErrorCode(denied)})
			return
		}
		c.Next()
	}
}

// Current returns the session stored by Authenticate, or Anonymous.
func Current(c *gin.Context) session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return session.Anonymous()
	}
	sess, _ := v.(session.Session)
	return sess
}

// ErrBadCredentials is returned by login for unknown users and wrong passwords alike.
var ErrBadCredentials = errors.New("invalid credentials")
