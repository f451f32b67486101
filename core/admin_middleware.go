package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// RequireLogin lets a request through only when its cookie carries the token
// of the process session. The principal is stored on the context.
func RequireLogin(sm *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireLogin(c, sm); !ok {
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOnly ensures the logged-in principal has the admin role.
func AdminOnly(sm *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := requireLogin(c, sm)
		if !ok {
			c.Abort()
			return
		}
		if !p.IsAdmin() {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requireLogin(c *gin.Context, sm *SessionManager) (Principal, bool) {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(Principal); ok {
			return p, true
		}
	}
	p, ok := sm.Holds(loginTokenOf(sessionFrom(c)))
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
		return Principal{}, false
	}
	c.Set(principalKey, p)
	return p, true
}

func currentPrincipal(c *gin.Context) Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(Principal)
	return p
}
