package core

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	sessionName     = "registry_session"
	sessionMaxAge   = 8 * 60 * 60
	sessionCtxKey   = "session"
	sessionTokenKey = "login_token"
	csrfTokenKey    = "csrf_token"
	csrfHeader      = "X-CSRF-Token"
)

// cookieSessions applies the registry cookie policy to a gorilla store. The
// cookie carries two values: the login token handed out by SessionManager and
// the CSRF token.
type cookieSessions struct {
	store   *sessions.CookieStore
	options sessions.Options
}

func newCookieSessions(cfg Config, store *sessions.CookieStore) *cookieSessions {
	return &cookieSessions{
		store: store,
		options: sessions.Options{
			Path:     "/",
			MaxAge:   sessionMaxAge,
			HttpOnly: true,
			Secure:   cfg.CookieSecure,
			SameSite: sameSiteFromString(cfg.CookieSameSite),
		},
	}
}

// sessionMiddleware loads the cookie once per request. A cookie that no
// longer decodes (e.g. after a SESSION_KEY change) is replaced by a fresh
// anonymous session. Logged-in sessions are re-saved to slide their expiry.
func (cs *cookieSessions) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := cs.store.Get(c.Request, sessionName)
		if err != nil {
			session = sessions.NewSession(cs.store, sessionName)
		}
		c.Set(sessionCtxKey, session)

		if loginTokenOf(session) != "" {
			if err := cs.save(c, session); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// csrfMiddleware issues a per-session token and requires it on unsafe methods.
func (cs *cookieSessions) csrfMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionFrom(c)
		if session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		token, _ := session.Values[csrfTokenKey].(string)
		if token == "" {
			var err error
			if token, err = cs.issueCSRF(c, session); err == nil {
				err = cs.save(c, session)
			}
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) {
			if got := c.GetHeader(csrfHeader); got == "" || got != token {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		c.Header(csrfHeader, token)
		c.Next()
	}
}

// bind replaces the session contents with token and a new CSRF token.
func (cs *cookieSessions) bind(c *gin.Context, token string) error {
	session := sessionFrom(c)
	if session == nil {
		session = sessions.NewSession(cs.store, sessionName)
		c.Set(sessionCtxKey, session)
	}
	session.Values = map[interface{}]interface{}{sessionTokenKey: token}
	if _, err := cs.issueCSRF(c, session); err != nil {
		return err
	}
	return cs.save(c, session)
}

// clear empties the session and expires the cookie.
func (cs *cookieSessions) clear(c *gin.Context) error {
	session := sessionFrom(c)
	if session == nil {
		return nil
	}
	session.Values = map[interface{}]interface{}{}
	opts := cs.options
	opts.MaxAge = -1
	session.Options = &opts
	return session.Save(c.Request, c.Writer)
}

func (cs *cookieSessions) save(c *gin.Context, session *sessions.Session) error {
	opts := cs.options
	session.Options = &opts
	return session.Save(c.Request, c.Writer)
}

// issueCSRF stores a new token in session and exposes it to the client.
// The caller saves the session.
func (cs *cookieSessions) issueCSRF(c *gin.Context, session *sessions.Session) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.StdEncoding.EncodeToString(b)
	session.Values[csrfTokenKey] = token
	c.Header(csrfHeader, token)
	return token, nil
}

func sessionFrom(c *gin.Context) *sessions.Session {
	v, _ := c.Get(sessionCtxKey)
	sess, _ := v.(*sessions.Session)
	return sess
}

func loginTokenOf(session *sessions.Session) string {
	if session == nil {
		return ""
	}
	token, _ := session.Values[sessionTokenKey].(string)
	return token
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Paths that skip CSRF validation: the anonymous entry points.
func csrfExemptPath(path string) bool {
	switch path {
	case "/api/v1/auth/login", "/api/v1/auth/register":
		return true
	default:
		return false
	}
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// originPolicy is the lowercased set of origins allowed to call the API.
type originPolicy map[string]struct{}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{}
	for _, o := range origins {
		p[strings.ToLower(strings.TrimSpace(o))] = struct{}{}
	}
	return p
}

// allows accepts requests without an origin (same-origin navigation).
func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := p[strings.ToLower(origin)]
	return ok
}

// requestOrigin prefers the Origin header and falls back to the Referer's scheme and host.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		if u, err := url.Parse(ref); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

// OriginRefererMiddleware rejects cross-origin requests from unknown origins,
// answers preflights and sets CORS headers for allowed ones.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	policy := newOriginPolicy(cfg.AllowedOrigins)
	return func(c *gin.Context) {
		origin := requestOrigin(c.Request)
		if !policy.allows(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin == "" {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeader)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
