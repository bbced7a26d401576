package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"asset-tracker/internal/apperr"
	"asset-tracker/internal/logging"
	"asset-tracker/internal/metrics"
	"asset-tracker/internal/user"
)

const currentUserKey = "currentUser"

type GateOptions struct {
	CookieName   string
	CookiePath   string
	SecureCookie bool
	// LoginPath is where browsers are redirected when no session exists.
	LoginPath string
}

// Gate is the access-control layer in front of protected routes.
// Authentication always runs before any role check.
type Gate struct {
	manager *Manager
	opts    GateOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewGate(manager *Manager, opts GateOptions, logger *slog.Logger, m *metrics.Metrics) *Gate {
	if opts.CookiePath == "" {
		opts.CookiePath = "/"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gate{manager: manager, opts: opts, logger: logger, metrics: m}
}

// CurrentUser returns the identity resolved by a guard earlier in the chain.
func CurrentUser(c *gin.Context) (*user.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*user.User)
	return u, ok && u != nil
}

// SessionToken reads the session token from the cookie, falling back to an
// Authorization: Bearer header.
func (g *Gate) SessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(g.opts.CookieName); err == nil && cookie != "" {
		return cookie
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (g *Gate) SetSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(g.opts.CookieName, token, int(g.manager.TTL().Seconds()), g.opts.CookiePath, "", g.opts.SecureCookie, true)
}

func (g *Gate) ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(g.opts.CookieName, "", -1, g.opts.CookiePath, "", g.opts.SecureCookie, true)
}

// authenticate resolves the identity once per request. On failure the
// request is already aborted.
func (g *Gate) authenticate(c *gin.Context, guard string) (*user.User, bool) {
	if u, ok := CurrentUser(c); ok {
		return u, true
	}
	u, err := g.manager.CurrentIdentity(c.Request.Context(), g.SessionToken(c))
	if err != nil {
		if !errors.Is(err, apperr.ErrUnauthenticated) {
			g.metrics.RecordGuard(guard, "error")
			logging.LogError(g.logger, "identity lookup failed", err)
			c.AbortWithStatusJSON(apperr.Status(err), apperr.BodyOf(err))
			return nil, false
		}
		g.metrics.RecordGuard(guard, "unauthenticated")
		g.rejectUnauthenticated(c, err)
		return nil, false
	}
	c.Set(currentUserKey, u)
	return u, true
}

func (g *Gate) rejectUnauthenticated(c *gin.Context, err error) {
	if _, cookieErr := c.Cookie(g.opts.CookieName); cookieErr == nil {
		g.ClearSessionCookie(c)
	}
	if g.opts.LoginPath != "" && strings.Contains(c.GetHeader("Accept"), "text/html") {
		c.Redirect(http.StatusFound, g.opts.LoginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.BodyOf(err))
}

// RequireAuthenticated admits any request carrying a live session.
func (g *Gate) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := g.authenticate(c, "authenticated"); !ok {
			return
		}
		g.metrics.RecordGuard("authenticated", "allowed")
		c.Next()
	}
}

// RequireRole admits authenticated requests whose user holds role. Missing
// identity is Unauthenticated, a wrong role is Forbidden.
func (g *Gate) RequireRole(role user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := g.authenticate(c, "role")
		if !ok {
			return
		}
		if !u.HasRole(role) {
			g.metrics.RecordGuard("role", "forbidden")
			g.logger.Warn("access denied", "user_id", u.ID, "role", u.Role, "required", role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, apperr.BodyOf(apperr.ErrForbidden))
			return
		}
		g.metrics.RecordGuard("role", "allowed")
		c.Next()
	}
}

// GuardedRoutes registers routes that each pass through exactly one guard.
type GuardedRoutes struct {
	gate  *Gate
	group *gin.RouterGroup
}

func (g *Gate) Protect(rg *gin.RouterGroup) *GuardedRoutes {
	return &GuardedRoutes{gate: g, group: rg}
}

func (r *GuardedRoutes) Authenticated(method, path string, handlers ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{r.gate.RequireAuthenticated()}, handlers...)
	r.group.Handle(method, path, chain...)
}

func (r *GuardedRoutes) Role(role user.Role, method, path string, handlers ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{r.gate.RequireRole(role)}, handlers...)
	r.group.Handle(method, path, chain...)
}
