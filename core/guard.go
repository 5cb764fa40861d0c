package core

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	PathHome         = "/"
	PathLogin        = "/login"
	PathSignup       = "/signup"
	PathProfile      = "/profile"
	PathManageAgenda = "/manage-agenda"
)

// Decision is the outcome of a guard: proceed, or redirect to Location.
type Decision struct {
	Allow    bool
	Location string
}

var allow = Decision{Allow: true}

// Gate evaluates the two route guards against an explicit Session.
type Gate struct {
	sessions *SessionManager
}

func NewGate(sm *SessionManager) *Gate {
	return &Gate{sessions: sm}
}

// CheckAuthenticated lets bound sessions through. Anonymous sessions are sent to the
// login page; for GET/HEAD the requested URL is kept as the pending return URL.
func (g *Gate) CheckAuthenticated(s *Session, method, requestedURL string) Decision {
	if g.sessions.IsAuthenticated(s) {
		return allow
	}
	if (method == http.MethodGet || method == http.MethodHead) && isLocalPath(requestedURL) {
		g.sessions.SetPendingReturnURL(s, requestedURL)
	}
	return Decision{Location: PathLogin}
}

// CheckAdmin lets admin sessions through and silently sends everyone else home.
// No return URL is recorded.
func (g *Gate) CheckAdmin(s *Session) Decision {
	id, ok := g.sessions.CurrentIdentity(s)
	if !ok || !id.Role.IsAdmin() {
		return Decision{Location: PathHome}
	}
	return allow
}

// RequireAuthenticated is the gin form of CheckAuthenticated.
func (g *Gate) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessionFrom(c)
		d := g.CheckAuthenticated(s, c.Request.Method, c.Request.URL.RequestURI())
		g.apply(c, s, d)
	}
}

// RequireAdmin is the gin form of CheckAdmin.
func (g *Gate) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessionFrom(c)
		g.apply(c, s, g.CheckAdmin(s))
	}
}

func (g *Gate) apply(c *gin.Context, s *Session, d Decision) {
	if d.Allow {
		c.Next()
		return
	}
	if err := g.sessions.Save(c, s); err != nil {
		slog.ErrorContext(c.Request.Context(), "save session on guard redirect", "err", err, "request_id", requestIDFrom(c))
		respondError(c, http.StatusInternalServerError, "Server error")
		c.Abort()
		return
	}
	c.Redirect(http.StatusSeeOther, d.Location)
	c.Abort()
}
