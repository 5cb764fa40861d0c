package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const sessionName = "olive_session"

const ctxSessionKey = "session"

// Session value keys.
const (
	keyIdentityID = "identity_id"
	keyUsername   = "username"
	keyRole       = "role"
	keyReturnTo   = "return_to"
	keyCSRFToken  = "csrf_token"
)

// Session is the per-client state handed to guards and the redirect resolver.
// A nil or empty Session is anonymous.
type Session struct {
	raw *sessions.Session
}

// WrapSession adapts a gorilla session.
func WrapSession(raw *sessions.Session) *Session {
	if raw.Values == nil {
		raw.Values = map[interface{}]interface{}{}
	}
	return &Session{raw: raw}
}

// Raw exposes the underlying gorilla session.
func (s *Session) Raw() *sessions.Session { return s.raw }

func (s *Session) str(key string) string {
	if s == nil || s.raw == nil {
		return ""
	}
	v, _ := s.raw.Values[key].(string)
	return v
}

// regenerator is implemented by stores that can issue a fresh session id (RedisStore).
type regenerator interface {
	Regenerate(ctx context.Context, session *sessions.Session) error
}

// SessionManager binds identities to sessions and moves them between gin and the store.
type SessionManager struct {
	cfg   Config
	store sessions.Store
}

func NewSessionManager(cfg Config, store sessions.Store) *SessionManager {
	return &SessionManager{cfg: cfg, store: store}
}

// IsAuthenticated reports whether an identity is bound to s.
func (m *SessionManager) IsAuthenticated(s *Session) bool {
	_, ok := m.CurrentIdentity(s)
	return ok
}

// CurrentIdentity returns the bound identity. A session with a malformed role is anonymous.
func (m *SessionManager) CurrentIdentity(s *Session) (Identity, bool) {
	if s == nil || s.raw == nil {
		return Identity{}, false
	}
	id, ok := s.raw.Values[keyIdentityID].(int64)
	if !ok || id <= 0 {
		return Identity{}, false
	}
	role, err := ParseRole(s.str(keyRole))
	if err != nil {
		return Identity{}, false
	}
	return Identity{ID: id, Username: s.str(keyUsername), Role: role}, true
}

// Bind attaches id to s. Call it only with the identity of a successful AuthResult.
// All previous values are dropped, and the session id is regenerated when the store supports it.
func (m *SessionManager) Bind(ctx context.Context, s *Session, id Identity) error {
	if r, ok := m.store.(regenerator); ok {
		if err := r.Regenerate(ctx, s.raw); err != nil {
			return err
		}
	}
	s.raw.Values = map[interface{}]interface{}{
		keyIdentityID: id.ID,
		keyUsername:   id.Username,
		keyRole:       id.Role.String(),
	}
	return nil
}

// Unbind logs s out: identity, pending return URL and every other value are cleared.
func (m *SessionManager) Unbind(s *Session) {
	s.raw.Values = map[interface{}]interface{}{}
}

// SetPendingReturnURL remembers the protected URL an anonymous client asked for.
func (m *SessionManager) SetPendingReturnURL(s *Session, u string) {
	s.raw.Values[keyReturnTo] = u
}

func (m *SessionManager) PendingReturnURL(s *Session) string {
	return s.str(keyReturnTo)
}

// ConsumePendingReturnURL returns and clears the pending return URL.
func (m *SessionManager) ConsumePendingReturnURL(s *Session) (string, bool) {
	u := s.str(keyReturnTo)
	delete(s.raw.Values, keyReturnTo)
	return u, u != ""
}

// ClearPendingReturnURL drops the pending return URL without using it.
func (m *SessionManager) ClearPendingReturnURL(s *Session) {
	delete(s.raw.Values, keyReturnTo)
}

func (m *SessionManager) AddFlash(s *Session, msg string) {
	s.raw.AddFlash(msg)
}

// Flashes pops all queued flash messages.
func (m *SessionManager) Flashes(s *Session) []string {
	var out []string
	for _, f := range s.raw.Flashes() {
		if msg, ok := f.(string); ok && strings.TrimSpace(msg) != "" {
			out = append(out, msg)
		}
	}
	return out
}

// Load fetches the request's session from the store. An undecodable cookie yields a fresh
// session; only store failures are returned as errors.
func (m *SessionManager) Load(r *http.Request) (*Session, error) {
	raw, err := m.store.Get(r, sessionName)
	if err != nil {
		if raw == nil || isStorageError(err) {
			return nil, err
		}
		// stale or forged cookie from the cookie backend
		raw = sessions.NewSession(m.store, sessionName)
		raw.IsNew = true
	}
	applySessionOptions(m.cfg, raw)
	return WrapSession(raw), nil
}

// Save persists s and writes the session cookie.
func (m *SessionManager) Save(c *gin.Context, s *Session) error {
	return s.raw.Save(c.Request, c.Writer)
}

// Destroy removes the session record and expires the cookie.
func (m *SessionManager) Destroy(c *gin.Context, s *Session) error {
	m.Unbind(s)
	applySessionOptions(m.cfg, s.raw)
	s.raw.Options.MaxAge = -1 // after applySessionOptions, which resets MaxAge
	return s.raw.Save(c.Request, c.Writer)
}

// sessionFrom returns the session placed on the gin context by SessionMiddleware.
func sessionFrom(c *gin.Context) *Session {
	v, _ := c.Get(ctxSessionKey)
	s, _ := v.(*Session)
	return s
}

func sessionOptions(cfg Config) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSiteFromString(cfg.CookieSameSite),
	}
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	opts := sessionOptions(cfg)
	session.Options = &opts
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
