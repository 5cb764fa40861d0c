package core

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	ctxRequestIDKey = "request_id"
	ctxCSRFKey      = "csrf_token"
	csrfFormField   = "csrf_token"
	csrfHeader      = "X-CSRF-Token"
)

// RequestIDMiddleware reuses an incoming X-Request-ID or generates a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set(ctxRequestIDKey, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(ctxRequestIDKey)
}

// RequestLogger logs one line per request, with the level chosen by status class,
// and records latency when metrics is non-nil.
func RequestLogger(logger *slog.Logger, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		if metrics != nil {
			metrics.RequestDuration.WithLabelValues(c.Request.Method, route, statusClass(status)).Observe(elapsed.Seconds())
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"remote", c.ClientIP(),
			"request_id", requestIDFrom(c),
		)
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// SessionMiddleware loads the client's session and puts it on the gin context.
// Handlers that change it are responsible for saving.
func SessionMiddleware(sm *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := sm.Load(c.Request)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "load session", "err", err, "request_id", requestIDFrom(c))
			respondError(c, http.StatusInternalServerError, "Server error")
			c.Abort()
			return
		}
		c.Set(ctxSessionKey, s)
		c.Next()
	}
}

// OriginRefererMiddleware rejects cross-origin requests unless the origin is allowed.
// Same-host requests and requests without Origin/Referer always pass.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			if ref := c.GetHeader("Referer"); ref != "" {
				if u, err := url.Parse(ref); err == nil {
					origin = u.Scheme + "://" + u.Host
				}
			}
		}
		if origin == "" || sameHost(origin, c.Request.Host) {
			c.Next()
			return
		}
		if _, ok := allowed[strings.ToLower(origin)]; !ok {
			respondError(c, http.StatusForbidden, "Forbidden")
			c.Abort()
			return
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// CSRFMiddleware issues a per-session token and validates it on unsafe methods,
// from the csrf_token form field or the X-CSRF-Token header.
func CSRFMiddleware(cfg Config, sm *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.CSRFEnabled {
			c.Next()
			return
		}
		s := sessionFrom(c)
		token := s.str(keyCSRFToken)
		if token == "" {
			var err error
			token, err = newCSRFToken()
			if err != nil {
				respondError(c, http.StatusInternalServerError, "Server error")
				c.Abort()
				return
			}
			s.raw.Values[keyCSRFToken] = token
			if err := sm.Save(c, s); err != nil {
				slog.ErrorContext(c.Request.Context(), "save session", "err", err, "request_id", requestIDFrom(c))
				respondError(c, http.StatusInternalServerError, "Server error")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) {
			sent := c.GetHeader(csrfHeader)
			if sent == "" {
				sent = c.PostForm(csrfFormField)
			}
			if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
				respondError(c, http.StatusForbidden, "Forbidden")
				c.Abort()
				return
			}
		}

		c.Set(ctxCSRFKey, token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// LoginRateLimiter is a per-client-IP token bucket for credential endpoints.
type LoginRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLoginRateLimiter(perSecond float64, burst int) *LoginRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &LoginRateLimiter{
		clients:   map[string]*clientLimiter{},
		limit:     rate.Limit(perSecond),
		burst:     burst,
		idleAfter: 10 * time.Minute,
		now:       time.Now,
	}
}

// Allow reports whether ip may attempt now; otherwise it returns the suggested wait.
func (l *LoginRateLimiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > l.idleAfter {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.idleAfter {
				delete(l.clients, k)
			}
		}
		l.lastPrune = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now

	res := cl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware answers 429 with Retry-After once a client exhausts its burst.
func (l *LoginRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Allow(clientIP(c.Request))
		if !ok {
			if wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			}
			respondError(c, http.StatusTooManyRequests, "Too many attempts, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// clientIP uses RemoteAddr only; forwarded headers are client-controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
