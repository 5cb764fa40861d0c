package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// Deps are the collaborators the router needs. Logger and Metrics default when nil;
// Ready may be nil, in which case /readyz always reports ok.
type Deps struct {
	Logger   *slog.Logger
	Sessions sessions.Store
	Auth     Authenticator
	Agenda   AgendaRepository
	Metrics  *Metrics
	Ready    func(ctx context.Context) error
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	sm := NewSessionManager(cfg, deps.Sessions)
	gate := NewGate(sm)
	agenda := NewAgendaService(deps.Agenda, cfg.StoreTimeout)
	limiter := NewLoginRateLimiter(cfg.LoginRatePerSecond, cfg.LoginRateBurst)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(logger, metrics))

	// Probes and assets are registered before the session middleware so they never create sessions.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.StoreTimeout)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				logger.WarnContext(c.Request.Context(), "readiness check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if cfg.StaticDir != "" {
		r.Static("/static", cfg.StaticDir)
	}

	// Global middleware: origin/CORS -> session -> CSRF
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(sm))
	r.Use(CSRFMiddleware(cfg, sm))

	serverError := func(c *gin.Context, msg string, err error) {
		logger.ErrorContext(c.Request.Context(), msg, "err", err, "request_id", requestIDFrom(c))
		respondError(c, http.StatusInternalServerError, "Server error")
	}

	// redirect saves the session before sending a 303.
	redirect := func(c *gin.Context, s *Session, location string) {
		if err := sm.Save(c, s); err != nil {
			serverError(c, "save session", err)
			return
		}
		c.Redirect(http.StatusSeeOther, location)
	}

	// pageFor collects the layout state; popped flashes are persisted immediately.
	pageFor := func(c *gin.Context, title string) (page, bool) {
		s := sessionFrom(c)
		p := page{Title: title, CSRF: c.GetString(ctxCSRFKey)}
		if id, ok := sm.CurrentIdentity(s); ok {
			p.Identity = &id
		}
		if p.Flashes = sm.Flashes(s); len(p.Flashes) > 0 {
			if err := sm.Save(c, s); err != nil {
				serverError(c, "save session", err)
				return page{}, false
			}
		}
		return p, true
	}

	r.GET(PathHome, func(c *gin.Context) {
		if p, ok := pageFor(c, "Accueil"); ok {
			renderHTML(c, http.StatusOK, homePage(p))
		}
	})

	r.GET(PathLogin, func(c *gin.Context) {
		if p, ok := pageFor(c, "Login"); ok {
			renderHTML(c, http.StatusOK, loginPage(p))
		}
	})

	r.POST(PathLogin, limiter.Middleware(), func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid form")
			return
		}
		s := sessionFrom(c)
		res := deps.Auth.Authenticate(c.Request.Context(), req.Username, req.Password)
		metrics.LoginAttempts.WithLabelValues(res.Failure.String()).Inc()

		switch {
		case res.Failure == StorageUnavailable:
			serverError(c, "authenticate", res.Err)
			return
		case !res.OK():
			logger.InfoContext(c.Request.Context(), "login failed", "reason", res.Failure.String(), "request_id", requestIDFrom(c))
			sm.AddFlash(s, "Invalid username or password.")
			redirect(c, s, PathLogin)
			return
		}

		// resolve before Bind, which resets the session values
		target := ResolveLoginRedirect(sm, s, res.Identity)
		if err := sm.Bind(c.Request.Context(), s, res.Identity); err != nil {
			serverError(c, "bind session", err)
			return
		}
		logger.InfoContext(c.Request.Context(), "login", "username", res.Identity.Username, "role", res.Identity.Role.String(), "request_id", requestIDFrom(c))
		redirect(c, s, target)
	})

	r.GET(PathSignup, func(c *gin.Context) {
		if p, ok := pageFor(c, "Signup"); ok {
			renderHTML(c, http.StatusOK, signupPage(p))
		}
	})

	r.POST(PathSignup, limiter.Middleware(), func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid form")
			return
		}
		s := sessionFrom(c)
		id, err := deps.Auth.Register(c.Request.Context(), req.Username, req.Password)

		var ve *ValidationError
		switch {
		case err == nil:
		case errors.As(err, &ve):
			metrics.Signups.WithLabelValues("invalid").Inc()
			sm.AddFlash(s, "Signup failed: "+ve.Error())
			redirect(c, s, PathSignup)
			return
		case errors.Is(err, ErrIdentityExists):
			metrics.Signups.WithLabelValues("duplicate").Inc()
			sm.AddFlash(s, "That username is already taken.")
			redirect(c, s, PathSignup)
			return
		default:
			metrics.Signups.WithLabelValues("storage_error").Inc()
			serverError(c, "register", err)
			return
		}

		metrics.Signups.WithLabelValues("ok").Inc()
		if err := sm.Bind(c.Request.Context(), s, id); err != nil {
			serverError(c, "bind session", err)
			return
		}
		logger.InfoContext(c.Request.Context(), "signup", "username", id.Username, "request_id", requestIDFrom(c))
		redirect(c, s, PathProfile)
	})

	r.GET("/logout", func(c *gin.Context) {
		if err := sm.Destroy(c, sessionFrom(c)); err != nil {
			serverError(c, "destroy session", err)
			return
		}
		c.Redirect(http.StatusSeeOther, PathHome)
	})

	member := r.Group("/", gate.RequireAuthenticated())
	{
		member.GET("profile", func(c *gin.Context) {
			if p, ok := pageFor(c, "Profile"); ok {
				renderHTML(c, http.StatusOK, profilePage(p))
			}
		})
		member.GET("about", func(c *gin.Context) {
			if p, ok := pageFor(c, "About"); ok {
				renderHTML(c, http.StatusOK, aboutPage(p))
			}
		})
		member.GET("recolte", func(c *gin.Context) {
			if p, ok := pageFor(c, "Récolte"); ok {
				renderHTML(c, http.StatusOK, recoltePage(p))
			}
		})
		member.GET("stades", func(c *gin.Context) {
			items, err := agenda.List(c.Request.Context())
			if err != nil {
				respondServiceError(c, logger, "list agenda", err)
				return
			}
			if p, ok := pageFor(c, "Stades"); ok {
				renderHTML(c, http.StatusOK, stadesPage(p, items))
			}
		})
	}

	admin := r.Group(PathManageAgenda, gate.RequireAdmin())
	{
		admin.GET("", func(c *gin.Context) {
			items, err := agenda.List(c.Request.Context())
			if err != nil {
				respondServiceError(c, logger, "list agenda", err)
				return
			}
			if p, ok := pageFor(c, "Manage agenda"); ok {
				renderHTML(c, http.StatusOK, manageAgendaPage(p, items))
			}
		})

		admin.POST("/add", func(c *gin.Context) {
			var req AgendaInput
			if err := c.ShouldBind(&req); err != nil {
				respondError(c, http.StatusBadRequest, "Invalid form")
				return
			}
			_, err := agenda.Add(c.Request.Context(), req)
			metrics.AgendaMutations.WithLabelValues("add", mutationOutcome(err)).Inc()
			if err != nil {
				respondServiceError(c, logger, "add agenda item", err)
				return
			}
			s := sessionFrom(c)
			sm.AddFlash(s, "Agenda item added.")
			redirect(c, s, PathManageAgenda)
		})

		admin.POST("/delete/:id", func(c *gin.Context) {
			id, err := ParseAgendaID(c.Param("id"))
			if err == nil {
				err = agenda.Delete(c.Request.Context(), id)
			}
			metrics.AgendaMutations.WithLabelValues("delete", mutationOutcome(err)).Inc()
			if err != nil {
				respondServiceError(c, logger, "delete agenda item", err)
				return
			}
			s := sessionFrom(c)
			sm.AddFlash(s, "Agenda item deleted.")
			redirect(c, s, PathManageAgenda)
		})

		admin.POST("/edit/:id", func(c *gin.Context) {
			var req AgendaInput
			if err := c.ShouldBind(&req); err != nil {
				respondError(c, http.StatusBadRequest, "Invalid form")
				return
			}
			id, err := ParseAgendaID(c.Param("id"))
			if err == nil {
				_, err = agenda.Update(c.Request.Context(), id, req)
			}
			metrics.AgendaMutations.WithLabelValues("edit", mutationOutcome(err)).Inc()
			if err != nil {
				respondServiceError(c, logger, "update agenda item", err)
				return
			}
			s := sessionFrom(c)
			sm.AddFlash(s, "Agenda item updated.")
			redirect(c, s, PathManageAgenda)
		})
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Page not found")
	})

	return r
}

// credentialsRequest is the login and signup form.
type credentialsRequest struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// ReadyCheck combines the probes of the backing stores; nil entries are skipped.
func ReadyCheck(checks ...func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting api server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
