// Package server is the composition root: it builds every dependency from the config, mounts
// the routes and runs the HTTP listener alongside the digest scheduler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/panchang/internal/auth"
	"github.com/sakif/panchang/internal/config"
	"github.com/sakif/panchang/internal/dispatch"
	"github.com/sakif/panchang/internal/handler"
	"github.com/sakif/panchang/internal/mail"
	"github.com/sakif/panchang/internal/middleware"
	"github.com/sakif/panchang/internal/panchang"
	sqliteRepo "github.com/sakif/panchang/internal/repository/sqlite"
	"github.com/sakif/panchang/internal/service"
)

const shutdownTimeout = 30 * time.Second

// App holds the long-lived dependencies shared by the HTTP routes and the dispatcher.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *sqliteRepo.DB
	Panchang      *panchang.Client
	Tokens        *auth.TokenService
	Auth          *service.AuthService
	Subscriptions *service.SubscriptionService
	Providers     []auth.Provider
	Dispatcher    *dispatch.Dispatcher
}

// NewApp opens the database and builds the services. The caller owns the returned App and
// must Close it.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	tokens, err := auth.NewTokenService(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	sender, err := mail.NewSender(mail.Config{
		Provider:    cfg.Mail.Provider,
		SendGridKey: cfg.Mail.SendGridKey,
		From:        cfg.Mail.From,
		SMTP: mail.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			TLS:      cfg.Mail.SMTP.TLS,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating mail sender: %w", err)
	}

	// "Today" for the feed is the schedule's calendar day, not the host's.
	loc, err := cfg.Dispatch.Location()
	if err != nil {
		return nil, err
	}

	db, err := sqliteRepo.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	client := panchang.NewClient(panchang.Config{
		FeedURL:   cfg.Feed.BaseURL,
		PlacesURL: cfg.Feed.PlacesURL,
		Timeout:   cfg.Feed.Timeout,
		Location:  loc,
	})

	app := &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Panchang:      client,
		Tokens:        tokens,
		Auth:          service.NewAuthService(db.Users(), tokens, logger),
		Subscriptions: service.NewSubscriptionService(db.Subscriptions(), logger),
		Providers:     providers(cfg),
		Dispatcher: dispatch.New(db.Subscriptions(), client, mail.NewNotifier(sender, logger), logger, dispatch.Options{
			Workers: cfg.Dispatch.Workers,
			Timeout: cfg.Dispatch.Timeout,
		}),
	}
	return app, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// providers returns the identity providers that have credentials configured.
func providers(cfg *config.Config) []auth.Provider {
	callback := func(name string) string {
		return cfg.HTTP.BaseURL + "/auth/login/" + name + "/callback"
	}

	var ps []auth.Provider
	if app := cfg.OAuth.GitHub; app.Enabled() {
		ps = append(ps, auth.NewGitHubProvider(auth.ProviderConfig{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			RedirectURL:  callback("github"),
		}))
	}
	if app := cfg.OAuth.LinkedIn; app.Enabled() {
		ps = append(ps, auth.NewLinkedInProvider(auth.ProviderConfig{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			RedirectURL:  callback("linkedin"),
		}))
	}
	return ps
}

// Server serves the API and runs the digest schedule.
type Server struct {
	app    *App
	router *chi.Mux
	logger *slog.Logger
}

func New(app *App) *Server {
	s := &Server{
		app:    app,
		router: chi.NewRouter(),
		logger: app.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	a := s.app
	secure := strings.HasPrefix(a.Config.HTTP.BaseURL, "https://")
	authH := handler.NewAuthHandler(a.Providers, a.Auth, a.Tokens, secure, s.logger)
	subH := handler.NewSubscriptionHandler(a.Subscriptions, s.logger)
	panH := handler.NewPanchangHandler(a.Panchang, s.logger)

	s.router.Get("/", handler.HandleIndex)
	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/login/{provider}", authH.HandleLogin)
		r.Get("/login/{provider}/callback", authH.HandleCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(a.Tokens, a.Auth))
			r.Get("/api/token", authH.HandleToken)
			r.Post("/api/token", authH.HandleToken)
			r.Get("/logout", authH.HandleLogout)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/panchang", panH.HandlePanchang)
		r.Get("/panchang/digest", panH.HandleDigest)
		r.Get("/locations", panH.HandleLocations)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAPIToken(a.Auth))
			r.Get("/me", authH.HandleMe)
			r.Post("/subscribe", subH.HandleSubscribe)
			r.Get("/subscriptions", subH.HandleList)
			r.Delete("/subscriptions/{id}", subH.HandleUnsubscribe)
		})
	})
}

// schedule registers the digest batch: daily at dispatch.dailyAt when set, otherwise every
// dispatch.interval.
func (s *Server) schedule(ctx context.Context) (*dispatch.Scheduler, error) {
	cfg := s.app.Config.Dispatch
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sched := dispatch.NewScheduler(loc, s.logger)
	job := s.app.Dispatcher.Job(ctx)
	if cfg.DailyAt != "" {
		_, err = sched.ScheduleDaily(cfg.DailyAt, job)
	} else {
		_, err = sched.ScheduleInterval(cfg.Interval, job)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling digest batch: %w", err)
	}
	return sched, nil
}

// Start serves HTTP and runs the digest schedule until ctx is cancelled, then drains in-flight
// requests and waits for a running batch to finish.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.app.Config

	sched, err := s.schedule(ctx)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", cfg.HTTP.Port),
			slog.String("url", cfg.HTTP.BaseURL),
			slog.String("database", cfg.DB.Path),
			slog.Int("providers", len(s.app.Providers)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
