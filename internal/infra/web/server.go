package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"comfy-gateway/internal/config"
	"comfy-gateway/internal/infra/redis"
	"comfy-gateway/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultMaxUpload = 10 << 20

// Options carries the HTTP-facing settings from config.
type Options struct {
	Port              int
	RequestTimeout    time.Duration // 0 leaves backend calls unbounded
	MaxUploadBytes    int64
	RequireAuthForGen bool
	SubmitPerMinute   int
	FilesDir          string // served under /files/ when set
}

func OptionsFromConfig(cfg *config.Config) Options {
	o := Options{
		Port:              cfg.HTTP.Port,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		MaxUploadBytes:    cfg.HTTP.MaxUploadBytes,
		RequireAuthForGen: cfg.Auth.RequireForGeneration,
		SubmitPerMinute:   cfg.RateLimit.SubmitPerMinute,
	}
	if cfg.Storage.Driver == "local" {
		o.FilesDir = cfg.Storage.LocalDir
	}
	return o
}

type Server struct {
	gen       usecase.GenerationUseCase
	auth      usecase.AuthUseCase
	tokens    usecase.TokenManager
	limiter   Limiter
	opts      Options
	maxUpload int64
	log       *zerolog.Logger
	srv       *http.Server
}

func NewServer(
	gen usecase.GenerationUseCase,
	auth usecase.AuthUseCase,
	tokens usecase.TokenManager,
	limiter Limiter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	s := &Server{
		gen:       gen,
		auth:      auth,
		tokens:    tokens,
		limiter:   limiter,
		opts:      opts,
		maxUpload: opts.MaxUploadBytes,
		log:       &l,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUpload
	}
	return s
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.opts.FilesDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(s.opts.FilesDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.opts.RequestTimeout > 0 {
			r.Use(Timeout(s.opts.RequestTimeout))
		}
		r.Route("/generation", func(r chi.Router) {
			r.Use(RequireAuth(s.tokens, s.opts.RequireAuthForGen))
			r.Get("/workflows", s.handleWorkflows)
			r.With(RateLimit(s.limiter, s.opts.SubmitPerMinute, redis.SubmitKey, s.log)).
				Post("/prompt", s.handlePrompt)
			r.Post("/progress", s.handleProgress)
			r.Post("/fetch", s.handleFetch)
		})
		r.Route("/users", func(r chi.Router) {
			r.Post("/signup", s.handleSignup)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/check", s.handleCheck)
		})
	})
	return r
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.opts.Port).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
