// Package server exposes launchers over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goliatone/go-arlaunch"
)

// Server routes launch requests to launchers built by a Factory.
type Server struct {
	factory     *arlaunch.Factory
	detector    *arlaunch.Detector
	logger      *zap.Logger
	hasFallback bool
}

// Option configures a Server.
type Option func(*Server)

// WithDetector sets the detector used by /capabilities and every launch.
func WithDetector(detector *arlaunch.Detector) Option {
	return func(s *Server) {
		if detector != nil {
			s.detector = detector
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Server around factory.
func New(factory *arlaunch.Factory, opts ...Option) *Server {
	s := &Server{
		factory:  factory,
		detector: arlaunch.DefaultDetector(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.factory == nil {
		s.factory = arlaunch.NewFactory()
	}
	s.factory = s.factory.With(arlaunch.WithDetector(s.detector))
	s.hasFallback = s.factory.Settings().FallbackURL != ""
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/capabilities", s.capabilities)

	r.Route("/launch", func(r chi.Router) {
		r.Get("/raw", s.launch(func(r *http.Request, opts []arlaunch.Option) arlaunch.Launcher {
			return s.factory.Raw(r.URL.Query().Get("url"), opts...)
		}))
		r.Get("/model/{id}", s.launch(func(r *http.Request, opts []arlaunch.Option) arlaunch.Launcher {
			return s.factory.Model(chi.URLParam(r, "id"), opts...)
		}))
		r.Get("/product/{id}", s.launch(func(r *http.Request, opts []arlaunch.Option) arlaunch.Launcher {
			return s.factory.Product(chi.URLParam(r, "id"), r.URL.Query().Get("variation"), opts...)
		}))
		r.Get("/scene-product/{id}", s.launch(func(r *http.Request, opts []arlaunch.Option) arlaunch.Launcher {
			return s.factory.SceneProduct(chi.URLParam(r, "id"), r.URL.Query().Get("variation"), opts...)
		}))
		r.Get("/state", s.launchTarget(func(r *http.Request) arlaunch.Target {
			return arlaunch.Target{Kind: arlaunch.TargetSceneProduct}
		}))
		r.Get("/scene/{id}", s.launchTarget(func(r *http.Request) arlaunch.Target {
			return arlaunch.Target{Kind: arlaunch.TargetScene, ID: chi.URLParam(r, "id")}
		}))
		r.Get("/graph/{sceneID}/{graphID}", s.launch(func(r *http.Request, opts []arlaunch.Option) arlaunch.Launcher {
			return s.factory.Graph(chi.URLParam(r, "sceneID"), chi.URLParam(r, "graphID"), opts...)
		}))
	})
	return r
}

func (s *Server) capabilities(w http.ResponseWriter, r *http.Request) {
	env := arlaunch.EnvironmentFromRequest(r)
	profile := s.detector.Profile(env)
	writeJSON(w, http.StatusOK, struct {
		arlaunch.Profile
		CanAugment bool `json:"can_augment"`
	}{Profile: profile, CanAugment: profile.CanAugmentAtAll()})
}

type buildFunc func(r *http.Request, opts []arlaunch.Option) arlaunch.Launcher

// launchTarget builds through Factory.Build so state payloads in ?state= are decoded.
func (s *Server) launchTarget(target func(r *http.Request) arlaunch.Target) http.HandlerFunc {
	return s.launch(func(r *http.Request, opts []arlaunch.Option) arlaunch.Launcher {
		launcher, err := s.factory.Build(target(r), r.URL.Query().Get("state"), opts...)
		if err != nil {
			return nil
		}
		return launcher
	})
}

func (s *Server) launch(build buildFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := requestOptions(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !s.hasFallback {
			opts = append(opts, arlaunch.WithFallbackURL(originatingPage(r)))
		}
		nav := newResponseNavigator(w, r)
		opts = append(opts, arlaunch.WithNavigator(nav))

		launcher := build(r, opts)
		if launcher == nil {
			writeError(w, http.StatusBadRequest, errors.New("server: unknown launch target"))
			return
		}
		if _, err := launcher.Init(r.Context()); err != nil {
			writeError(w, StatusFor(err), err)
			return
		}
		if err := launcher.Start(r.Context()); err != nil {
			s.logger.Error("launch start failed", zap.Stringer("target", launcher.Target()), zap.Error(err))
			if !nav.wrote {
				writeError(w, StatusFor(err), err)
			}
		}
	}
}

// originatingPage is the page Scene Viewer sends ARCore-less devices back to:
// the absolute Referer when there is one, else the launch URL itself.
func originatingPage(r *http.Request) string {
	if ref, err := url.Parse(r.Referer()); err == nil && ref.IsAbs() &&
		(ref.Scheme == "http" || ref.Scheme == "https") && ref.Host != "" {
		return ref.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return (&url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String()
}

// requestOptions reads the per-request environment, anchor and banner.
func requestOptions(r *http.Request) ([]arlaunch.Option, error) {
	query := r.URL.Query()
	opts := []arlaunch.Option{arlaunch.WithEnvironment(arlaunch.EnvironmentFromRequest(r))}

	if raw := strings.TrimSpace(query.Get("anchor")); raw != "" {
		anchor, err := arlaunch.ParseAnchor(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, arlaunch.WithAnchor(anchor))
	}

	banner := arlaunch.Banner{
		Title:    query.Get("title"),
		Subtitle: query.Get("subtitle"),
		Button:   query.Get("button"),
	}
	if !banner.IsZero() {
		opts = append(opts, arlaunch.WithBanner(banner))
	}
	return opts, nil
}

// StatusFor maps launch errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, arlaunch.ErrCapabilityUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, arlaunch.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, arlaunch.ErrMissingTarget):
		return http.StatusNotFound
	case errors.Is(err, arlaunch.ErrCompositionFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
