package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mayagen/internal/config"
	"mayagen/internal/infra/redis"
	"mayagen/internal/infra/storage"
	"mayagen/internal/usecase"
)

// Sweeper triggers the stale-work recovery pass on demand. Only the
// grace-guarded variant is exposed here: the full reset is reserved for
// startup, when no dispatcher is running.
type Sweeper interface {
	RunStale(ctx context.Context) error
}

type Server struct {
	jobUC    *usecase.JobUseCase
	batchUC  *usecase.BatchUseCase
	editUC   *usecase.EditBatchUseCase
	progress *usecase.ProgressUseCase
	sweep    Sweeper
	store    *storage.Store
	limiter  *redis.RateLimiter

	apiKey     string
	rateLimit  int
	rateWindow time.Duration
	bodyLimit  int64

	defaults config.ProvidersConfig
	log      *zerolog.Logger
}

func NewServer(
	jobUC *usecase.JobUseCase,
	batchUC *usecase.BatchUseCase,
	editUC *usecase.EditBatchUseCase,
	progress *usecase.ProgressUseCase,
	sweep Sweeper,
	store *storage.Store,
	limiter *redis.RateLimiter,
	cfg *config.Config,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		jobUC:      jobUC,
		batchUC:    batchUC,
		editUC:     editUC,
		progress:   progress,
		sweep:      sweep,
		store:      store,
		limiter:    limiter,
		apiKey:     cfg.Admin.APIKey,
		rateLimit:  cfg.HTTP.RateLimit,
		rateWindow: cfg.HTTP.RateWindow,
		bodyLimit:  cfg.HTTP.RequestBodyMB << 20,
		defaults:   cfg.Providers,
		log:        &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		limited := s.throttle("enqueue", s.rateLimit, s.rateWindow)

		r.With(limited).Post("/generate", s.handleGenerate)

		r.Route("/batch", func(r chi.Router) {
			r.With(limited).Post("/", s.handleBatchCreate)
			r.Get("/", s.handleBatchList)
			r.Post("/preview", s.handleBatchPreview)
			r.Get("/{id}", s.handleBatchGet)
			r.Get("/{id}/progress", s.handleBatchProgress)
			r.Get("/{id}/images", s.handleBatchJobs)
			r.Post("/{id}/cancel", s.handleBatchCancel)
			r.Post("/{id}/share", s.handleBatchShare)
			r.Delete("/{id}/share", s.handleBatchUnshare)
		})

		r.Route("/edit-batch", func(r chi.Router) {
			r.With(limited).Post("/", s.handleEditBatchCreate)
			r.Get("/", s.handleEditBatchList)
			r.Get("/{id}", s.handleEditBatchGet)
			r.Get("/{id}/progress", s.handleEditBatchProgress)
			r.Get("/{id}/images", s.handleEditBatchJobs)
			r.Post("/{id}/cancel", s.handleEditBatchCancel)
			r.Post("/{id}/share", s.handleEditBatchShare)
			r.Delete("/{id}/share", s.handleEditBatchUnshare)
		})

		r.Get("/share/{token}", s.handleShared)
		r.Get("/share/{token}/images", s.handleSharedJobs)

		r.Get("/images/{id}", s.handleImageGet)
		r.Get("/images/{id}/file", s.handleImageFile)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminGuard)
			r.Get("/queue", s.handleAdminQueue)
			r.Post("/recover", s.handleAdminRecover)
		})
	})

	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}
