// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/api/handlers"
	"github.com/autobrr/fetcharr/internal/config"
	"github.com/autobrr/fetcharr/internal/metrics"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/acquisition"
	"github.com/autobrr/fetcharr/internal/services/health"
	"github.com/autobrr/fetcharr/internal/services/queue"
)

type Server struct {
	server *http.Server
	logger zerolog.Logger
	config *config.AppConfig

	acquisition    *acquisition.Service
	queueService   *queue.Service
	clientRegistry *queue.ClientRegistry
	tracker        *health.Tracker

	queueStore          *models.QueueStore
	pendingStore        *models.PendingReleaseStore
	blocklistStore      *models.BlocklistStore
	historyStore        *models.HistoryStore
	qualityProfileStore *models.QualityProfileStore
	customFormatStore   *models.CustomFormatStore
	delayProfileStore   *models.DelayProfileStore
	indexerStore        *models.IndexerStore
	downloadClientStore *models.DownloadClientStore
}

type Dependencies struct {
	Config *config.AppConfig

	Acquisition    *acquisition.Service
	QueueService   *queue.Service
	ClientRegistry *queue.ClientRegistry
	Tracker        *health.Tracker

	QueueStore          *models.QueueStore
	PendingStore        *models.PendingReleaseStore
	BlocklistStore      *models.BlocklistStore
	HistoryStore        *models.HistoryStore
	QualityProfileStore *models.QualityProfileStore
	CustomFormatStore   *models.CustomFormatStore
	DelayProfileStore   *models.DelayProfileStore
	IndexerStore        *models.IndexerStore
	DownloadClientStore *models.DownloadClientStore
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:              log.Logger.With().Str("module", "api").Logger(),
		config:              deps.Config,
		acquisition:         deps.Acquisition,
		queueService:        deps.QueueService,
		clientRegistry:      deps.ClientRegistry,
		tracker:             deps.Tracker,
		queueStore:          deps.QueueStore,
		pendingStore:        deps.PendingStore,
		blocklistStore:      deps.BlocklistStore,
		historyStore:        deps.HistoryStore,
		qualityProfileStore: deps.QualityProfileStore,
		customFormatStore:   deps.CustomFormatStore,
		delayProfileStore:   deps.DelayProfileStore,
		indexerStore:        deps.IndexerStore,
		downloadClientStore: deps.DownloadClientStore,
	}
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Msgf("Starting API server - Open: http://%s%s", host, s.config.Config.BaseURL)

	s.server.Handler = s.Handler()

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	searchTimeout := time.Duration(s.config.Config.SearchTimeoutSeconds) * time.Second
	acquisitionHandler := handlers.NewAcquisitionHandler(s.acquisition, searchTimeout)
	queueHandler := handlers.NewQueueHandler(s.queueStore, s.pendingStore, s.queueService)
	blocklistHandler := handlers.NewBlocklistHandler(s.blocklistStore)
	historyHandler := handlers.NewHistoryHandler(s.historyStore)
	qualityProfilesHandler := handlers.NewQualityProfilesHandler(s.qualityProfileStore)
	customFormatsHandler := handlers.NewCustomFormatsHandler(s.customFormatStore)
	delayProfilesHandler := handlers.NewDelayProfilesHandler(s.delayProfileStore)
	indexersHandler := handlers.NewIndexersHandler(s.indexerStore)
	downloadClientsHandler := handlers.NewDownloadClientsHandler(s.downloadClientStore, s.clientRegistry)
	healthHandler := handlers.NewHealthHandler(s.tracker)

	apiRouter := chi.NewRouter()

	apiRouter.Post("/search", acquisitionHandler.Search)

	apiRouter.Route("/queue", func(r chi.Router) {
		r.Get("/", queueHandler.List)
		r.Get("/pending", queueHandler.ListPending)
		r.Post("/{id}/pause", queueHandler.Pause)
		r.Post("/{id}/resume", queueHandler.Resume)
		r.Delete("/{id}", queueHandler.Remove)
	})

	apiRouter.Route("/blocklist", func(r chi.Router) {
		r.Get("/", blocklistHandler.List)
		r.Delete("/{id}", blocklistHandler.Delete)
	})

	apiRouter.Get("/history", historyHandler.List)

	apiRouter.Route("/quality-profiles", func(r chi.Router) {
		r.Get("/", qualityProfilesHandler.List)
		r.Post("/", qualityProfilesHandler.Create)
		r.Get("/{id}", qualityProfilesHandler.Get)
		r.Put("/{id}", qualityProfilesHandler.Update)
		r.Delete("/{id}", qualityProfilesHandler.Delete)
	})

	apiRouter.Route("/custom-formats", func(r chi.Router) {
		r.Get("/", customFormatsHandler.List)
		r.Post("/", customFormatsHandler.Create)
		r.Get("/{id}", customFormatsHandler.Get)
		r.Put("/{id}", customFormatsHandler.Update)
		r.Delete("/{id}", customFormatsHandler.Delete)
	})

	apiRouter.Route("/delay-profiles", func(r chi.Router) {
		r.Get("/", delayProfilesHandler.List)
		r.Post("/", delayProfilesHandler.Create)
		r.Put("/{id}", delayProfilesHandler.Update)
		r.Delete("/{id}", delayProfilesHandler.Delete)
	})

	apiRouter.Route("/indexers", func(r chi.Router) {
		r.Get("/", indexersHandler.List)
		r.Post("/", indexersHandler.Create)
		r.Put("/{id}", indexersHandler.Update)
		r.Delete("/{id}", indexersHandler.Delete)
	})

	apiRouter.Route("/download-clients", func(r chi.Router) {
		r.Get("/", downloadClientsHandler.List)
		r.Post("/", downloadClientsHandler.Create)
		r.Put("/{id}", downloadClientsHandler.Update)
		r.Delete("/{id}", downloadClientsHandler.Delete)
		r.Post("/{id}/test", downloadClientsHandler.TestConnection)
	})

	apiRouter.Get("/integrations", healthHandler.ListIntegrations)

	baseURL := s.config.Config.BaseURL
	if baseURL == "" {
		baseURL = "/"
	}

	r.Get("/health", healthHandler.HandleLiveness)

	if s.config.Config.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Mount(baseURL+"api", apiRouter)

	return r
}
