// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/fetcharr/internal/api"
	"github.com/autobrr/fetcharr/internal/buildinfo"
	"github.com/autobrr/fetcharr/internal/config"
	"github.com/autobrr/fetcharr/internal/database"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/acquisition"
	"github.com/autobrr/fetcharr/internal/services/decision"
	"github.com/autobrr/fetcharr/internal/services/delay"
	"github.com/autobrr/fetcharr/internal/services/health"
	"github.com/autobrr/fetcharr/internal/services/queue"
	"github.com/autobrr/fetcharr/internal/services/search"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "fetcharr",
		Short: "Media acquisition decision engine",
		Long: `fetcharr - searches Torznab indexers, scores releases against
quality profiles and custom formats, and manages the download queue.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/fetcharr/). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of fetcharr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
}

func NewApplication(configDir, dataDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("FETCHARR__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("FETCHARR__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting fetcharr")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Stores
	queueStore := models.NewQueueStore(db)
	pendingStore := models.NewPendingReleaseStore(db)
	blocklistStore := models.NewBlocklistStore(db)
	historyStore := models.NewHistoryStore(db)
	qualityProfileStore := models.NewQualityProfileStore(db)
	customFormatStore := models.NewCustomFormatStore(db, decision.ValidateFormat)
	delayProfileStore := models.NewDelayProfileStore(db)
	indexerStore := models.NewIndexerStore(db)
	downloadClientStore := models.NewDownloadClientStore(db)
	integrationStatusStore := models.NewIntegrationStatusStore(db)

	// Circuit breaker state survives restarts through its store.
	tracker := health.NewTracker(integrationStatusStore)
	if err := tracker.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load integration status")
	}

	registry := queue.NewClientRegistry(downloadClientStore)

	// The queue's research hook and the scheduler's promote hook both call
	// back into the acquisition pipeline, which in turn owns the queue and
	// scheduler. Late-bound closures break the cycle.
	var acq *acquisition.Service

	queueService := queue.NewService(queueStore, blocklistStore, historyStore, tracker, registry.Resolve,
		func(ctx context.Context, mediaID int64, episodeID *int64) {
			acq.Research(ctx, mediaID, episodeID)
		})

	scheduler := delay.NewScheduler(pendingStore, delayProfileStore, qualityProfileStore,
		func(ctx context.Context, pending *models.PendingRelease) error {
			return acq.Promote(ctx, pending)
		},
		time.Duration(cfg.Config.PendingTickSeconds)*time.Second)

	searchService := search.NewService(indexerStore, search.NewTorznabClient(), tracker, cfg.Config.SearchWorkers)

	acq = acquisition.NewService(searchService, queueService, scheduler,
		qualityProfileStore, customFormatStore, delayProfileStore, blocklistStore, downloadClientStore)

	go queueService.Run(ctx, time.Duration(cfg.Config.PollIntervalSeconds)*time.Second)
	go scheduler.Run(ctx)
	go acq.Run(ctx, time.Duration(cfg.Config.SyncIntervalMinutes)*time.Minute)

	httpServer := api.NewServer(&api.Dependencies{
		Config:              cfg,
		Acquisition:         acq,
		QueueService:        queueService,
		ClientRegistry:      registry,
		Tracker:             tracker,
		QueueStore:          queueStore,
		PendingStore:        pendingStore,
		BlocklistStore:      blocklistStore,
		HistoryStore:        historyStore,
		QualityProfileStore: qualityProfileStore,
		CustomFormatStore:   customFormatStore,
		DelayProfileStore:   delayProfileStore,
		IndexerStore:        indexerStore,
		DownloadClientStore: downloadClientStore,
	})

	errorChannel := make(chan error)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")
		os.Exit(1)
	}
}
