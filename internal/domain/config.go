// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config holds the runtime application configuration, populated by viper
// from the TOML config file and FETCHARR__ environment overrides.
type Config struct {
	Version string `mapstructure:"-"`

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"` // MB
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir string `mapstructure:"dataDir"`

	// Acquisition tuning.
	SearchWorkers        int `mapstructure:"searchWorkers"`
	SearchTimeoutSeconds int `mapstructure:"searchTimeoutSeconds"`
	PollIntervalSeconds  int `mapstructure:"pollIntervalSeconds"`
	PendingTickSeconds   int `mapstructure:"pendingTickSeconds"`
	SyncIntervalMinutes  int `mapstructure:"syncIntervalMinutes"`

	MetricsEnabled bool `mapstructure:"metricsEnabled"`
}
