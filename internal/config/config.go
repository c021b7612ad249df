// Package config provides the configuration structure for the coqui-api
// service.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied after loading.
const (
	defaultHost                 = "0.0.0.0"
	defaultPort                 = 8000
	defaultOutputDir            = "/app/output"
	defaultReferenceAudioDir    = "/app/reference_audio"
	defaultBaseLogsDir          = "/app/logs"
	defaultEngineBinary         = "tts"
	defaultTTSHome              = "/app/models"
	defaultStandardTimeoutSecs  = 240
	defaultCloningTimeoutSecs   = 600
	defaultListModelsTimeoutSec = 180
)

// ReferenceVoiceFileName is the fixed file name of the cloning reference
// sample inside the reference audio directory.
const ReferenceVoiceFileName = "reference_voice.wav"

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	OutputDir         string `toml:"output_dir"`
	ReferenceAudioDir string `toml:"reference_audio_dir"`
	BaseLogsDir       string `toml:"base_logs_dir"`
}

// EngineConfig holds the configuration for the external synthesis engine.
type EngineConfig struct {
	Binary                   string `toml:"binary"`
	TTSHome                  string `toml:"tts_home"`
	UseCUDA                  bool   `toml:"use_cuda"`
	StandardTimeoutSeconds   int    `toml:"standard_timeout_seconds"`
	CloningTimeoutSeconds    int    `toml:"cloning_timeout_seconds"`
	ListModelsTimeoutSeconds int    `toml:"list_models_timeout_seconds"`
}

// NATSConfig holds the configuration for the optional NATS job worker. The
// worker is disabled when URL is empty.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobsSubject            string `toml:"jobs_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server"`
	Paths  PathsConfig  `toml:"paths"`
	Engine EngineConfig `toml:"engine"`
	NATS   NATSConfig   `toml:"nats"`
}

// Load loads the configuration for the coqui-api service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// ListenAddress returns the host:port pair the HTTP server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ReferenceVoicePath returns the full path of the cloning reference sample.
func (c *Config) ReferenceVoicePath() string {
	return filepath.Join(c.Paths.ReferenceAudioDir, ReferenceVoiceFileName)
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}

	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}

	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = defaultOutputDir
	}

	if c.Paths.ReferenceAudioDir == "" {
		c.Paths.ReferenceAudioDir = defaultReferenceAudioDir
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = defaultBaseLogsDir
	}

	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}

	if c.Engine.TTSHome == "" {
		c.Engine.TTSHome = defaultTTSHome
	}

	if c.Engine.StandardTimeoutSeconds == 0 {
		c.Engine.StandardTimeoutSeconds = defaultStandardTimeoutSecs
	}

	if c.Engine.CloningTimeoutSeconds == 0 {
		c.Engine.CloningTimeoutSeconds = defaultCloningTimeoutSecs
	}

	if c.Engine.ListModelsTimeoutSeconds == 0 {
		c.Engine.ListModelsTimeoutSeconds = defaultListModelsTimeoutSec
	}
}
