package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration for one capture session.
type Config struct {
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Encoder  EncoderConfig  `mapstructure:"encoder" yaml:"encoder"`
	Uploader UploaderConfig `mapstructure:"uploader" yaml:"uploader"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

type AudioConfig struct {
	SampleRate     int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferSize     int    `mapstructure:"buffer_size" yaml:"buffer_size"`
	OutputChannels int    `mapstructure:"output_channels" yaml:"output_channels"`
	Backend        string `mapstructure:"backend" yaml:"backend"` // "portaudio", "auto"
}

type EncoderConfig struct {
	Format         string `mapstructure:"format" yaml:"format"` // only "wav" is implemented
	SegmentSeconds int    `mapstructure:"segment_seconds" yaml:"segment_seconds"`
}

type UploaderConfig struct {
	Transport     string        `mapstructure:"transport" yaml:"transport"` // "http", "nats"
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	NATSURL       string        `mapstructure:"nats_url" yaml:"nats_url"`
	Subject       string        `mapstructure:"subject" yaml:"subject"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// RootConfig is the on-disk layout: shared defaults plus named profiles that
// override them (selection & fallback, per profile field).
type RootConfig struct {
	ActiveProfile string             `mapstructure:"active_profile" yaml:"active_profile"`
	Defaults      *Config            `mapstructure:"defaults,omitempty" yaml:"defaults,omitempty"`
	Profiles      map[string]*Config `mapstructure:"profiles" yaml:"profiles"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate:     48000,
		BufferSize:     1024,
		OutputChannels: 2,
		Backend:        "auto",
	},
	Encoder: EncoderConfig{
		Format:         "wav",
		SegmentSeconds: 3,
	},
	Uploader: UploaderConfig{
		Transport:     "http",
		Endpoint:      "http://localhost:9000/segments",
		NATSURL:       "nats://localhost:4222",
		Subject:       "livecapture.segments",
		RetryInterval: time.Second,
	},
	Server: ServerConfig{
		Port: "8080",
	},
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return os.ExpandEnv(filepath.Join("$HOME", ".config", "livecapture.yaml"))
}

// Load loads the config file and resolves the active profile.
func Load(configFile string) (*Config, error) {
	return LoadWithProfile(configFile, "")
}

// LoadWithProfile loads the config file and resolves the named profile over
// the file's defaults. An empty profile name falls back to the file's
// active_profile, then to the defaults alone. A missing file yields the
// built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultPath()
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		cfg := defaultConfig
		return &cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configFile, err)
	}

	base := defaultConfig
	if root.Defaults != nil {
		base = *mergeConfigs(&base, root.Defaults)
	}

	name := profile
	if name == "" {
		name = root.ActiveProfile
	}
	if name == "" {
		if err := Validate(&base); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return &base, nil
	}

	selected, ok := root.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("configuration profile '%s' not found", name)
	}

	resolved := mergeConfigs(&base, selected)
	if err := Validate(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return resolved, nil
}

// mergeConfigs overlays profile values on the base: a profile field set to a
// non-zero value wins, everything else falls back to the base.
func mergeConfigs(base, profile *Config) *Config {
	result := *base

	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
	}
	if profile.Audio.BufferSize != 0 {
		result.Audio.BufferSize = profile.Audio.BufferSize
	}
	if profile.Audio.OutputChannels != 0 {
		result.Audio.OutputChannels = profile.Audio.OutputChannels
	}
	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
	}

	if profile.Encoder.Format != "" {
		result.Encoder.Format = profile.Encoder.Format
	}
	if profile.Encoder.SegmentSeconds != 0 {
		result.Encoder.SegmentSeconds = profile.Encoder.SegmentSeconds
	}

	if profile.Uploader.Transport != "" {
		result.Uploader.Transport = profile.Uploader.Transport
	}
	if profile.Uploader.Endpoint != "" {
		result.Uploader.Endpoint = profile.Uploader.Endpoint
	}
	if profile.Uploader.NATSURL != "" {
		result.Uploader.NATSURL = profile.Uploader.NATSURL
	}
	if profile.Uploader.Subject != "" {
		result.Uploader.Subject = profile.Uploader.Subject
	}
	if profile.Uploader.RetryInterval != 0 {
		result.Uploader.RetryInterval = profile.Uploader.RetryInterval
	}

	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}

	return &result
}

// Validate checks a resolved configuration for values the pipeline cannot run with.
func Validate(cfg *Config) error {
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BufferSize <= 0 {
		return fmt.Errorf("audio.buffer_size must be positive, got %d", cfg.Audio.BufferSize)
	}
	if cfg.Encoder.SegmentSeconds <= 0 {
		return fmt.Errorf("encoder.segment_seconds must be positive, got %d", cfg.Encoder.SegmentSeconds)
	}
	if cfg.Encoder.Format != "wav" {
		return fmt.Errorf("encoder.format %q is not supported (only \"wav\")", cfg.Encoder.Format)
	}
	switch cfg.Uploader.Transport {
	case "http":
		if cfg.Uploader.Endpoint == "" {
			return fmt.Errorf("uploader.endpoint is required for the http transport")
		}
	case "nats":
		if cfg.Uploader.NATSURL == "" || cfg.Uploader.Subject == "" {
			return fmt.Errorf("uploader.nats_url and uploader.subject are required for the nats transport")
		}
	default:
		return fmt.Errorf("uploader.transport %q is not supported (http, nats)", cfg.Uploader.Transport)
	}
	if cfg.Uploader.RetryInterval <= 0 {
		return fmt.Errorf("uploader.retry_interval must be positive, got %s", cfg.Uploader.RetryInterval)
	}
	return nil
}

// UpdateActiveProfile rewrites the active_profile field in the config file.
func UpdateActiveProfile(configFile, profile string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	v.Set("active_profile", profile)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// ProfileSelection records the profile last selected via the CLI, stored next
// to the config file so scripted sessions can pick it up.
type ProfileSelection struct {
	ActiveProfile string `yaml:"active_profile"`
	LastUpdated   string `yaml:"last_updated"`
}

func selectionPath(configFile string) string {
	return filepath.Join(filepath.Dir(configFile), "profile.yaml")
}

// SaveProfileSelection persists the selected profile.
func SaveProfileSelection(configFile, profile string) error {
	sel := ProfileSelection{
		ActiveProfile: profile,
		LastUpdated:   time.Now().Format(time.RFC3339),
	}
	data, err := yaml.Marshal(&sel)
	if err != nil {
		return fmt.Errorf("failed to marshal profile selection: %w", err)
	}
	path := selectionPath(configFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile selection: %w", err)
	}
	return nil
}

// LoadProfileSelection reads the last selected profile, if any.
func LoadProfileSelection(configFile string) (string, error) {
	data, err := os.ReadFile(selectionPath(configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read profile selection: %w", err)
	}
	var sel ProfileSelection
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return "", fmt.Errorf("failed to parse profile selection: %w", err)
	}
	return sel.ActiveProfile, nil
}
