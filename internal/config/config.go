// Package config handles loading application configuration from YAML files,
// a .env file and TITANTAG_ environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PrinterConfig selects and reaches the label printer.
type PrinterConfig struct {
	NamePrefix string `yaml:"name_prefix"`
	Transport  string `yaml:"transport"` // socket, rfcomm-tty or serial
	Channel    int    `yaml:"channel"`
	Port       string `yaml:"port"`
	BaudRate   int    `yaml:"baud_rate"`
	QueueSize  int    `yaml:"queue_size"`
}

// LabelConfig holds label rendering options.
type LabelConfig struct {
	Caption bool `yaml:"caption"`
}

// TTSConfig configures espeak-ng.
type TTSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Binary    string `yaml:"binary"`
	Voice     string `yaml:"voice"`
	Speed     int    `yaml:"speed"`
	Pitch     int    `yaml:"pitch"`
	Amplitude int    `yaml:"amplitude"`
}

// ASRConfig configures recording and transcription.
type ASRConfig struct {
	Enabled     bool     `yaml:"enabled"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Language    string   `yaml:"language"`
	Recorder    string   `yaml:"recorder"`
	Device      string   `yaml:"device"`
	MaxDuration Duration `yaml:"max_duration"`
	Timeout     Duration `yaml:"timeout"`

	// PartialInterval is how often the recording so far is transcribed
	// while listening; zero or less disables partial results.
	PartialInterval Duration `yaml:"partial_interval"`
}

// SpeechConfig groups the speech engines.
type SpeechConfig struct {
	TTS TTSConfig `yaml:"tts"`
	ASR ASRConfig `yaml:"asr"`
}

// PermissionsConfig controls how capabilities are granted.
type PermissionsConfig struct {
	// Mode is "grant" (always allowed), "deny" or "prompt" (ask the front end).
	Mode string `yaml:"mode"`
}

// Config holds all application configuration values.
type Config struct {
	Port        int               `yaml:"port"`
	LogLevel    string            `yaml:"log_level"`
	Printer     PrinterConfig     `yaml:"printer"`
	Label       LabelConfig       `yaml:"label"`
	Speech      SpeechConfig      `yaml:"speech"`
	Permissions PermissionsConfig `yaml:"permissions"`
}

// Duration is a wrapper around time.Duration that supports YAML unmarshalling
// from human-readable strings like "30s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Port:     8655,
		LogLevel: "info",
		Printer: PrinterConfig{
			NamePrefix: "SK58",
			Transport:  "socket",
			Channel:    1,
			BaudRate:   115200,
			QueueSize:  4,
		},
		Speech: SpeechConfig{
			TTS: TTSConfig{
				Enabled: true,
				Binary:  "espeak-ng",
				Voice:   "he",
			},
			ASR: ASRConfig{
				Enabled:     true,
				Model:       "whisper-1",
				Language:    "he",
				Recorder:    "arecord",
				MaxDuration: Duration{30 * time.Second},
				Timeout:     Duration{60 * time.Second},

				PartialInterval: Duration{3 * time.Second},
			},
		},
		Permissions: PermissionsConfig{Mode: "grant"},
	}
}

// Load reads configuration from the YAML file at path, falling back to
// defaults if the file does not exist. A .env file in the working directory
// is loaded first; TITANTAG_* variables then override file and default values.
func Load(path string) (*Config, error) {
	// Variables already in the environment win over .env.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Printer.Transport {
	case "socket", "rfcomm-tty":
	case "serial":
		if c.Printer.Port == "" {
			return fmt.Errorf("printer.transport serial needs printer.port")
		}
	default:
		return fmt.Errorf("unknown printer.transport %q", c.Printer.Transport)
	}
	if c.Printer.Channel < 1 || c.Printer.Channel > 30 {
		return fmt.Errorf("printer.channel %d outside RFCOMM channels 1-30", c.Printer.Channel)
	}
	if c.Printer.QueueSize < 1 {
		return fmt.Errorf("printer.queue_size must be at least 1")
	}
	switch c.Permissions.Mode {
	case "grant", "deny", "prompt":
	default:
		return fmt.Errorf("unknown permissions.mode %q", c.Permissions.Mode)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyEnvOverrides applies TITANTAG_* environment variable overrides to cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TITANTAG_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("TITANTAG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TITANTAG_PRINTER_PREFIX"); v != "" {
		cfg.Printer.NamePrefix = v
	}
	if v := os.Getenv("TITANTAG_PRINTER_TRANSPORT"); v != "" {
		cfg.Printer.Transport = v
	}
	if v := os.Getenv("TITANTAG_PRINTER_PORT"); v != "" {
		cfg.Printer.Port = v
	}
	if v := os.Getenv("TITANTAG_PRINTER_CHANNEL"); v != "" {
		if ch, err := strconv.Atoi(v); err == nil {
			cfg.Printer.Channel = ch
		}
	}
	if v := os.Getenv("TITANTAG_LABEL_CAPTION"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Label.Caption = b
		}
	}
	if v := os.Getenv("TITANTAG_PERMISSIONS"); v != "" {
		cfg.Permissions.Mode = v
	}
	if v := os.Getenv("TITANTAG_ASR_BASE_URL"); v != "" {
		cfg.Speech.ASR.BaseURL = v
	}
	// The API key may come from the usual OpenAI variable.
	if v := os.Getenv("TITANTAG_ASR_API_KEY"); v != "" {
		cfg.Speech.ASR.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Speech.ASR.APIKey == "" {
		cfg.Speech.ASR.APIKey = v
	}
	if v := os.Getenv("TITANTAG_ASR_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Speech.ASR.MaxDuration = Duration{d}
		}
	}
	if v := os.Getenv("TITANTAG_TTS_ENABLED"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Speech.TTS.Enabled = b
		}
	}
	if v := os.Getenv("TITANTAG_ASR_ENABLED"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Speech.ASR.Enabled = b
		}
	}
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}
