package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSTTURL = "https://api.us-south.speech-to-text.watson.cloud.ibm.com"
	DefaultTTSURL = "https://api.us-south.text-to-speech.watson.cloud.ibm.com"
)

// FileEnvKey names the optional YAML config file.
const FileEnvKey = "WATSON_SPEECH_CONFIG"

type Config struct {
	STTURL string `yaml:"stt_url"`
	TTSURL string `yaml:"tts_url"`

	// AccessToken is sent as a bearer token. It is never refreshed.
	AccessToken string `yaml:"access_token"`
	// LearningOptOut sets X-Watson-Learning-Opt-Out on every handshake.
	LearningOptOut bool `yaml:"learning_opt_out"`

	ProxyHost              string `yaml:"proxy_host"`
	ProxyPort              int    `yaml:"proxy_port"`
	DisableSSLVerification bool   `yaml:"disable_ssl_verification"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	CloseTimeout     time.Duration `yaml:"close_timeout"`
	// ReadLimit caps inbound frame size in bytes. 0 disables the cap.
	ReadLimit int64 `yaml:"read_limit"`

	// Recognize streaming
	ChunkSize     int           `yaml:"chunk_size"`
	DrainInterval time.Duration `yaml:"drain_interval"`

	SendSettleDelay time.Duration `yaml:"send_settle_delay"`

	// Parallelism bounds concurrent sessions in the CLI.
	Parallelism int    `yaml:"parallelism"`
	LogLevel    string `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		STTURL:           DefaultSTTURL,
		TTSURL:           DefaultTTSURL,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CloseTimeout:     5 * time.Second,
		ChunkSize:        1024,
		DrainInterval:    10 * time.Millisecond,
		SendSettleDelay:  10 * time.Millisecond,
		Parallelism:      4,
		LogLevel:         "info",
	}
}

// LoadFromEnv loads the file named by WATSON_SPEECH_CONFIG, if any, and then
// applies environment overrides.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv(FileEnvKey))
}

// Load reads the YAML file at path (when not empty) over the defaults and
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path = strings.TrimSpace(path); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file %q: %w", path, err)
		}
		err = decodeYAML(f, &cfg)
		f.Close()
		if err != nil {
			return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
		}
	}

	cfg = Config{
		STTURL:                 envOr("WATSON_SPEECH_STT_URL", cfg.STTURL),
		TTSURL:                 envOr("WATSON_SPEECH_TTS_URL", cfg.TTSURL),
		AccessToken:            envOr("WATSON_SPEECH_ACCESS_TOKEN", cfg.AccessToken),
		LearningOptOut:         envBoolOr("WATSON_SPEECH_LEARNING_OPT_OUT", cfg.LearningOptOut),
		ProxyHost:              envOr("WATSON_SPEECH_PROXY_HOST", cfg.ProxyHost),
		ProxyPort:              envIntOr("WATSON_SPEECH_PROXY_PORT", cfg.ProxyPort),
		DisableSSLVerification: envBoolOr("WATSON_SPEECH_DISABLE_SSL_VERIFICATION", cfg.DisableSSLVerification),
		HandshakeTimeout:       envDurationOr("WATSON_SPEECH_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout),
		WriteTimeout:           envDurationOr("WATSON_SPEECH_WRITE_TIMEOUT", cfg.WriteTimeout),
		CloseTimeout:           envDurationOr("WATSON_SPEECH_CLOSE_TIMEOUT", cfg.CloseTimeout),
		ReadLimit:              envInt64Or("WATSON_SPEECH_READ_LIMIT", cfg.ReadLimit),
		ChunkSize:              envIntOr("WATSON_SPEECH_CHUNK_SIZE", cfg.ChunkSize),
		DrainInterval:          envDurationOr("WATSON_SPEECH_DRAIN_INTERVAL", cfg.DrainInterval),
		SendSettleDelay:        envDurationOr("WATSON_SPEECH_SEND_SETTLE_DELAY", cfg.SendSettleDelay),
		Parallelism:            envIntOr("WATSON_SPEECH_PARALLELISM", cfg.Parallelism),
		LogLevel:               envOr("WATSON_SPEECH_LOG_LEVEL", cfg.LogLevel),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded values. Errors name the environment key.
func (c Config) Validate() error {
	if strings.TrimSpace(c.STTURL) == "" {
		return fmt.Errorf("WATSON_SPEECH_STT_URL must not be empty")
	}
	if strings.TrimSpace(c.TTSURL) == "" {
		return fmt.Errorf("WATSON_SPEECH_TTS_URL must not be empty")
	}
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		return fmt.Errorf("WATSON_SPEECH_PROXY_PORT must be between 0 and 65535")
	}
	if c.ProxyPort != 0 && c.ProxyHost == "" {
		return fmt.Errorf("WATSON_SPEECH_PROXY_HOST must be set when WATSON_SPEECH_PROXY_PORT is set")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("WATSON_SPEECH_HANDSHAKE_TIMEOUT must be > 0")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WATSON_SPEECH_WRITE_TIMEOUT must be > 0")
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("WATSON_SPEECH_CLOSE_TIMEOUT must be > 0")
	}
	if c.ReadLimit < 0 {
		return fmt.Errorf("WATSON_SPEECH_READ_LIMIT must be >= 0")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("WATSON_SPEECH_CHUNK_SIZE must be > 0")
	}
	if c.DrainInterval < 0 {
		return fmt.Errorf("WATSON_SPEECH_DRAIN_INTERVAL must be >= 0")
	}
	if c.SendSettleDelay < 0 {
		return fmt.Errorf("WATSON_SPEECH_SEND_SETTLE_DELAY must be >= 0")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("WATSON_SPEECH_PARALLELISM must be > 0")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("WATSON_SPEECH_LOG_LEVEL must be one of debug|info|warn|error")
	}
	return nil
}

// Headers returns the handshake headers for both services.
func (c Config) Headers() http.Header {
	h := http.Header{}
	if c.AccessToken != "" {
		h.Set("Authorization", "Bearer "+c.AccessToken)
	}
	if c.LearningOptOut {
		h.Set("X-Watson-Learning-Opt-Out", "true")
	}
	return h
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
