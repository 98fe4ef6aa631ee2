// Package config loads GenHook's application configuration: an INI-shaped
// file (distinct from the webhook configuration store in internal/configstore)
// with an environment-variable overlay, following the same
// godotenv-then-caarlos0/env shape as the teacher's internal/pkg/config, but
// file-backed since spec.md's defaults are intended to live in a committed
// file rather than purely in environment variables.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// AppConfig is GenHook's application configuration, per spec.md §6.
type AppConfig struct {
	Server         ServerConfig
	Sink           SinkConfig
	Logging        LoggingConfig
	WebhookLogging WebhookLoggingConfig
	Store          StoreConfig
	Redis          RedisConfig
}

type ServerConfig struct {
	Host                  string
	Port                  int
	MetricsPort           int
	RequestTimeoutSeconds int
}

// RequestTimeout is the overall processing budget for one inbound webhook
// request (spec.md §5): resolve, extract, render, log, and send together,
// distinct from the sink client's own per-attempt timeout.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

type SinkConfig struct {
	URL                    string
	Username               string
	Password               string
	TimeoutSeconds         int
	RetryAttempts          int
	BreakerCoolDownSeconds int
	RateLimit              float64
}

type LoggingConfig struct {
	Level string
}

type WebhookLoggingConfig struct {
	Enabled       bool
	BaseDirectory string
	MaxBytes      int64
	BackupCount   int
	LogFileName   string
}

// StoreConfig locates the webhook configuration store, distinct from the
// application-configuration file Load itself resolves.
type StoreConfig struct {
	ConfigPath string
}

// RedisConfig is optional shared state for the sink's circuit breaker;
// an empty Addr keeps breaker state local to this process.
type RedisConfig struct {
	Addr string
}

func (s SinkConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s SinkConfig) BreakerCoolDown() time.Duration {
	return time.Duration(s.BreakerCoolDownSeconds) * time.Second
}

func defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000, MetricsPort: 9090, RequestTimeoutSeconds: 30},
		Sink: SinkConfig{
			TimeoutSeconds:         30,
			RetryAttempts:          3,
			BreakerCoolDownSeconds: 30,
			RateLimit:              50,
		},
		Logging: LoggingConfig{Level: "INFO"},
		WebhookLogging: WebhookLoggingConfig{
			Enabled:       true,
			BaseDirectory: "logs/webhooks",
			MaxBytes:      10 * 1024 * 1024,
			BackupCount:   5,
			LogFileName:   "payload.log",
		},
		Store: StoreConfig{ConfigPath: "config/webhook-config.ini"},
	}
}

// envOverrides captures every recognised application-configuration key as a
// string, so caarlos0/env can tell us which keys were actually set in the
// process environment (an empty string means "not set") without fighting the
// per-field zero-value ambiguity that typed int/bool fields would introduce.
type envOverrides struct {
	ServerHost             string `env:"SERVER_HOST"`
	ServerPort             string `env:"SERVER_PORT"`
	ServerMetricsPort      string `env:"SERVER_METRICS_PORT"`
	ServerRequestTimeout   string `env:"SERVER_REQUEST_TIMEOUT_SECONDS"`
	SinkURL                string `env:"SINK_URL"`
	SinkUsername           string `env:"SINK_USERNAME"`
	SinkPassword           string `env:"SINK_PASSWORD"`
	SinkTimeoutSeconds     string `env:"SINK_TIMEOUT_SECONDS"`
	SinkRetryAttempts      string `env:"SINK_RETRY_ATTEMPTS"`
	SinkBreakerCoolDown    string `env:"SINK_BREAKER_COOLDOWN_SECONDS"`
	SinkRateLimit          string `env:"SINK_RATE_LIMIT"`
	LoggingLevel           string `env:"LOGGING_LEVEL"`
	WebhookLoggingEnabled  string `env:"WEBHOOK_LOGGING_ENABLED"`
	WebhookLoggingBaseDir  string `env:"WEBHOOK_LOGGING_BASE_DIRECTORY"`
	WebhookLoggingMaxBytes string `env:"WEBHOOK_LOGGING_MAX_BYTES"`
	WebhookLoggingBackups  string `env:"WEBHOOK_LOGGING_BACKUP_COUNT"`
	WebhookLoggingFileName string `env:"WEBHOOK_LOGGING_LOG_FILE_NAME"`
	StoreConfigPath        string `env:"STORE_CONFIG_PATH"`
	RedisAddr              string `env:"REDIS_ADDR"`
}

// Load resolves the application configuration: defaults, then the file (a
// production variant takes precedence when present), then an
// environment-variable overlay. dir is the directory to search for
// app-config.ini / app-config.prod.ini; pass "" for the working directory.
func Load(dir string) (AppConfig, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := resolveConfigPath(dir); path != "" {
		sections, err := readINI(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("reading app config %s: %w", path, err)
		}
		expandPlaceholders(sections)
		if err := applySections(&cfg, sections); err != nil {
			return AppConfig{}, fmt.Errorf("parsing app config %s: %w", path, err)
		}
	}

	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: "GENHOOK_"}); err != nil {
		return AppConfig{}, fmt.Errorf("reading environment overrides: %w", err)
	}
	if err := applyOverrides(&cfg, overrides); err != nil {
		return AppConfig{}, fmt.Errorf("applying environment overrides: %w", err)
	}

	if cfg.Sink.URL == "" {
		return AppConfig{}, fmt.Errorf("sink.url is required (set it in the app config file or GENHOOK_SINK_URL)")
	}
	if cfg.Sink.Username == "" || cfg.Sink.Password == "" {
		return AppConfig{}, fmt.Errorf("sink.username and sink.password are required")
	}
	return cfg, nil
}

func resolveConfigPath(dir string) string {
	prod := filepath.Join(dir, "app-config.prod.ini")
	if _, err := os.Stat(prod); err == nil {
		return prod
	}
	dev := filepath.Join(dir, "app-config.ini")
	if _, err := os.Stat(dev); err == nil {
		return dev
	}
	return ""
}

// readINI parses a minimal INI-shaped file into section -> key -> value.
// Keys found before any section header are collected under the empty-string
// section.
func readINI(path string) (map[string]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sections := map[string]map[string]string{"": {}}
	current := ""

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := sections[current]; !ok {
				sections[current] = map[string]string{}
			}
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		sections[current][strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return sections, scanner.Err()
}

// expandPlaceholders substitutes ${NAME} in every value against the process
// environment, per spec.md §6's wire-protocol note.
func expandPlaceholders(sections map[string]map[string]string) {
	for _, kv := range sections {
		for k, v := range kv {
			kv[k] = os.Expand(v, os.Getenv)
		}
	}
}

func applySections(cfg *AppConfig, sections map[string]map[string]string) error {
	get := func(section, key string) (string, bool) {
		kv, ok := sections[section]
		if !ok {
			return "", false
		}
		v, ok := kv[key]
		return v, ok
	}

	if v, ok := get("server", "host"); ok {
		cfg.Server.Host = v
	}
	if v, ok := get("server", "port"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("server.port: %w", err)
		}
		cfg.Server.Port = n
	}
	if v, ok := get("server", "request_timeout_seconds"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("server.request_timeout_seconds: %w", err)
		}
		cfg.Server.RequestTimeoutSeconds = n
	}

	if v, ok := get("sink", "url"); ok {
		cfg.Sink.URL = v
	}
	if v, ok := get("sink", "username"); ok {
		cfg.Sink.Username = v
	}
	if v, ok := get("sink", "password"); ok {
		cfg.Sink.Password = v
	}
	if v, ok := get("sink", "timeout_seconds"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("sink.timeout_seconds: %w", err)
		}
		cfg.Sink.TimeoutSeconds = n
	}
	if v, ok := get("sink", "retry_attempts"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("sink.retry_attempts: %w", err)
		}
		cfg.Sink.RetryAttempts = n
	}
	if v, ok := get("sink", "breaker_cooldown_seconds"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("sink.breaker_cooldown_seconds: %w", err)
		}
		cfg.Sink.BreakerCoolDownSeconds = n
	}
	if v, ok := get("sink", "rate_limit"); ok {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("sink.rate_limit: %w", err)
		}
		cfg.Sink.RateLimit = n
	}

	if v, ok := get("server", "metrics_port"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("server.metrics_port: %w", err)
		}
		cfg.Server.MetricsPort = n
	}

	if v, ok := get("store", "config_path"); ok {
		cfg.Store.ConfigPath = v
	}
	if v, ok := get("redis", "addr"); ok {
		cfg.Redis.Addr = v
	}

	if v, ok := get("logging", "level"); ok {
		cfg.Logging.Level = v
	}

	if v, ok := get("webhook_logging", "enabled"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("webhook_logging.enabled: %w", err)
		}
		cfg.WebhookLogging.Enabled = b
	}
	if v, ok := get("webhook_logging", "base_directory"); ok {
		cfg.WebhookLogging.BaseDirectory = v
	}
	if v, ok := get("webhook_logging", "max_bytes"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("webhook_logging.max_bytes: %w", err)
		}
		cfg.WebhookLogging.MaxBytes = n
	}
	if v, ok := get("webhook_logging", "backup_count"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("webhook_logging.backup_count: %w", err)
		}
		cfg.WebhookLogging.BackupCount = n
	}
	if v, ok := get("webhook_logging", "log_file_name"); ok {
		cfg.WebhookLogging.LogFileName = v
	}
	return nil
}

func applyOverrides(cfg *AppConfig, o envOverrides) error {
	if o.ServerHost != "" {
		cfg.Server.Host = o.ServerHost
	}
	if o.ServerPort != "" {
		n, err := strconv.Atoi(o.ServerPort)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = n
	}
	if o.SinkURL != "" {
		cfg.Sink.URL = o.SinkURL
	}
	if o.SinkUsername != "" {
		cfg.Sink.Username = o.SinkUsername
	}
	if o.SinkPassword != "" {
		cfg.Sink.Password = o.SinkPassword
	}
	if o.SinkTimeoutSeconds != "" {
		n, err := strconv.Atoi(o.SinkTimeoutSeconds)
		if err != nil {
			return fmt.Errorf("SINK_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Sink.TimeoutSeconds = n
	}
	if o.SinkRetryAttempts != "" {
		n, err := strconv.Atoi(o.SinkRetryAttempts)
		if err != nil {
			return fmt.Errorf("SINK_RETRY_ATTEMPTS: %w", err)
		}
		cfg.Sink.RetryAttempts = n
	}
	if o.SinkBreakerCoolDown != "" {
		n, err := strconv.Atoi(o.SinkBreakerCoolDown)
		if err != nil {
			return fmt.Errorf("SINK_BREAKER_COOLDOWN_SECONDS: %w", err)
		}
		cfg.Sink.BreakerCoolDownSeconds = n
	}
	if o.SinkRateLimit != "" {
		n, err := strconv.ParseFloat(o.SinkRateLimit, 64)
		if err != nil {
			return fmt.Errorf("SINK_RATE_LIMIT: %w", err)
		}
		cfg.Sink.RateLimit = n
	}
	if o.ServerMetricsPort != "" {
		n, err := strconv.Atoi(o.ServerMetricsPort)
		if err != nil {
			return fmt.Errorf("SERVER_METRICS_PORT: %w", err)
		}
		cfg.Server.MetricsPort = n
	}
	if o.ServerRequestTimeout != "" {
		n, err := strconv.Atoi(o.ServerRequestTimeout)
		if err != nil {
			return fmt.Errorf("SERVER_REQUEST_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.RequestTimeoutSeconds = n
	}
	if o.StoreConfigPath != "" {
		cfg.Store.ConfigPath = o.StoreConfigPath
	}
	if o.RedisAddr != "" {
		cfg.Redis.Addr = o.RedisAddr
	}
	if o.LoggingLevel != "" {
		cfg.Logging.Level = o.LoggingLevel
	}
	if o.WebhookLoggingEnabled != "" {
		b, err := strconv.ParseBool(o.WebhookLoggingEnabled)
		if err != nil {
			return fmt.Errorf("WEBHOOK_LOGGING_ENABLED: %w", err)
		}
		cfg.WebhookLogging.Enabled = b
	}
	if o.WebhookLoggingBaseDir != "" {
		cfg.WebhookLogging.BaseDirectory = o.WebhookLoggingBaseDir
	}
	if o.WebhookLoggingMaxBytes != "" {
		n, err := strconv.ParseInt(o.WebhookLoggingMaxBytes, 10, 64)
		if err != nil {
			return fmt.Errorf("WEBHOOK_LOGGING_MAX_BYTES: %w", err)
		}
		cfg.WebhookLogging.MaxBytes = n
	}
	if o.WebhookLoggingBackups != "" {
		n, err := strconv.Atoi(o.WebhookLoggingBackups)
		if err != nil {
			return fmt.Errorf("WEBHOOK_LOGGING_BACKUP_COUNT: %w", err)
		}
		cfg.WebhookLogging.BackupCount = n
	}
	if o.WebhookLoggingFileName != "" {
		cfg.WebhookLogging.LogFileName = o.WebhookLoggingFileName
	}
	return nil
}
