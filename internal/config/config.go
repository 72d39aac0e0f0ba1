package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Token persistence backends.
const (
	TokenStoreFile     = "file"
	TokenStoreMemory   = "memory"
	TokenStoreRedis    = "redis"
	TokenStorePostgres = "postgres"
)

// Event publishing backends.
const (
	EventsNone  = "none"
	EventsKafka = "kafka"
	EventsAMQP  = "amqp"
)

// ClientConfig captures every tunable of the carpool client processes (CLI,
// gateway and update mirror). Values are loaded from environment variables
// with defaults that match a backend running locally on :8000.
type ClientConfig struct {
	APIBaseURL  string
	HTTPTimeout time.Duration

	TokenStore    string
	TokenKey      string
	TokenFile     string
	RedisAddr     string
	RedisPassword string
	PGDSN         string

	MessagesPollInterval    time.Duration
	ConnectionsPollInterval time.Duration
	UnreadPollInterval      time.Duration

	DefaultGroupSeats int

	EventsBackend string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	AMQPURL       string
	AMQPExchange  string

	GatewayAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MirrorMetricsAddr string

	LogLevel string
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL:              "http://127.0.0.1:8000",
		HTTPTimeout:             30 * time.Second,
		TokenStore:              TokenStoreFile,
		TokenKey:                "access_token",
		TokenFile:               defaultTokenFile(),
		MessagesPollInterval:    3 * time.Second,
		ConnectionsPollInterval: 5 * time.Second,
		UnreadPollInterval:      10 * time.Second,
		DefaultGroupSeats:       4,
		EventsBackend:           EventsNone,
		KafkaTopic:              "carpool-view-updates",
		KafkaGroup:              "carpool-view-mirror",
		MirrorMetricsAddr:       ":2112",
		AMQPExchange:            "carpool.view-updates",
		GatewayAddr:             ":8090",
		ReadTimeout:             5 * time.Second,
		WriteTimeout:            10 * time.Second,
		IdleTimeout:             120 * time.Second,
		ShutdownTimeout:         15 * time.Second,
		LogLevel:                "info",
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".carpool", "token.json")
	}
	return filepath.Join(dir, "carpool", "token.json")
}

// LoadClientConfig reads the environment and validates the result.
func LoadClientConfig() (ClientConfig, error) {
	cfg, err := ClientConfigFromEnv()
	errs := []error{err}
	errs = append(errs, cfg.Validate()...)
	return cfg, errors.Join(errs...)
}

// ClientConfigFromEnv reads the environment over the defaults. Only values
// that fail to parse are reported; callers apply their overrides and then
// call Validate.
func ClientConfigFromEnv() (ClientConfig, error) {
	cfg := defaultClientConfig()
	var errs []error

	setStringFromEnv(&cfg.APIBaseURL, "CARPOOL_API_URL")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	setDurationFromEnv(&cfg.HTTPTimeout, "CARPOOL_HTTP_TIMEOUT", &errs)

	if v := os.Getenv("TOKEN_STORE"); v != "" {
		cfg.TokenStore = strings.ToLower(strings.TrimSpace(v))
	}
	setStringFromEnv(&cfg.TokenKey, "TOKEN_KEY")
	setStringFromEnv(&cfg.TokenFile, "TOKEN_FILE")
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.MessagesPollInterval, "POLL_MESSAGES_INTERVAL", &errs)
	setDurationFromEnv(&cfg.ConnectionsPollInterval, "POLL_CONNECTIONS_INTERVAL", &errs)
	setDurationFromEnv(&cfg.UnreadPollInterval, "POLL_UNREAD_INTERVAL", &errs)
	setIntFromEnv(&cfg.DefaultGroupSeats, "GROUP_DEFAULT_SEATS", &errs)

	if v := os.Getenv("EVENTS_BACKEND"); v != "" {
		cfg.EventsBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.MirrorMetricsAddr, "MIRROR_METRICS_ADDR")
	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	setStringFromEnv(&cfg.AMQPExchange, "AMQP_EXCHANGE")

	setStringFromEnv(&cfg.GatewayAddr, "GATEWAY_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return cfg, errors.Join(errs...)
}

// Validate reports every inconsistency rather than stopping at the first.
func (c ClientConfig) Validate() []error {
	var errs []error
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("CARPOOL_API_URL must be an absolute URL, got %q", c.APIBaseURL))
	}
	switch c.TokenStore {
	case TokenStoreFile:
		if c.TokenFile == "" {
			errs = append(errs, fmt.Errorf("TOKEN_FILE is required for the file token store"))
		}
	case TokenStoreMemory:
	case TokenStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR is required for the redis token store"))
		}
	case TokenStorePostgres:
		if c.PGDSN == "" {
			errs = append(errs, fmt.Errorf("PG_DSN is required for the postgres token store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_STORE %q", c.TokenStore))
	}
	switch c.EventsBackend {
	case EventsNone:
	case EventsKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required for the kafka events backend"))
		}
	case EventsAMQP:
		if c.AMQPURL == "" {
			errs = append(errs, fmt.Errorf("AMQP_URL is required for the amqp events backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend))
	}
	if c.DefaultGroupSeats <= 0 {
		errs = append(errs, fmt.Errorf("GROUP_DEFAULT_SEATS must be > 0"))
	}
	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"POLL_MESSAGES_INTERVAL", c.MessagesPollInterval},
		{"POLL_CONNECTIONS_INTERVAL", c.ConnectionsPollInterval},
		{"POLL_UNREAD_INTERVAL", c.UnreadPollInterval},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", iv.name))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}
	return errs
}

// ValidateMirror checks what the update mirror needs on top of Validate.
func (c ClientConfig) ValidateMirror() []error {
	var errs []error
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required for the mirror"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR is required for the mirror"))
	}
	if c.KafkaGroup == "" {
		errs = append(errs, fmt.Errorf("KAFKA_GROUP must not be empty"))
	}
	return errs
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
