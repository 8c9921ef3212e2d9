// Package config reads the service settings from the environment.
//
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port int

	DBURI string // mongodb://, mongodb+srv:// or sqlite://path

	UpstreamBaseURL      string
	UpstreamTimeout      time.Duration
	UpstreamClientID     string
	UpstreamClientSecret string
	UpstreamTokenURL     string

	EmailHost     string
	EmailPort     int
	EmailUser     string
	EmailPassword string
	EmailSecure   bool

	BrokerURI  string
	EventQueue string

	HashSecret    string
	UploadsDir    string
	WorkerCount   int
	AuthJWTSecret string

	LogLevel  slog.Level
	LogFormat string // text | json

	ServiceName  string
	OTLPEndpoint string // empty disables trace export
	OTLPInsecure bool
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	return load(".env")
}

// load is Load with the env file path as a parameter. A missing file is
// normal in containers; a file that exists but does not parse is an error.
func load(envFile string) (Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading %s: %w", envFile, err)
	}
	return fromEnv()
}

func fromEnv() (Config, error) {
	var errs []error

	cfg := Config{
		DBURI:                getString("DB_URI", "sqlite://data/avatars.db"),
		UpstreamBaseURL:      os.Getenv("REQ_RES_BASE_URL"),
		UpstreamClientID:     os.Getenv("UPSTREAM_CLIENT_ID"),
		UpstreamClientSecret: os.Getenv("UPSTREAM_CLIENT_SECRET"),
		UpstreamTokenURL:     os.Getenv("UPSTREAM_TOKEN_URL"),
		EmailHost:            os.Getenv("EMAIL_HOSTNAME"),
		EmailUser:            os.Getenv("USER_EMAIL"),
		EmailPassword:        os.Getenv("USER_EMAIL_PASSWORD"),
		BrokerURI:            os.Getenv("RABBIT_MQ_URI"),
		EventQueue:           getString("EVENT_QUEUE", "user queue"),
		HashSecret:           os.Getenv("HASH_SECRET"),
		UploadsDir:           getString("UPLOADS_DIR", "uploads"),
		AuthJWTSecret:        os.Getenv("AUTH_JWT_SECRET"),
		LogFormat:            strings.ToLower(getString("LOG_FORMAT", "text")),
		ServiceName:          getString("OTEL_SERVICE_NAME", "user-avatar-service"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		errs = append(errs, err)
	}
	if cfg.EmailPort, err = getInt("EMAIL_PORT", 465); err != nil {
		errs = append(errs, err)
	}
	if cfg.WorkerCount, err = getInt("WORKER_POOL_SIZE", 4); err != nil {
		errs = append(errs, err)
	}
	if cfg.EmailSecure, err = getBool("EMAIL_SECURE", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.OTLPInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.UpstreamTimeout, err = getDuration("UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getString("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if !strings.HasSuffix(cfg.UpstreamBaseURL, "/") {
		cfg.UpstreamBaseURL += "/"
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	if c.UpstreamBaseURL == "" {
		errs = append(errs, errors.New("REQ_RES_BASE_URL is required"))
	}
	if c.HashSecret == "" {
		errs = append(errs, errors.New("HASH_SECRET is required"))
	}
	if c.AuthJWTSecret != "" && len(c.AuthJWTSecret) < 16 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 16 characters"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be positive"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if _, _, err := c.Store(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Store kinds returned by Config.Store.
const (
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
)

// Store reports which backend DB_URI selects and the address to open it with:
// the full URI for Mongo, the file path for SQLite.
func (c Config) Store() (kind, target string, err error) {
	switch {
	case strings.HasPrefix(c.DBURI, "mongodb://"), strings.HasPrefix(c.DBURI, "mongodb+srv://"):
		return StoreMongo, c.DBURI, nil
	case strings.HasPrefix(c.DBURI, "sqlite://"):
		path := strings.TrimPrefix(c.DBURI, "sqlite://")
		if path == "" {
			return "", "", errors.New("DB_URI: sqlite path is empty")
		}
		return StoreSQLite, path, nil
	default:
		return "", "", fmt.Errorf("DB_URI: unsupported scheme in %q", c.DBURI)
	}
}

// NewLogger builds the slog logger described by LogLevel and LogFormat.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
