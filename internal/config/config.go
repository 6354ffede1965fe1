// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"btxclinic/internal/blob"
	"btxclinic/internal/core"
	"btxclinic/internal/infra/logging"
)

// MetricsBackend selects the operation metrics recorder.
type MetricsBackend string

const (
	MetricsExpvar     MetricsBackend = "expvar"
	MetricsPrometheus MetricsBackend = "prometheus"
	MetricsNone       MetricsBackend = "none"
)

const (
	defaultEnvFile    = ".env"
	defaultSQLitePath = "btxclinic.db"
	defaultFSRoot     = "blobdata"
	defaultHTTPAddr   = "127.0.0.1:8787"
)

type Config struct {
	Storage core.StorageConfig
	Blob    blob.Config
	Log     logging.Config

	HTTPAddr           string
	CORSAllowedOrigins []string
	Metrics            MetricsBackend

	// TraceFile receives one JSON line per operation span when set.
	TraceFile string
	// AuditLog writes an audit line per operation through the logger.
	AuditLog bool
}

// Load reads BTX_ENV_FILE (default .env) when present, then the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	envFile := getenv("BTX_ENV_FILE", defaultEnvFile)
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	storageDriver, err := core.ParseStorageDriver(getenv("BTX_STORAGE_DRIVER", string(core.StorageSQLite)))
	if err != nil {
		return Config{}, err
	}
	blobDriver, err := parseBlobDriver(getenv("BTX_BLOB_DRIVER", string(blob.DriverFilesystem)))
	if err != nil {
		return Config{}, err
	}
	metrics, err := parseMetrics(getenv("BTX_METRICS", string(MetricsExpvar)))
	if err != nil {
		return Config{}, err
	}
	format, err := parseLogFormat(getenv("BTX_LOG_FORMAT", string(logging.FormatText)))
	if err != nil {
		return Config{}, err
	}
	pathStyle, err := getbool("BTX_BLOB_S3_PATH_STYLE", false)
	if err != nil {
		return Config{}, err
	}
	redisDB, err := getint("BTX_BLOB_REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	auditLog, err := getbool("BTX_AUDIT_LOG", false)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Storage: core.StorageConfig{
			Driver:      storageDriver,
			SQLitePath:  getenv("BTX_SQLITE_PATH", defaultSQLitePath),
			PostgresDSN: getenv("BTX_POSTGRES_DSN", ""),
		},
		Blob: blob.Config{
			Driver: blobDriver,
			FSRoot: getenv("BTX_BLOB_FS_ROOT", defaultFSRoot),
			S3: blob.S3Config{
				Bucket:    getenv("BTX_BLOB_S3_BUCKET", ""),
				Region:    getenv("BTX_BLOB_S3_REGION", ""),
				Endpoint:  getenv("BTX_BLOB_S3_ENDPOINT", ""),
				Prefix:    getenv("BTX_BLOB_S3_PREFIX", ""),
				PathStyle: pathStyle,
			},
			Redis: blob.RedisConfig{
				Addr:     getenv("BTX_BLOB_REDIS_ADDR", ""),
				Password: os.Getenv("BTX_BLOB_REDIS_PASSWORD"),
				DB:       redisDB,
				Prefix:   getenv("BTX_BLOB_REDIS_PREFIX", ""),
			},
		},
		Log: logging.Config{
			Level:  getenv("BTX_LOG_LEVEL", "info"),
			Format: format,
			File:   getenv("BTX_LOG_FILE", ""),
		},
		HTTPAddr:  getenv("BTX_HTTP_ADDR", defaultHTTPAddr),
		Metrics:   metrics,
		TraceFile: getenv("BTX_TRACE_FILE", ""),
		AuditLog:  auditLog,
	}

	for _, o := range strings.Split(getenv("BTX_CORS_ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	if cfg.Storage.Driver == core.StoragePostgres && cfg.Storage.PostgresDSN == "" {
		return Config{}, fmt.Errorf("BTX_POSTGRES_DSN is required for the postgres storage driver")
	}
	switch cfg.Blob.Driver {
	case blob.DriverS3:
		if cfg.Blob.S3.Bucket == "" {
			return Config{}, fmt.Errorf("BTX_BLOB_S3_BUCKET is required for the s3 blob driver")
		}
	case blob.DriverRedis:
		if cfg.Blob.Redis.Addr == "" {
			return Config{}, fmt.Errorf("BTX_BLOB_REDIS_ADDR is required for the redis blob driver")
		}
	}
	return cfg, nil
}

func parseBlobDriver(raw string) (blob.Driver, error) {
	switch d := blob.Driver(raw); d {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3, blob.DriverRedis:
		return d, nil
	default:
		return "", fmt.Errorf("unknown blob driver %q", raw)
	}
}

func parseMetrics(raw string) (MetricsBackend, error) {
	switch m := MetricsBackend(raw); m {
	case MetricsExpvar, MetricsPrometheus, MetricsNone:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metrics backend %q", raw)
	}
}

func parseLogFormat(raw string) (logging.Format, error) {
	switch f := logging.Format(raw); f {
	case logging.FormatText, logging.FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q", raw)
	}
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getbool(key string, def bool) (bool, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getint(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
