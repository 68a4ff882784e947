// Package appcfg reads process configuration from env and ./.env
package appcfg

import (
	"strconv"
	"strings"

	"github.com/UnendingLoop/watermarker/internal/storage"
	"github.com/wb-go/wbf/config"
)

// Getter - то, что нужно от wbf config; *config.Config подходит
type Getter interface {
	GetString(key string) string
}

type Config struct {
	AppPort  string
	GinMode  string
	LogLevel string

	StorageBackend string
	DataDir        string

	PostgresDSN string

	KafkaBroker  string
	KafkaTopic   string
	KafkaGroupID string

	SourceKeyPrefix string
	ResultKeyPrefix string

	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64

	// Raw отдается тем, кто читает ключи сам (miniostorage)
	Raw *config.Config
}

// Load включает env и подтягивает .env-файлы, если они есть.
func Load(files ...string) (*Config, error) {
	raw := config.New()
	raw.EnableEnv("")
	if len(files) > 0 {
		if err := raw.LoadEnvFiles(files...); err != nil {
			return nil, err
		}
	}

	cfg := FromGetter(raw)
	cfg.Raw = raw
	return cfg, nil
}

// FromGetter fills Config, falling back to defaults for missing or malformed values.
func FromGetter(g Getter) *Config {
	return &Config{
		AppPort:  stringOr(g, "APP_PORT", "8080"),
		GinMode:  stringOr(g, "GIN_MODE", "release"),
		LogLevel: stringOr(g, "LOG_LEVEL", "info"),

		StorageBackend: stringOr(g, "STORAGE_BACKEND", storage.BackendMinio),
		DataDir:        stringOr(g, "DATA_DIR", "./data"),

		PostgresDSN: g.GetString("POSTGRES_DSN"),

		KafkaBroker:  g.GetString("KAFKA_BROKER"),
		KafkaTopic:   stringOr(g, "KAFKA_TOPIC", "watermark-jobs"),
		KafkaGroupID: stringOr(g, "KAFKA_GROUPID", "watermark-workers"),

		SourceKeyPrefix: stringOr(g, "SOURCE_KEY", "src/"),
		ResultKeyPrefix: stringOr(g, "RESULT_KEY", "res/"),

		RateLimitRPS:   floatOr(g, "RATE_LIMIT_RPS", 5),
		RateLimitBurst: intOr(g, "RATE_LIMIT_BURST", 10),
		MaxUploadBytes: int64(intOr(g, "MAX_UPLOAD_MB", 50)) << 20,
	}
}

func stringOr(g Getter, key, def string) string {
	if v := strings.TrimSpace(g.GetString(key)); v != "" {
		return v
	}
	return def
}

func intOr(g Getter, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(g.GetString(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatOr(g Getter, key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(g.GetString(key)), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
