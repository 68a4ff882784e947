package appcfg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mapGetter map[string]string

func (m mapGetter) GetString(key string) string { return m[key] }

func TestFromGetter_Defaults(t *testing.T) {
	cfg := FromGetter(mapGetter{})

	require.Equal(t, "8080", cfg.AppPort)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "minio", cfg.StorageBackend)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, "src/", cfg.SourceKeyPrefix)
	require.Equal(t, "res/", cfg.ResultKeyPrefix)
	require.Equal(t, float64(5), cfg.RateLimitRPS)
	require.Equal(t, 10, cfg.RateLimitBurst)
	require.Equal(t, int64(50<<20), cfg.MaxUploadBytes)
}

func TestFromGetter_Values(t *testing.T) {
	tests := []struct {
		name  string
		env   mapGetter
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "explicit values",
			env: mapGetter{
				"APP_PORT":         "9000",
				"STORAGE_BACKEND":  "fs",
				"DATA_DIR":         "/srv/data",
				"RATE_LIMIT_RPS":   "0.5",
				"RATE_LIMIT_BURST": "3",
				"MAX_UPLOAD_MB":    "2",
				"KAFKA_BROKER":     "kafka:9092",
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "9000", cfg.AppPort)
				require.Equal(t, "fs", cfg.StorageBackend)
				require.Equal(t, "/srv/data", cfg.DataDir)
				require.Equal(t, 0.5, cfg.RateLimitRPS)
				require.Equal(t, 3, cfg.RateLimitBurst)
				require.Equal(t, int64(2<<20), cfg.MaxUploadBytes)
				require.Equal(t, "kafka:9092", cfg.KafkaBroker)
			},
		},
		{
			name: "malformed numbers fall back",
			env: mapGetter{
				"RATE_LIMIT_RPS":   "fast",
				"RATE_LIMIT_BURST": "-1",
				"MAX_UPLOAD_MB":    "lots",
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, float64(5), cfg.RateLimitRPS)
				require.Equal(t, 10, cfg.RateLimitBurst)
				require.Equal(t, int64(50<<20), cfg.MaxUploadBytes)
			},
		},
		{
			name: "whitespace is ignored",
			env:  mapGetter{"APP_PORT": "  ", "RESULT_KEY": " out/ "},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "8080", cfg.AppPort)
				require.Equal(t, "out/", cfg.ResultKeyPrefix)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, FromGetter(tt.env))
		})
	}
}
