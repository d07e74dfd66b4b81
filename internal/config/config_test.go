package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "filesystem", cfg.Storage.Backend)
	require.Equal(t, int64(50*1024*1024), cfg.Storage.MaxUploadSize)
	require.Equal(t, time.Hour, cfg.Reclaim.GracePeriod)
	require.True(t, cfg.Reclaim.Enabled)
	require.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  path: /tmp/showcase.db
reclaim:
  interval: 15m
  grace_period: 30m
storage:
  data_dir: /var/lib/showcase
`), 0o644))

	t.Setenv("SHOWCASE_SERVER_PORT", "9999")
	t.Setenv("SHOWCASE_AUTH_ADMIN_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, "secret", cfg.Auth.AdminToken)
	require.True(t, cfg.Database.IsEmbedded())
	require.Equal(t, "/tmp/showcase.db", cfg.Database.Path)
	require.Equal(t, 15*time.Minute, cfg.Reclaim.Interval)
	require.Equal(t, 30*time.Minute, cfg.Reclaim.GracePeriod)
	require.Equal(t, "/var/lib/showcase", cfg.Storage.DataDir)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Storage:  StorageConfig{Backend: "filesystem", DataDir: "data", MaxUploadSize: 1},
			Cache:    CacheConfig{Backend: "none"},
			Logging:  LoggingConfig{Level: "info"},
			Reclaim:  ReclaimConfig{Enabled: true, Interval: time.Hour, BatchSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "storage.s3.bucket"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"redis cache without redis", func(c *Config) { c.Cache.Backend = "redis" }, "redis.enabled"},
		{"zero interval", func(c *Config) { c.Reclaim.Interval = 0 }, "reclaim.interval"},
		{"zero batch", func(c *Config) { c.Reclaim.BatchSize = 0 }, "reclaim.batch_size"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAddrHelpers(t *testing.T) {
	require.Equal(t, "0.0.0.0:8080", ServerConfig{Host: "0.0.0.0", Port: 8080}.Addr())
	require.Equal(t, "localhost:6379", RedisConfig{Host: "localhost", Port: 6379}.Addr())
	require.Contains(t, DatabaseConfig{Host: "db", Port: 5432, Database: "showcase"}.DSN(), "dbname=showcase")
}
