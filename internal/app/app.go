// Package app assembles the portal's services from configuration.
// The server and the admin CLI share it so both operate on the same
// database, content backend and sweep lock.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/cache/memory"
	rediscache "github.com/prn-tf/showcase-portal/internal/cache/redis"
	"github.com/prn-tf/showcase-portal/internal/config"
	"github.com/prn-tf/showcase-portal/internal/lock"
	"github.com/prn-tf/showcase-portal/internal/metrics"
	"github.com/prn-tf/showcase-portal/internal/repository"
	"github.com/prn-tf/showcase-portal/internal/repository/factory"
	"github.com/prn-tf/showcase-portal/internal/service"
	"github.com/prn-tf/showcase-portal/internal/storage"
	"github.com/prn-tf/showcase-portal/internal/storage/filesystem"
	"github.com/prn-tf/showcase-portal/internal/storage/s3"
)

const cachePrefix = "showcase:"

// App holds every long-lived component of a portal process.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Database *factory.Database
	Backend  storage.Backend
	Redis    *goredis.Client
	Locker   lock.Locker

	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Blobs    *service.BlobService
	Reclaim  *service.ReclaimService
	Projects *service.ProjectService
	Users    *service.UserService

	closers []func() error
}

type options struct {
	oneShot bool
}

// Option adjusts how New wires the portal.
type Option func(*options)

// OneShot marks a short-lived process such as the admin CLI. Without Redis
// such a process uses a no-op locker, since an in-process lock cannot
// exclude a server running elsewhere.
func OneShot() Option {
	return func(o *options) { o.oneShot = true }
}

// New opens the database and content backend and builds the services.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Database, err = factory.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.onClose(a.Database.Close)

	if cfg.Database.AutoMigrate {
		if err := a.Database.Migrator.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	a.Backend, err = newBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		a.Redis, err = rediscache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose(a.Redis.Close)
		a.Locker = lock.NewRedisLocker(a.Redis)
	} else if o.oneShot {
		a.Locker = lock.NewNoOpLocker()
	} else {
		ml := lock.NewMemoryLocker()
		a.onClose(func() error { ml.Stop(); return nil })
		a.Locker = ml
	}

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.New(a.Registry)
	}

	repos := a.Database.Repos
	blobRepo, err := a.cachedBlobs(repos.Blob)
	if err != nil {
		return nil, err
	}

	a.Blobs = service.NewBlobService(blobRepo, repos.Reference, a.Backend, a.Metrics, logger, service.BlobServiceConfig{
		MaxUploadSize: cfg.Storage.MaxUploadSize,
	})
	a.Reclaim = service.NewReclaimService(blobRepo, repos.Reference, a.Backend, a.Locker, a.Metrics, logger, ReclaimConfig(cfg.Reclaim))
	a.Projects = service.NewProjectService(repos.Project, repos.Reference, a.Blobs, a.Reclaim, a.Metrics, logger)
	a.Users = service.NewUserService(repos.User, repos.Reference, a.Blobs, a.Reclaim, a.Metrics, logger, service.UserServiceConfig{
		BcryptCost: cfg.Auth.BcryptCost,
	})

	return a, nil
}

func (a *App) cachedBlobs(repo repository.BlobRepository) (repository.BlobRepository, error) {
	ttl := a.Config.Cache.TTL
	switch a.Config.Cache.Backend {
	case "", "none":
		return repo, nil
	case "memory":
		c := memory.NewCache()
		a.onClose(func() error { c.Stop(); return nil })
		return repository.NewCachedBlobRepository(repo, c, ttl, a.Logger), nil
	case "redis":
		if a.Redis == nil {
			return nil, fmt.Errorf("cache.backend redis requires redis.enabled")
		}
		c := rediscache.NewCache(a.Redis, cachePrefix)
		return repository.NewCachedBlobRepository(repo, c, ttl, a.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", a.Config.Cache.Backend)
	}
}

func newBackend(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case "", "filesystem":
		b, err := filesystem.NewBackend(filesystem.Config{DataDir: cfg.DataDir, TempDir: cfg.TempDir}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem backend: %w", err)
		}
		return b, nil
	case "s3":
		sc := s3.Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			TempDir:         cfg.TempDir,
		}
		client, err := s3.NewClient(ctx, sc)
		if err != nil {
			return nil, err
		}
		b, err := s3.NewBackend(client, sc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}

// ReclaimConfig maps the reclaim section onto the service configuration.
// Zero values keep the service defaults.
func ReclaimConfig(cfg config.ReclaimConfig) service.ReclaimConfig {
	rc := service.DefaultReclaimConfig()
	rc.Enabled = cfg.Enabled
	rc.DryRun = cfg.DryRun
	if cfg.Interval > 0 {
		rc.Interval = cfg.Interval
	}
	if cfg.GracePeriod > 0 {
		rc.GracePeriod = cfg.GracePeriod
	}
	if cfg.BatchSize > 0 {
		rc.BatchSize = cfg.BatchSize
	}
	if cfg.LockTTL > 0 {
		rc.LockTTL = cfg.LockTTL
	}
	return rc
}

// Health checks the database and, when configured, Redis.
func (a *App) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.Database.Health.Health(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close stops the sweep loop and releases every resource in reverse order.
func (a *App) Close() error {
	if a.Reclaim != nil {
		a.Reclaim.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
