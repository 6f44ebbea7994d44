// Package setup wires the services shared by the binaries from the
// environment.
package setup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/storage"
	"github.com/OFFIS-RIT/testcase-agent/internal/uploads"
	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/cache"
	"github.com/OFFIS-RIT/testcase-agent/pkg/generate"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Deps are the generation services of one process.
type Deps struct {
	Redis     *redis.Client
	Generator *generate.Service
	Jobs      *jobs.Manager
}

// Build creates the cache, the generation service and the job manager.
// With REDIS_URL set, cache entries and job snapshots are shared between
// processes; otherwise they live in memory.
func Build(ctx context.Context) (*Deps, error) {
	rdb, err := storage.NewRedisClient(ctx)
	if err != nil {
		return nil, err
	}

	cacheTTL := util.GetEnvDuration("CACHE_TTL_SECONDS", int(cache.DefaultTTL/time.Second), time.Second)
	jobTTL := util.GetEnvDuration("JOB_TTL_SECONDS", int(jobs.DefaultRedisTTL/time.Second), time.Second)
	memCache := cache.NewMemoryCache(cacheTTL, util.GetEnvInt("CACHE_MAX_ENTRIES", 512))

	var (
		resultCache cache.Cache = memCache
		jobStore    jobs.Store  = jobs.NewMemoryStore(jobTTL)
	)
	if rdb != nil {
		resultCache = cache.NewRedisCache(cache.NewRedisCacheParams{
			Client:   rdb,
			TTL:      cacheTTL,
			Fallback: memCache,
		})
		jobStore = jobs.NewRedisStore(jobs.NewRedisStoreParams{
			Client: rdb,
			TTL:    jobTTL,
		})
		logger.Info("[Setup] Using Redis for cache and jobs")
	} else {
		logger.Info("[Setup] REDIS_URL not set, cache and jobs stay in memory")
	}

	params := generate.ParamsFromEnv()
	params.Cache = resultCache
	svc := generate.NewService(params)

	manager := jobs.NewManager(jobs.NewManagerParams{
		Store: jobStore,
		Timeouts: map[jobs.Type]time.Duration{
			jobs.TypeGenerate: util.GetEnvDuration("JOB_TIMEOUT_GENERATE_SECONDS", 0, time.Second),
			jobs.TypeEnhance:  util.GetEnvDuration("JOB_TIMEOUT_ENHANCE_SECONDS", 240, time.Second),
		},
	})
	svc.Register(manager)

	return &Deps{Redis: rdb, Generator: svc, Jobs: manager}, nil
}

// Close releases the Redis connection, if any.
func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// NewUploadStore selects the upload backend from UPLOADS_BACKEND
// (postgres, s3 or memory). It defaults to postgres when DATABASE_URL is
// set. The returned func releases backend resources.
func NewUploadStore(ctx context.Context) (*uploads.Store, func(), error) {
	backend := strings.ToLower(util.GetEnv("UPLOADS_BACKEND"))
	if backend == "" {
		backend = "memory"
		if util.GetEnv("DATABASE_URL") != "" {
			backend = "postgres"
		}
	}
	noop := func() {}

	switch backend {
	case "postgres":
		url := util.GetEnv("DATABASE_URL")
		if err := uploads.Migrate(url); err != nil {
			return nil, noop, err
		}
		conn, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, noop, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("[Setup] Uploads stored in Postgres")
		return uploads.NewStore(uploads.NewPgBackend(conn)), conn.Close, nil
	case "s3":
		bucket, err := storage.NewS3Bucket(ctx)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("[Setup] Uploads stored in S3", "bucket", bucket.Name)
		return uploads.NewStore(uploads.NewS3Backend(bucket)), noop, nil
	case "memory":
		logger.Info("[Setup] Uploads kept in memory")
		return uploads.NewStore(uploads.NewMemoryBackend()), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown UPLOADS_BACKEND %q", backend)
	}
}
