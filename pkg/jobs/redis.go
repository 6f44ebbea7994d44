package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisPrefix = "jobs:"
	DefaultRedisTTL    = 24 * time.Hour

	maxTxAttempts = 5
)

// RedisStore keeps job snapshots in Redis so a worker process can report
// progress to the server that accepted the job. Every write is also kept in
// a local MemoryStore, which serves reads and writes while Redis is down.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	local  *MemoryStore
}

// NewRedisStoreParams configures a RedisStore. Zero values select the defaults.
type NewRedisStoreParams struct {
	Client redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

func NewRedisStore(params NewRedisStoreParams) *RedisStore {
	s := &RedisStore{
		client: params.Client,
		prefix: params.Prefix,
		ttl:    params.TTL,
	}
	if s.prefix == "" {
		s.prefix = DefaultRedisPrefix
	}
	if s.ttl <= 0 {
		s.ttl = DefaultRedisTTL
	}
	s.local = NewMemoryStore(s.ttl)
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	if err := s.local.Create(ctx, job); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := s.client.Set(ctx, s.key(job.ID), data, s.ttl).Err(); err != nil {
		logger.Warn("[Jobs] Redis write failed, job kept locally", "job", job.ID, "err", err)
	}
	return nil
}

// Update applies fn inside an optimistic Redis transaction. Jobs unknown to
// Redis, or any Redis failure, fall back to the local copy.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	job, err := s.updateRemote(ctx, id, fn)
	switch {
	case err == nil:
		s.local.put(job)
		return job, nil
	case errors.Is(err, ErrNotFound):
		return s.local.Update(ctx, id, fn)
	case errors.Is(err, ErrFinished):
		return nil, err
	case errors.Is(err, errRedis):
		logger.Warn("[Jobs] Redis update failed, updating local copy", "job", id, "err", err)
		return s.local.Update(ctx, id, fn)
	default:
		return nil, err
	}
}

// Get prefers the Redis snapshot, which may have been written by another process.
func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("[Jobs] Redis read failed, using local copy", "job", id, "err", err)
		}
		return s.local.Get(ctx, id)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

var errRedis = errors.New("redis unavailable")

// callerError carries errors that did not come from Redis itself.
type callerError struct{ err error }

func (e *callerError) Error() string { return e.err.Error() }
func (e *callerError) Unwrap() error { return e.err }

func (s *RedisStore) updateRemote(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	key := s.key(id)
	var out *Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return &callerError{ErrNotFound}
		}
		if err != nil {
			return err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return &callerError{fmt.Errorf("decode job %s: %w", id, err)}
		}
		next, err := apply(&job, fn)
		if err != nil {
			return &callerError{err}
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return &callerError{fmt.Errorf("encode job: %w", err)}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var ce *callerError
		if errors.As(err, &ce) {
			return nil, ce.err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", errRedis, err)
	}
	return nil, fmt.Errorf("%w: update of job %s kept conflicting", errRedis, id)
}
