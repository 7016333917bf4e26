package flowrepo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/jomafilms/openclaw-multitenant/internal/errors"
)

var _ Repo = (*RedisRepo)(nil)
var _ Prober = (*RedisRepo)(nil)

// RedisRepo stores flow records in Redis using native per-key expiry.
// TakeOnce maps onto the atomic GETDEL primitive, which is what gives
// the consume-once guarantee under concurrent callers.
type RedisRepo struct {
	client       redis.UniversalClient
	probeTimeout time.Duration
}

func NewRedisRepo(client redis.UniversalClient, probeTimeout time.Duration) *RedisRepo {
	return &RedisRepo{client: client, probeTimeout: probeTimeout}
}

func (r *RedisRepo) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(apperrors.ErrBackendUnavailable, err.Error())
	}
	return nil
}

func (r *RedisRepo) TakeOnce(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.GetDel(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrBackendUnavailable, err.Error())
	}
	return value, nil
}

// SweepExpired is a no-op: Redis evicts expired keys itself.
func (r *RedisRepo) SweepExpired(_ context.Context) (int, error) {
	return 0, nil
}

func (r *RedisRepo) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	if err := r.client.Ping(probeCtx).Err(); err != nil {
		return errors.Wrap(apperrors.ErrBackendUnavailable, err.Error())
	}
	return nil
}
