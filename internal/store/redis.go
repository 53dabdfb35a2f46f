package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hardcover_rss/internal/model"
	"hardcover_rss/utils"

	"github.com/redis/go-redis/v9"
)

// Two logical namespaces share one redis database: durable registration
// records under user:{handle} (no TTL) and ephemeral book-list snapshots
// under books:{handle}. Registered handles are enumerated by scanning
// the registration namespace itself, so there is no secondary index that
// can drift.
const (
	registrationKeyPrefix = "user:"
	snapshotKeyPrefix     = "books:"
)

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func registrationKey(handle string) string {
	return registrationKeyPrefix + handle
}

func snapshotKey(handle string) string {
	return snapshotKeyPrefix + handle
}

func (r *RedisStore) GetRegistration(ctx context.Context, handle string) (model.Registration, error) {
	op := "RedisStore.GetRegistration"
	rqID := utils.GetRequestIDFromCtx(ctx)

	result, err := r.redis.Get(ctx, registrationKey(handle)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Registration{}, ErrNotRegistered
		}
		slog.Error(
			"error getting registration from Redis",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return model.Registration{}, fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}

	var reg model.Registration
	if err := json.Unmarshal([]byte(result), &reg); err != nil {
		slog.Error(
			"error while unmarshall registration",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return model.Registration{}, fmt.Errorf("%s: error while unmarshall registration - %w", op, err)
	}
	reg.CreatedAt = reg.CreatedAt.UTC()

	return reg, nil
}

func (r *RedisStore) PutRegistration(ctx context.Context, handle string, reg model.Registration) error {
	op := "RedisStore.PutRegistration"
	rqID := utils.GetRequestIDFromCtx(ctx)

	payload, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("%s: error while marshall registration - %w", op, err)
	}

	// Registration records are durable: no expiry.
	if err := r.redis.Set(ctx, registrationKey(handle), string(payload), 0).Err(); err != nil {
		slog.Error(
			"error while setting registration in Redis",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}

	return nil
}

// DeleteRegistration also drops the snapshot so an unregistered handle
// never leaves an orphaned book list behind.
func (r *RedisStore) DeleteRegistration(ctx context.Context, handle string) error {
	op := "RedisStore.DeleteRegistration"
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := r.redis.Del(ctx, registrationKey(handle), snapshotKey(handle)).Err(); err != nil {
		slog.Error(
			"error while deleting registration from Redis",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}

	return nil
}

// GetSnapshot returns nil without error when no snapshot exists, and
// also treats an undecodable value as absent so a poisoned entry only
// costs a refetch.
func (r *RedisStore) GetSnapshot(ctx context.Context, handle string) (*model.BookList, error) {
	op := "RedisStore.GetSnapshot"
	rqID := utils.GetRequestIDFromCtx(ctx)

	result, err := r.redis.Get(ctx, snapshotKey(handle)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.Error(
			"error getting snapshot from Redis",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}

	var list model.BookList
	if err := json.Unmarshal([]byte(result), &list); err != nil {
		slog.Error(
			"error while unmarshall snapshot, treating as absent",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return nil, nil
	}
	list.NormalizeUTC()

	return &list, nil
}

func (r *RedisStore) PutSnapshot(ctx context.Context, handle string, list model.BookList, ttl time.Duration) error {
	op := "RedisStore.PutSnapshot"
	rqID := utils.GetRequestIDFromCtx(ctx)

	// A snapshot must never exist without its registration.
	exists, err := r.redis.Exists(ctx, registrationKey(handle)).Result()
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}
	if exists == 0 {
		return fmt.Errorf("%s: refusing snapshot write for %s: %w", op, handle, ErrNotRegistered)
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("%s: error while marshall snapshot - %w", op, err)
	}

	if err := r.redis.Set(ctx, snapshotKey(handle), string(payload), ttl).Err(); err != nil {
		slog.Error(
			"error while setting snapshot in Redis",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}

	return nil
}

func (r *RedisStore) DeleteSnapshot(ctx context.Context, handle string) error {
	op := "RedisStore.DeleteSnapshot"

	if err := r.redis.Del(ctx, snapshotKey(handle)).Err(); err != nil {
		return fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}

	return nil
}

func (r *RedisStore) ListRegisteredHandles(ctx context.Context) ([]string, error) {
	op := "RedisStore.ListRegisteredHandles"
	rqID := utils.GetRequestIDFromCtx(ctx)

	var handles []string
	iter := r.redis.Scan(ctx, 0, registrationKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		handles = append(handles, iter.Val()[len(registrationKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		slog.Error(
			"error scanning registrations in Redis",
			slog.String("op", op),
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %s: %w", op, err.Error(), ErrStoreUnavailable)
	}

	return handles, nil
}
