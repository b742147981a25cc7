package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fleetopt/internal/model"
)

const keyPrefix = "fleetopt:solve:"

// Redis shares cached responses between API replicas.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) (model.SolutionResponse, bool, error) {
	b, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.SolutionResponse{}, false, nil
	}
	if err != nil {
		return model.SolutionResponse{}, false, fmt.Errorf("cache get: %w", err)
	}
	var resp model.SolutionResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return model.SolutionResponse{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return resp, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, resp model.SolutionResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, keyPrefix+key, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
