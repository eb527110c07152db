package cache

import (
	"context"
	"encoding/json"
	"time"

	"sensor-rectifier/models"

	"github.com/go-redis/redis/v8"
)

const latestKey = "reading:latest"

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, addr string, ttl time.Duration) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return &RedisClient{
		client: rdb,
		ttl:    ttl,
	}, nil
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisClient) SaveResult(ctx context.Context, result models.ProcessedReading) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return rc.client.Set(ctx, latestKey, data, rc.ttl).Err()
}

func (rc *RedisClient) GetLatest(ctx context.Context) (*models.ProcessedReading, error) {
	val, err := rc.client.Get(ctx, latestKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result models.ProcessedReading
	if err := json.Unmarshal(val, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
