package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "predict:result:"

var ErrCacheMiss = errors.New("cache miss")

// IRedis stores finished pipeline results so they can be fetched again by
// request id until they expire.
type IRedis interface {
	SetResult(ctx context.Context, requestID string, payload []byte, expiration time.Duration) error
	GetResult(ctx context.Context, requestID string) ([]byte, error)
	DeleteResult(ctx context.Context, requestID string) error
	Close() error
}

type redisClient struct {
	client *redis.Client
	log    *logrus.Logger
}

// New connects using REDIS_ADDRESS, REDIS_PASSWORD and REDIS_DB. A failed
// ping is logged only; go-redis reconnects on the next command.
func New(log *logrus.Logger) IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	log.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		log.Info("Successfully connected to Redis")
	}

	return NewWithClient(log, client)
}

func NewWithClient(log *logrus.Logger, client *redis.Client) IRedis {
	return &redisClient{client: client, log: log}
}

func (r *redisClient) SetResult(ctx context.Context, requestID string, payload []byte, expiration time.Duration) error {
	key := keyPrefix + requestID
	r.log.Debug(fmt.Sprintf("Caching result for key %s with expiration %v", key, expiration))
	if err := r.client.Set(ctx, key, payload, expiration).Err(); err != nil {
		r.log.Error(fmt.Sprintf("Error caching result for key %s: %v", key, err))
		return err
	}
	return nil
}

func (r *redisClient) GetResult(ctx context.Context, requestID string) ([]byte, error) {
	key := keyPrefix + requestID
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.log.Debug(fmt.Sprintf("Result not found for key %s", key))
		return nil, ErrCacheMiss
	} else if err != nil {
		r.log.Error(fmt.Sprintf("Error getting result for key %s: %v", key, err))
		return nil, err
	}
	return val, nil
}

func (r *redisClient) DeleteResult(ctx context.Context, requestID string) error {
	key := keyPrefix + requestID
	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.log.Error(fmt.Sprintf("Error deleting result for key %s: %v", key, err))
		return err
	}
	if result == 0 {
		r.log.Debug(fmt.Sprintf("Result key %s not found for deletion", key))
	}
	return nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
