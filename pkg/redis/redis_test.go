package redis

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestRedisClient_UnreachableServer(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewWithClient(log, client)
	defer r.Close()

	ctx := context.Background()
	require.Error(t, r.SetResult(ctx, "abc", []byte(`{}`), time.Minute))

	_, err := r.GetResult(ctx, "abc")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCacheMiss)
}
