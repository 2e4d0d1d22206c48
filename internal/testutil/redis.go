package testutil

import (
	"os"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/whynot231455/mmm-sol-dashboard/internal/config"
)

// GetTestRedisOptions returns Redis options for tests that run against a real server
func GetTestRedisOptions() *redis.Options {
	redisAddr := os.Getenv("REDIS_TEST_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return &redis.Options{
		Addr: redisAddr,
		DB:   1, // Use test database
	}
}

// NewMiniredis starts an in-process Redis and a client connected to it. Both
// are closed when the test ends.
func NewMiniredis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// RedisConfig returns the config section pointing at mr
func RedisConfig(t testing.TB, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("invalid miniredis port %q: %v", mr.Port(), err)
	}
	return config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port}
}
