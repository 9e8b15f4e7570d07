package main

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuel-logistics/internal/cache"
	"github.com/ukydev/fuel-logistics/internal/config"
)

func TestNewRevocationCache_Memory(t *testing.T) {
	c, err := newRevocationCache(context.Background(), "")
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.(*cache.MemoryCache)
	assert.True(t, ok)
}

func TestNewRevocationCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := newRevocationCache(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.(*cache.RedisAdapter)
	assert.True(t, ok)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNewRevocationCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := newRevocationCache(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

func TestNewPerturberFactory(t *testing.T) {
	factory := newPerturberFactory(0.001)
	a := factory()
	b := factory()

	sameSequence := true
	for i := 0; i < 20; i++ {
		aLat, aLon := a.Offset()
		bLat, bLon := b.Offset()
		assert.LessOrEqual(t, math.Abs(aLat), 0.001)
		assert.LessOrEqual(t, math.Abs(aLon), 0.001)
		if aLat != bLat || aLon != bLon {
			sameSequence = false
		}
	}
	assert.False(t, sameSequence, "each simulator should get its own random source")
}

func TestDisconnectHandler(t *testing.T) {
	var stopped []string
	stop := func(userID string) bool {
		stopped = append(stopped, userID)
		return true
	}

	disconnectHandler(false, stop)("alice")
	assert.Empty(t, stopped)

	disconnectHandler(true, stop)("alice")
	assert.Equal(t, []string{"alice"}, stopped)
}

func TestShutdown_ReverseOrder(t *testing.T) {
	var order []string
	record := func(name string, err error) closer {
		return closer{name: name, close: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	shutdown(context.Background(), []closer{
		record("mongo", nil),
		record("cache", errors.New("connection reset")),
		record("mqtt", nil),
		record("stream hub", nil),
		record("tracking", nil),
		record("http server", nil),
	})
	assert.Equal(t, []string{"http server", "tracking", "stream hub", "mqtt", "cache", "mongo"}, order)

	// a run that failed after connecting to Mongo still disconnects it
	order = nil
	shutdown(context.Background(), []closer{record("mongo", nil)})
	assert.Equal(t, []string{"mongo"}, order)

	order = nil
	shutdown(context.Background(), nil)
	assert.Empty(t, order)
}

func TestRun_FailsWhenRedisUnreachable(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{
		MongoURI: uri,
		MongoDB:  "test_fuel_logistics_run",
		RedisURL: "redis://" + addr,
	}
	assert.Error(t, run(context.Background(), cfg))
}
