package dynamodb

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/tidstore/internal/domain/mocks"
	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache"
	"github.com/ersonp/tidstore/internal/infrastructure/entitycache/entitycachetest"
)

// TestCache_Live runs the cache suite against DynamoDB Local on
// localhost:8000.
func TestCache_Live(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "1" {
		t.Skip("set INTEGRATION_TEST=1 to run against DynamoDB Local")
	}

	cfg := config.DynamoDBConfig{
		Table:    "tidstore_integration_test",
		Region:   "us-east-1",
		Endpoint: "http://localhost:8000",
	}

	entitycachetest.Run(t, func(t *testing.T, clock *mocks.Clock) ports.EntityDataCache {
		ctx := context.Background()
		cache, err := NewCacheFromConfig(ctx, cfg, entitycache.NewCodec(true), clock, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, cache.EnsureTable(ctx))
		require.NoError(t, cache.Clear(ctx))
		return cache
	})
}
