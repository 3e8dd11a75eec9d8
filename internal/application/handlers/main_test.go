package handlers

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ersonp/tidstore/internal/domain/mocks"
	"github.com/ersonp/tidstore/internal/domain/services"
)

var testNow = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

type fixture struct {
	storage  *mocks.StatementStorage
	cache    *mocks.EntityDataCache
	clock    *mocks.Clock
	store    *services.StatementStore
	entities *services.EntityService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := fixture{
		storage: mocks.NewStatementStorage(),
		cache:   mocks.NewEntityDataCache(),
		clock:   mocks.NewClock(testNow),
	}
	f.store = services.NewStatementStore(f.storage, mocks.NewIDGenerator(9000), f.cache, logger)
	f.entities = services.NewEntityService(f.store, f.cache, f.clock,
		services.CacheSettings{DataID: "v1", TTL: time.Hour}, logger)
	return f
}

