// Package idgen generates TIDs from the millisecond clock.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/domain/ports"
)

// Generator issues TIDs. Within a process ids are strictly increasing.
// With a lock file, processes on the same host share the last issued id
// through an exclusive flock, so they never hand out the same id either.
type Generator struct {
	mu       sync.Mutex
	lockFile string
	clock    ports.Clock
	last     entities.Tid
	logger   *zap.Logger
}

// New creates a Generator. An empty lockFile keeps the guarantee
// process-local.
func New(lockFile string, clock ports.Clock, logger *zap.Logger) *Generator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{lockFile: lockFile, clock: clock, logger: logger}
}

// GenerateUnique returns a new TID, never lower than the current time in
// milliseconds and always greater than any id issued before.
func (g *Generator) GenerateUnique(ctx context.Context) (entities.Tid, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lockFile == "" {
		id := g.next(0)
		g.last = id
		return id, nil
	}

	f, err := os.OpenFile(g.lockFile, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening lock file: %w", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return 0, fmt.Errorf("locking %s: %w", g.lockFile, err)
	}
	defer func() {
		if err := unlockFile(f); err != nil {
			g.logger.Warn("unlocking id lock file failed", zap.String("path", g.lockFile), zap.Error(err))
		}
	}()

	stored, err := readLast(f)
	if err != nil {
		return 0, err
	}
	id := g.next(stored)

	if err := writeLast(f, id); err != nil {
		return 0, err
	}
	g.last = id
	return id, nil
}

// next returns the clock-derived id bumped past both the last id of this
// process and the last id recorded by other processes.
func (g *Generator) next(stored entities.Tid) entities.Tid {
	id := entities.TidFromTime(g.clock.Now())
	if id <= g.last {
		id = g.last + 1
	}
	if id <= stored {
		id = stored + 1
	}
	return id
}

func readLast(f *os.File) (entities.Tid, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seeking lock file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lock file holds %q: %w", s, errors.Join(entities.ErrInvalidTid, err))
	}
	return entities.Tid(v), nil
}

func writeLast(f *os.File, id entities.Tid) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(id.String()), 0); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing lock file: %w", err)
	}
	return nil
}
