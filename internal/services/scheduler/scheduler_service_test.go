package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// sweepCache counts Sweep calls and can block inside one to simulate a slow
// sweep.
type sweepCache struct {
	mu      sync.Mutex
	calls   int
	removed int
	err     error

	started chan struct{}
	release chan struct{}
}

var _ interfaces.QuoteCache = (*sweepCache)(nil)

func (c *sweepCache) Get(ctx context.Context, fp *models.Fingerprint) (*models.Table, bool) {
	return nil, false
}

func (c *sweepCache) Put(ctx context.Context, fp *models.Fingerprint, table *models.Table) error {
	return nil
}

func (c *sweepCache) LatestStoredPath() string { return "" }

func (c *sweepCache) Stats() models.CacheStats { return models.CacheStats{} }

func (c *sweepCache) Sweep(ctx context.Context) (int, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.started != nil {
		close(c.started)
		c.started = nil
		<-c.release
	}
	return c.removed, c.err
}

func (c *sweepCache) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestStartAndStopLifecycle(t *testing.T) {
	// Setup
	cache := &sweepCache{}
	service := NewService(cache, createTestLogger())

	// Test
	err := service.Start("0 3 * * *")

	// Verify
	require.NoError(t, err)
	assert.Error(t, service.Start("0 3 * * *"), "second start should be rejected")
	service.Stop()
	service.Stop()
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	// Setup
	service := NewService(&sweepCache{}, createTestLogger())

	// Test
	err := service.Start("every full moon")

	// Verify
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestStartRejectsSubFiveMinuteSchedule(t *testing.T) {
	// Setup
	service := NewService(&sweepCache{}, createTestLogger())

	// Test
	err := service.Start("*/2 * * * *")

	// Verify
	require.Error(t, err)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	// Setup
	service := NewService(&sweepCache{}, createTestLogger())

	// Test / Verify: must return immediately without panicking
	service.Stop()
}

func TestRunSweepCallsCache(t *testing.T) {
	// Setup
	cache := &sweepCache{removed: 3}
	service := NewService(cache, createTestLogger())

	// Test
	service.runSweep()
	service.runSweep()

	// Verify
	assert.Equal(t, 2, cache.callCount())
}

func TestRunSweepRecoversAfterError(t *testing.T) {
	// Setup
	cache := &sweepCache{err: context.DeadlineExceeded}
	service := NewService(cache, createTestLogger())

	// Test: a failed sweep must not leave the sweeping flag set
	service.runSweep()
	service.runSweep()

	// Verify
	assert.Equal(t, 2, cache.callCount())
}

func TestOverlappingSweepSkipped(t *testing.T) {
	// Setup
	cache := &sweepCache{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	started := cache.started
	service := NewService(cache, createTestLogger())

	done := make(chan struct{})
	go func() {
		service.runSweep()
		close(done)
	}()

	// Test: second cycle fires while the first is still inside Sweep
	<-started
	service.runSweep()
	close(cache.release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep did not finish")
	}

	// Verify
	assert.Equal(t, 1, cache.callCount())
}
