package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
	"github.com/ternarybob/pretium/internal/services/registry"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// memoryCache is an in-memory QuoteCache for dispatcher tests
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.Table
	puts    int
	putErr  error
}

var _ interfaces.QuoteCache = (*memoryCache)(nil)

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*models.Table)}
}

func (c *memoryCache) Get(ctx context.Context, fp *models.Fingerprint) (*models.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.entries[fp.Hash()]
	return table, ok
}

func (c *memoryCache) Put(ctx context.Context, fp *models.Fingerprint, table *models.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[fp.Hash()] = table
	return nil
}

func (c *memoryCache) LatestStoredPath() string { return "" }

func (c *memoryCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{Entries: len(c.entries)}
}

func (c *memoryCache) Sweep(ctx context.Context) (int, error) { return 0, nil }

func (c *memoryCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// scriptedProvider implements the history contract with a scripted outcome
type scriptedProvider struct {
	name    string
	table   *models.Table
	err     error
	delay   time.Duration
	release chan struct{} // when set, FetchHistory blocks until closed

	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) FetchHistory(ctx context.Context, fp *models.Fingerprint) (*models.Table, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.table != nil {
		return p.table, nil
	}
	return basicHistoryTable(), nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func basicHistoryTable() *models.Table {
	table := models.NewTable(models.CapabilityHistory.RequiredColumns(models.FieldSetBasic)...)
	table.AddRow("20240102", "100.0", "101.5", "99.1", "101.0", "1000", "100900")
	return table
}

func historyRequest(codes ...string) *models.QuoteRequest {
	return &models.QuoteRequest{
		Market:     "cn",
		Codes:      codes,
		Capability: "history",
		Start:      "20240101",
		End:        "20240131",
	}
}

// newTestRegistry registers the given providers for cn/history in order,
// priorities following registration order
func newTestRegistry(t *testing.T, providers ...*scriptedProvider) interfaces.SourceRegistry {
	t.Helper()
	reg := registry.NewService(createTestLogger())
	for i, p := range providers {
		descriptor := models.ProviderDescriptor{
			Name:       p.name,
			Market:     "cn",
			Capability: models.CapabilityHistory,
			Priority:   i + 1,
			Ready:      true,
		}
		require.NoError(t, reg.Register(descriptor, p))
	}
	return reg
}

func TestFetchValidatesRequest(t *testing.T) {
	// Setup
	svc := NewService(newTestRegistry(t), newMemoryCache(), nil, createTestLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		req  *models.QuoteRequest
	}{
		{"nil request", nil},
		{"missing market", &models.QuoteRequest{Codes: []string{"600519"}, Capability: "history"}},
		{"missing codes", &models.QuoteRequest{Market: "cn", Capability: "history"}},
		{"missing capability", &models.QuoteRequest{Market: "cn", Codes: []string{"600519"}}},
		{"bad field set", &models.QuoteRequest{Market: "cn", Codes: []string{"600519"}, Capability: "history", Fields: "fancy"}},
		{"unknown capability", &models.QuoteRequest{Market: "cn", Codes: []string{"600519"}, Capability: "forecast"}},
		{"unknown market", &models.QuoteRequest{Market: "mars", Codes: []string{"600519"}, Capability: "history"}},
		{"bad symbol", &models.QuoteRequest{Market: "cn", Codes: []string{"12"}, Capability: "history"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Test
			table, err := svc.Fetch(ctx, tt.req)

			// Verify
			require.Error(t, err)
			assert.Nil(t, table)
		})
	}
}

func TestFetchServesCacheHit(t *testing.T) {
	// Setup
	provider := &scriptedProvider{name: "eastmoney"}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, provider), cache, nil, createTestLogger())

	req := historyRequest("600519")
	fp, err := models.BuildFingerprint(req)
	require.NoError(t, err)
	cached := basicHistoryTable()
	require.NoError(t, cache.Put(context.Background(), fp, cached))

	// Test
	table, err := svc.Fetch(context.Background(), req)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, cached, table)
	assert.Equal(t, 0, provider.callCount(), "cache hit should not reach the provider")
}

func TestFetchWritesBackAndServesFromCache(t *testing.T) {
	// Setup
	provider := &scriptedProvider{name: "eastmoney"}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, provider), cache, nil, createTestLogger())
	req := historyRequest("600519")

	// Test
	first, err := svc.Fetch(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Fetch(context.Background(), req)
	require.NoError(t, err)

	// Verify
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.callCount(), "second fetch should be served from the cache")
	assert.Equal(t, 1, cache.putCount())
}

func TestFetchFallsBackAcrossProviders(t *testing.T) {
	// Setup
	primary := &scriptedProvider{name: "eastmoney", err: fmt.Errorf("upstream returned 502")}
	secondary := &scriptedProvider{name: "tusharepro"}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, primary, secondary), cache, nil, createTestLogger())

	// Test
	table, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, secondary.callCount())
	assert.Equal(t, 1, cache.putCount(), "the fallback result should be cached")
}

func TestFetchSkipsProviderWithIncompleteSchema(t *testing.T) {
	// Setup
	incomplete := models.NewTable("date", "close")
	incomplete.AddRow("20240102", "101.0")
	primary := &scriptedProvider{name: "eastmoney", table: incomplete}
	secondary := &scriptedProvider{name: "tusharepro"}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, primary, secondary), cache, nil, createTestLogger())

	// Test
	table, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.NoError(t, err)
	assert.NoError(t, table.HasColumns("date", "open", "high", "low", "close", "volume", "amount"))
	assert.Equal(t, 1, secondary.callCount())
	assert.Equal(t, 1, cache.putCount(), "the incomplete table must not be cached")
}

func TestFetchReturnsNoProviderAvailable(t *testing.T) {
	// Setup
	reg := registry.NewService(createTestLogger())
	unready := &scriptedProvider{name: "tusharepro"}
	require.NoError(t, reg.Register(models.ProviderDescriptor{
		Name:       "tusharepro",
		Market:     "cn",
		Capability: models.CapabilityHistory,
		Priority:   1,
		Ready:      false,
	}, unready))
	svc := NewService(reg, newMemoryCache(), nil, createTestLogger())

	// Test
	table, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.Error(t, err)
	assert.Nil(t, table)
	var notAvailable *interfaces.NoProviderAvailableError
	require.ErrorAs(t, err, &notAvailable)
	assert.Equal(t, "cn", notAvailable.Market)
	assert.Equal(t, 0, unready.callCount())
}

func TestFetchReturnsAllSourcesExhausted(t *testing.T) {
	// Setup
	primary := &scriptedProvider{name: "eastmoney", err: fmt.Errorf("upstream returned 502")}
	secondary := &scriptedProvider{name: "tusharepro", err: fmt.Errorf("token rejected")}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, primary, secondary), cache, nil, createTestLogger())

	// Test
	table, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.Error(t, err)
	assert.Nil(t, table)

	var exhausted *interfaces.AllSourcesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Failures, 2)
	assert.Equal(t, "eastmoney", exhausted.Failures[0].Provider)
	assert.Contains(t, exhausted.Failures[0].Reason, "502")
	assert.Equal(t, "tusharepro", exhausted.Failures[1].Provider)
	assert.Contains(t, exhausted.Failures[1].Reason, "token rejected")
	assert.Equal(t, 0, cache.putCount(), "failures must never be cached")
}

func TestFetchTimesOutSlowProviders(t *testing.T) {
	// Setup
	slow := &scriptedProvider{name: "eastmoney", delay: 500 * time.Millisecond}
	fast := &scriptedProvider{name: "tusharepro"}
	timeouts := map[string]time.Duration{"eastmoney": 20 * time.Millisecond}
	svc := NewService(newTestRegistry(t, slow, fast), newMemoryCache(), timeouts, createTestLogger())

	// Test
	table, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, 1, slow.callCount())
	assert.Equal(t, 1, fast.callCount())
}

func TestFetchTimeoutSurfacesDeadlineExceeded(t *testing.T) {
	// Setup
	slow := &scriptedProvider{name: "eastmoney", delay: 500 * time.Millisecond}
	timeouts := map[string]time.Duration{"eastmoney": 20 * time.Millisecond}
	svc := NewService(newTestRegistry(t, slow), newMemoryCache(), timeouts, createTestLogger())

	// Test
	_, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.Error(t, err)
	var exhausted *interfaces.AllSourcesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentIdenticalRequestsShareOneUpstreamCall(t *testing.T) {
	// Setup
	release := make(chan struct{})
	provider := &scriptedProvider{name: "eastmoney", release: release}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, provider), cache, nil, createTestLogger())

	const callers = 5
	var wg sync.WaitGroup
	tables := make([]*models.Table, callers)
	errs := make([]error, callers)

	// Test
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i], errs[i] = svc.Fetch(context.Background(), historyRequest("600519"))
		}(i)
	}

	// Wait until the first caller is inside the provider, give the rest time
	// to join the flight, then let the call finish
	require.Eventually(t, func() bool { return provider.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	close(release)
	wg.Wait()

	// Verify
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, tables[i])
		assert.Equal(t, tables[0], tables[i], "every caller should receive the shared payload")
	}
	assert.Equal(t, 1, provider.callCount(), "identical concurrent misses must collapse to one upstream call")
	assert.Equal(t, 1, cache.putCount())
}

func TestFetchSucceedsWhenCacheWriteFails(t *testing.T) {
	// Setup
	provider := &scriptedProvider{name: "eastmoney"}
	cache := newMemoryCache()
	cache.putErr = fmt.Errorf("disk full")
	svc := NewService(newTestRegistry(t, provider), cache, nil, createTestLogger())

	// Test
	table, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.NoError(t, err)
	require.NotNil(t, table)
}

func TestFetchCollapsesEquivalentRequestSpellings(t *testing.T) {
	// Setup
	provider := &scriptedProvider{name: "eastmoney"}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, provider), cache, nil, createTestLogger())

	first := &models.QuoteRequest{
		Market:     "cn",
		Codes:      []string{"600519", "000001"},
		Capability: "history",
		Start:      "20240101",
		End:        "20240131",
		Freq:       "daily",
	}
	second := &models.QuoteRequest{
		Market:     "CN",
		Codes:      []string{"000001.SZ", "600519.SH", "000001"},
		Capability: "History",
		Start:      "2024-01-01",
		End:        "2024/01/31",
		Freq:       "d",
	}

	// Test
	tableA, err := svc.Fetch(context.Background(), first)
	require.NoError(t, err)
	tableB, err := svc.Fetch(context.Background(), second)
	require.NoError(t, err)

	// Verify
	assert.Equal(t, tableA, tableB)
	assert.Equal(t, 1, provider.callCount(), "equivalent spellings must share one cache entry")
}

func TestFetchDistinguishesDifferentRequests(t *testing.T) {
	// Setup
	provider := &scriptedProvider{name: "eastmoney"}
	svc := NewService(newTestRegistry(t, provider), newMemoryCache(), nil, createTestLogger())

	// Test
	_, err := svc.Fetch(context.Background(), historyRequest("600519"))
	require.NoError(t, err)
	_, err = svc.Fetch(context.Background(), historyRequest("000001"))
	require.NoError(t, err)

	// Verify
	assert.Equal(t, 2, provider.callCount())
}

func TestFetchErrorsAreNotCached(t *testing.T) {
	// Setup
	provider := &scriptedProvider{name: "eastmoney", err: errors.New("upstream down")}
	cache := newMemoryCache()
	svc := NewService(newTestRegistry(t, provider), cache, nil, createTestLogger())

	// First call fails
	_, err := svc.Fetch(context.Background(), historyRequest("600519"))
	require.Error(t, err)

	// Test: provider recovers, the next call goes upstream again
	provider.mu.Lock()
	provider.err = nil
	provider.mu.Unlock()
	table, err := svc.Fetch(context.Background(), historyRequest("600519"))

	// Verify
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, 2, provider.callCount())
}
