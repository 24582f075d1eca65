package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"receiptflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newVendorFixture(now time.Time, cached ...models.Vendor) (*VendorService, *memVendors, *fakeRegistry) {
	store := newMemVendors(cached...)
	registry := &fakeRegistry{vendors: map[string]models.Vendor{}}
	svc := NewVendorService(store, registry, time.Second, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, store, registry
}

func TestVendorLookupServesFreshCache(t *testing.T) {
	now := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	svc, _, registry := newVendorFixture(now, gstVendor(true, now.Add(-24*time.Hour)))

	v, err := svc.Lookup(context.Background(), "51 824 753 556")
	require.NoError(t, err)
	assert.Equal(t, testABN, v.ABN)
	assert.Zero(t, registry.calls.Load())
}

func TestVendorLookupRefreshesStaleEntry(t *testing.T) {
	now := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	svc, store, registry := newVendorFixture(now, gstVendor(false, now.Add(-200*24*time.Hour)))
	registry.vendors[testABN] = gstVendor(true, time.Time{})

	v, err := svc.Lookup(context.Background(), testABN)
	require.NoError(t, err)
	assert.True(t, v.GSTRegistered())
	assert.Equal(t, now, v.RequestUpdateDate)
	cached := store.vendors[testABN]
	assert.True(t, cached.GSTRegistered())
}

func TestVendorLookupFallsBackToStaleEntry(t *testing.T) {
	now := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	stale := gstVendor(true, now.Add(-200*24*time.Hour))
	svc, _, registry := newVendorFixture(now, stale)
	registry.err = errors.New("connection refused")

	v, err := svc.Lookup(context.Background(), testABN)
	require.NoError(t, err)
	assert.Equal(t, stale.RequestUpdateDate, v.RequestUpdateDate)
}

func TestVendorLookupErrors(t *testing.T) {
	now := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	svc, _, registry := newVendorFixture(now)

	_, err := svc.Lookup(context.Background(), "1234")
	var ferrs FieldErrors
	assert.ErrorAs(t, err, &ferrs)

	_, err = svc.Lookup(context.Background(), testABN)
	assert.ErrorIs(t, err, ErrNotFound)

	registry.err = errors.New("connection refused")
	_, err = svc.Lookup(context.Background(), testABN)
	assert.EqualError(t, err, "connection refused")
}

func TestVendorCachedIgnoresBadABN(t *testing.T) {
	svc, _, _ := newVendorFixture(time.Now())

	v, err := svc.Cached(context.Background(), "not an abn")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRefreshAsyncSkipsFreshEntries(t *testing.T) {
	now := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	svc, store, registry := newVendorFixture(now, gstVendor(true, now))
	registry.vendors["12345678901"] = models.Vendor{ABN: "12345678901", BusinessName: []string{}}

	svc.RefreshAsync(testABN)
	svc.RefreshAsync("12345678901")
	svc.Wait()

	assert.EqualValues(t, 1, registry.calls.Load())
	assert.Contains(t, store.vendors, "12345678901")
}

func TestRefreshAsyncSwallowsErrors(t *testing.T) {
	svc, store, registry := newVendorFixture(time.Now())
	registry.err = errors.New("timeout")

	svc.RefreshAsync(testABN)
	svc.Wait()

	assert.Empty(t, store.vendors)
}

// blockingRegistry holds lookups until released so concurrent refreshes
// overlap.
type blockingRegistry struct {
	fakeRegistry
	release chan struct{}
}

func (r *blockingRegistry) Lookup(ctx context.Context, abn string) (*models.Vendor, error) {
	<-r.release
	return r.fakeRegistry.Lookup(ctx, abn)
}

func TestConcurrentRefreshesShareOneLookup(t *testing.T) {
	store := newMemVendors()
	registry := &blockingRegistry{
		fakeRegistry: fakeRegistry{vendors: map[string]models.Vendor{testABN: gstVendor(true, time.Time{})}},
		release:      make(chan struct{}),
	}
	svc := NewVendorService(store, registry, time.Second, zap.NewNop())

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Lookup(context.Background(), testABN)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(registry.release)
	wg.Wait()

	assert.LessOrEqual(t, registry.calls.Load(), int32(5))
	assert.GreaterOrEqual(t, registry.calls.Load(), int32(1))
	assert.Contains(t, store.vendors, testABN)
}

func TestRefreshStaleAggregatesErrors(t *testing.T) {
	now := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	old := now.Add(-365 * 24 * time.Hour)
	a := gstVendor(true, old)
	b := gstVendor(true, old)
	b.ABN = "22222222222"
	c := gstVendor(true, now)
	c.ABN = "33333333333"
	svc, store, registry := newVendorFixture(now, a, b, c)
	registry.vendors[testABN] = gstVendor(true, time.Time{})

	n, err := svc.RefreshStale(context.Background(), 10)

	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abn 22222222222")
	assert.Equal(t, now, store.vendors[testABN].RequestUpdateDate)
	assert.Equal(t, 1, store.upserts)
}
