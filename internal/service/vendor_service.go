package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"receiptflow/internal/abr"
	"receiptflow/internal/models"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// VendorService keeps the ABN cache. Lookups that miss or find a stale
// entry go to the business register; concurrent refreshes of one ABN
// share a single upstream call.
type VendorService struct {
	store    VendorStore
	registry VendorRegistry
	group    singleflight.Group
	timeout  time.Duration
	now      func() time.Time
	wg       sync.WaitGroup
	logger   *zap.Logger
}

func NewVendorService(store VendorStore, registry VendorRegistry, timeout time.Duration, logger *zap.Logger) *VendorService {
	return &VendorService{
		store:    store,
		registry: registry,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Cached returns the stored vendor for abn without calling the register.
// It returns nil when abn is malformed or not cached.
func (s *VendorService) Cached(ctx context.Context, abn string) (*models.Vendor, error) {
	if !models.ValidABN(abn) {
		return nil, nil
	}
	v, err := s.store.Get(ctx, abn)
	if err != nil {
		if errors.Is(storeErr(err), ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read vendor cache: %w", err)
	}
	return v, nil
}

// Lookup returns the vendor for abn, refreshing the cache when the entry is
// missing or stale. A stale entry is served if the register is unreachable.
func (s *VendorService) Lookup(ctx context.Context, abn string) (*models.Vendor, error) {
	abn = normalizeABN(abn)
	if !models.ValidABN(abn) {
		return nil, FieldErrors{"abn": "must be exactly 11 digits"}
	}

	cached, err := s.Cached(ctx, abn)
	if err != nil {
		return nil, err
	}
	if cached != nil && !cached.Stale(s.now()) {
		return cached, nil
	}

	fresh, err := s.refresh(ctx, abn)
	if err != nil {
		if errors.Is(err, abr.ErrNotFound) {
			return nil, ErrNotFound
		}
		if cached != nil {
			s.logger.Warn("Vendor refresh failed, serving stale entry", zap.String("abn", abn), zap.Error(err))
			return cached, nil
		}
		return nil, err
	}
	return fresh, nil
}

// RefreshAsync updates the cache for abn in the background when it is
// missing or stale. Errors are logged and dropped.
func (s *VendorService) RefreshAsync(abn string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		cached, err := s.Cached(ctx, abn)
		if err != nil {
			s.logger.Warn("Vendor cache read failed", zap.String("abn", abn), zap.Error(err))
			return
		}
		if cached != nil && !cached.Stale(s.now()) {
			return
		}
		if _, err := s.refresh(ctx, abn); err != nil {
			s.logger.Warn("Background vendor refresh failed", zap.String("abn", abn), zap.Error(err))
		}
	}()
}

// Wait blocks until background refreshes finish.
func (s *VendorService) Wait() {
	s.wg.Wait()
}

// RefreshStale refreshes up to limit cached vendors older than the cache
// window and reports how many were updated.
func (s *VendorService) RefreshStale(ctx context.Context, limit int) (int, error) {
	abns, err := s.store.ListStale(ctx, s.now().Add(-models.VendorStaleAfter), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale vendors: %w", err)
	}

	var errs error
	refreshed := 0
	for _, abn := range abns {
		if _, err := s.refresh(ctx, abn); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("abn %s: %w", abn, err))
			continue
		}
		refreshed++
	}
	s.logger.Info("Stale vendors refreshed",
		zap.Int("candidates", len(abns)),
		zap.Int("refreshed", refreshed))
	return refreshed, errs
}

func (s *VendorService) refresh(ctx context.Context, abn string) (*models.Vendor, error) {
	v, err, _ := s.group.Do(abn, func() (any, error) {
		v, err := s.registry.Lookup(ctx, abn)
		if err != nil {
			return nil, err
		}
		v.RequestUpdateDate = s.now()
		if err := s.store.Upsert(ctx, v); err != nil {
			return nil, fmt.Errorf("failed to cache vendor: %w", err)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Vendor), nil
}
