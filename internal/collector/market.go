package collector

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/mercsync/internal/config"
	"github.com/rewired-gh/mercsync/internal/destination"
	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/models"
)

// TownAggregator builds the market records of one town.
type TownAggregator interface {
	Town(ctx context.Context, town models.Town) ([]models.MarketRecord, error)
}

// VolumeCache is the rolling window lifecycle driven once per pass.
type VolumeCache interface {
	Load(ctx context.Context) error
	Commit(ctx context.Context) error
	Reset()
}

// Market mirrors per-item market statistics of every whitelisted town.
type Market struct {
	api       API
	agg       TownAggregator
	cache     VolumeCache
	store     Upserter
	whitelist Whitelist
	limit     int
}

// NewMarket creates the market operation. cache may be nil when the
// aggregator does not read from the rolling window.
func NewMarket(api API, agg TownAggregator, cache VolumeCache, store Upserter, whitelist Whitelist, limit int) *Market {
	return &Market{
		api:       api,
		agg:       agg,
		cache:     cache,
		store:     store,
		whitelist: whitelist,
		limit:     limitOrDefault(limit),
	}
}

func (m *Market) Name() string { return config.OperationMarket }

// Sync aggregates towns concurrently, one task per town so that every cache
// key is written by a single goroutine. The window changes are committed
// only after the destination accepted the records.
func (m *Market) Sync(ctx context.Context) (int, error) {
	towns, err := m.api.Towns(ctx)
	if err != nil {
		return 0, err
	}
	towns = m.whitelist.Filter(towns)

	if m.cache != nil {
		if err := m.cache.Load(ctx); err != nil {
			return 0, err
		}
	}

	results := make([][]models.MarketRecord, len(towns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)
	for i, town := range towns {
		i, town := i, town
		g.Go(func() error {
			records, err := m.agg.Town(gctx, town)
			results[i] = records
			return err
		})
	}
	if err := g.Wait(); err != nil {
		m.discard()
		return 0, err
	}

	var rows []models.Row
	for _, records := range results {
		for i := range records {
			rows = append(rows, records[i].Row())
		}
	}

	if err := m.store.Upsert(ctx, destination.TableMarket, "id", rows); err != nil {
		m.discard()
		return 0, fmt.Errorf("failed to upsert market data: %w", err)
	}
	if m.cache != nil {
		if err := m.cache.Commit(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to commit volume cache: %v", err)
		}
	}
	logger.Info("Synced %d market records across %d towns", len(rows), len(towns))
	return len(rows), nil
}

func (m *Market) discard() {
	if m.cache != nil {
		m.cache.Reset()
	}
}
