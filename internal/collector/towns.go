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

// Towns mirrors the town list. Whitelisted towns also carry their derived
// counts.
type Towns struct {
	api       API
	store     Upserter
	whitelist Whitelist
	limit     int
}

// NewTowns creates the towns operation fetching at most limit town details
// at a time.
func NewTowns(api API, store Upserter, whitelist Whitelist, limit int) *Towns {
	return &Towns{api: api, store: store, whitelist: whitelist, limit: limitOrDefault(limit)}
}

func (t *Towns) Name() string { return config.OperationTowns }

func (t *Towns) Sync(ctx context.Context) (int, error) {
	towns, err := t.api.Towns(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([]models.Row, len(towns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.limit)
	for i, town := range towns {
		i, town := i, town
		if err := town.Validate(); err != nil {
			logger.Warn("Skipping invalid town %+v: %v", town, err)
			continue
		}
		// Towns outside the whitelist are listed without their details.
		if !t.whitelist.Allows(town.Name) {
			rows[i] = town.Row(nil)
			continue
		}
		g.Go(func() error {
			data, err := t.api.TownData(gctx, town.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Error("Failed to get town data for %s (%s): %v", town.Name, town.ID, err)
				return nil
			}
			rows[i] = town.Row(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	out := rows[:0]
	for _, r := range rows {
		if r != nil {
			out = append(out, r)
		}
	}
	if err := t.store.Upsert(ctx, destination.TableTowns, "id", out); err != nil {
		return 0, fmt.Errorf("failed to upsert towns: %w", err)
	}
	logger.Info("Synced %d/%d towns", len(out), len(towns))
	return len(out), nil
}
