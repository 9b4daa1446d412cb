package collector

import (
	"context"
	"fmt"

	"github.com/rewired-gh/mercsync/internal/config"
	"github.com/rewired-gh/mercsync/internal/destination"
	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/models"
)

// Regions mirrors the map regions.
type Regions struct {
	api   API
	store Upserter
}

// NewRegions creates the regions operation.
func NewRegions(api API, store Upserter) *Regions {
	return &Regions{api: api, store: store}
}

func (r *Regions) Name() string { return config.OperationRegions }

func (r *Regions) Sync(ctx context.Context) (int, error) {
	regions, err := r.api.Regions(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([]models.Row, 0, len(regions))
	for i := range regions {
		rows = append(rows, regions[i].Row())
	}
	if err := r.store.Upsert(ctx, destination.TableRegions, "id", rows); err != nil {
		return 0, fmt.Errorf("failed to upsert regions: %w", err)
	}
	logger.Info("Synced %d regions", len(rows))
	return len(rows), nil
}
