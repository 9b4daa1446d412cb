// Package collector implements the sync operations that pull one kind of
// world data from the game and upsert it into the destination.
package collector

import (
	"context"

	"github.com/rewired-gh/mercsync/internal/models"
)

// Operation is one unit of a sync pass. Sync returns the number of records
// upserted.
type Operation interface {
	Name() string
	Sync(ctx context.Context) (int, error)
}

// API is the subset of the game client the collectors need.
type API interface {
	Towns(ctx context.Context) ([]models.Town, error)
	TownData(ctx context.Context, townID string) (*models.TownData, error)
	Regions(ctx context.Context) ([]models.Region, error)
}

// Upserter writes rows into a destination table.
type Upserter interface {
	Upsert(ctx context.Context, table, keyField string, records []models.Row) error
}

// DefaultConcurrency bounds per-collector fan-out when none is configured.
const DefaultConcurrency = 4

// Whitelist restricts collection to named towns. An empty whitelist allows
// every town.
type Whitelist map[string]struct{}

// NewWhitelist builds a whitelist from town names.
func NewWhitelist(names []string) Whitelist {
	w := make(Whitelist, len(names))
	for _, n := range names {
		w[n] = struct{}{}
	}
	return w
}

// Allows reports whether a town name passes the whitelist.
func (w Whitelist) Allows(name string) bool {
	if len(w) == 0 {
		return true
	}
	_, ok := w[name]
	return ok
}

// Filter returns the towns the whitelist allows, in their original order.
func (w Whitelist) Filter(towns []models.Town) []models.Town {
	if len(w) == 0 {
		return towns
	}
	out := make([]models.Town, 0, len(w))
	for _, t := range towns {
		if w.Allows(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

func limitOrDefault(n int) int {
	if n < 1 {
		return DefaultConcurrency
	}
	return n
}
