// Package market turns a town's market overview and order books into
// per-item statistics records.
package market

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/models"
	"github.com/rewired-gh/mercsync/internal/volume"
)

// API is the subset of the game client the aggregator needs.
type API interface {
	MarketOverview(ctx context.Context, townID string) (models.MarketOverview, error)
	MarketItem(ctx context.Context, townID, item string) (*models.MarketItemDetails, error)
}

// Aggregator builds MarketRecords for one town at a time.
type Aggregator struct {
	api     API
	volumes volume.Source
}

// New creates an Aggregator reading from api and deriving the historical
// volume from volumes.
func New(api API, volumes volume.Source) *Aggregator {
	return &Aggregator{api: api, volumes: volumes}
}

// Town returns one record per item of the town's market. Items whose book or
// history cannot be read are skipped, and an unreadable overview yields no
// records. The only error returned is context cancellation.
func (a *Aggregator) Town(ctx context.Context, town models.Town) ([]models.MarketRecord, error) {
	overview, err := a.api.MarketOverview(ctx, town.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("Failed to get market data for %s (%s): %v", town.Name, town.ID, err)
		return nil, nil
	}

	items := make([]string, 0, len(overview))
	for item := range overview {
		items = append(items, item)
	}
	sort.Strings(items)

	records := make([]models.MarketRecord, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		details, err := a.api.MarketItem(ctx, town.ID, item)
		if err != nil {
			logger.Error("Failed to get market data for %s - %s: %v", town.Name, item, err)
			continue
		}

		info := overview[item]
		avgHistorical, err := a.volumes.Average(ctx, town.ID, item, info.Volume)
		if err != nil {
			logger.Error("Failed to get volume history for %s - %s: %v", town.Name, item, err)
			continue
		}

		bidVolume, avgBid := BookStats(details.Bids)
		askVolume, avgAsk := BookStats(details.Asks)

		records = append(records, models.MarketRecord{
			TownID:              town.ID,
			TownName:            town.Name,
			Item:                item,
			MarketItem:          info,
			BidVolume:           bidVolume,
			AskVolume:           askVolume,
			AvgBidPrice:         avgBid,
			AvgAskPrice:         avgAsk,
			AvgHistoricalVolume: avgHistorical,
		})
	}

	logger.Debug("Aggregated %d/%d items for %s", len(records), len(items), town.Name)
	return records, nil
}

// BookStats returns the total volume and the mean price, rounded to two
// decimal places, of one side of an order book. An empty side is (0, 0).
func BookStats(orders []models.ItemOrder) (int, float64) {
	if len(orders) == 0 {
		return 0, 0
	}
	var vol int
	sum := decimal.Zero
	for _, o := range orders {
		vol += o.Volume
		sum = sum.Add(decimal.NewFromFloat(o.Price))
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	return vol, avg.InexactFloat64()
}
