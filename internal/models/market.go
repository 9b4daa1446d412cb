package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MarketItem is one entry of a town's market overview. Price fields are
// optional upstream and default to 0; volume is required.
type MarketItem struct {
	Price         float64 `json:"price"`
	LastPrice     float64 `json:"last_price"`
	AveragePrice  float64 `json:"average_price"`
	MovingAverage float64 `json:"moving_average"`
	HighestBid    float64 `json:"highest_bid"`
	LowestAsk     float64 `json:"lowest_ask"`
	Volume        int     `json:"volume"`
}

// UnmarshalJSON rejects entries without a volume. Null prices decode as 0.
func (m *MarketItem) UnmarshalJSON(data []byte) error {
	var wire struct {
		Price         *float64 `json:"price"`
		LastPrice     *float64 `json:"last_price"`
		AveragePrice  *float64 `json:"average_price"`
		MovingAverage *float64 `json:"moving_average"`
		HighestBid    *float64 `json:"highest_bid"`
		LowestAsk     *float64 `json:"lowest_ask"`
		Volume        *int     `json:"volume"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Volume == nil {
		return errors.New("market item: missing volume")
	}
	*m = MarketItem{
		Price:         deref(wire.Price),
		LastPrice:     deref(wire.LastPrice),
		AveragePrice:  deref(wire.AveragePrice),
		MovingAverage: deref(wire.MovingAverage),
		HighestBid:    deref(wire.HighestBid),
		LowestAsk:     deref(wire.LowestAsk),
		Volume:        *wire.Volume,
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// MarketOverview maps item name to its overview entry.
type MarketOverview map[string]MarketItem

// ItemOrder is a single resting order in an item's order book.
type ItemOrder struct {
	Volume int     `json:"volume"`
	Price  float64 `json:"price"`
}

// MarketItemDetails is the order book of one item in one town.
// Absent bids or asks decode as empty books.
type MarketItemDetails struct {
	ID       int         `json:"id"`
	Product  string      `json:"product"`
	Asset    string      `json:"asset"`
	Currency string      `json:"currency"`
	Bids     []ItemOrder `json:"bids"`
	Asks     []ItemOrder `json:"asks"`
	Data     *MarketItem `json:"data,omitempty"`
}

// MarketHistoryEntry is one turn of an item's trade history.
type MarketHistoryEntry struct {
	Avg  float64 `json:"avg"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
	Last float64 `json:"last"`
	Vol  int     `json:"vol"`
	Turn int     `json:"turn"`
}

// MarketRecord is the composite per-item statistics record for one town.
type MarketRecord struct {
	TownID   string
	TownName string
	Item     string
	MarketItem

	BidVolume           int
	AskVolume           int
	AvgBidPrice         float64
	AvgAskPrice         float64
	AvgHistoricalVolume float64
}

// Key is the destination merge key, "{town_name} - {item_name}".
func (r *MarketRecord) Key() string {
	return fmt.Sprintf("%s - %s", r.TownName, r.Item)
}

// Row flattens the record into a Town Market Data row.
func (r *MarketRecord) Row() Row {
	return Row{
		"id":                    r.Key(),
		"town":                  r.TownID,
		"item_name":             r.Item,
		"price":                 r.Price,
		"last_price":            r.LastPrice,
		"average_price":         r.AveragePrice,
		"moving_average":        r.MovingAverage,
		"highest_bid":           r.HighestBid,
		"lowest_ask":            r.LowestAsk,
		"volume":                r.Volume,
		"bid_volume":            r.BidVolume,
		"avg_bid_price":         r.AvgBidPrice,
		"ask_volume":            r.AskVolume,
		"avg_ask_price":         r.AvgAskPrice,
		"avg_historical_volume": r.AvgHistoricalVolume,
	}
}

// SyncRecord marks a turn as mirrored. There is at most one per turn.
type SyncRecord struct {
	Turn      int
	Timestamp time.Time
	Records   int
}

// Validate checks sync record constraints.
func (s *SyncRecord) Validate() error {
	if s.Turn < 0 {
		return errors.New("sync turn must not be negative")
	}
	if s.Records < 0 {
		return errors.New("sync record count must not be negative")
	}
	if s.Timestamp.IsZero() {
		return errors.New("sync timestamp must be set")
	}
	return nil
}

// Row flattens the record into a Sync row.
func (s *SyncRecord) Row() Row {
	return Row{
		"turn":      s.Turn,
		"timestamp": s.Timestamp.UTC().Format(time.RFC3339),
		"records":   s.Records,
	}
}
