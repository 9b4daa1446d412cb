// Package mercatorio is a typed client for the game HTTP API.
package mercatorio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rewired-gh/mercsync/internal/models"
)

// Getter performs an authenticated GET and returns the body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Client provides access to the game API.
type Client struct {
	baseURL string
	getter  Getter
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, getter Getter) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		getter:  getter,
	}
}

type clock struct {
	Turn *int `json:"turn"`
}

// Turn returns the current game turn.
func (c *Client) Turn(ctx context.Context) (int, error) {
	var out clock
	if err := c.getJSON(ctx, "/clock", &out); err != nil {
		return 0, fmt.Errorf("failed to fetch clock: %w", err)
	}
	if out.Turn == nil {
		return 0, fmt.Errorf("clock response has no turn")
	}
	return *out.Turn, nil
}

// Towns lists every town.
func (c *Client) Towns(ctx context.Context) ([]models.Town, error) {
	var towns []models.Town
	if err := c.getJSON(ctx, "/towns", &towns); err != nil {
		return nil, fmt.Errorf("failed to fetch towns: %w", err)
	}
	return towns, nil
}

// TownData fetches the detail record of one town.
func (c *Client) TownData(ctx context.Context, townID string) (*models.TownData, error) {
	var data models.TownData
	if err := c.getJSON(ctx, "/towns/"+url.PathEscape(townID), &data); err != nil {
		return nil, fmt.Errorf("failed to fetch town %s: %w", townID, err)
	}
	return &data, nil
}

// Regions lists every map region.
func (c *Client) Regions(ctx context.Context) ([]models.Region, error) {
	var regions []models.Region
	if err := c.getJSON(ctx, "/map/regions", &regions); err != nil {
		return nil, fmt.Errorf("failed to fetch regions: %w", err)
	}
	return regions, nil
}

// MarketOverview fetches the item → overview map of a town.
func (c *Client) MarketOverview(ctx context.Context, townID string) (models.MarketOverview, error) {
	var overview models.MarketOverview
	path := fmt.Sprintf("/towns/%s/marketdata", url.PathEscape(townID))
	if err := c.getJSON(ctx, path, &overview); err != nil {
		return nil, fmt.Errorf("failed to fetch market overview for town %s: %w", townID, err)
	}
	return overview, nil
}

// MarketItem fetches the order book of one item in a town.
func (c *Client) MarketItem(ctx context.Context, townID, item string) (*models.MarketItemDetails, error) {
	var details models.MarketItemDetails
	path := fmt.Sprintf("/towns/%s/markets/%s", url.PathEscape(townID), url.PathEscape(item))
	if err := c.getJSON(ctx, path, &details); err != nil {
		return nil, fmt.Errorf("failed to fetch %s book for town %s: %w", item, townID, err)
	}
	return &details, nil
}

// MarketHistory fetches the per-turn trade history of one item, newest first.
func (c *Client) MarketHistory(ctx context.Context, townID, item string) ([]models.MarketHistoryEntry, error) {
	var history []models.MarketHistoryEntry
	path := fmt.Sprintf("/towns/%s/markets/%s/history", url.PathEscape(townID), url.PathEscape(item))
	if err := c.getJSON(ctx, path, &history); err != nil {
		return nil, fmt.Errorf("failed to fetch %s history for town %s: %w", item, townID, err)
	}
	return history, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.getter.Get(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
