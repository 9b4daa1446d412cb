// Package volume tracks the trailing traded volume of every (town, item)
// pair and derives the historical average used in market records.
package volume

import (
	"context"
	"fmt"
	"sync"

	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/models"
)

// Source yields the trailing average volume of an item in a town, given the
// volume observed this turn.
type Source interface {
	Average(ctx context.Context, townID, item string, current int) (float64, error)
}

// Store persists volume windows.
type Store interface {
	LoadVolumes(ctx context.Context) (map[string][]int, error)
	SaveVolumes(ctx context.Context, windows map[string][]int) error
}

// Key is the composite cache key of an item in a town.
func Key(townID, item string) string {
	return townID + "_" + item
}

// Cache is the rolling volume window per key, newest first. Updates stay in
// memory until Commit.
type Cache struct {
	store Store

	mu      sync.Mutex
	windows map[string][]int
	dirty   map[string]uint64 // key -> update sequence at last change
	seq     uint64
	undo    map[string]checkpoint // key -> state before its first update this pass
}

type checkpoint struct {
	window []int
	seq    uint64 // 0 when the key was clean
}

// NewCache creates an empty cache backed by store.
func NewCache(store Store) *Cache {
	return &Cache{
		store:   store,
		windows: make(map[string][]int),
		dirty:   make(map[string]uint64),
		undo:    make(map[string]checkpoint),
	}
}

// Load replaces the in-memory windows with the stored ones. Windows updated
// since the last successful commit are kept over their stored versions.
func (c *Cache) Load(ctx context.Context) error {
	stored, err := c.store.LoadVolumes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load volume windows: %w", err)
	}

	if stored == nil {
		stored = make(map[string][]int)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.dirty {
		stored[key] = c.windows[key]
	}
	c.windows = stored
	c.undo = make(map[string]checkpoint)
	logger.Debug("Loaded %d volume windows (%d pending)", len(stored), len(c.dirty))
	return nil
}

// Update records the current volume of an item and returns the mean of its
// window including the new value.
func (c *Cache) Update(townID, item string, current int) float64 {
	key := Key(townID, item)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.undo[key]; !ok {
		c.undo[key] = checkpoint{window: c.windows[key], seq: c.dirty[key]}
	}
	window := push(c.windows[key], current, WindowSize)
	c.windows[key] = window
	c.seq++
	c.dirty[key] = c.seq
	return mean(window)
}

// Average implements Source on top of Update.
func (c *Cache) Average(_ context.Context, townID, item string, current int) (float64, error) {
	return c.Update(townID, item, current), nil
}

// window returns a copy of the window held under the key, newest first.
func (c *Cache) window(townID, item string) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	window := c.windows[Key(townID, item)]
	if window == nil {
		return nil
	}
	return append([]int(nil), window...)
}

// Pending reports how many windows are waiting to be committed.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

// Commit persists every window updated since the last commit in one write.
func (c *Cache) Commit(ctx context.Context) error {
	c.mu.Lock()
	batch := make(map[string][]int, len(c.dirty))
	seen := make(map[string]uint64, len(c.dirty))
	for key, seq := range c.dirty {
		batch[key] = c.windows[key]
		seen[key] = seq
	}
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := c.store.SaveVolumes(ctx, batch); err != nil {
		return fmt.Errorf("failed to commit %d volume windows: %w", len(batch), err)
	}

	c.mu.Lock()
	for key, seq := range seen {
		// Keys updated again after the snapshot stay dirty.
		if c.dirty[key] == seq {
			delete(c.dirty, key)
			delete(c.undo, key)
		}
	}
	c.mu.Unlock()
	logger.Debug("Committed %d volume windows", len(batch))
	return nil
}

// Reset rolls back the updates made since the last Load. Windows left
// pending by an earlier pass stay pending.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.undo) > 0 {
		logger.Warn("Discarding %d uncommitted volume windows", len(c.undo))
	}
	for key, cp := range c.undo {
		if cp.window == nil {
			delete(c.windows, key)
		} else {
			c.windows[key] = cp.window
		}
		if cp.seq == 0 {
			delete(c.dirty, key)
		} else {
			c.dirty[key] = cp.seq
		}
	}
	c.undo = make(map[string]checkpoint)
}

// Close flushes pending windows. Failures are logged.
func (c *Cache) Close(ctx context.Context) {
	if err := c.Commit(ctx); err != nil {
		logger.Error("Failed to flush volume cache on close: %v", err)
	}
}

// HistoryFetcher returns the per-turn trade history of an item, newest first.
type HistoryFetcher interface {
	MarketHistory(ctx context.Context, townID, item string) ([]models.MarketHistoryEntry, error)
}

// HistoryAverager derives the average from the live history endpoint
// instead of the local cache. The divisor is always WindowSize, so items
// with a short history average low.
type HistoryAverager struct {
	history HistoryFetcher
}

// NewHistoryAverager creates a Source backed by the history endpoint.
func NewHistoryAverager(history HistoryFetcher) *HistoryAverager {
	return &HistoryAverager{history: history}
}

// Average ignores current and averages the newest WindowSize history entries.
func (h *HistoryAverager) Average(ctx context.Context, townID, item string, _ int) (float64, error) {
	entries, err := h.history.MarketHistory(ctx, townID, item)
	if err != nil {
		return 0, err
	}
	if len(entries) > WindowSize {
		entries = entries[:WindowSize]
	}
	var sum int
	for _, e := range entries {
		sum += e.Vol
	}
	return float64(sum) / WindowSize, nil
}
