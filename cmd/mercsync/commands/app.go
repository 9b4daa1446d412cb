package commands

import (
	"context"
	"fmt"

	"github.com/rewired-gh/mercsync/internal/auth"
	"github.com/rewired-gh/mercsync/internal/collector"
	"github.com/rewired-gh/mercsync/internal/config"
	"github.com/rewired-gh/mercsync/internal/destination"
	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/market"
	"github.com/rewired-gh/mercsync/internal/mercatorio"
	"github.com/rewired-gh/mercsync/internal/storage"
	"github.com/rewired-gh/mercsync/internal/syncer"
	"github.com/rewired-gh/mercsync/internal/telegram"
	"github.com/rewired-gh/mercsync/internal/volume"
)

// app owns every long-lived component of a sync run.
type app struct {
	store    *storage.Storage
	cache    *volume.Cache
	dest     destination.Store
	telegram *telegram.Client
	syncer   *syncer.Syncer
}

func openDestination(c *config.Config) (destination.Store, error) {
	switch c.Destination.Kind {
	case "workbook":
		w, err := destination.OpenWorkbook(c.Destination.Workbook.Path)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return destination.NewAirtable(c.Destination.Airtable), nil
	}
}

func newAPIClient(c *config.Config) (*mercatorio.Client, error) {
	state, err := auth.LoadState(c.Mercatorio.AuthPath)
	if err != nil {
		return nil, err
	}
	refresher := auth.NewTokenRefresher(c.Mercatorio.TokenURL, c.Mercatorio.APIKey, c.Mercatorio.Timeout)
	fetcher := auth.NewFetcher(state, c.Mercatorio.AuthPath, refresher,
		auth.WithTimeout(c.Mercatorio.Timeout),
		auth.WithRateLimit(c.Mercatorio.RequestsPerSecond, c.Mercatorio.Burst),
	)
	return mercatorio.NewClient(c.Mercatorio.BaseURL, fetcher), nil
}

func newApp(c *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	api, err := newAPIClient(c)
	if err != nil {
		return nil, err
	}

	a.dest, err = openDestination(c)
	if err != nil {
		return nil, fmt.Errorf("failed to open destination: %w", err)
	}

	var source volume.Source
	var cache collector.VolumeCache
	switch c.Sync.HistorySource {
	case "api":
		source = volume.NewHistoryAverager(api)
		logger.Info("Historical volume from the market history endpoint")
	default:
		a.store, err = storage.New(c.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if n, err := a.store.CountVolumes(context.Background()); err != nil {
			logger.Warn("Failed to count stored volume windows: %v", err)
		} else {
			logger.Info("Volume cache %s holds %d windows", c.Storage.DBPath, n)
		}
		a.cache = volume.NewCache(a.store)
		source, cache = a.cache, a.cache
	}

	whitelist := collector.NewWhitelist(c.Sync.TownWhitelist)
	var ops []collector.Operation
	for _, name := range c.Sync.Operations {
		switch name {
		case config.OperationRegions:
			ops = append(ops, collector.NewRegions(api, a.dest))
		case config.OperationTowns:
			ops = append(ops, collector.NewTowns(api, a.dest, whitelist, c.Sync.Concurrency))
		case config.OperationMarket:
			agg := market.New(api, source)
			ops = append(ops, collector.NewMarket(api, agg, cache, a.dest, whitelist, c.Sync.Concurrency))
		}
	}

	var notifier syncer.Notifier
	if c.Telegram.Enabled {
		a.telegram, err = telegram.NewClient(c.Telegram.BotToken, c.Telegram.ChatID, c.Telegram.MaxRetries, c.Telegram.RetryDelayBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		notifier = a.telegram
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	a.syncer = syncer.New(api, a.dest, ops, notifier, syncer.Config{
		Interval:       c.Sync.Interval,
		BusyRetryDelay: c.Sync.BusyRetryDelay,
	})
	if a.telegram != nil {
		a.telegram.SetStatus(a.status)
	}

	ok = true
	return a, nil
}

// status extends the syncer status with the uncommitted cache size.
func (a *app) status() string {
	s := a.syncer.Status()
	if a.cache != nil {
		s += fmt.Sprintf(", pending volume windows: %d", a.cache.Pending())
	}
	return s
}

// close releases everything best-effort. Failures are logged.
func (a *app) close(ctx context.Context) {
	if a.cache != nil {
		a.cache.Close(ctx)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}
	if a.dest != nil {
		if err := a.dest.Close(); err != nil {
			logger.Error("Failed to close destination: %v", err)
		}
	}
}
