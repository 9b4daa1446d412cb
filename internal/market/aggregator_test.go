package market

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mercsync/internal/models"
	"github.com/rewired-gh/mercsync/internal/storage"
	"github.com/rewired-gh/mercsync/internal/volume"
)

type fakeAPI struct {
	overview    models.MarketOverview
	overviewErr error
	books       map[string]*models.MarketItemDetails
	bookErrs    map[string]error
	calls       []string
}

func (f *fakeAPI) MarketOverview(context.Context, string) (models.MarketOverview, error) {
	return f.overview, f.overviewErr
}

func (f *fakeAPI) MarketItem(_ context.Context, _ string, item string) (*models.MarketItemDetails, error) {
	f.calls = append(f.calls, item)
	if err := f.bookErrs[item]; err != nil {
		return nil, err
	}
	if b, ok := f.books[item]; ok {
		return b, nil
	}
	return &models.MarketItemDetails{Product: item}, nil
}

type fixedSource struct {
	avg  float64
	errs map[string]error
}

func (s fixedSource) Average(_ context.Context, _, item string, _ int) (float64, error) {
	if err := s.errs[item]; err != nil {
		return 0, err
	}
	return s.avg, nil
}

var eindburg = models.Town{ID: "42", Name: "Eindburg"}

func TestBookStats(t *testing.T) {
	tests := []struct {
		name    string
		orders  []models.ItemOrder
		wantVol int
		wantAvg float64
	}{
		{name: "empty", orders: nil, wantVol: 0, wantAvg: 0},
		{name: "two orders", orders: []models.ItemOrder{{Volume: 3, Price: 10}, {Volume: 1, Price: 12}}, wantVol: 4, wantAvg: 11.0},
		{name: "rounds to two places", orders: []models.ItemOrder{{Volume: 1, Price: 1}, {Volume: 1, Price: 1}, {Volume: 1, Price: 2}}, wantVol: 3, wantAvg: 1.33},
		{name: "half rounds away from zero", orders: []models.ItemOrder{{Volume: 2, Price: 1.005}, {Volume: 2, Price: 1.005}}, wantVol: 4, wantAvg: 1.01},
		{name: "mean ignores volume weight", orders: []models.ItemOrder{{Volume: 100, Price: 2}, {Volume: 1, Price: 4}}, wantVol: 101, wantAvg: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vol, avg := BookStats(tt.orders)
			if vol != tt.wantVol || avg != tt.wantAvg {
				t.Errorf("BookStats() = (%d, %v), want (%d, %v)", vol, avg, tt.wantVol, tt.wantAvg)
			}
		})
	}
}

func TestTownBuildsRecords(t *testing.T) {
	api := &fakeAPI{
		overview: models.MarketOverview{
			"grain": {Price: 2.5, Volume: 9},
			"cloth": {Price: 7, Volume: 0},
		},
		books: map[string]*models.MarketItemDetails{
			"grain": {
				Bids: []models.ItemOrder{{Volume: 3, Price: 10}, {Volume: 1, Price: 12}},
				Asks: []models.ItemOrder{{Volume: 5, Price: 13}},
			},
		},
	}
	agg := New(api, fixedSource{avg: 4.5})

	got, err := agg.Town(context.Background(), eindburg)
	require.NoError(t, err)

	want := []models.MarketRecord{
		{TownID: "42", TownName: "Eindburg", Item: "cloth", MarketItem: models.MarketItem{Price: 7}, AvgHistoricalVolume: 4.5},
		{
			TownID: "42", TownName: "Eindburg", Item: "grain",
			MarketItem: models.MarketItem{Price: 2.5, Volume: 9},
			BidVolume:  4, AvgBidPrice: 11.0,
			AskVolume: 5, AvgAskPrice: 13,
			AvgHistoricalVolume: 4.5,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Town() mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"cloth", "grain"}, api.calls)
}

func TestTownSkipsFailingItem(t *testing.T) {
	overview := models.MarketOverview{}
	for _, item := range []string{"a", "b", "c", "d", "e"} {
		overview[item] = models.MarketItem{Volume: 1}
	}
	api := &fakeAPI{overview: overview, bookErrs: map[string]error{"c": errors.New("bad payload")}}

	got, err := New(api, fixedSource{}).Town(context.Background(), eindburg)
	require.NoError(t, err)
	require.Len(t, got, len(overview)-1)
	for _, r := range got {
		require.NotEqual(t, "c", r.Item)
	}
}

func TestTownSkipsItemWhenVolumeSourceFails(t *testing.T) {
	api := &fakeAPI{overview: models.MarketOverview{"a": {Volume: 1}, "b": {Volume: 2}}}
	src := fixedSource{errs: map[string]error{"a": errors.New("history down")}}

	got, err := New(api, src).Town(context.Background(), eindburg)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].Item)
}

func TestTownOverviewFailureIsEmpty(t *testing.T) {
	api := &fakeAPI{overviewErr: errors.New("unparseable")}
	got, err := New(api, fixedSource{}).Town(context.Background(), eindburg)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, api.calls)
}

func TestTownCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeAPI{overview: models.MarketOverview{"a": {Volume: 1}}}
	_, err := New(api, fixedSource{}).Town(ctx, eindburg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTownFeedsVolumeCache(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	cache := volume.NewCache(store)

	api := &fakeAPI{overview: models.MarketOverview{"grain": {Volume: 10}}}
	agg := New(api, cache)

	first, err := agg.Town(context.Background(), eindburg)
	require.NoError(t, err)
	require.Equal(t, 10.0, first[0].AvgHistoricalVolume)

	api.overview = models.MarketOverview{"grain": {Volume: 20}}
	second, err := agg.Town(context.Background(), eindburg)
	require.NoError(t, err)
	require.Equal(t, 15.0, second[0].AvgHistoricalVolume)
	require.NoError(t, cache.Commit(context.Background()))
	stored, err := store.LoadVolumes(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string][]int{"42_grain": {20, 10}}, stored)
}
