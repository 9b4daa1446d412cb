package destination

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/mercsync/internal/models"
)

func newTestWorkbook(t *testing.T) (*Workbook, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out", "mercsync.xlsx")
	w, err := OpenWorkbook(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, path
}

func readSheet(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestWorkbookMigrate(t *testing.T) {
	w, path := newTestWorkbook(t)
	require.NoError(t, w.Migrate(context.Background()))
	// Idempotent.
	require.NoError(t, w.Migrate(context.Background()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{TableSync, TableRegions, TableTowns, TableMarket}, f.GetSheetList())

	header, err := f.GetRows(TableRegions)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"id", "name", "center_x", "center_y", "size"}}, header)
}

func TestWorkbookUpsertUpdatesAndAppends(t *testing.T) {
	w, path := newTestWorkbook(t)
	ctx := context.Background()
	require.NoError(t, w.Migrate(ctx))

	north := models.Region{ID: 1, Name: "North", Center: models.Point{X: 5, Y: 6}, Size: 10}
	south := models.Region{ID: 2, Name: "South", Size: 3}
	require.NoError(t, w.Upsert(ctx, TableRegions, "id", []models.Row{north.Row(), south.Row()}))

	north.Name = "Far North"
	west := models.Region{ID: 3, Name: "West", Size: 7}
	require.NoError(t, w.Upsert(ctx, TableRegions, "id", []models.Row{north.Row(), west.Row()}))

	rows := readSheet(t, path, TableRegions)
	require.Equal(t, [][]string{
		{"id", "name", "center_x", "center_y", "size"},
		{"1", "Far North", "5", "6", "10"},
		{"2", "South", "0", "0", "3"},
		{"3", "West", "0", "0", "7"},
	}, rows)
}

func TestWorkbookUpsertCreatesSheetWithoutMigrate(t *testing.T) {
	w, path := newTestWorkbook(t)
	rec := models.MarketRecord{TownID: "7", TownName: "Hambeck", Item: "grain", BidVolume: 4, AvgBidPrice: 11}
	require.NoError(t, w.Upsert(context.Background(), TableMarket, "id", []models.Row{rec.Row()}))

	rows := readSheet(t, path, TableMarket)
	require.Len(t, rows, 2)
	require.Equal(t, "Hambeck - grain", rows[1][0])
	require.Equal(t, "4", rows[1][10])
	require.Equal(t, "11", rows[1][11])
}

func TestWorkbookSyncLedger(t *testing.T) {
	w, path := newTestWorkbook(t)
	ctx := context.Background()

	ok, err := w.HasSyncRecord(ctx, 5)
	require.NoError(t, err)
	require.False(t, ok)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.RecordSync(ctx, models.SyncRecord{Turn: 5, Timestamp: ts, Records: 12}))

	ok, err = w.HasSyncRecord(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = w.HasSyncRecord(ctx, 6)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, w.Close())

	reopened, err := OpenWorkbook(path)
	require.NoError(t, err)
	defer reopened.Close()
	ok, err = reopened.HasSyncRecord(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWorkbookRejectsUnknownTable(t *testing.T) {
	w, _ := newTestWorkbook(t)
	require.Error(t, w.Upsert(context.Background(), "Markets", "id", []models.Row{{"id": 1}}))
}

func TestStoresSatisfyInterface(t *testing.T) {
	var _ Store = (*Workbook)(nil)
	var _ Store = (*Airtable)(nil)
}
