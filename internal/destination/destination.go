// Package destination writes flattened records to the spreadsheet-backed
// datastore, either Airtable or a local workbook file.
package destination

import (
	"context"
	"fmt"

	"github.com/rewired-gh/mercsync/internal/models"
)

// Store is a destination keyed by table name.
type Store interface {
	// Upsert inserts or updates records matched on keyField.
	Upsert(ctx context.Context, table, keyField string, records []models.Row) error
	// HasSyncRecord reports whether turn was already mirrored.
	HasSyncRecord(ctx context.Context, turn int) (bool, error)
	// RecordSync appends the sync ledger entry for a turn.
	RecordSync(ctx context.Context, rec models.SyncRecord) error
	// Migrate creates any missing tables from Schema.
	Migrate(ctx context.Context) error
	Close() error
}

func checkRecords(table, keyField string, records []models.Row) (Table, error) {
	t, ok := Lookup(table)
	if !ok {
		return Table{}, fmt.Errorf("unknown table %q", table)
	}
	if !t.HasField(keyField) {
		return Table{}, fmt.Errorf("table %q has no field %q", table, keyField)
	}
	for i, r := range records {
		if _, ok := r[keyField]; !ok {
			return Table{}, fmt.Errorf("record %d for %q has no %q", i, table, keyField)
		}
		for name := range r {
			if !t.HasField(name) {
				return Table{}, fmt.Errorf("record %d for %q has unknown field %q", i, table, name)
			}
		}
	}
	return t, nil
}
