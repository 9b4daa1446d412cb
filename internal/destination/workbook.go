package destination

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/models"
)

const defaultSheet = "Sheet1"

// Workbook is a Store backed by a local .xlsx file with one sheet per table.
// Every mutation is saved to disk before returning.
type Workbook struct {
	path string

	mu   sync.Mutex
	file *excelize.File
}

// OpenWorkbook opens the workbook at path, or starts a new one if the file
// does not exist yet.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		f = excelize.NewFile()
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create workbook directory: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return &Workbook{path: path, file: f}, nil
}

func (w *Workbook) hasSheet(name string) bool {
	idx, err := w.file.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// ensureSheet creates the sheet of t with its header row. Callers hold mu.
func (w *Workbook) ensureSheet(t Table) (bool, error) {
	if w.hasSheet(t.Name) {
		return false, nil
	}
	if _, err := w.file.NewSheet(t.Name); err != nil {
		return false, fmt.Errorf("failed to create sheet %s: %w", t.Name, err)
	}
	header := make([]any, len(t.Fields))
	for i, f := range t.Fields {
		header[i] = f.Name
	}
	if err := w.file.SetSheetRow(t.Name, "A1", &header); err != nil {
		return false, fmt.Errorf("failed to write %s header: %w", t.Name, err)
	}
	return true, nil
}

// keyIndex maps the key column's cell text to a 1-based row number. It also
// returns the number of used rows, header included.
func (w *Workbook) keyIndex(t Table, keyField string) (map[string]int, int, error) {
	rows, err := w.file.GetRows(t.Name)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read sheet %s: %w", t.Name, err)
	}
	col := -1
	for i, name := range t.Columns() {
		if name == keyField {
			col = i
		}
	}
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		if i == 0 || col >= len(row) {
			continue
		}
		index[row[col]] = i + 1
	}
	return index, len(rows), nil
}

func cellText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Upsert updates rows whose key cell matches and appends the rest.
func (w *Workbook) Upsert(_ context.Context, table, keyField string, records []models.Row) error {
	t, err := checkRecords(table, keyField, records)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.ensureSheet(t); err != nil {
		return err
	}
	index, last, err := w.keyIndex(t, keyField)
	if err != nil {
		return err
	}

	cols := t.Columns()
	var inserted, updated int
	for _, r := range records {
		key := cellText(r[keyField])
		rowNum, ok := index[key]
		if !ok {
			last++
			rowNum = last
			index[key] = rowNum
			inserted++
		} else {
			updated++
		}

		values := make([]any, len(cols))
		for i, c := range cols {
			values[i] = r[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(t.Name, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", t.Name, rowNum, err)
		}
	}

	if err := w.save(); err != nil {
		return err
	}
	logger.Debug("Workbook %s: %d inserted, %d updated", t.Name, inserted, updated)
	return nil
}

// HasSyncRecord scans the Sync sheet for turn.
func (w *Workbook) HasSyncRecord(_ context.Context, turn int) (bool, error) {
	t, _ := Lookup(TableSync)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasSheet(t.Name) {
		return false, nil
	}
	index, _, err := w.keyIndex(t, t.KeyField)
	if err != nil {
		return false, err
	}
	_, ok := index[strconv.Itoa(turn)]
	return ok, nil
}

// RecordSync writes the ledger entry for rec.Turn.
func (w *Workbook) RecordSync(ctx context.Context, rec models.SyncRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid sync record: %w", err)
	}
	return w.Upsert(ctx, TableSync, "turn", []models.Row{rec.Row()})
}

// Migrate creates every missing sheet and drops the blank default sheet.
func (w *Workbook) Migrate(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range Schema {
		created, err := w.ensureSheet(t)
		if err != nil {
			return err
		}
		if created {
			logger.Info("Created sheet %s", t.Name)
		}
	}
	if w.hasSheet(defaultSheet) {
		if _, ok := Lookup(defaultSheet); !ok {
			if err := w.file.DeleteSheet(defaultSheet); err != nil {
				return fmt.Errorf("failed to remove %s: %w", defaultSheet, err)
			}
		}
	}
	if idx, err := w.file.GetSheetIndex(Schema[0].Name); err == nil && idx >= 0 {
		w.file.SetActiveSheet(idx)
	}
	return w.save()
}

func (w *Workbook) save() error {
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Close releases the workbook file.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
