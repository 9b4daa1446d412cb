// Package models defines the record types exchanged with the game API and the
// flat rows written to the destination spreadsheet.
package models

import (
	"encoding/json"
	"errors"
)

// Row is one flat destination record, keyed by column name.
type Row map[string]any

// Point is a map coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Town is an entry of the town list.
type Town struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location Point  `json:"location"`
	Region   int    `json:"region"`
	Capital  bool   `json:"capital"`
}

// Validate checks town field constraints.
func (t *Town) Validate() error {
	if t.ID == "" {
		return errors.New("town ID must not be empty")
	}
	if t.Name == "" {
		return errors.New("town name must not be empty")
	}
	return nil
}

// TownData is the per-town detail record. Collections that are only counted
// are kept undecoded.
type TownData struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Commoners    Commoners                  `json:"commoners"`
	HouseholdIDs []json.RawMessage          `json:"household_ids"`
	Domain       map[string]json.RawMessage `json:"domain"`
	Structures   map[string]json.RawMessage `json:"structures"`
	Government   Government                 `json:"government"`
}

// Commoners summarizes the commoner population of a town.
type Commoners struct {
	Count int `json:"count"`
}

// Government holds the tax ledger of a town.
type Government struct {
	TaxesCollected map[string]float64 `json:"taxes_collected"`
}

// Gentry is the number of households in the town.
func (d *TownData) Gentry() int {
	return len(d.HouseholdIDs)
}

// Districts excludes the town center tile from the domain count.
func (d *TownData) Districts() int {
	if len(d.Domain) == 0 {
		return 0
	}
	return len(d.Domain) - 1
}

// TotalTaxes sums every tax category collected by the town.
func (d *TownData) TotalTaxes() float64 {
	var total float64
	for _, v := range d.Government.TaxesCollected {
		total += v
	}
	return total
}

// Row flattens a town and its detail record into a Towns row.
// A nil detail leaves the count columns out.
func (t *Town) Row(d *TownData) Row {
	row := Row{
		"id":         t.ID,
		"name":       t.Name,
		"location_x": t.Location.X,
		"location_y": t.Location.Y,
		"region":     t.Region,
		"capital":    t.Capital,
	}
	if d != nil {
		row["commoners"] = d.Commoners.Count
		row["gentry"] = d.Gentry()
		row["district"] = d.Districts()
		row["structures"] = len(d.Structures)
		row["total_taxes"] = d.TotalTaxes()
	}
	return row
}

// Region is a map region.
type Region struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Center Point  `json:"center"`
	Size   int    `json:"size"`
}

// Row flattens a region into a Regions row.
func (r *Region) Row() Row {
	return Row{
		"id":       r.ID,
		"name":     r.Name,
		"center_x": r.Center.X,
		"center_y": r.Center.Y,
		"size":     r.Size,
	}
}
