package destination

// Table names.
const (
	TableSync    = "Sync"
	TableRegions = "Regions"
	TableTowns   = "Towns"
	TableMarket  = "Town Market Data"
)

// Field is a column definition in Airtable's field model.
type Field struct {
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// Table is an ordered table definition.
type Table struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	KeyField    string  `json:"-"`
	Fields      []Field `json:"fields"`
}

// HasField reports whether the table defines a column name.
func (t Table) HasField(name string) bool {
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Columns returns the field names in order.
func (t Table) Columns() []string {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f.Name
	}
	return cols
}

func integer(name string) Field {
	return Field{Name: name, Type: "number", Options: map[string]any{"precision": 0}}
}

func decimal2(name string) Field {
	return Field{Name: name, Type: "number", Options: map[string]any{"precision": 2}}
}

func text(name string) Field {
	return Field{Name: name, Type: "singleLineText"}
}

// Schema is the fixed destination layout. The first field of each table is
// its primary field in Airtable.
var Schema = []Table{
	{
		Name:        TableSync,
		Description: "Sync log",
		KeyField:    "turn",
		Fields: []Field{
			integer("turn"),
			{Name: "timestamp", Type: "dateTime", Options: map[string]any{
				"timeZone":   "client",
				"dateFormat": map[string]any{"name": "iso"},
				"timeFormat": map[string]any{"name": "24hour"},
			}},
			integer("records"),
		},
	},
	{
		Name:        TableRegions,
		Description: "Regions of the world",
		KeyField:    "id",
		Fields: []Field{
			integer("id"),
			text("name"),
			integer("center_x"),
			integer("center_y"),
			integer("size"),
		},
	},
	{
		Name:        TableTowns,
		Description: "Towns of the world",
		KeyField:    "id",
		Fields: []Field{
			integer("id"),
			text("name"),
			integer("location_x"),
			integer("location_y"),
			integer("region"),
			{Name: "capital", Type: "checkbox", Options: map[string]any{"color": "greenBright", "icon": "check"}},
			integer("commoners"),
			integer("gentry"),
			integer("district"),
			integer("structures"),
			decimal2("total_taxes"),
		},
	},
	{
		Name:        TableMarket,
		Description: "Market data for towns",
		KeyField:    "id",
		Fields: []Field{
			text("id"),
			integer("town"),
			text("item_name"),
			decimal2("price"),
			decimal2("last_price"),
			decimal2("average_price"),
			decimal2("moving_average"),
			decimal2("highest_bid"),
			decimal2("lowest_ask"),
			integer("volume"),
			integer("bid_volume"),
			decimal2("avg_bid_price"),
			integer("ask_volume"),
			decimal2("avg_ask_price"),
			decimal2("avg_historical_volume"),
		},
	},
}

// Lookup returns the schema of a table by name.
func Lookup(name string) (Table, bool) {
	for _, t := range Schema {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
