package enola

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Dataset is the tabular input for batch tracking: named columns in a
// fixed order plus rows of values. Column lookup is by name; row order
// is preserved.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// NewDataset creates an empty dataset with the given column names.
// Duplicate column names fail with *ConfigurationError.
func NewDataset(columns ...string) (*Dataset, error) {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, dup := index[col]; dup {
			return nil, &ConfigurationError{Message: fmt.Sprintf("duplicate column %q", col)}
		}
		index[col] = i
	}
	return &Dataset{
		columns: append([]string(nil), columns...),
		index:   index,
	}, nil
}

// FromCSV reads a CSV document whose first record is the header row.
// Every value is kept as a string; mappings onto numeric fields parse at
// batch time.
func FromCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("enola: read csv header: %w", err)
	}
	ds, err := NewDataset(header...)
	if err != nil {
		return nil, err
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("enola: read csv row: %w", err)
		}
		values := make([]any, len(record))
		for i, v := range record {
			values[i] = v
		}
		if err := ds.AppendRow(values...); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// AppendRow adds one row. The value count must match the column count.
func (d *Dataset) AppendRow(values ...any) error {
	if len(values) != len(d.columns) {
		return &ConfigurationError{Message: fmt.Sprintf(
			"row has %d values, dataset has %d columns", len(values), len(d.columns))}
	}
	d.rows = append(d.rows, append([]any(nil), values...))
	return nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// HasColumn reports whether the dataset has a column with this name.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Value returns the value at (row, column). The second return is false
// when the column does not exist.
func (d *Dataset) Value(row int, column string) (any, bool) {
	i, ok := d.index[column]
	if !ok {
		return nil, false
	}
	return d.rows[row][i], true
}
