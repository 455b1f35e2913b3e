package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Record is one source row keyed by column label.
type Record map[string]any

// Get returns the value stored for column, or an empty string when the key is missing.
func (r Record) Get(column string) any {
	if r == nil {
		return ""
	}
	value, ok := r[column]
	if !ok || value == nil {
		return ""
	}
	return value
}

// Clone returns a shallow copy so callers cannot mutate the dataset through it.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Provenance describes where a dataset came from.
type Provenance struct {
	FileName    string `json:"fileName"`
	Worksheet   string `json:"worksheetName,omitempty"`
	ByteSize    int64  `json:"fileSize,omitempty"`
	TotalRows   int    `json:"totalRows"`
	SkippedRows int    `json:"skippedRows"`
}

// SourceDataset is an immutable snapshot of an uploaded file.
type SourceDataset struct {
	Columns    []string   `json:"columns"`
	Rows       []Record   `json:"rows"`
	Provenance Provenance `json:"provenance"`
}

// CellText renders a cell the way it reads in the source file. Numbers print without a
// trailing ".0" and nil is empty.
func CellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return formatCellFloat(float64(val), 32)
	case float64:
		return formatCellFloat(val, 64)
	default:
		return fmt.Sprint(val)
	}
}

func formatCellFloat(f float64, bits int) string {
	if !math.IsInf(f, 0) && f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, bits)
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// NewSourceDataset copies columns and rows into a dataset and rejects duplicate labels.
// Cells are stored as text so a dataset reads back identically after a JSON round trip.
func NewSourceDataset(columns []string, rows []Record, provenance Provenance) (SourceDataset, error) {
	seen := make(map[string]struct{}, len(columns))
	copied := make([]string, 0, len(columns))
	for _, column := range columns {
		if _, dup := seen[column]; dup {
			return SourceDataset{}, fmt.Errorf("duplicate column label %q", column)
		}
		seen[column] = struct{}{}
		copied = append(copied, column)
	}

	copiedRows := make([]Record, len(rows))
	for i, row := range rows {
		text := make(Record, len(row))
		for k, v := range row {
			text[k] = CellText(v)
		}
		copiedRows[i] = text
	}

	return SourceDataset{
		Columns:    copied,
		Rows:       copiedRows,
		Provenance: provenance,
	}, nil
}

// HasColumn reports whether label is one of the dataset's columns.
func (d SourceDataset) HasColumn(label string) bool {
	for _, column := range d.Columns {
		if column == label {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the dataset carries no columns.
func (d SourceDataset) IsEmpty() bool {
	return len(d.Columns) == 0
}
