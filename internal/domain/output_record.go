package domain

// OutputRecord is one export row. Columns keeps assignment order, which the CSV writer relies on.
type OutputRecord struct {
	Columns []string       `json:"columns"`
	Values  map[string]any `json:"values"`
}

// NewOutputRecord returns an empty record with room for size columns.
func NewOutputRecord(size int) OutputRecord {
	return OutputRecord{
		Columns: make([]string, 0, size),
		Values:  make(map[string]any, size),
	}
}

// Set assigns value to column, appending the column on first assignment.
func (r *OutputRecord) Set(column string, value any) {
	if _, exists := r.Values[column]; !exists {
		r.Columns = append(r.Columns, column)
	}
	r.Values[column] = value
}

// Get returns the value for column and whether it was assigned.
func (r OutputRecord) Get(column string) (any, bool) {
	value, ok := r.Values[column]
	return value, ok
}
