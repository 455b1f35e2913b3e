package materialize

import (
	"github.com/rpattn/colmap/internal/domain"
)

// DefaultPreviewRows is the number of rows shown when no limit is given.
const DefaultPreviewRows = 5

// Evaluator runs a transform and reports failures.
type Evaluator interface {
	Evaluate(expression string, value any, row domain.Record) (any, error)
}

// PreviewRow pairs a source value with its transformed result. On failure Result holds the
// original value and Error the reason.
type PreviewRow struct {
	Original any    `json:"original"`
	Result   any    `json:"result"`
	Error    string `json:"error,omitempty"`
}

// Preview evaluates expression for the first limit rows of the edge's source column.
func Preview(ds domain.SourceDataset, source, expression string, evaluator Evaluator, limit int) []PreviewRow {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	if limit > len(ds.Rows) {
		limit = len(ds.Rows)
	}

	rows := make([]PreviewRow, 0, limit)
	for _, row := range ds.Rows[:limit] {
		original := row.Get(source)
		result, err := evaluator.Evaluate(expression, original, row)
		if err != nil {
			rows = append(rows, PreviewRow{Original: original, Result: original, Error: err.Error()})
			continue
		}
		rows = append(rows, PreviewRow{Original: original, Result: result})
	}
	return rows
}
