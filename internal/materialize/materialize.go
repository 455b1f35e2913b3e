// Package materialize turns a dataset plus live mapping edges into export rows.
package materialize

import (
	"github.com/rpattn/colmap/internal/domain"
)

// Transformer applies a transform expression to one cell. A failing expression yields the
// original value.
type Transformer interface {
	Apply(expression string, value any, row domain.Record) any
}

// Materialize produces one output record per source row. Edges are processed in the order
// given, which must be connection order; edges whose target is not part of schema are skipped.
// Target columns without an edge are omitted from every record.
func Materialize(ds domain.SourceDataset, edges []domain.MappingEdge, schema domain.TargetSchema, transformer Transformer) []domain.OutputRecord {
	live := make([]domain.MappingEdge, 0, len(edges))
	for _, edge := range edges {
		if schema.Has(edge.Target) {
			live = append(live, edge)
		}
	}

	records := make([]domain.OutputRecord, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		out := domain.NewOutputRecord(len(live))
		for _, edge := range live {
			value := row.Get(edge.Key.Source)
			if edge.HasTransform() && transformer != nil {
				value = transformer.Apply(edge.Transform, value, row)
			}
			out.Set(edge.Target, value)
		}
		records = append(records, out)
	}
	return records
}

// Header returns the column order shared by every record.
func Header(records []domain.OutputRecord) []string {
	if len(records) == 0 {
		return nil
	}
	return append([]string(nil), records[0].Columns...)
}

// HeaderFor returns the column order Materialize would produce for edges, which is also
// valid for a dataset without rows.
func HeaderFor(edges []domain.MappingEdge, schema domain.TargetSchema) []string {
	header := make([]string, 0, len(edges))
	for _, edge := range edges {
		if schema.Has(edge.Target) {
			header = append(header, edge.Target)
		}
	}
	return header
}
