// Package mapping owns the column mapping session: selection cursor, edges and the
// connection ordinal counter. Every transition returns a new State and never fails;
// inputs that do not apply are ignored.
package mapping

import (
	"sort"

	"github.com/rpattn/colmap/internal/domain"
)

// State is one snapshot of a mapping session.
type State struct {
	Schema         domain.TargetSchema
	Dataset        *domain.SourceDataset
	SelectedSource *string
	SelectedTarget *string
	SourceFilter   string
	TargetFilter   string
	NextOrdinal    int

	edges map[domain.ConnectionKey]domain.MappingEdge
}

// NewState returns an empty session over schema.
func NewState(schema domain.TargetSchema) State {
	return State{
		Schema: schema,
		edges:  map[domain.ConnectionKey]domain.MappingEdge{},
	}
}

// Restore rebuilds a state from persisted parts. Edges whose target is unknown to schema,
// or that would map a target twice, are dropped.
func Restore(schema domain.TargetSchema, dataset *domain.SourceDataset, edges []domain.MappingEdge, nextOrdinal int) State {
	s := NewState(schema)
	if dataset != nil && !dataset.IsEmpty() {
		ds := *dataset
		s.Dataset = &ds
	}
	sorted := append([]domain.MappingEdge(nil), edges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key.Ordinal < sorted[j].Key.Ordinal })
	for _, edge := range sorted {
		if !schema.Has(edge.Target) || s.IsTargetMapped(edge.Target) {
			continue
		}
		if _, dup := s.edges[edge.Key]; dup {
			continue
		}
		s.edges[edge.Key] = edge
		if edge.Key.Ordinal >= nextOrdinal {
			nextOrdinal = edge.Key.Ordinal + 1
		}
	}
	s.NextOrdinal = nextOrdinal
	return s
}

func (s State) clone() State {
	out := s
	out.edges = make(map[domain.ConnectionKey]domain.MappingEdge, len(s.edges))
	for k, v := range s.edges {
		out.edges[k] = v
	}
	return out
}

// Edges returns live edges in connection order.
func (s State) Edges() []domain.MappingEdge {
	out := make([]domain.MappingEdge, 0, len(s.edges))
	for _, edge := range s.edges {
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Ordinal < out[j].Key.Ordinal })
	return out
}

// Edge looks up the edge for key.
func (s State) Edge(key domain.ConnectionKey) (domain.MappingEdge, bool) {
	edge, ok := s.edges[key]
	return edge, ok
}

// EdgeCount returns the number of live edges.
func (s State) EdgeCount() int {
	return len(s.edges)
}

// IsTargetMapped reports whether target already carries a live edge.
func (s State) IsTargetMapped(target string) bool {
	for _, edge := range s.edges {
		if edge.Target == target {
			return true
		}
	}
	return false
}

// MappedTargets returns the set of targets that carry a live edge.
func (s State) MappedTargets() map[string]struct{} {
	out := make(map[string]struct{}, len(s.edges))
	for _, edge := range s.edges {
		out[edge.Target] = struct{}{}
	}
	return out
}

// SourceColumns returns the loaded dataset's columns, or nil.
func (s State) SourceColumns() []string {
	if s.Dataset == nil {
		return nil
	}
	return s.Dataset.Columns
}

// SelectSource toggles the source selection and commits an edge when a target is selected.
func (s State) SelectSource(column string) State {
	if s.Dataset == nil || !s.Dataset.HasColumn(column) {
		return s
	}
	next := s.clone()
	if next.SelectedSource != nil && *next.SelectedSource == column {
		next.SelectedSource = nil
		return next
	}
	next.SelectedSource = &column
	if next.SelectedTarget != nil {
		next = next.commit(column, *next.SelectedTarget)
	}
	return next
}

// SelectTarget toggles the target selection and commits an edge when a source is selected.
// Targets that already carry an edge are not selectable.
func (s State) SelectTarget(column string) State {
	if !s.Schema.Has(column) {
		return s
	}
	next := s.clone()
	if next.SelectedTarget != nil && *next.SelectedTarget == column {
		next.SelectedTarget = nil
		return next
	}
	if next.IsTargetMapped(column) {
		return s
	}
	next.SelectedTarget = &column
	if next.SelectedSource != nil {
		next = next.commit(*next.SelectedSource, column)
	}
	return next
}

// commit adds the edge and clears selection and search. A target mapped in the meantime
// only clears the selection.
func (s State) commit(source, target string) State {
	if !s.IsTargetMapped(target) {
		key := domain.ConnectionKey{Source: source, Ordinal: s.NextOrdinal}
		s.edges[key] = domain.MappingEdge{Key: key, Target: target}
		s.NextOrdinal++
	}
	s.SelectedSource = nil
	s.SelectedTarget = nil
	s.SourceFilter = ""
	s.TargetFilter = ""
	return s
}

// Disconnect removes the edge and its transform.
func (s State) Disconnect(key domain.ConnectionKey) State {
	if _, ok := s.edges[key]; !ok {
		return s
	}
	next := s.clone()
	delete(next.edges, key)
	return next
}

// SetTransform attaches or replaces the transform of an existing edge. An empty
// expression removes it.
func (s State) SetTransform(key domain.ConnectionKey, expression string) State {
	edge, ok := s.edges[key]
	if !ok {
		return s
	}
	next := s.clone()
	edge.Transform = expression
	next.edges[key] = edge
	return next
}

// LoadDataset replaces the dataset and hard-resets mappings, selection, search and the counter.
// A dataset without columns clears the session.
func (s State) LoadDataset(dataset domain.SourceDataset) State {
	next := NewState(s.Schema)
	if dataset.IsEmpty() {
		return next
	}
	ds := dataset
	next.Dataset = &ds
	return next
}

// SetSchema switches the active target schema. Edges and selection are cleared; the counter
// keeps counting so ordinals are never reused.
func (s State) SetSchema(schema domain.TargetSchema) State {
	next := NewState(schema)
	next.Dataset = s.Dataset
	next.NextOrdinal = s.NextOrdinal
	return next
}

// SetSourceFilter sets the source search string.
func (s State) SetSourceFilter(query string) State {
	next := s.clone()
	next.SourceFilter = query
	return next
}

// SetTargetFilter sets the target search string.
func (s State) SetTargetFilter(query string) State {
	next := s.clone()
	next.TargetFilter = query
	return next
}

// Reset drops the dataset and every edge.
func (s State) Reset() State {
	return NewState(s.Schema)
}
