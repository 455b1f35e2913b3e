// Package session persists the durable part of a mapping session: edges, transforms,
// the loaded dataset and the connection counter. Selection and search are never stored.
package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/mapping"
)

// EdgeEntry is one persisted edge.
type EdgeEntry struct {
	Source  string `json:"source"`
	Ordinal int    `json:"ordinal"`
	Target  string `json:"target"`
}

// TransformEntry is one persisted transform, keyed like its edge.
type TransformEntry struct {
	Source     string `json:"source"`
	Ordinal    int    `json:"ordinal"`
	Expression string `json:"expression"`
}

// Snapshot is the serialized session.
type Snapshot struct {
	Edges             []EdgeEntry        `json:"edges"`
	Transforms        []TransformEntry   `json:"transforms"`
	SourceColumns     []string           `json:"sourceColumns"`
	SourceData        []domain.Record    `json:"sourceData"`
	ConnectionCounter int                `json:"connectionCounter"`
	Provenance        *domain.Provenance `json:"provenance,omitempty"`
	Schema            string             `json:"schema,omitempty"`
}

// legacySnapshot accepts blobs written with string connection keys ("Name_3").
type legacySnapshot struct {
	Snapshot
	Mapping          map[string]string `json:"mapping"`
	ColumnTransforms map[string]string `json:"columnTransforms"`
}

// FromState captures the durable part of state.
func FromState(state mapping.State) Snapshot {
	snap := Snapshot{
		Edges:             []EdgeEntry{},
		Transforms:        []TransformEntry{},
		SourceColumns:     []string{},
		SourceData:        []domain.Record{},
		ConnectionCounter: state.NextOrdinal,
		Schema:            state.Schema.Name,
	}
	for _, edge := range state.Edges() {
		snap.Edges = append(snap.Edges, EdgeEntry{
			Source:  edge.Key.Source,
			Ordinal: edge.Key.Ordinal,
			Target:  edge.Target,
		})
		if edge.HasTransform() {
			snap.Transforms = append(snap.Transforms, TransformEntry{
				Source:     edge.Key.Source,
				Ordinal:    edge.Key.Ordinal,
				Expression: edge.Transform,
			})
		}
	}
	if state.Dataset != nil {
		snap.SourceColumns = append(snap.SourceColumns, state.Dataset.Columns...)
		snap.SourceData = append(snap.SourceData, state.Dataset.Rows...)
		provenance := state.Dataset.Provenance
		snap.Provenance = &provenance
	}
	return snap
}

// IsEmpty reports whether the snapshot holds neither columns nor edges.
func (s Snapshot) IsEmpty() bool {
	return len(s.SourceColumns) == 0 && len(s.Edges) == 0
}

// MappingEdges rebuilds edges with their transforms attached.
func (s Snapshot) MappingEdges() []domain.MappingEdge {
	transforms := make(map[domain.ConnectionKey]string, len(s.Transforms))
	for _, t := range s.Transforms {
		transforms[domain.ConnectionKey{Source: t.Source, Ordinal: t.Ordinal}] = t.Expression
	}
	edges := make([]domain.MappingEdge, 0, len(s.Edges))
	for _, e := range s.Edges {
		key := domain.ConnectionKey{Source: e.Source, Ordinal: e.Ordinal}
		edges = append(edges, domain.MappingEdge{Key: key, Target: e.Target, Transform: transforms[key]})
	}
	return edges
}

// State restores a mapping state. The stored schema name wins over fallback when it names a
// built-in schema.
func (s Snapshot) State(fallback domain.TargetSchema) (mapping.State, error) {
	schema := fallback
	if builtin, ok := domain.BuiltinSchema(s.Schema); ok {
		schema = builtin
	}

	var dataset *domain.SourceDataset
	if len(s.SourceColumns) > 0 {
		var provenance domain.Provenance
		if s.Provenance != nil {
			provenance = *s.Provenance
		}
		ds, err := domain.NewSourceDataset(s.SourceColumns, s.SourceData, provenance)
		if err != nil {
			return mapping.State{}, fmt.Errorf("restore dataset: %w", err)
		}
		dataset = &ds
	}
	return mapping.Restore(schema, dataset, s.MappingEdges(), s.ConnectionCounter), nil
}

// Encode serializes the snapshot.
func Encode(s Snapshot) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session snapshot: %w", err)
	}
	return string(data), nil
}

// Decode parses a stored blob in the current or the legacy layout.
func Decode(blob string) (Snapshot, error) {
	var raw legacySnapshot
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return Snapshot{}, fmt.Errorf("decode session snapshot: %w", err)
	}
	snap := raw.Snapshot
	if len(snap.Edges) == 0 && len(raw.Mapping) > 0 {
		snap.Edges, snap.Transforms = fromLegacy(raw.Mapping, raw.ColumnTransforms)
	}
	return snap, nil
}

func fromLegacy(mappingByKey, transformsByKey map[string]string) ([]EdgeEntry, []TransformEntry) {
	edges := make([]EdgeEntry, 0, len(mappingByKey))
	for key, target := range mappingByKey {
		source, ordinal, ok := splitLegacyKey(key)
		if !ok {
			continue
		}
		edges = append(edges, EdgeEntry{Source: source, Ordinal: ordinal, Target: target})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Ordinal < edges[j].Ordinal })

	transforms := make([]TransformEntry, 0, len(transformsByKey))
	for key, expression := range transformsByKey {
		source, ordinal, ok := splitLegacyKey(key)
		if !ok || strings.TrimSpace(expression) == "" {
			continue
		}
		transforms = append(transforms, TransformEntry{Source: source, Ordinal: ordinal, Expression: expression})
	}
	sort.Slice(transforms, func(i, j int) bool { return transforms[i].Ordinal < transforms[j].Ordinal })
	return edges, transforms
}

// splitLegacyKey splits at the last underscore, since source labels may contain underscores.
func splitLegacyKey(key string) (string, int, bool) {
	idx := strings.LastIndex(key, "_")
	if idx <= 0 || idx == len(key)-1 {
		return "", 0, false
	}
	ordinal, err := strconv.Atoi(key[idx+1:])
	if err != nil || ordinal < 0 {
		return "", 0, false
	}
	return key[:idx], ordinal, true
}
