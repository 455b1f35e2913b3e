package materialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/transformations"
)

func klanten(t *testing.T) domain.TargetSchema {
	t.Helper()
	schema, ok := domain.BuiltinSchema(domain.SchemaKlanten)
	require.True(t, ok)
	return schema
}

func people(t *testing.T) domain.SourceDataset {
	t.Helper()
	ds, err := domain.NewSourceDataset(
		[]string{"Name", "Mail", "Town"},
		[]domain.Record{
			{"Name": "abc", "Mail": "a@example.com", "Town": "Gent"},
			{"Name": "def", "Town": "Brugge"},
		},
		domain.Provenance{FileName: "people.csv", TotalRows: 2},
	)
	require.NoError(t, err)
	return ds
}

func edge(source string, ordinal int, target, transform string) domain.MappingEdge {
	return domain.MappingEdge{
		Key:       domain.ConnectionKey{Source: source, Ordinal: ordinal},
		Target:    target,
		Transform: transform,
	}
}

func quietEvaluator() *transformations.Evaluator {
	return transformations.NewEvaluator(0, transformations.WithLogger(func(string, ...any) {}))
}

func TestMaterializeKeepsConnectionOrder(t *testing.T) {
	edges := []domain.MappingEdge{
		edge("Town", 0, "city", ""),
		edge("Name", 1, "firstname", ""),
		edge("Mail", 2, "email", ""),
	}

	records := Materialize(people(t), edges, klanten(t), quietEvaluator())

	require.Len(t, records, 2)
	assert.Equal(t, []string{"city", "firstname", "email"}, Header(records))
	assert.Equal(t, "Gent", records[0].Values["city"])
	assert.Equal(t, "", records[1].Values["email"])
	assert.NotContains(t, records[0].Values, "lastname")
}

func TestMaterializeFanOut(t *testing.T) {
	edges := []domain.MappingEdge{
		edge("Name", 0, "firstname", ""),
		edge("Name", 1, "lastname", "value.toUpperCase()"),
	}

	records := Materialize(people(t), edges, klanten(t), quietEvaluator())

	assert.Equal(t, "abc", records[0].Values["firstname"])
	assert.Equal(t, "ABC", records[0].Values["lastname"])
}

func TestMaterializeInvalidTransformKeepsOriginal(t *testing.T) {
	edges := []domain.MappingEdge{edge("Name", 0, "firstname", "value.")}

	records := Materialize(people(t), edges, klanten(t), quietEvaluator())

	assert.Equal(t, "abc", records[0].Values["firstname"])
	assert.Equal(t, "def", records[1].Values["firstname"])
}

func TestMaterializeSkipsTargetsOutsideSchema(t *testing.T) {
	edges := []domain.MappingEdge{
		edge("Name", 0, "Omschrijving", ""),
		edge("Name", 1, "firstname", ""),
	}

	records := Materialize(people(t), edges, klanten(t), nil)

	assert.Equal(t, []string{"firstname"}, Header(records))
	assert.Equal(t, []string{"firstname"}, HeaderFor(edges, klanten(t)))
}

func TestMaterializeEmptyDataset(t *testing.T) {
	records := Materialize(domain.SourceDataset{}, []domain.MappingEdge{edge("Name", 0, "firstname", "")}, klanten(t), nil)

	assert.Empty(t, records)
	assert.Nil(t, Header(records))
}

func TestPreviewReportsErrorsWithOriginalValue(t *testing.T) {
	evaluator := quietEvaluator()

	ok := Preview(people(t), "Name", "value.toUpperCase()", evaluator, 0)
	require.Len(t, ok, 2)
	assert.Equal(t, PreviewRow{Original: "abc", Result: "ABC"}, ok[0])

	failed := Preview(people(t), "Name", "value.", evaluator, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "abc", failed[0].Result)
	assert.NotEmpty(t, failed[0].Error)
}

func TestMaterializeFlattensListResults(t *testing.T) {
	ds, err := domain.NewSourceDataset(
		[]string{"Name"},
		[]domain.Record{{"Name": "John Doe"}},
		domain.Provenance{FileName: "people.csv", TotalRows: 1},
	)
	require.NoError(t, err)

	records := Materialize(ds, []domain.MappingEdge{edge("Name", 0, "firstname", "value.split(' ')")}, klanten(t), quietEvaluator())

	require.Len(t, records, 1)
	assert.Equal(t, "John,Doe", records[0].Values["firstname"])
}
