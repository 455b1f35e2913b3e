package transformations

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/colmap/internal/domain"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *[]string) {
	t.Helper()
	var logged []string
	evaluator := NewEvaluator(16, WithLogger(func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}))
	return evaluator, &logged
}

func TestEvaluateMethodCalls(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	row := domain.Record{"Name": "Ada", "Last": "Lovelace", "Price": "10"}

	cases := []struct {
		expression string
		value      any
		want       any
	}{
		{"value.toUpperCase()", "abc", "ABC"},
		{"value.trim().toLowerCase()", "  MiXeD ", "mixed"},
		{`value.replace("a", "o")`, "banana", "bonana"},
		{`value.replaceAll("a", "o")`, "banana", "bonono"},
		{"value.slice(-2)", "abcdef", "ef"},
		{"value.substring(4, 1)", "abcdef", "bcd"},
		{`value.padStart(5, "0")`, "42", "00042"},
		{"value.length", "abcd", 4},
		{`value.startsWith("ab")`, "abc", true},
		{`value.charAt(1)`, "xyz", "y"},
		{`value.indexOf("c")`, "abc", 2},
		{`row["Name"] + " " + row.Last`, "", "Ada Lovelace"},
		{`value == "" ? "n/a" : value`, "", "n/a"},
		{"Number(value) * 2", "10", float64(20)},
		{"Math.round(Number(row.Price) * 1.21)", "", float64(12)},
		{"Number(value).toFixed(2)", "3.14159", "3.14"},
		{"parseInt(value)", "42px", float64(42)},
		{"parseFloat(value)", "3.5 kg", 3.5},
		{"String(value) + \"!\"", 7, "7!"},
	}

	for _, tc := range cases {
		t.Run(tc.expression, func(t *testing.T) {
			got, err := evaluator.Evaluate(tc.expression, tc.value, row)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateEmptyExpressionReturnsValue(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	got, err := evaluator.Evaluate("   ", "keep", nil)

	require.NoError(t, err)
	assert.Equal(t, "keep", got)
}

func TestEvaluateRejectsMalformedExpressions(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	for _, expression := range []string{"value.", "value +", "unknownFn(value)", "value.toFixed(2)"} {
		_, err := evaluator.Evaluate(expression, "abc", domain.Record{})
		assert.Error(t, err, expression)
	}
}

func TestApplyFallsBackToOriginalValue(t *testing.T) {
	evaluator, logged := newTestEvaluator(t)

	assert.Equal(t, "ABC", evaluator.Apply("value.toUpperCase()", "abc", domain.Record{}))
	assert.Equal(t, "abc", evaluator.Apply("value.", "abc", domain.Record{}))
	assert.Len(t, *logged, 1)
}

func TestEvaluateFlattensNonPrimitiveResults(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	got, err := evaluator.Evaluate("value.split(' ')", "John Doe", domain.Record{})
	require.NoError(t, err)
	assert.Equal(t, "John,Doe", got)

	got, err = evaluator.Evaluate("value.length", "John", domain.Record{})
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestCompileCachesFailures(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	first := evaluator.Compile("value.")
	second := evaluator.Compile("value.")

	require.Error(t, first)
	assert.Equal(t, first, second)
	assert.NoError(t, evaluator.Compile(""))
	assert.Equal(t, 1, evaluator.cache.Len())
}

func TestEvaluateDoesNotExposeDatasetRow(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	row := domain.Record{"a": "1"}

	_, err := evaluator.Evaluate(`row.a + "x"`, "", row)

	require.NoError(t, err)
	assert.Equal(t, domain.Record{"a": "1"}, row)
}

func TestNumberConversion(t *testing.T) {
	assert.Equal(t, float64(0), jsNumber(""))
	assert.Equal(t, 1.5, jsNumber(" 1.5 "))
	assert.True(t, math.IsNaN(jsNumber("abc")))
	assert.Equal(t, "3", jsString(3.0))
	assert.Equal(t, "a,b", jsString([]any{"a", "b"}))
}
