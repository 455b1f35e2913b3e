// Package transformations evaluates per-mapping value transforms.
//
// Transforms are written in a restricted expression language: the expression sees the cell
// as `value` and a copy of the source row as `row`, and its result replaces the cell.
// JavaScript-style method calls such as value.toUpperCase() are accepted and rewritten to
// registered functions when the expression is compiled.
package transformations

import (
	"fmt"
	"log"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rpattn/colmap/internal/domain"
)

// DefaultCacheSize bounds the number of compiled expressions kept in memory.
const DefaultCacheSize = 256

// Env is the evaluation environment exposed to expressions.
type Env struct {
	Value any            `expr:"value"`
	Row   map[string]any `expr:"row"`
}

type compiled struct {
	program *vm.Program
	err     error
}

// Evaluator compiles and runs transform expressions.
type Evaluator struct {
	cache *lru.Cache[string, compiled]
	logf  func(format string, args ...any)
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithLogger replaces the function used to report per-cell failures.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(e *Evaluator) {
		if logf != nil {
			e.logf = logf
		}
	}
}

// NewEvaluator returns an evaluator caching up to cacheSize compiled expressions.
func NewEvaluator(cacheSize int, opts ...Option) *Evaluator {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, compiled](cacheSize)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	evaluator := &Evaluator{cache: cache, logf: log.Printf}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator
}

// Compile checks expression without running it.
func (e *Evaluator) Compile(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil
	}
	_, err := e.program(expression)
	return err
}

// Evaluate runs expression against value and row. An empty expression returns value unchanged.
// Results that are not a string, number, boolean or nil are flattened with Primitive.
func (e *Evaluator) Evaluate(expression string, value any, row domain.Record) (any, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return value, nil
	}
	program, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, Env{Value: value, Row: row.Clone()})
	if err != nil {
		return nil, fmt.Errorf("run transform: %w", err)
	}
	return Primitive(out), nil
}

// Apply evaluates expression and falls back to the unmodified value when it fails.
// This is the single failure policy used by both preview and export.
func (e *Evaluator) Apply(expression string, value any, row domain.Record) any {
	out, err := e.Evaluate(expression, value, row)
	if err != nil {
		e.logf("[transform] %q failed, keeping original value: %v", expression, err)
		return value
	}
	return out
}

func (e *Evaluator) program(expression string) (*vm.Program, error) {
	if cached, ok := e.cache.Get(expression); ok {
		return cached.program, cached.err
	}
	program, err := expr.Compile(expression, compileOptions()...)
	if err != nil {
		err = fmt.Errorf("compile transform: %w", err)
	}
	e.cache.Add(expression, compiled{program: program, err: err})
	return program, err
}

func compileOptions() []expr.Option {
	opts := []expr.Option{
		expr.Env(Env{}),
		expr.Patch(methodRewriter{}),
	}
	return append(opts, functionOptions()...)
}
