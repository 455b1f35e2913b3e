// Package profile saves a session's mappings as a reusable YAML profile and applies a
// profile to a freshly loaded dataset.
package profile

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/mapping"
)

// Profile is a named, ordered list of mappings.
type Profile struct {
	Name     string    `yaml:"name,omitempty" json:"name,omitempty"`
	Schema   string    `yaml:"schema" json:"schema"`
	Mappings []Mapping `yaml:"mappings" json:"mappings"`
}

// Mapping connects one source label to one target column.
type Mapping struct {
	Source    string `yaml:"source" json:"source"`
	Target    string `yaml:"target" json:"target"`
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// Skipped explains why a mapping was not applied.
type Skipped struct {
	Mapping Mapping `json:"mapping"`
	Reason  string  `json:"reason"`
}

// Report lists what Apply did.
type Report struct {
	Applied  int       `json:"applied"`
	Skipped  []Skipped `json:"skipped"`
	Warnings []string  `json:"warnings"`
}

// Compiler checks transform expressions.
type Compiler interface {
	Compile(expression string) error
}

// FromState captures the live edges of state in connection order.
func FromState(name string, state mapping.State) Profile {
	p := Profile{Name: name, Schema: state.Schema.Name, Mappings: []Mapping{}}
	for _, edge := range state.Edges() {
		p.Mappings = append(p.Mappings, Mapping{
			Source:    edge.Key.Source,
			Target:    edge.Target,
			Transform: edge.Transform,
		})
	}
	return p
}

// Marshal renders p as YAML.
func Marshal(p Profile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse reads a YAML profile. Unknown fields are rejected so typos do not silently drop
// mappings.
func Parse(data []byte) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	for i, m := range p.Mappings {
		if strings.TrimSpace(m.Source) == "" || strings.TrimSpace(m.Target) == "" {
			return Profile{}, fmt.Errorf("mapping %d: source and target are required", i+1)
		}
	}
	return p, nil
}

// Apply connects every applicable mapping of p on top of state using the regular
// transitions, so target injectivity and ordinal bookkeeping hold. When p names a
// built-in schema other than the active one, the schema is switched first.
func Apply(state mapping.State, p Profile, compiler Compiler) (mapping.State, Report) {
	report := Report{Skipped: []Skipped{}, Warnings: []string{}}

	if schema, ok := domain.BuiltinSchema(p.Schema); ok && schema.Name != state.Schema.Name {
		state = state.SetSchema(schema)
	} else if !ok && p.Schema != "" {
		report.Warnings = append(report.Warnings, fmt.Sprintf("unknown schema %q, using %q", p.Schema, state.Schema.Name))
	}

	state = clearSelection(state)
	for _, m := range p.Mappings {
		switch {
		case state.Dataset == nil || !state.Dataset.HasColumn(m.Source):
			report.Skipped = append(report.Skipped, Skipped{Mapping: m, Reason: "source column not in dataset"})
			continue
		case !state.Schema.Has(m.Target):
			report.Skipped = append(report.Skipped, Skipped{Mapping: m, Reason: "target column not in schema"})
			continue
		case state.IsTargetMapped(m.Target):
			report.Skipped = append(report.Skipped, Skipped{Mapping: m, Reason: "target already mapped"})
			continue
		}

		key := domain.ConnectionKey{Source: m.Source, Ordinal: state.NextOrdinal}
		state = state.SelectSource(m.Source).SelectTarget(m.Target)
		if strings.TrimSpace(m.Transform) != "" {
			if compiler != nil {
				if err := compiler.Compile(m.Transform); err != nil {
					report.Warnings = append(report.Warnings, fmt.Sprintf("%s → %s: %v", m.Source, m.Target, err))
				}
			}
			state = state.SetTransform(key, m.Transform)
		}
		report.Applied++
	}
	return state, report
}

func clearSelection(state mapping.State) mapping.State {
	if state.SelectedSource != nil {
		state = state.SelectSource(*state.SelectedSource)
	}
	if state.SelectedTarget != nil {
		state = state.SelectTarget(*state.SelectedTarget)
	}
	return state
}
