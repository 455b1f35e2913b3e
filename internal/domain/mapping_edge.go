package domain

import "fmt"

// ConnectionKey identifies one edge: the source column plus the ordinal it was created with.
type ConnectionKey struct {
	Source  string `json:"source"`
	Ordinal int    `json:"ordinal"`
}

func (k ConnectionKey) String() string {
	return fmt.Sprintf("%s#%d", k.Source, k.Ordinal)
}

// MappingEdge connects a source column occurrence to a target column.
type MappingEdge struct {
	Key       ConnectionKey `json:"key"`
	Target    string        `json:"target"`
	Transform string        `json:"transform,omitempty"`
}

// HasTransform reports whether a non-empty transform expression is attached.
func (e MappingEdge) HasTransform() bool {
	return e.Transform != ""
}
