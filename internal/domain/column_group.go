package domain

// GroupKind distinguishes predefined families from detected numbered runs.
type GroupKind string

const (
	GroupKindNamed    GroupKind = "NAMED"
	GroupKindNumbered GroupKind = "NUMBERED"
)

// ColumnGroup is a presentation cluster of target columns.
type ColumnGroup struct {
	Name    string    `json:"name"`
	Kind    GroupKind `json:"kind"`
	Columns []string  `json:"columns"`
}

// Contains reports whether column is a member of the group.
func (g ColumnGroup) Contains(column string) bool {
	for _, c := range g.Columns {
		if c == column {
			return true
		}
	}
	return false
}
