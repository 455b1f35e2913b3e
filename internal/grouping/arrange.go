package grouping

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/rpattn/colmap/internal/domain"
)

// Entry is one row of a rendered column list: either a single column or a group.
type Entry struct {
	Column string              `json:"column,omitempty"`
	Group  *domain.ColumnGroup `json:"group,omitempty"`
}

// IsGroup reports whether the entry renders a group.
func (e Entry) IsGroup() bool {
	return e.Group != nil
}

// Matches reports whether column contains query, ignoring case. An empty query matches everything.
func Matches(column, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	folder := cases.Fold()
	return strings.Contains(folder.String(column), folder.String(query))
}

// FilterColumns keeps the columns that match query and are not hidden, preserving order.
func FilterColumns(columns []string, query string, hidden map[string]struct{}) []string {
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		if _, skip := hidden[column]; skip {
			continue
		}
		if !Matches(column, query) {
			continue
		}
		out = append(out, column)
	}
	return out
}

// Arrange places groups computed from the full column list over the visible subset.
// Grouping never sees the filter, so group names and membership stay stable while searching.
func Arrange(all []string, groups []domain.ColumnGroup, visible []string) []Entry {
	visibleSet := make(map[string]struct{}, len(visible))
	for _, column := range visible {
		visibleSet[column] = struct{}{}
	}

	owner := make(map[string]int)
	for gi, group := range groups {
		for _, column := range group.Columns {
			owner[column] = gi
		}
	}

	emitted := make(map[int]bool, len(groups))
	entries := make([]Entry, 0, len(visible))
	for _, column := range all {
		if _, ok := visibleSet[column]; !ok {
			continue
		}
		gi, grouped := owner[column]
		if !grouped {
			entries = append(entries, Entry{Column: column})
			continue
		}
		if emitted[gi] {
			continue
		}
		emitted[gi] = true

		group := groups[gi]
		members := make([]string, 0, len(group.Columns))
		for _, member := range group.Columns {
			if _, ok := visibleSet[member]; ok {
				members = append(members, member)
			}
		}
		entries = append(entries, Entry{Group: &domain.ColumnGroup{
			Name:    group.Name,
			Kind:    group.Kind,
			Columns: members,
		}})
	}
	return entries
}
