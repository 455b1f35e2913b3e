package mapping

import (
	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/grouping"
)

// VisibleSources returns source columns matching the source search.
func (s State) VisibleSources() []string {
	return grouping.FilterColumns(s.SourceColumns(), s.SourceFilter, nil)
}

// SelectableTargets returns target columns matching the target search that carry no edge.
func (s State) SelectableTargets() []string {
	return grouping.FilterColumns(s.Schema.Columns, s.TargetFilter, s.MappedTargets())
}

// TargetGroups groups the full, unfiltered target column list.
func (s State) TargetGroups() []domain.ColumnGroup {
	return grouping.IdentifyGroups(s.Schema.Columns)
}

// TargetEntries lays the selectable targets out under their groups.
func (s State) TargetEntries() []grouping.Entry {
	return grouping.Arrange(s.Schema.Columns, s.TargetGroups(), s.SelectableTargets())
}
