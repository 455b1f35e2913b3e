package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesIgnoresCase(t *testing.T) {
	assert.True(t, Matches("Netto Verkoopprijs 1", "verkoop"))
	assert.True(t, Matches("anything", "  "))
	assert.False(t, Matches("Barcode", "prijs"))
}

func TestFilterColumnsHidesMapped(t *testing.T) {
	columns := []string{"firstname", "lastname", "email"}
	hidden := map[string]struct{}{"lastname": {}}

	assert.Equal(t, []string{"firstname"}, FilterColumns(columns, "NAME", hidden))
	assert.Equal(t, []string{"firstname", "email"}, FilterColumns(columns, "", hidden))
}

func TestArrangeKeepsGroupIdentityWhileFiltering(t *testing.T) {
	all := []string{"Omschrijving", "ev-num-1", "ev-num-2", "ev-num-3", "email"}
	groups := IdentifyGroups(all)
	require.Len(t, groups, 1)

	visible := FilterColumns(all, "num-2", nil)
	entries := Arrange(all, groups, visible)

	require.Len(t, entries, 1)
	require.True(t, entries[0].IsGroup())
	assert.Equal(t, "ev-num-1 → 3", entries[0].Group.Name)
	assert.Equal(t, []string{"ev-num-2"}, entries[0].Group.Columns)
	// The source group must not be narrowed by the visibility pass.
	assert.Len(t, groups[0].Columns, 3)
}

func TestArrangeOmitsFullyHiddenGroups(t *testing.T) {
	all := []string{"a1", "a2", "a3", "b"}
	groups := IdentifyGroups(all)
	hidden := map[string]struct{}{"a1": {}, "a2": {}, "a3": {}}

	entries := Arrange(all, groups, FilterColumns(all, "", hidden))

	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Column)
}

func TestArrangePositionsGroupAtFirstMember(t *testing.T) {
	all := []string{"x", "p1", "y", "p2", "p3"}
	groups := IdentifyGroups(all)

	entries := Arrange(all, groups, all)

	require.Len(t, entries, 3)
	assert.Equal(t, "x", entries[0].Column)
	assert.True(t, entries[1].IsGroup())
	assert.Equal(t, "y", entries[2].Column)
}
