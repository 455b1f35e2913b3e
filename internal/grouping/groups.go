// Package grouping clusters target columns into collapsible families.
package grouping

import (
	"fmt"
	"sort"
	"strconv"
	"unicode"

	"github.com/rpattn/colmap/internal/domain"
)

// minNumberedRun is the smallest accepted numbered group size.
const minNumberedRun = 3

// Grouper detects column groups using a fixed list of named families.
type Grouper struct {
	families []Family
}

// NewGrouper returns a grouper with the given families in priority order.
func NewGrouper(families []Family) *Grouper {
	return &Grouper{families: append([]Family(nil), families...)}
}

// IdentifyGroups groups columns with the default families.
func IdentifyGroups(columns []string) []domain.ColumnGroup {
	return NewGrouper(DefaultFamilies()).Identify(columns)
}

type numberedColumn struct {
	column string
	prefix string
	suffix string
	number int
}

type candidate struct {
	prefix  string
	suffix  string
	members []numberedColumn
}

// Identify classifies columns into named families first and numbered runs second.
func (g *Grouper) Identify(columns []string) []domain.ColumnGroup {
	groups := make([]domain.ColumnGroup, 0)
	claimed := make(map[string]struct{})

	for _, family := range g.families {
		members := family.memberSet()
		var present []string
		for _, column := range columns {
			if _, ok := members[column]; !ok {
				continue
			}
			if _, taken := claimed[column]; taken {
				continue
			}
			present = append(present, column)
		}
		if len(present) == 0 {
			continue
		}
		for _, column := range present {
			claimed[column] = struct{}{}
		}
		groups = append(groups, domain.ColumnGroup{
			Name:    family.Name,
			Kind:    domain.GroupKindNamed,
			Columns: present,
		})
	}

	// Candidates keep first-appearance order so output never depends on map iteration.
	var order []string
	candidates := make(map[string]*candidate)
	for _, column := range columns {
		if _, taken := claimed[column]; taken {
			continue
		}
		parsed, ok := parseNumbered(column)
		if !ok {
			continue
		}
		key := parsed.prefix + "\x00" + parsed.suffix
		c, exists := candidates[key]
		if !exists {
			c = &candidate{prefix: parsed.prefix, suffix: parsed.suffix}
			candidates[key] = c
			order = append(order, key)
		}
		c.members = append(c.members, parsed)
	}

	for _, key := range order {
		c := candidates[key]
		if len(c.members) < minNumberedRun {
			continue
		}
		members := append([]numberedColumn(nil), c.members...)
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].number < members[j].number
		})
		if !isContiguous(members, c.prefix, c.suffix) {
			continue
		}
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = m.column
		}
		first, last := members[0], members[len(members)-1]
		groups = append(groups, domain.ColumnGroup{
			Name:    fmt.Sprintf("%s%s → %s%s", c.prefix, digitsOf(first.column, first.prefix), digitsOf(last.column, last.prefix), c.suffix),
			Kind:    domain.GroupKindNumbered,
			Columns: names,
		})
	}

	return groups
}

// parseNumbered splits column into the non-digit prefix, the first digit run and the rest.
func parseNumbered(column string) (numberedColumn, bool) {
	runes := []rune(column)
	start := -1
	for i, r := range runes {
		if isASCIIDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return numberedColumn{}, false
	}
	end := start
	for end < len(runes) && isASCIIDigit(runes[end]) {
		end++
	}
	number, err := strconv.Atoi(string(runes[start:end]))
	if err != nil {
		return numberedColumn{}, false
	}
	return numberedColumn{
		column: column,
		prefix: string(runes[:start]),
		suffix: string(runes[end:]),
		number: number,
	}, true
}

func isASCIIDigit(r rune) bool {
	return r <= unicode.MaxASCII && r >= '0' && r <= '9'
}

// isContiguous re-parses every member and checks the run steps by exactly one.
func isContiguous(members []numberedColumn, prefix, suffix string) bool {
	for i, m := range members {
		parsed, ok := parseNumbered(m.column)
		if !ok || parsed.prefix != prefix || parsed.suffix != suffix {
			return false
		}
		if i > 0 && parsed.number != members[i-1].number+1 {
			return false
		}
	}
	return true
}

// digitsOf returns the digit run as written, so zero padding survives in group names.
func digitsOf(column, prefix string) string {
	rest := []rune(column)[len([]rune(prefix)):]
	end := 0
	for end < len(rest) && isASCIIDigit(rest[end]) {
		end++
	}
	return string(rest[:end])
}
