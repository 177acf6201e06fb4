package match

import "github.com/rr-wellmatch/internal/dataset"

type groupKey struct {
	missing bool
	text    string
}

// GroupIndex groups the rows of a table by the value of one column.
type GroupIndex struct {
	groups []group
}

type group struct {
	key  groupKey
	rows []int
}

// NewGroupIndex indexes t by column. Groups appear in first-seen order.
func NewGroupIndex(t *dataset.Table, column string) *GroupIndex {
	idx := &GroupIndex{}
	pos := make(map[groupKey]int)
	for i := range t.Rows {
		v := t.Value(i, column)
		k := groupKey{missing: v == nil}
		if v != nil {
			k.text = dataset.Format(v)
		}
		g, ok := pos[k]
		if !ok {
			g = len(idx.groups)
			pos[k] = g
			idx.groups = append(idx.groups, group{key: k})
		}
		idx.groups[g].rows = append(idx.groups[g].rows, i)
	}
	return idx
}

// Len is the number of distinct values.
func (g *GroupIndex) Len() int {
	return len(g.groups)
}

// Rows lists the rows of the n-th group in table order.
func (g *GroupIndex) Rows(n int) []int {
	return g.groups[n].rows
}
