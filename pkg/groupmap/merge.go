package groupmap

import (
	"strings"

	"github.com/platinummonkey/prism/pkg/version"
)

// MergeGroups merges groups with identical requirement sets. Output order is
// the order of first appearance; each runtime keeps the highest version seen,
// so merging never lowers a recorded version.
func MergeGroups(groups ...Group) []Group {
	index := make(map[string]int, len(groups))
	merged := make([]Group, 0, len(groups))
	for _, g := range groups {
		features := dedupeSorted(g.RequiredFeatures)
		key := strings.Join(features, "\x00")
		i, ok := index[key]
		if !ok {
			i = len(merged)
			index[key] = i
			merged = append(merged, Group{
				RequiredFeatures: features,
				RuntimeCompatMap: map[string]string{},
			})
		}
		for name, v := range g.RuntimeCompatMap {
			merged[i].RuntimeCompatMap[name] = version.Highest(merged[i].RuntimeCompatMap[name], v)
		}
	}
	return merged
}

// Groups returns the groups of m in order.
func (m *GroupMap) Groups() []Group {
	groups := make([]Group, len(m.entries))
	for i, e := range m.entries {
		groups[i] = e.Group.clone()
	}
	return groups
}
