package groupmap

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Well-known group ids
const (
	// BestID labels the highest scoring group
	BestID = "best"
	// FallbackID labels the group carrying every feature
	FallbackID = "fallback"
	// intermediatePrefix labels groups ranked after best
	intermediatePrefix = "intermediate-"
)

// CompatibilityTable maps feature -> runtime name -> minimum version at which
// the feature is natively supported. A missing runtime (or version.Infinity)
// means the feature is never native on that runtime.
type CompatibilityTable map[string]map[string]string

// RuntimeTarget is one deployment target the build must serve.
type RuntimeTarget struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

func (t RuntimeTarget) String() string {
	return t.Name + "@" + t.Version
}

// ScoreTable weights runtime targets when ranking groups.
//
// Lookup order for (name, version): Runtimes[name][version], then
// Runtimes[name]["other"], then Other.
type ScoreTable struct {
	Other    float64                       `json:"other,omitempty" yaml:"other"`
	Runtimes map[string]map[string]float64 `json:"runtimes,omitempty" yaml:"runtimes"`
}

// OtherKey is the per-runtime fallback weight key inside ScoreTable.Runtimes.
const OtherKey = "other"

// Group is one output variant.
type Group struct {
	// RequiredFeatures is deduplicated and sorted
	RequiredFeatures []string `json:"requiredFeatures"`
	// RuntimeCompatMap maps runtime name to the highest version assigned
	RuntimeCompatMap map[string]string `json:"runtimeCompatMap"`
}

// Requires reports whether the group transforms feature.
func (g Group) Requires(feature string) bool {
	i := sort.SearchStrings(g.RequiredFeatures, feature)
	return i < len(g.RequiredFeatures) && g.RequiredFeatures[i] == feature
}

func (g Group) clone() Group {
	c := Group{
		RequiredFeatures: append([]string{}, g.RequiredFeatures...),
		RuntimeCompatMap: make(map[string]string, len(g.RuntimeCompatMap)),
	}
	for k, v := range g.RuntimeCompatMap {
		c.RuntimeCompatMap[k] = v
	}
	return c
}

// Entry pairs a group id with its group.
type Entry struct {
	ID    string
	Group Group
}

// GroupMap is an ordered mapping of group id to Group.
type GroupMap struct {
	entries []Entry
}

// Len returns the number of groups.
func (m *GroupMap) Len() int {
	return len(m.entries)
}

// IDs returns group ids in order.
func (m *GroupMap) IDs() []string {
	ids := make([]string, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.ID
	}
	return ids
}

// Entries returns a copy of the ordered entries.
func (m *GroupMap) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = Entry{ID: e.ID, Group: e.Group.clone()}
	}
	return out
}

// Get returns the group for id. BestID always resolves: when no group is
// labeled best, it aliases the first group (the fallback in the degenerate
// cases).
func (m *GroupMap) Get(id string) (Group, bool) {
	for _, e := range m.entries {
		if e.ID == id {
			return e.Group.clone(), true
		}
	}
	if id == BestID && len(m.entries) > 0 {
		return m.entries[0].Group.clone(), true
	}
	return Group{}, false
}

// Best returns the first group. In the single-group degenerate case that is
// the fallback group.
func (m *GroupMap) Best() (Entry, bool) {
	if len(m.entries) == 0 {
		return Entry{}, false
	}
	e := m.entries[0]
	return Entry{ID: e.ID, Group: e.Group.clone()}, true
}

// HasFallback reports whether a fallback group is present.
func (m *GroupMap) HasFallback() bool {
	_, ok := m.Get(FallbackID)
	return ok
}

// MarshalJSON encodes the map as a JSON object preserving group order.
func (m *GroupMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		id, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		g, err := json.Marshal(e.Group)
		if err != nil {
			return nil, err
		}
		buf.Write(id)
		buf.WriteByte(':')
		buf.Write(g)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
