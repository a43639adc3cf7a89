package groupmap

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/version"
)

// PlannerConfig holds every input of the group planner.
type PlannerConfig struct {
	// Features lists every feature the source material might need
	Features []string `yaml:"features"`
	// Compat is the feature compatibility table
	Compat CompatibilityTable `yaml:"compat"`
	// Targets is the support matrix
	Targets []RuntimeTarget `yaml:"targets"`
	// GroupCount is the desired number of groups (>= 1)
	GroupCount int `yaml:"groupCount"`
	// Scores weights targets when ranking groups
	Scores ScoreTable `yaml:"scores"`

	// SupportMatrixExhaustive claims no runtime outside Targets is served
	SupportMatrixExhaustive bool `yaml:"supportMatrixExhaustive"`
	// RuntimeAlwaysIdentifiable claims every request maps to a known runtime
	RuntimeAlwaysIdentifiable bool `yaml:"runtimeAlwaysIdentifiable"`
}

// candidate is a provisional group with the targets merged into it.
type candidate struct {
	group   Group
	members []RuntimeTarget
	score   float64
}

// Plan computes the GroupMap for cfg.
//
// Plan is a pure function: identical configs produce identical, identically
// ordered output regardless of the order of Features or Targets.
func Plan(cfg *PlannerConfig) (*GroupMap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	features := dedupeSorted(cfg.Features)
	fallback := Group{
		RequiredFeatures: append([]string{}, features...),
		RuntimeCompatMap: map[string]string{},
	}

	targets := normalizeTargets(cfg.Targets)
	if len(targets) == 0 || (cfg.GroupCount == 1 && !cfg.SupportMatrixExhaustive) {
		return &GroupMap{entries: []Entry{{ID: FallbackID, Group: fallback}}}, nil
	}

	candidates := bucket(features, cfg.Compat, targets)
	for _, c := range candidates {
		c.score = scoreOf(cfg.Scores, c.members)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return rankBefore(candidates[i], candidates[j])
	})

	if cfg.GroupCount == 1 {
		return &GroupMap{entries: []Entry{{ID: BestID, Group: mostTransforms(candidates)}}}, nil
	}

	reserveFallback := !(cfg.SupportMatrixExhaustive && cfg.RuntimeAlwaysIdentifiable)
	pool := candidates
	take := cfg.GroupCount
	if reserveFallback {
		take--
		// groups needing every feature are already served by fallback
		pool = make([]*candidate, 0, len(candidates))
		for _, c := range candidates {
			if len(c.group.RequiredFeatures) != len(features) {
				pool = append(pool, c)
			}
		}
	}
	if take > len(pool) {
		take = len(pool)
	}

	entries := make([]Entry, 0, take+1)
	for i, c := range pool[:take] {
		entries = append(entries, Entry{ID: groupID(i), Group: c.group})
	}
	if reserveFallback {
		entries = append(entries, Entry{ID: FallbackID, Group: fallback})
	}
	return &GroupMap{entries: entries}, nil
}

// Validate checks the shape of the planner inputs.
func (cfg *PlannerConfig) Validate() error {
	if cfg == nil {
		return errdefs.Validation("config", "planner config is required")
	}
	if cfg.GroupCount < 1 {
		return errdefs.Validation("groupCount", "must be >= 1, got %d", cfg.GroupCount)
	}
	for i, f := range cfg.Features {
		if strings.TrimSpace(f) == "" {
			return errdefs.Validation(fmt.Sprintf("features[%d]", i), "feature name is empty")
		}
	}
	for feature, runtimes := range cfg.Compat {
		if feature == "" {
			return errdefs.Validation("compat", "feature name is empty")
		}
		for runtime, v := range runtimes {
			if runtime == "" {
				return errdefs.Validation("compat."+feature, "runtime name is empty")
			}
			if err := version.Validate(v); err != nil {
				return errdefs.Validation("compat."+feature+"."+runtime, "%v", err)
			}
		}
	}
	for i, t := range cfg.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		if t.Name == "" {
			return errdefs.Validation(field, "runtime name is empty")
		}
		if version.IsInfinity(t.Version) {
			return errdefs.Validation(field, "target version cannot be %s", version.Infinity)
		}
		if err := version.Validate(t.Version); err != nil {
			return errdefs.Validation(field, "%v", err)
		}
	}
	if !isFinite(cfg.Scores.Other) {
		return errdefs.Validation("scores.other", "weight must be finite")
	}
	for runtime, versions := range cfg.Scores.Runtimes {
		for v, w := range versions {
			if !isFinite(w) {
				return errdefs.Validation("scores.runtimes."+runtime+"."+v, "weight must be finite")
			}
			if v != OtherKey {
				if err := version.Validate(v); err != nil {
					return errdefs.Validation("scores.runtimes."+runtime, "%v", err)
				}
			}
		}
	}
	return nil
}

// RequiredFeaturesFor returns the features a target still needs transformed.
func RequiredFeaturesFor(features []string, compat CompatibilityTable, target RuntimeTarget) []string {
	required := make([]string, 0, len(features))
	for _, f := range dedupeSorted(features) {
		if !nativeAt(compat, f, target) {
			required = append(required, f)
		}
	}
	return required
}

func nativeAt(compat CompatibilityTable, feature string, target RuntimeTarget) bool {
	minVersion, ok := compat[feature][target.Name]
	if !ok {
		return false
	}
	return version.AtLeast(target.Version, minVersion)
}

// bucket groups targets with identical requirement sets.
func bucket(features []string, compat CompatibilityTable, targets []RuntimeTarget) []*candidate {
	byKey := make(map[string]*candidate)
	var order []*candidate
	for _, t := range targets {
		required := RequiredFeaturesFor(features, compat, t)
		key := strings.Join(required, "\x00")
		c, ok := byKey[key]
		if !ok {
			c = &candidate{group: Group{
				RequiredFeatures: required,
				RuntimeCompatMap: map[string]string{},
			}}
			byKey[key] = c
			order = append(order, c)
		}
		c.group.RuntimeCompatMap[t.Name] = version.Highest(c.group.RuntimeCompatMap[t.Name], t.Version)
		c.members = append(c.members, t)
	}
	return order
}

func scoreOf(scores ScoreTable, members []RuntimeTarget) float64 {
	var total float64
	for _, m := range members {
		total += scores.Weight(m.Name, m.Version)
	}
	return total
}

// Weight returns the score weight of one runtime target.
func (s ScoreTable) Weight(name, v string) float64 {
	versions, ok := s.Runtimes[name]
	if !ok {
		return s.Other
	}
	if w, ok := versions[v]; ok && v != OtherKey {
		return w
	}
	// equal versions spelled differently ("12" vs "12.0"); sorted for determinism
	keys := make([]string, 0, len(versions))
	for k := range versions {
		if k != OtherKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if version.Compare(k, v) == 0 {
			return versions[k]
		}
	}
	if w, ok := versions[OtherKey]; ok {
		return w
	}
	return s.Other
}

// rankBefore orders by score descending, then feature names, then runtime
// names.
func rankBefore(a, b *candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if c := slices.Compare(a.group.RequiredFeatures, b.group.RequiredFeatures); c != 0 {
		return c < 0
	}
	return slices.Compare(runtimeNames(a.group), runtimeNames(b.group)) < 0
}

func runtimeNames(g Group) []string {
	names := make([]string, 0, len(g.RuntimeCompatMap))
	for name := range g.RuntimeCompatMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func groupID(index int) string {
	if index == 0 {
		return BestID
	}
	return fmt.Sprintf("%s%d", intermediatePrefix, index+1)
}

// mostTransforms returns the group serving every target of an exhaustive
// matrix with one variant: the candidate with the largest required set, ties
// going to the lowest score. Its requirements are widened to the union of all
// candidates so no target is served untransformed code.
func mostTransforms(ranked []*candidate) Group {
	var worst *candidate
	var union []string
	for _, c := range ranked {
		if worst == nil || len(c.group.RequiredFeatures) >= len(worst.group.RequiredFeatures) {
			worst = c
		}
		union = append(union, c.group.RequiredFeatures...)
	}
	g := worst.group.clone()
	g.RequiredFeatures = dedupeSorted(union)
	return g
}

// normalizeTargets returns a sorted copy without duplicate targets. Versions
// spelled differently but comparing equal ("12", "12.0") are one target.
func normalizeTargets(targets []RuntimeTarget) []RuntimeTarget {
	out := append([]RuntimeTarget{}, targets...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if c := version.Compare(out[i].Version, out[j].Version); c != 0 {
			return c < 0
		}
		return out[i].Version < out[j].Version
	})
	return slices.CompactFunc(out, func(a, b RuntimeTarget) bool {
		return a.Name == b.Name && version.Compare(a.Version, b.Version) == 0
	})
}

func dedupeSorted(values []string) []string {
	out := append([]string{}, values...)
	sort.Strings(out)
	return slices.Compact(out)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
