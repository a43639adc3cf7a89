// Package groupmap plans the minimal set of compile variants ("groups")
// needed to serve a runtime support matrix.
//
// # Overview
//
// Source code may use features that older runtimes do not support natively.
// Each such feature needs a transform on those runtimes, and transforming for
// a runtime that does not need it costs size and speed. The planner buckets
// runtime targets by the exact set of features they still need and picks the
// most valuable buckets as output variants:
//
//	cfg := &groupmap.PlannerConfig{
//	    Features: []string{"arrow", "optional-chain"},
//	    Compat: groupmap.CompatibilityTable{
//	        "arrow":          {"runtimeA": "2", "runtimeB": "5"},
//	        "optional-chain": {"runtimeA": "10"},
//	    },
//	    Targets: []groupmap.RuntimeTarget{
//	        {Name: "runtimeA", Version: "3"},
//	        {Name: "runtimeA", Version: "12"},
//	        {Name: "runtimeB", Version: "6"},
//	    },
//	    GroupCount: 2,
//	}
//	groups, err := groupmap.Plan(cfg)
//
// # Algorithm
//
//  1. For each target, the required features are the input features minus
//     those natively supported at the target's version.
//  2. Targets with identical requirement sets share a group; a runtime that
//     appears several times keeps its highest version.
//  3. A group's score is the sum of ScoreTable weights of its targets. Groups
//     are ordered by score descending, ties broken by feature names, then
//     runtime names.
//  4. With GroupCount N > 1 the top N-1 groups are labeled "best",
//     "intermediate-2", ... and a "fallback" group carrying every feature is
//     appended. When the matrix is exhaustive and runtimes are always
//     identifiable, the top N groups are used and no fallback is added.
//
// Degenerate inputs: with no targets, or N == 1 on a non-exhaustive matrix,
// the result is a single "fallback" group carrying every feature. With N == 1
// on an exhaustive matrix the single group is the lowest scoring one, labeled
// "best".
//
// # Resolution
//
// A Resolver maps an incoming runtime to the group serving it: the first
// group whose compat map lists the runtime at or below its version, else the
// fallback group.
package groupmap
