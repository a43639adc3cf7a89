package groupmap

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/prism/pkg/errdefs"
)

func exampleConfig() *PlannerConfig {
	return &PlannerConfig{
		Features: []string{"arrow", "optional-chain"},
		Compat: CompatibilityTable{
			"arrow":          {"runtimeA": "2", "runtimeB": "5"},
			"optional-chain": {"runtimeA": "10"},
		},
		Targets: []RuntimeTarget{
			{Name: "runtimeA", Version: "3"},
			{Name: "runtimeA", Version: "12"},
			{Name: "runtimeB", Version: "6"},
		},
		GroupCount: 2,
	}
}

func TestRequiredFeaturesFor(t *testing.T) {
	cfg := exampleConfig()

	tests := []struct {
		target RuntimeTarget
		want   []string
	}{
		{RuntimeTarget{Name: "runtimeA", Version: "3"}, []string{"optional-chain"}},
		{RuntimeTarget{Name: "runtimeA", Version: "12"}, []string{}},
		{RuntimeTarget{Name: "runtimeB", Version: "6"}, []string{"optional-chain"}},
		{RuntimeTarget{Name: "runtimeB", Version: "4"}, []string{"arrow", "optional-chain"}},
		{RuntimeTarget{Name: "unknown", Version: "99"}, []string{"arrow", "optional-chain"}},
	}

	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredFeaturesFor(cfg.Features, cfg.Compat, tt.target))
		})
	}
}

func TestPlan_WorkedScenario(t *testing.T) {
	t.Run("modern runtime weighted higher", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.SupportMatrixExhaustive = true
		cfg.RuntimeAlwaysIdentifiable = true
		cfg.Scores = ScoreTable{Runtimes: map[string]map[string]float64{
			"runtimeA": {"12": 0.7, "3": 0.1},
			"runtimeB": {"6": 0.1},
		}}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		require.Equal(t, []string{BestID, "intermediate-2"}, gm.IDs())

		best, _ := gm.Get(BestID)
		assert.Equal(t, []string{}, best.RequiredFeatures)
		assert.Equal(t, map[string]string{"runtimeA": "12"}, best.RuntimeCompatMap)

		second, _ := gm.Get("intermediate-2")
		assert.Equal(t, []string{"optional-chain"}, second.RequiredFeatures)
		assert.Equal(t, map[string]string{"runtimeA": "3", "runtimeB": "6"}, second.RuntimeCompatMap)
	})

	t.Run("legacy runtimes weighted higher", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.SupportMatrixExhaustive = true
		cfg.RuntimeAlwaysIdentifiable = true
		cfg.Scores = ScoreTable{Runtimes: map[string]map[string]float64{
			"runtimeA": {"12": 0.1, "3": 0.4},
			"runtimeB": {"6": 0.4},
		}}

		gm, err := Plan(cfg)
		require.NoError(t, err)

		best, _ := gm.Get(BestID)
		assert.Equal(t, []string{"optional-chain"}, best.RequiredFeatures)
	})

	t.Run("fallback slot reserved", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.Scores = ScoreTable{Runtimes: map[string]map[string]float64{
			"runtimeA": {"12": 0.7},
		}}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		require.Equal(t, []string{BestID, FallbackID}, gm.IDs())

		best, _ := gm.Get(BestID)
		assert.Equal(t, []string{}, best.RequiredFeatures)

		fallback, _ := gm.Get(FallbackID)
		assert.Equal(t, []string{"arrow", "optional-chain"}, fallback.RequiredFeatures)
		assert.Empty(t, fallback.RuntimeCompatMap)
	})
}

func TestPlan_Degenerate(t *testing.T) {
	t.Run("no targets", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.Targets = nil
		cfg.GroupCount = 4

		gm, err := Plan(cfg)
		require.NoError(t, err)
		require.Equal(t, []string{FallbackID}, gm.IDs())
		g, _ := gm.Get(FallbackID)
		assert.Equal(t, []string{"arrow", "optional-chain"}, g.RequiredFeatures)
	})

	t.Run("single group non exhaustive ignores scores", func(t *testing.T) {
		for _, weight := range []float64{0, 1, 1000} {
			cfg := exampleConfig()
			cfg.GroupCount = 1
			cfg.RuntimeAlwaysIdentifiable = true
			cfg.Scores = ScoreTable{Other: weight}

			gm, err := Plan(cfg)
			require.NoError(t, err)
			require.Equal(t, []string{FallbackID}, gm.IDs())
			g, _ := gm.Get(FallbackID)
			assert.Equal(t, []string{"arrow", "optional-chain"}, g.RequiredFeatures)
			assert.Empty(t, g.RuntimeCompatMap)

			best, ok := gm.Best()
			require.True(t, ok)
			assert.Equal(t, FallbackID, best.ID)
		}
	})

	t.Run("single group exhaustive picks worst", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.GroupCount = 1
		cfg.SupportMatrixExhaustive = true
		cfg.Scores = ScoreTable{Runtimes: map[string]map[string]float64{
			"runtimeA": {"12": 0.9},
		}}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		require.Equal(t, []string{BestID}, gm.IDs())
		g, _ := gm.Get(BestID)
		assert.Equal(t, []string{"optional-chain"}, g.RequiredFeatures)
	})

	t.Run("single group exhaustive follows transforms not score", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.GroupCount = 1
		cfg.SupportMatrixExhaustive = true
		cfg.Scores = ScoreTable{Runtimes: map[string]map[string]float64{
			"runtimeA": {"3": 0.5},
			"runtimeB": {"6": 0.5},
		}}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		require.Equal(t, []string{BestID}, gm.IDs())
		g, _ := gm.Get(BestID)
		assert.Equal(t, []string{"optional-chain"}, g.RequiredFeatures)
		assert.Equal(t, map[string]string{"runtimeA": "3", "runtimeB": "6"}, g.RuntimeCompatMap)
	})

	t.Run("single group exhaustive unions disjoint requirements", func(t *testing.T) {
		cfg := &PlannerConfig{
			Features: []string{"x", "y"},
			Compat: CompatibilityTable{
				"x": {"a": "1"},
				"y": {"b": "1"},
			},
			Targets: []RuntimeTarget{
				{Name: "a", Version: "1"},
				{Name: "b", Version: "1"},
			},
			GroupCount:              1,
			SupportMatrixExhaustive: true,
		}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		g, _ := gm.Get(BestID)
		assert.Equal(t, []string{"x", "y"}, g.RequiredFeatures)
	})

	t.Run("best aliases the only group", func(t *testing.T) {
		cfg := &PlannerConfig{
			Features:   []string{"x"},
			Targets:    []RuntimeTarget{{Name: "a", Version: "1"}},
			GroupCount: 2,
		}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{FallbackID}, gm.IDs())
		best, ok := gm.Get(BestID)
		require.True(t, ok)
		fallback, _ := gm.Get(FallbackID)
		assert.Equal(t, fallback, best)
	})

	t.Run("equal versions count once", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.GroupCount = 3
		cfg.SupportMatrixExhaustive = true
		cfg.RuntimeAlwaysIdentifiable = true
		cfg.Targets = append(cfg.Targets, RuntimeTarget{Name: "runtimeA", Version: "12.0"})
		cfg.Scores = ScoreTable{Runtimes: map[string]map[string]float64{
			"runtimeA": {"12": 0.4, "3": 0.3},
			"runtimeB": {"6": 0.3},
		}}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{BestID, "intermediate-2"}, gm.IDs())
		// runtimeA@12 weighs 0.4 once, below the 0.6 of runtimeA@3 + runtimeB@6
		best, _ := gm.Get(BestID)
		assert.Equal(t, []string{"optional-chain"}, best.RequiredFeatures)
		assert.Len(t, normalizeTargets(cfg.Targets), 3)
	})

	t.Run("more slots than groups", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.GroupCount = 10

		gm, err := Plan(cfg)
		require.NoError(t, err)
		assert.Equal(t, 3, gm.Len())
		assert.True(t, gm.HasFallback())
	})

	t.Run("group needing every feature folds into fallback", func(t *testing.T) {
		cfg := exampleConfig()
		cfg.Targets = append(cfg.Targets, RuntimeTarget{Name: "runtimeC", Version: "1"})
		cfg.GroupCount = 5
		cfg.Scores = ScoreTable{Runtimes: map[string]map[string]float64{
			"runtimeC": {"1": 100},
		}}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		assertDistinctFeatureSets(t, gm)
		assert.Equal(t, []string{BestID, "intermediate-2", FallbackID}, gm.IDs())
	})
}

func TestPlan_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PlannerConfig)
		field  string
	}{
		{"group count zero", func(c *PlannerConfig) { c.GroupCount = 0 }, "groupCount"},
		{"empty feature", func(c *PlannerConfig) { c.Features = []string{""} }, "features[0]"},
		{"bad compat version", func(c *PlannerConfig) { c.Compat["arrow"]["runtimeA"] = "x" }, "compat.arrow.runtimeA"},
		{"empty target name", func(c *PlannerConfig) { c.Targets[0].Name = "" }, "targets[0]"},
		{"infinite target", func(c *PlannerConfig) { c.Targets[1].Version = "Infinity" }, "targets[1]"},
		{"bad score version", func(c *PlannerConfig) {
			c.Scores.Runtimes = map[string]map[string]float64{"runtimeA": {"v1": 1}}
		}, "scores.runtimes.runtimeA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := exampleConfig()
			tt.mutate(cfg)
			_, err := Plan(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, errdefs.ErrValidation)
			var ve *errdefs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := Plan(nil)
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestPlan_Deterministic(t *testing.T) {
	base := &PlannerConfig{
		Features: []string{"a", "b", "c", "d"},
		Compat: CompatibilityTable{
			"a": {"x": "1", "y": "2", "z": "3"},
			"b": {"x": "5", "y": "4"},
			"c": {"x": "9", "z": "8"},
			"d": {"y": "Infinity"},
		},
		Targets: []RuntimeTarget{
			{"x", "1"}, {"x", "5"}, {"x", "9"}, {"y", "2"}, {"y", "4"},
			{"z", "3"}, {"z", "8"}, {"x", "10.0"}, {"y", "7"},
		},
		GroupCount: 3,
		Scores:     ScoreTable{Other: 1},
	}
	want, err := Plan(base)
	require.NoError(t, err)
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		cfg := *base
		cfg.Features = append([]string{}, base.Features...)
		cfg.Targets = append([]RuntimeTarget{}, base.Targets...)
		rng.Shuffle(len(cfg.Features), func(i, j int) { cfg.Features[i], cfg.Features[j] = cfg.Features[j], cfg.Features[i] })
		rng.Shuffle(len(cfg.Targets), func(i, j int) { cfg.Targets[i], cfg.Targets[j] = cfg.Targets[j], cfg.Targets[i] })

		got, err := Plan(&cfg)
		require.NoError(t, err)
		gotJSON, err := json.Marshal(got)
		require.NoError(t, err)
		assert.Equal(t, string(wantJSON), string(gotJSON))
		assertDistinctFeatureSets(t, got)
	}
}

func TestPlan_TieBreakByFeatureNames(t *testing.T) {
	cfg := &PlannerConfig{
		Features: []string{"a", "b"},
		Compat: CompatibilityTable{
			"a": {"x": "1"},
			"b": {"y": "1"},
		},
		Targets:                   []RuntimeTarget{{"y", "1"}, {"x", "1"}},
		GroupCount:                2,
		SupportMatrixExhaustive:   true,
		RuntimeAlwaysIdentifiable: true,
	}

	gm, err := Plan(cfg)
	require.NoError(t, err)
	best, _ := gm.Get(BestID)
	// x needs [b], y needs [a]; equal scores so [a] sorts first
	assert.Equal(t, []string{"a"}, best.RequiredFeatures)
	assert.Equal(t, map[string]string{"y": "1"}, best.RuntimeCompatMap)
}

func TestPlan_DistinctFeatureSets(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	runtimes := []string{"r1", "r2", "r3"}
	features := []string{"f1", "f2", "f3", "f4"}

	for i := 0; i < 100; i++ {
		compat := CompatibilityTable{}
		for _, f := range features {
			compat[f] = map[string]string{}
			for _, r := range runtimes {
				if rng.Intn(3) > 0 {
					compat[f][r] = randomVersion(rng)
				}
			}
		}
		var targets []RuntimeTarget
		for j := 0; j < 1+rng.Intn(8); j++ {
			targets = append(targets, RuntimeTarget{Name: runtimes[rng.Intn(len(runtimes))], Version: finiteVersion(rng)})
		}
		cfg := &PlannerConfig{
			Features:                  features,
			Compat:                    compat,
			Targets:                   targets,
			GroupCount:                1 + rng.Intn(5),
			Scores:                    ScoreTable{Other: rng.Float64()},
			SupportMatrixExhaustive:   rng.Intn(2) == 0,
			RuntimeAlwaysIdentifiable: rng.Intn(2) == 0,
		}

		gm, err := Plan(cfg)
		require.NoError(t, err)
		assertDistinctFeatureSets(t, gm)
		_, hasBest := gm.Best()
		assert.True(t, hasBest)
	}
}

func TestScoreTable_Weight(t *testing.T) {
	s := ScoreTable{
		Other: 0.01,
		Runtimes: map[string]map[string]float64{
			"chrome": {"120": 0.5, "119.0": 0.2, OtherKey: 0.05},
			"safari": {"17": 0.3},
		},
	}

	assert.Equal(t, 0.5, s.Weight("chrome", "120"))
	assert.Equal(t, 0.2, s.Weight("chrome", "119"))
	assert.Equal(t, 0.05, s.Weight("chrome", "100"))
	assert.Equal(t, 0.01, s.Weight("safari", "16"))
	assert.Equal(t, 0.01, s.Weight("firefox", "120"))
}

func TestGroupMap_MarshalJSON(t *testing.T) {
	gm, err := Plan(exampleConfig())
	require.NoError(t, err)

	data, err := json.Marshal(gm)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"best":{"requiredFeatures":[],"runtimeCompatMap":{"runtimeA":"12"}},
		  "fallback":{"requiredFeatures":["arrow","optional-chain"],"runtimeCompatMap":{}}}`,
		string(data))
}

func assertDistinctFeatureSets(t *testing.T, gm *GroupMap) {
	t.Helper()
	seen := map[string]string{}
	for _, e := range gm.Entries() {
		key, _ := json.Marshal(e.Group.RequiredFeatures)
		if other, ok := seen[string(key)]; ok {
			t.Fatalf("groups %s and %s share requirement set %s", other, e.ID, key)
		}
		seen[string(key)] = e.ID
	}
}

func randomVersion(rng *rand.Rand) string {
	if rng.Intn(10) == 0 {
		return "Infinity"
	}
	return finiteVersion(rng)
}

func finiteVersion(rng *rand.Rand) string {
	return []string{"1", "2", "3.5", "4", "10", "12.1"}[rng.Intn(6)]
}
