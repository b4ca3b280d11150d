package aggregate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
)

type pick struct {
	champion string
	kills    int
	win      bool
}

func pickSpec(rankBy string, limit int) Spec[pick] {
	return Spec[pick]{
		GroupBy: func(p pick) (string, bool) { return p.champion, p.champion != "" },
		Metrics: []MetricSpec[pick]{
			{Name: "totalGames", Kind: Count},
			{Name: "avgKills", Kind: Avg, Value: func(p pick) float64 { return float64(p.kills) }},
			{Name: "winRate", Kind: Percent, Value: func(p pick) float64 {
				if p.win {
					return 1
				}
				return 0
			}},
		},
		RankBy: rankBy,
		Limit:  limit,
	}
}

func TestAggregateSingleChampion(t *testing.T) {
	rows := []pick{
		{champion: "Ahri", kills: 5},
		{champion: "Ahri", kills: 7},
		{champion: "Ahri", kills: 3},
	}

	groups, err := Aggregate(context.Background(), rows, pickSpec("avgKills", 0))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Ahri", groups[0].GroupKey)
	assert.Equal(t, 3, groups[0].SampleCount)
	assert.Equal(t, 5.0, groups[0].Metrics["avgKills"])
}

func TestAggregateSortsDescendingWithStableTies(t *testing.T) {
	rows := []pick{
		{champion: "Zed", kills: 4},
		{champion: "Lux", kills: 9},
		{champion: "Ahri", kills: 4},
		{champion: "Jinx", kills: 1},
	}

	groups, err := Aggregate(context.Background(), rows, pickSpec("avgKills", 0))
	require.NoError(t, err)

	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.GroupKey
	}
	// Zed and Ahri tie; Zed was seen first.
	assert.Equal(t, []string{"Lux", "Zed", "Ahri", "Jinx"}, keys)
}

func TestAggregateLimit(t *testing.T) {
	rows := []pick{
		{champion: "A", kills: 1},
		{champion: "B", kills: 2},
		{champion: "C", kills: 3},
		{champion: "D", kills: 3},
	}

	groups, err := Aggregate(context.Background(), rows, pickSpec("avgKills", 2))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "C", groups[0].GroupKey)
	assert.Equal(t, "D", groups[1].GroupKey)

	groups, err = Aggregate(context.Background(), rows, pickSpec("avgKills", 10))
	require.NoError(t, err)
	assert.Len(t, groups, 4)
}

func TestAggregateSkipsRowsWithoutKey(t *testing.T) {
	rows := []pick{{champion: ""}, {champion: "Lux", kills: 2}}

	groups, err := Aggregate(context.Background(), rows, pickSpec("totalGames", 0))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].SampleCount)
}

func TestAggregateEmptyInput(t *testing.T) {
	groups, err := Aggregate(context.Background(), nil, pickSpec("totalGames", 5))
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestAggregateDerivedAndRounding(t *testing.T) {
	type line struct{ k, d, a float64 }
	spec := Spec[line]{
		GroupBy: func(line) (string, bool) { return "all", true },
		Metrics: []MetricSpec[line]{
			{Name: "avgKills", Kind: Avg, Value: func(l line) float64 { return l.k }, Decimals: 2, Rounded: true},
			{Name: "avgDeaths", Kind: Avg, Value: func(l line) float64 { return l.d }, Decimals: 2, Rounded: true},
			{Name: "avgAssists", Kind: Avg, Value: func(l line) float64 { return l.a }, Decimals: 2, Rounded: true},
			{Name: "maxKills", Kind: Max, Value: func(l line) float64 { return l.k }},
			{Name: "minKills", Kind: Min, Value: func(l line) float64 { return l.k }},
			{Name: "sumKills", Kind: Sum, Value: func(l line) float64 { return l.k }},
		},
		Derived: []Derived{{
			Name: "avgKDA",
			Fn: func(m map[string]float64) float64 {
				d := m["avgDeaths"]
				if d == 0 {
					d = 1
				}
				return (m["avgKills"] + m["avgAssists"]) / d
			},
			Decimals: 2,
			Rounded:  true,
		}},
		RankBy: "avgKDA",
	}
	rows := []line{{1, 1, 1}, {2, 2, 2}, {2, 0, 5}}

	groups, err := Aggregate(context.Background(), rows, spec)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	m := groups[0].Metrics
	assert.Equal(t, 1.67, m["avgKills"])
	assert.Equal(t, 1.0, m["avgDeaths"])
	assert.Equal(t, 2.67, m["avgAssists"])
	// Taken over the unrounded means: (5/3 + 8/3) / 1.
	assert.Equal(t, 4.33, m["avgKDA"])
	assert.Equal(t, 2.0, m["maxKills"])
	assert.Equal(t, 1.0, m["minKills"])
	assert.Equal(t, 5.0, m["sumKills"])
}

func TestAggregateInvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		spec Spec[pick]
	}{
		{"no metrics", Spec[pick]{GroupBy: pickSpec("x", 0).GroupBy, RankBy: "x"}},
		{"rank not a metric", pickSpec("avgDamage", 0)},
		{"negative limit", pickSpec("avgKills", -1)},
		{"missing extractor", Spec[pick]{
			GroupBy: pickSpec("x", 0).GroupBy,
			Metrics: []MetricSpec[pick]{{Name: "avgKills", Kind: Avg}},
			RankBy:  "avgKills",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(context.Background(), []pick{{champion: "Ahri"}}, tt.spec)
			require.Error(t, err)
			var specErr *InvalidSpecError
			assert.True(t, errors.As(err, &specErr))
			assert.ErrorIs(t, err, apperrors.ErrInvalidSpec)
		})
	}
}

func TestAggregateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Aggregate(ctx, []pick{{champion: "Ahri"}}, pickSpec("totalGames", 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func genPicks() gopter.Gen {
	return gen.SliceOf(gen.Struct(reflectPick, map[string]gopter.Gen{
		"Champion": gen.IntRange(0, 12).Map(func(i int) string { return fmt.Sprintf("c%d", i) }),
		"Kills":    gen.IntRange(0, 5),
	}))
}

// pickInput is the exported mirror of pick that gopter can populate.
type pickInput struct {
	Champion string
	Kills    int
}

var reflectPick = reflect.TypeOf(pickInput{})

func toPicks(in []pickInput) []pick {
	out := make([]pick, len(in))
	for i, p := range in {
		out[i] = pick{champion: p.Champion, kills: p.Kills}
	}
	return out
}

func TestProperty_Aggregation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated runs yield identical ordered output", prop.ForAll(
		func(in []pickInput) bool {
			rows := toPicks(in)
			a, errA := Aggregate(context.Background(), rows, pickSpec("avgKills", 0))
			b, errB := Aggregate(context.Background(), rows, pickSpec("avgKills", 0))
			if errA != nil || errB != nil || len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i].GroupKey != b[i].GroupKey || a[i].Metrics["avgKills"] != b[i].Metrics["avgKills"] {
					return false
				}
			}
			return true
		},
		genPicks(),
	))

	properties.Property("top-k returns min(k, groups) and dominates the excluded groups", prop.ForAll(
		func(in []pickInput, k int) bool {
			rows := toPicks(in)
			all, err := Aggregate(context.Background(), rows, pickSpec("avgKills", 0))
			if err != nil {
				return false
			}
			top, err := Aggregate(context.Background(), rows, pickSpec("avgKills", k))
			if err != nil {
				return false
			}
			want := k
			if len(all) < want {
				want = len(all)
			}
			if len(top) != want {
				return false
			}
			kept := make(map[string]bool, len(top))
			minKept := 0.0
			for i, g := range top {
				kept[g.GroupKey] = true
				if i == 0 || g.Metrics["avgKills"] < minKept {
					minKept = g.Metrics["avgKills"]
				}
			}
			for _, g := range all {
				if !kept[g.GroupKey] && g.Metrics["avgKills"] > minKept {
					return false
				}
			}
			// The limited result is a prefix of the full ranking.
			for i := range top {
				if top[i].GroupKey != all[i].GroupKey {
					return false
				}
			}
			return true
		},
		genPicks(),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}
