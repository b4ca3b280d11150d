package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
)

// BenchmarkChampionRanking measures the full champion ranking with and
// without a limit, so the bounded heap path is compared with a full sort.
func BenchmarkChampionRanking(b *testing.B) {
	rows := match.Unwind(syntheticMatches(10000, 500))
	for _, limit := range []int{0, 5} {
		spec := match.ChampionStatsSpec("", match.MetricAvgKDA, limit)
		b.Run(fmt.Sprintf("limit_%d", limit), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := aggregate.Aggregate(context.Background(), rows, spec); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkTeamStats measures the per-side aggregation.
func BenchmarkTeamStats(b *testing.B) {
	rows := match.UnwindTeams(syntheticMatches(10000, 500))
	spec := match.TeamStatsSpec()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := aggregate.Aggregate(context.Background(), rows, spec); err != nil {
			b.Fatal(err)
		}
	}
}
