package match

import (
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
)

// Metric names shared by the in-process aggregation and store pushdown.
const (
	MetricTotalGames   = "totalGames"
	MetricWins         = "wins"
	MetricLosses       = "losses"
	MetricWinRate      = "winRate"
	MetricAvgKills     = "avgKills"
	MetricAvgDeaths    = "avgDeaths"
	MetricAvgAssists   = "avgAssists"
	MetricAvgKDA       = "avgKDA"
	MetricAvgGold      = "avgGold"
	MetricAvgDamage    = "avgDamage"
	MetricAvgCS        = "avgCS"
	MetricTotalKills   = "totalKills"
	MetricTotalDeaths  = "totalDeaths"
	MetricTotalAssists = "totalAssists"
	MetricDoubleKills  = "doubleKills"
	MetricTripleKills  = "tripleKills"
	MetricQuadraKills  = "quadraKills"
	MetricPentaKills   = "pentaKills"
)

// ChampionRankMetrics lists the metrics a champion ranking may be ordered by.
var ChampionRankMetrics = []string{
	MetricTotalGames, MetricWins, MetricWinRate, MetricAvgKills, MetricAvgDeaths,
	MetricAvgAssists, MetricAvgKDA, MetricAvgGold, MetricAvgDamage, MetricAvgCS,
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// kdaMetrics are the per-participant metrics shared by champion and player
// statistics, rounded the way the dashboard displays them.
func kdaMetrics() []aggregate.MetricSpec[ParticipantRow] {
	return []aggregate.MetricSpec[ParticipantRow]{
		{Name: MetricTotalGames, Kind: aggregate.Count},
		{Name: MetricWins, Kind: aggregate.Sum, Value: func(r ParticipantRow) float64 { return boolValue(r.Win) }},
		{Name: MetricWinRate, Kind: aggregate.Percent, Value: func(r ParticipantRow) float64 { return boolValue(r.Win) }, Decimals: 2, Rounded: true},
		{Name: MetricAvgKills, Kind: aggregate.Avg, Value: func(r ParticipantRow) float64 { return float64(r.Kills) }, Decimals: 2, Rounded: true},
		{Name: MetricAvgDeaths, Kind: aggregate.Avg, Value: func(r ParticipantRow) float64 { return float64(r.Deaths) }, Decimals: 2, Rounded: true},
		{Name: MetricAvgAssists, Kind: aggregate.Avg, Value: func(r ParticipantRow) float64 { return float64(r.Assists) }, Decimals: 2, Rounded: true},
		{Name: MetricAvgGold, Kind: aggregate.Avg, Value: func(r ParticipantRow) float64 { return float64(r.GoldEarned) }, Decimals: 0, Rounded: true},
		{Name: MetricAvgDamage, Kind: aggregate.Avg, Value: func(r ParticipantRow) float64 { return float64(r.DamageDealt) }, Decimals: 0, Rounded: true},
		{Name: MetricAvgCS, Kind: aggregate.Avg, Value: func(r ParticipantRow) float64 { return float64(r.MinionsKills) }, Decimals: 1, Rounded: true},
	}
}

// kda is (kills + assists) / deaths over the unrounded averages, with zero
// average deaths counted as one.
var kda = aggregate.Derived{
	Name: MetricAvgKDA,
	Fn: func(m map[string]float64) float64 {
		deaths := m[MetricAvgDeaths]
		if deaths == 0 {
			deaths = 1
		}
		return (m[MetricAvgKills] + m[MetricAvgAssists]) / deaths
	},
	Decimals: 2,
	Rounded:  true,
}

var losses = aggregate.Derived{
	Name: MetricLosses,
	Fn:   func(m map[string]float64) float64 { return m[MetricTotalGames] - m[MetricWins] },
}

// ChampionStatsSpec groups participant rows by champion. An empty champion
// filter keeps every champion.
func ChampionStatsSpec(champion, rankBy string, limit int) aggregate.Spec[ParticipantRow] {
	if rankBy == "" {
		rankBy = MetricTotalGames
	}
	return aggregate.Spec[ParticipantRow]{
		GroupBy: func(r ParticipantRow) (string, bool) {
			if r.Champion == "" {
				return "", false
			}
			if champion != "" && r.Champion != champion {
				return "", false
			}
			return r.Champion, true
		},
		Metrics: kdaMetrics(),
		Derived: []aggregate.Derived{kda},
		RankBy:  rankBy,
		Limit:   limit,
	}
}

// PlayerStatsSpec groups the rows of one player, adding career totals and
// multi-kill counts.
func PlayerStatsSpec(player string) aggregate.Spec[ParticipantRow] {
	metrics := kdaMetrics()
	sum := func(name string, f func(ParticipantRow) int) aggregate.MetricSpec[ParticipantRow] {
		return aggregate.MetricSpec[ParticipantRow]{
			Name:  name,
			Kind:  aggregate.Sum,
			Value: func(r ParticipantRow) float64 { return float64(f(r)) },
		}
	}
	metrics = append(metrics,
		sum(MetricTotalKills, func(r ParticipantRow) int { return r.Kills }),
		sum(MetricTotalDeaths, func(r ParticipantRow) int { return r.Deaths }),
		sum(MetricTotalAssists, func(r ParticipantRow) int { return r.Assists }),
		sum(MetricDoubleKills, func(r ParticipantRow) int { return r.DoubleKills }),
		sum(MetricTripleKills, func(r ParticipantRow) int { return r.TripleKills }),
		sum(MetricQuadraKills, func(r ParticipantRow) int { return r.QuadraKills }),
		sum(MetricPentaKills, func(r ParticipantRow) int { return r.PentaKills }),
	)
	return aggregate.Spec[ParticipantRow]{
		GroupBy: func(r ParticipantRow) (string, bool) { return r.PlayerName, r.PlayerName == player },
		Metrics: metrics,
		Derived: []aggregate.Derived{kda, losses},
		RankBy:  MetricTotalGames,
		Limit:   1,
	}
}

// TeamStatsSpec groups team rows by side. Group keys are "Blue" and "Red".
func TeamStatsSpec() aggregate.Spec[TeamRow] {
	return aggregate.Spec[TeamRow]{
		GroupBy: func(r TeamRow) (string, bool) { return SideName(r.TeamID), true },
		Metrics: []aggregate.MetricSpec[TeamRow]{
			{Name: MetricTotalGames, Kind: aggregate.Count},
			{Name: MetricWins, Kind: aggregate.Sum, Value: func(r TeamRow) float64 { return boolValue(r.Win) }},
			{Name: MetricWinRate, Kind: aggregate.Percent, Value: func(r TeamRow) float64 { return boolValue(r.Win) }, Decimals: 2, Rounded: true},
		},
		RankBy: MetricTotalGames,
	}
}
