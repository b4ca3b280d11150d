package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
)

// dialect holds the SQL fragments that differ between PostgreSQL and SQLite
// when unnesting the participants array of a stored match document.
type dialect struct {
	name string
	// participants is the FROM clause joining matches m to its participants p.
	participants string
	text         func(field string) string
	number       func(field string) string
	truth        func(field string) string
	ordinal      string
	round        func(expr string, decimals int) string
	placeholder  func(n int) string
	byIDs        func(ids []string) (string, []any)
}

var postgresDialect = dialect{
	name:         "postgres",
	participants: "matches m CROSS JOIN LATERAL jsonb_array_elements(m.doc->'participants') WITH ORDINALITY AS p(value, n)",
	text:         func(f string) string { return fmt.Sprintf("(p.value->>'%s')", f) },
	number:       func(f string) string { return fmt.Sprintf("COALESCE((p.value->>'%s')::numeric, 0)", f) },
	truth:        func(f string) string { return fmt.Sprintf("CASE WHEN (p.value->>'%s')::boolean THEN 1 ELSE 0 END", f) },
	ordinal:      "m.seq * 1000 + p.n",
	round:        func(e string, d int) string { return fmt.Sprintf("ROUND((%s)::numeric, %d)::float8", e, d) },
	placeholder:  func(n int) string { return fmt.Sprintf("$%d", n) },
	byIDs: func(ids []string) (string, []any) {
		return `SELECT doc FROM matches WHERE match_id = ANY($1)`, []any{pq.Array(ids)}
	},
}

var sqliteDialect = dialect{
	name:         "sqlite",
	participants: "matches m, json_each(m.doc, '$.participants') AS p",
	text:         func(f string) string { return fmt.Sprintf("json_extract(p.value, '$.%s')", f) },
	number:       func(f string) string { return fmt.Sprintf("COALESCE(json_extract(p.value, '$.%s'), 0)", f) },
	truth: func(f string) string {
		return fmt.Sprintf("CASE WHEN json_extract(p.value, '$.%s') THEN 1 ELSE 0 END", f)
	},
	ordinal:     "m.seq * 1000 + p.key",
	round:       func(e string, d int) string { return fmt.Sprintf("ROUND(%s, %d)", e, d) },
	placeholder: func(int) string { return "?" },
	// One JSON array argument, so long ID lists stay clear of the bind
	// variable limit.
	byIDs: func(ids []string) (string, []any) {
		list, _ := json.Marshal(ids)
		return `SELECT doc FROM matches WHERE match_id IN (SELECT value FROM json_each(?))`, []any{string(list)}
	},
}

// championColumns maps rankable metric names to result columns. Only these
// names ever reach ORDER BY.
var championColumns = map[string]string{
	match.MetricTotalGames: "total_games",
	match.MetricWins:       "wins",
	match.MetricWinRate:    "win_rate",
	match.MetricAvgKills:   "avg_kills",
	match.MetricAvgDeaths:  "avg_deaths",
	match.MetricAvgAssists: "avg_assists",
	match.MetricAvgKDA:     "avg_kda",
	match.MetricAvgGold:    "avg_gold",
	match.MetricAvgDamage:  "avg_damage",
	match.MetricAvgCS:      "avg_cs",
}

// championSelectOrder is the column order of the ranking query, after the
// champion name.
var championSelectOrder = []string{
	match.MetricTotalGames, match.MetricWins, match.MetricWinRate,
	match.MetricAvgKills, match.MetricAvgDeaths, match.MetricAvgAssists, match.MetricAvgKDA,
	match.MetricAvgGold, match.MetricAvgDamage, match.MetricAvgCS,
}

// championTopKQuery renders the ranking for q, rounding each metric the way
// match.ChampionStatsSpec does. Ties fall back to the position of the first
// participant row seen for the champion.
func championTopKQuery(d dialect, q ChampionQuery) (string, []any, error) {
	rankBy := q.RankBy
	if rankBy == "" {
		rankBy = match.MetricTotalGames
	}
	col, ok := championColumns[rankBy]
	if !ok {
		return "", nil, &aggregate.InvalidSpecError{Reason: fmt.Sprintf("rank metric %q is not a champion metric", rankBy)}
	}
	if q.Limit < 0 {
		return "", nil, &aggregate.InvalidSpecError{Reason: fmt.Sprintf("limit must not be negative, got %d", q.Limit)}
	}

	champ := d.text("championName")
	avg := func(field string, decimals int) string {
		return d.round(fmt.Sprintf("AVG(%s)", d.number(field)), decimals)
	}

	var b strings.Builder
	// KDA is taken over the unrounded averages, like the in-process spec.
	fmt.Fprintf(&b, "SELECT champion, total_games, wins, win_rate, avg_kills, avg_deaths, avg_assists, %s AS avg_kda, avg_gold, avg_damage, avg_cs FROM (",
		d.round("(raw_kills + raw_assists) / CASE WHEN raw_deaths = 0 THEN 1 ELSE raw_deaths END", 2))
	fmt.Fprintf(&b, "SELECT %s AS champion, COUNT(*) AS total_games, SUM(%s) AS wins, %s AS win_rate, ",
		champ, d.truth("win"), d.round(fmt.Sprintf("AVG(%s) * 100.0", d.truth("win")), 2))
	fmt.Fprintf(&b, "%s AS avg_kills, %s AS avg_deaths, %s AS avg_assists, ",
		avg("kills", 2), avg("deaths", 2), avg("assists", 2))
	fmt.Fprintf(&b, "AVG(%s) AS raw_kills, AVG(%s) AS raw_deaths, AVG(%s) AS raw_assists, ",
		d.number("kills"), d.number("deaths"), d.number("assists"))
	fmt.Fprintf(&b, "%s AS avg_gold, %s AS avg_damage, %s AS avg_cs, ",
		avg("goldEarned", 0), avg("totalDamageDealtToChampions", 0), avg("totalMinionsKilled", 1))
	fmt.Fprintf(&b, "MIN(%s) AS first_seen FROM %s WHERE COALESCE(%s, '') <> ''", d.ordinal, d.participants, champ)

	var args []any
	if q.Champion != "" {
		args = append(args, q.Champion)
		fmt.Fprintf(&b, " AND %s = %s", champ, d.placeholder(len(args)))
	}
	fmt.Fprintf(&b, " GROUP BY 1) g ORDER BY %s DESC, first_seen ASC", col)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT %s", d.placeholder(len(args)))
	}
	return b.String(), args, nil
}
