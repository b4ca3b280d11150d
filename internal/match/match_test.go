package match

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
)

func sampleRecords() []Record {
	return []Record{
		{
			ID:    "NA1_1",
			Teams: []Team{{TeamID: TeamBlue, Win: true}, {TeamID: TeamRed}},
			Participants: []Participant{
				{PlayerName: "Faker", Champion: "Ahri", TeamID: TeamBlue, Win: true, Kills: 5, Deaths: 1, Assists: 7, GoldEarned: 12000, DamageDealt: 25000, MinionsKills: 210, DoubleKills: 1},
				{PlayerName: "Caps", Champion: "Lux", TeamID: TeamRed, Kills: 2, Deaths: 4, Assists: 3, GoldEarned: 9000, DamageDealt: 15000, MinionsKills: 180},
			},
		},
		{
			ID:    "NA1_2",
			Teams: []Team{{TeamID: TeamBlue}, {TeamID: TeamRed, Win: true}},
			Participants: []Participant{
				{PlayerName: "Faker", Champion: "Ahri", TeamID: TeamBlue, Kills: 7, Deaths: 0, Assists: 2, GoldEarned: 13001, DamageDealt: 30000, MinionsKills: 225, PentaKills: 1},
				{PlayerName: "Caps", Champion: "Ahri", TeamID: TeamRed, Win: true, Kills: 3, Deaths: 2, Assists: 9, GoldEarned: 11000, DamageDealt: 21000, MinionsKills: 199},
			},
		},
	}
}

func TestRecordValidate(t *testing.T) {
	assert.NoError(t, (&Record{ID: "NA1_1"}).Validate())
	assert.Error(t, (&Record{}).Validate())
	assert.Error(t, (&Record{ID: "   "}).Validate())
}

func TestRecordJSONFieldNames(t *testing.T) {
	raw := `{"matchId":"EUW1_9","gameDuration":1800,"participants":[{"riotIdGameName":"Caps","championName":"Sylas","totalMinionsKilled":12}]}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	assert.Equal(t, "EUW1_9", r.ID)
	assert.Equal(t, 1800, r.DurationSec)
	require.Len(t, r.Participants, 1)
	assert.Equal(t, "Sylas", r.Participants[0].Champion)
	assert.Equal(t, 12, r.Participants[0].MinionsKills)
}

func TestEntityExtractorsAreDistinct(t *testing.T) {
	r := &Record{ID: "x", Participants: []Participant{
		{PlayerName: "A", Champion: "Ahri"},
		{PlayerName: "B", Champion: "Ahri"},
		{PlayerName: "", Champion: ""},
		{PlayerName: "A", Champion: "Lux"},
	}}
	assert.Equal(t, []string{"A", "B"}, PlayerNames(r))
	assert.Equal(t, []string{"Ahri", "Lux"}, ChampionNames(r))
}

func TestUnwind(t *testing.T) {
	rows := Unwind(sampleRecords())
	require.Len(t, rows, 4)
	assert.Equal(t, "NA1_1", rows[0].MatchID)
	assert.Equal(t, "Faker", rows[0].PlayerName)
	assert.Equal(t, "NA1_2", rows[3].MatchID)
	assert.Equal(t, "Caps", rows[3].PlayerName)

	teams := UnwindTeams(sampleRecords())
	assert.Len(t, teams, 4)
}

func TestChampionStats(t *testing.T) {
	groups, err := aggregate.Aggregate(context.Background(), Unwind(sampleRecords()), ChampionStatsSpec("", "", 0))
	require.NoError(t, err)
	require.Len(t, groups, 2)

	ahri := groups[0]
	assert.Equal(t, "Ahri", ahri.GroupKey)
	assert.Equal(t, 3, ahri.SampleCount)
	assert.Equal(t, 3.0, ahri.Metrics[MetricTotalGames])
	assert.Equal(t, 2.0, ahri.Metrics[MetricWins])
	assert.Equal(t, 66.67, ahri.Metrics[MetricWinRate])
	assert.Equal(t, 5.0, ahri.Metrics[MetricAvgKills])
	assert.Equal(t, 1.0, ahri.Metrics[MetricAvgDeaths])
	assert.Equal(t, 6.0, ahri.Metrics[MetricAvgAssists])
	assert.Equal(t, 11.0, ahri.Metrics[MetricAvgKDA])
	assert.Equal(t, 12000.0, ahri.Metrics[MetricAvgGold])
	assert.Equal(t, 25333.0, ahri.Metrics[MetricAvgDamage])
	assert.Equal(t, 211.3, ahri.Metrics[MetricAvgCS])

	assert.Equal(t, "Lux", groups[1].GroupKey)
}

func TestChampionKDAUsesUnroundedAverages(t *testing.T) {
	var records []Record
	for i, kd := range [][2]int{{1, 1}, {1, 0}, {0, 0}} {
		records = append(records, Record{
			ID:           fmt.Sprintf("KR_%d", i),
			Participants: []Participant{{PlayerName: "Chovy", Champion: "Sylas", Kills: kd[0], Deaths: kd[1]}},
		})
	}

	groups, err := aggregate.Aggregate(context.Background(), Unwind(records), ChampionStatsSpec("", "", 0))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	m := groups[0].Metrics
	assert.Equal(t, 0.67, m[MetricAvgKills])
	assert.Equal(t, 0.33, m[MetricAvgDeaths])
	// (2/3) / (1/3), not 0.67 / 0.33.
	assert.Equal(t, 2.0, m[MetricAvgKDA])

	groups, err = aggregate.Aggregate(context.Background(), Unwind(records), PlayerStatsSpec("Chovy"))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2.0, groups[0].Metrics[MetricAvgKDA])
}

func TestChampionStatsFilterAndRank(t *testing.T) {
	rows := Unwind(sampleRecords())

	groups, err := aggregate.Aggregate(context.Background(), rows, ChampionStatsSpec("Lux", "", 0))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Lux", groups[0].GroupKey)

	groups, err = aggregate.Aggregate(context.Background(), rows, ChampionStatsSpec("", MetricAvgDeaths, 1))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Lux", groups[0].GroupKey)

	groups, err = aggregate.Aggregate(context.Background(), rows, ChampionStatsSpec("Zed", "", 0))
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestPlayerStats(t *testing.T) {
	groups, err := aggregate.Aggregate(context.Background(), Unwind(sampleRecords()), PlayerStatsSpec("Faker"))
	require.NoError(t, err)
	require.Len(t, groups, 1)

	m := groups[0].Metrics
	assert.Equal(t, 2.0, m[MetricTotalGames])
	assert.Equal(t, 1.0, m[MetricLosses])
	assert.Equal(t, 12.0, m[MetricTotalKills])
	assert.Equal(t, 1.0, m[MetricTotalDeaths])
	assert.Equal(t, 1.0, m[MetricDoubleKills])
	assert.Equal(t, 1.0, m[MetricPentaKills])
	// avgDeaths is 0.5 so KDA is (6 + 4.5) / 0.5.
	assert.Equal(t, 21.0, m[MetricAvgKDA])
}

func TestTeamStats(t *testing.T) {
	groups, err := aggregate.Aggregate(context.Background(), UnwindTeams(sampleRecords()), TeamStatsSpec())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Blue", groups[0].GroupKey)
	assert.Equal(t, 50.0, groups[0].Metrics[MetricWinRate])
	assert.Equal(t, "Red", groups[1].GroupKey)
	assert.Equal(t, 1.0, groups[1].Metrics[MetricWins])
}
