// Package benchmark contains Go benchmarks for the entity indexes, the result
// cache and the top-K aggregator, measuring throughput and allocation
// behaviour over synthetic match histories.
package benchmark

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
)

var champions = []string{
	"Ahri", "Lux", "Orianna", "Syndra", "Viktor", "Azir", "Zed", "Yasuo",
	"LeeSin", "Vi", "Jinx", "Caitlyn", "Thresh", "Nautilus", "Ornn", "Gnar",
}

// syntheticMatches returns n ten-player matches drawn from a pool of
// players and the champion list above.
func syntheticMatches(n, players int) []match.Record {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]match.Record, n)
	for i := range records {
		r := match.Record{
			ID:          fmt.Sprintf("NA1_%d", i),
			GameMode:    "CLASSIC",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			DurationSec: 1500 + i%600,
			Teams: []match.Team{
				{TeamID: match.TeamBlue, Win: i%2 == 0},
				{TeamID: match.TeamRed, Win: i%2 == 1},
			},
		}
		for p := 0; p < 10; p++ {
			team := match.TeamBlue
			if p >= 5 {
				team = match.TeamRed
			}
			r.Participants = append(r.Participants, match.Participant{
				PlayerName:   fmt.Sprintf("player-%d", (i*7+p)%players),
				Champion:     champions[(i+p*3)%len(champions)],
				TeamID:       team,
				Win:          (team == match.TeamBlue) == (i%2 == 0),
				Kills:        (i + p) % 12,
				Deaths:       (i*3 + p) % 9,
				Assists:      (i + p*2) % 15,
				GoldEarned:   8000 + (i*31+p*97)%6000,
				DamageDealt:  12000 + (i*53+p*71)%20000,
				MinionsKills: 120 + (i+p*11)%120,
			})
		}
		records[i] = r
	}
	return records
}
