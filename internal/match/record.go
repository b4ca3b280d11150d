// Package match defines the match record stored in the document store and the
// entity extractors and per-participant rows the acceleration layer works on.
package match

import (
	"fmt"
	"strings"
	"time"
)

// Team IDs used by the game for the two sides of the map.
const (
	TeamBlue = 100
	TeamRed  = 200
)

// Record is one stored game. ID is the matchId and is required.
type Record struct {
	ID           string        `json:"matchId"`
	GameMode     string        `json:"gameMode"`
	CreatedAt    time.Time     `json:"gameCreation"`
	DurationSec  int           `json:"gameDuration"`
	Teams        []Team        `json:"teams"`
	Participants []Participant `json:"participants"`
}

// Team is the per-side outcome of a match.
type Team struct {
	TeamID int  `json:"teamId"`
	Win    bool `json:"win"`
}

// Participant is one player's line in a match.
type Participant struct {
	PlayerName   string `json:"riotIdGameName"`
	Champion     string `json:"championName"`
	TeamID       int    `json:"teamId"`
	Position     string `json:"teamPosition,omitempty"`
	Win          bool   `json:"win"`
	Kills        int    `json:"kills"`
	Deaths       int    `json:"deaths"`
	Assists      int    `json:"assists"`
	GoldEarned   int    `json:"goldEarned"`
	DamageDealt  int    `json:"totalDamageDealtToChampions"`
	MinionsKills int    `json:"totalMinionsKilled"`
	DoubleKills  int    `json:"doubleKills"`
	TripleKills  int    `json:"tripleKills"`
	QuadraKills  int    `json:"quadraKills"`
	PentaKills   int    `json:"pentaKills"`
}

// Validate reports why r cannot be indexed, or nil.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("missing matchId")
	}
	return nil
}

// SideName maps a team ID to the name shown on the dashboard.
func SideName(teamID int) string {
	if teamID == TeamBlue {
		return "Blue"
	}
	return "Red"
}
