package accel

import "time"

// MatchIngestedEvent announces newly stored matches and the entities they
// touch, so every instance can drop the affected cached views.
type MatchIngestedEvent struct {
	Origin     string    `json:"origin"`
	MatchIDs   []string  `json:"matchIds"`
	Players    []string  `json:"players"`
	Champions  []string  `json:"champions"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// InvalidationEvent asks every instance to drop cached results. Exactly one
// of All, Query or Kind/Name is meaningful, in that order of precedence.
type InvalidationEvent struct {
	Origin   string    `json:"origin"`
	All      bool      `json:"all,omitempty"`
	Query    string    `json:"query,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Name     string    `json:"name,omitempty"`
	IssuedAt time.Time `json:"issuedAt"`
}
