package match

// Entity kinds indexed by the acceleration layer.
const (
	KindPlayer   = "player"
	KindChampion = "champion"
)

// PlayerNames returns the distinct player names in r, in participant order.
// Participants without a name are ignored.
func PlayerNames(r *Record) []string {
	return distinct(r, func(p *Participant) string { return p.PlayerName })
}

// ChampionNames returns the distinct champions picked in r, in participant
// order.
func ChampionNames(r *Record) []string {
	return distinct(r, func(p *Participant) string { return p.Champion })
}

func distinct(r *Record, field func(*Participant) string) []string {
	out := make([]string, 0, len(r.Participants))
	seen := make(map[string]struct{}, len(r.Participants))
	for i := range r.Participants {
		name := field(&r.Participants[i])
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
