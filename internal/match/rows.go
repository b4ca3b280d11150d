package match

// ParticipantRow is one participant flattened together with its match, the
// unit the champion and player statistics are grouped over.
type ParticipantRow struct {
	MatchID string
	Participant
}

// Unwind flattens records into one row per participant, preserving record
// order and then participant order.
func Unwind(records []Record) []ParticipantRow {
	n := 0
	for i := range records {
		n += len(records[i].Participants)
	}
	rows := make([]ParticipantRow, 0, n)
	for i := range records {
		for _, p := range records[i].Participants {
			rows = append(rows, ParticipantRow{MatchID: records[i].ID, Participant: p})
		}
	}
	return rows
}

// TeamRow is one side of a match.
type TeamRow struct {
	MatchID string
	Team
}

// UnwindTeams flattens records into one row per team.
func UnwindTeams(records []Record) []TeamRow {
	rows := make([]TeamRow, 0, 2*len(records))
	for i := range records {
		for _, t := range records[i].Teams {
			rows = append(rows, TeamRow{MatchID: records[i].ID, Team: t})
		}
	}
	return rows
}
