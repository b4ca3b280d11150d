package accel

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/kafka"
)

// IngestResult reports what Ingest stored.
type IngestResult struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
}

// Ingest stores new matches, drops the cached views they affect, announces
// them to the other instances and schedules an index rebuild. Matches whose
// ID is already stored are ignored.
func (s *Service) Ingest(ctx context.Context, records []match.Record) (IngestResult, error) {
	if s.writer == nil {
		return IngestResult{}, apperrors.New(apperrors.ErrInternal, 501, "match store is read-only")
	}
	if len(records) == 0 {
		return IngestResult{}, apperrors.New(apperrors.ErrInvalidInput, 400, "no matches to ingest")
	}
	inserted, err := s.writer.Save(ctx, records...)
	if err != nil {
		return IngestResult{}, fmt.Errorf("saving matches: %w", err)
	}
	res := IngestResult{Received: len(records), Inserted: inserted}
	if inserted == 0 {
		return res, nil
	}

	ev := ingestedEvent(s.id, records)
	s.applyIngested(ctx, ev)
	if s.ingest != nil {
		if err := s.ingest.Publish(ctx, ev.MatchIDs[0], ev); err != nil {
			s.logger.Error("failed to announce ingested matches, other instances stay stale until their next rebuild",
				"matches", len(ev.MatchIDs),
				"error", err,
			)
		}
	}
	return res, nil
}

func ingestedEvent(origin string, records []match.Record) MatchIngestedEvent {
	ev := MatchIngestedEvent{Origin: origin, IngestedAt: time.Now().UTC()}
	players := make(map[string]struct{})
	champions := make(map[string]struct{})
	for i := range records {
		ev.MatchIDs = append(ev.MatchIDs, records[i].ID)
		for _, p := range match.PlayerNames(&records[i]) {
			if _, ok := players[p]; !ok {
				players[p] = struct{}{}
				ev.Players = append(ev.Players, p)
			}
		}
		for _, c := range match.ChampionNames(&records[i]) {
			if _, ok := champions[c]; !ok {
				champions[c] = struct{}{}
				ev.Champions = append(ev.Champions, c)
			}
		}
	}
	return ev
}

// applyIngested drops every cached view the new matches can change and
// schedules a rebuild so the indexes pick them up.
func (s *Service) applyIngested(ctx context.Context, ev MatchIngestedEvent) {
	n := 0
	for _, p := range ev.Players {
		n += s.queries.InvalidateEntity(ctx, match.KindPlayer, p)
	}
	for _, c := range ev.Champions {
		n += s.queries.InvalidateEntity(ctx, match.KindChampion, c)
	}
	for _, q := range []string{QueryChampionStats, QueryTeamStats, QueryOverview, QueryRecentMatches} {
		n += s.queries.InvalidateQuery(ctx, q)
	}
	n += s.queries.InvalidateEntity(ctx, allMatches, "true")
	s.logger.Info("matches ingested",
		"origin", ev.Origin,
		"matches", len(ev.MatchIDs),
		"players", len(ev.Players),
		"champions", len(ev.Champions),
		"keys_deleted", n,
	)
	s.rebuildSoon()
}

// InvalidateEntity drops every cached view filtered on one player or
// champion, here and on the other instances.
func (s *Service) InvalidateEntity(ctx context.Context, kind, name string) (int, error) {
	if _, ok := s.index.ByKind(kind); !ok {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, 400, "unknown entity kind %q", kind)
	}
	if name == "" {
		return 0, apperrors.New(apperrors.ErrInvalidInput, 400, "entity name is required")
	}
	n := s.queries.InvalidateEntity(ctx, kind, name)
	s.broadcast(ctx, InvalidationEvent{Kind: kind, Name: name})
	return n, nil
}

// InvalidateQuery drops every cached result of one query.
func (s *Service) InvalidateQuery(ctx context.Context, query string) int {
	n := s.queries.InvalidateQuery(ctx, query)
	s.broadcast(ctx, InvalidationEvent{Query: query})
	return n
}

// InvalidateAll empties the result cache.
func (s *Service) InvalidateAll(ctx context.Context) int {
	n := s.queries.InvalidateAll(ctx)
	s.broadcast(ctx, InvalidationEvent{All: true})
	return n
}

func (s *Service) broadcast(ctx context.Context, ev InvalidationEvent) {
	if s.inval == nil {
		return
	}
	ev.Origin = s.id
	ev.IssuedAt = time.Now().UTC()
	if err := s.inval.Publish(ctx, s.id, ev); err != nil {
		s.logger.Error("failed to broadcast invalidation", "error", err)
	}
}

// HandleMatchIngested is the kafka.MessageHandler for match ingestion events.
// Events published by this instance are ignored.
func (s *Service) HandleMatchIngested(ctx context.Context, _, value []byte) error {
	ev, err := kafka.DecodeJSON[MatchIngestedEvent](value)
	if err != nil {
		return err
	}
	if ev.Origin == s.id {
		return nil
	}
	s.applyIngested(ctx, ev)
	return nil
}

// HandleInvalidation is the kafka.MessageHandler for invalidation events.
// Events published by this instance are ignored.
func (s *Service) HandleInvalidation(ctx context.Context, _, value []byte) error {
	ev, err := kafka.DecodeJSON[InvalidationEvent](value)
	if err != nil {
		return err
	}
	if ev.Origin == s.id {
		return nil
	}
	var n int
	switch {
	case ev.All:
		n = s.queries.InvalidateAll(ctx)
	case ev.Query != "":
		n = s.queries.InvalidateQuery(ctx, ev.Query)
	case ev.Kind != "" && ev.Name != "":
		n = s.queries.InvalidateEntity(ctx, ev.Kind, ev.Name)
	default:
		return apperrors.New(apperrors.ErrInvalidInput, 400, "invalidation event names nothing to invalidate")
	}
	s.logger.Debug("remote invalidation applied", "origin", ev.Origin, "keys_deleted", n)
	return nil
}
