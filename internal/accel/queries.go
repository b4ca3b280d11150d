package accel

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/logger"
)

// Query names, used as cache key prefixes and metric labels.
const (
	QueryChampionStats     = "champion-stats"
	QueryPlayerStats       = "player-stats"
	QueryTeamStats         = "team-stats"
	QueryOverview          = "overview"
	QueryMatchesByPlayer   = "matches-by-player"
	QueryMatchesByChampion = "matches-by-champion"
	QueryRecentMatches     = "recent-matches"
	queryMatchOrder        = "match-order"
	queryMatch             = "match"
)

// Where a result was computed, for the aggregation latency metric.
const (
	sourceIndex    = "index"
	sourcePushdown = "pushdown"
	sourceScan     = "scan"
)

// allMatches marks the match order over every stored match.
const allMatches = "all"

// overviewTopChampions is how many champions the overview ranks.
const overviewTopChampions = 10

// ChampionQuery asks for champion statistics ranked by RankBy. An empty
// Champion ranks every champion; a zero Limit uses the configured default.
type ChampionQuery struct {
	Champion string
	RankBy   string
	Limit    int
}

// TeamSide is the win rate of one side of the map.
type TeamSide struct {
	TeamID     int     `json:"teamId"`
	Side       string  `json:"side"`
	TotalGames int     `json:"totalGames"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"winRate"`
}

// Overview is the dashboard landing summary.
type Overview struct {
	TotalMatches   int               `json:"totalMatches"`
	TeamStatistics []TeamSide        `json:"teamStatistics"`
	TopChampions   []aggregate.Group `json:"topChampions"`
}

// Pagination describes one page of a match list.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// MatchPage is one page of the matches an entity appears in, newest first.
type MatchPage struct {
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Matches    []match.Record `json:"matches"`
	Pagination Pagination     `json:"pagination"`
}

// EntitySummary is one row of an entity listing.
type EntitySummary struct {
	Name    string `json:"name"`
	Matches int    `json:"matchCount"`
}

func limitParam(n int) string { return strconv.Itoa(n) }

// ChampionStats ranks champions. The result is served from the cache when
// possible; on a miss it is computed through the champion index when a
// single champion is requested, pushed down to the store when it supports
// it, and aggregated over a full scan otherwise.
func (s *Service) ChampionStats(ctx context.Context, q ChampionQuery) ([]aggregate.Group, bool, error) {
	if q.RankBy == "" {
		q.RankBy = match.MetricTotalGames
	}
	if !slices.Contains(match.ChampionRankMetrics, q.RankBy) {
		return nil, false, &aggregate.InvalidSpecError{Reason: fmt.Sprintf("cannot rank champions by %q", q.RankBy)}
	}
	limit, err := s.clampLimit(q.Limit)
	if err != nil {
		return nil, false, err
	}
	q.Limit = limit

	key := cache.Key(QueryChampionStats, map[string]string{
		"champion": q.Champion,
		"sort":     q.RankBy,
		"limit":    limitParam(q.Limit),
	})
	return cache.GetOrComputeJSON(ctx, s.queries, key, func(ctx context.Context) ([]aggregate.Group, error) {
		return s.computeChampionStats(ctx, q)
	})
}

func (s *Service) computeChampionStats(ctx context.Context, q ChampionQuery) ([]aggregate.Group, error) {
	start := time.Now()
	spec := match.ChampionStatsSpec(q.Champion, q.RankBy, q.Limit)

	if q.Champion != "" && s.index.Ready() {
		records, err := s.recordsFor(ctx, match.KindChampion, q.Champion)
		if err != nil {
			return nil, err
		}
		groups, err := aggregate.Aggregate(ctx, match.Unwind(records), spec)
		s.observe(QueryChampionStats, sourceIndex, start, err)
		return groups, err
	}
	if s.topk != nil {
		groups, err := s.topk.ChampionTopK(ctx, store.ChampionQuery{Champion: q.Champion, RankBy: q.RankBy, Limit: q.Limit})
		s.observe(QueryChampionStats, sourcePushdown, start, err)
		if err != nil {
			return nil, fmt.Errorf("champion ranking pushdown: %w", err)
		}
		return groups, nil
	}
	records, err := s.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning matches: %w", err)
	}
	groups, err := aggregate.Aggregate(ctx, match.Unwind(records), spec)
	s.observe(QueryChampionStats, sourceScan, start, err)
	return groups, err
}

// PlayerStats aggregates one player's career. A player with no matches is
// ErrRecordNotFound.
func (s *Service) PlayerStats(ctx context.Context, player string) (aggregate.Group, bool, error) {
	if strings.TrimSpace(player) == "" {
		return aggregate.Group{}, false, apperrors.New(apperrors.ErrInvalidInput, 400, "player name is required")
	}
	key := cache.Key(QueryPlayerStats, map[string]string{match.KindPlayer: player})
	return cache.GetOrComputeJSON(ctx, s.queries, key, func(ctx context.Context) (aggregate.Group, error) {
		start := time.Now()
		records, err := s.recordsFor(ctx, match.KindPlayer, player)
		if err != nil {
			return aggregate.Group{}, err
		}
		groups, err := aggregate.Aggregate(ctx, match.Unwind(records), match.PlayerStatsSpec(player))
		s.observe(QueryPlayerStats, s.narrowSource(), start, err)
		if err != nil {
			return aggregate.Group{}, err
		}
		if len(groups) == 0 {
			return aggregate.Group{}, apperrors.Newf(apperrors.ErrRecordNotFound, 404, "no statistics found for player %s", player)
		}
		return groups[0], nil
	})
}

// TeamStats reports the Blue and Red side win rates.
func (s *Service) TeamStats(ctx context.Context) ([]TeamSide, bool, error) {
	key := cache.Key(QueryTeamStats, nil)
	return cache.GetOrComputeJSON(ctx, s.queries, key, func(ctx context.Context) ([]TeamSide, error) {
		records, err := s.store.FetchAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning matches: %w", err)
		}
		return s.teamSides(ctx, records)
	})
}

func (s *Service) teamSides(ctx context.Context, records []match.Record) ([]TeamSide, error) {
	start := time.Now()
	groups, err := aggregate.Aggregate(ctx, match.UnwindTeams(records), match.TeamStatsSpec())
	s.observe(QueryTeamStats, sourceScan, start, err)
	if err != nil {
		return nil, err
	}
	out := make([]TeamSide, 0, len(groups))
	for _, g := range groups {
		teamID := match.TeamRed
		if g.GroupKey == match.SideName(match.TeamBlue) {
			teamID = match.TeamBlue
		}
		out = append(out, TeamSide{
			TeamID:     teamID,
			Side:       g.GroupKey,
			TotalGames: int(g.Metrics[match.MetricTotalGames]),
			Wins:       int(g.Metrics[match.MetricWins]),
			WinRate:    g.Metrics[match.MetricWinRate],
		})
	}
	return out, nil
}

// Overview returns the total match count, side win rates and the top
// champions by games played.
func (s *Service) Overview(ctx context.Context) (Overview, bool, error) {
	key := cache.Key(QueryOverview, nil)
	return cache.GetOrComputeJSON(ctx, s.queries, key, func(ctx context.Context) (Overview, error) {
		records, err := s.store.FetchAll(ctx)
		if err != nil {
			return Overview{}, fmt.Errorf("scanning matches: %w", err)
		}
		sides, err := s.teamSides(ctx, records)
		if err != nil {
			return Overview{}, err
		}
		start := time.Now()
		top, err := aggregate.Aggregate(ctx, match.Unwind(records),
			match.ChampionStatsSpec("", match.MetricTotalGames, overviewTopChampions))
		s.observe(QueryOverview, sourceScan, start, err)
		if err != nil {
			return Overview{}, err
		}
		return Overview{TotalMatches: len(records), TeamStatistics: sides, TopChampions: top}, nil
	})
}

// MatchesByPlayer pages through a player's matches, newest first.
func (s *Service) MatchesByPlayer(ctx context.Context, player string, page, pageSize int) (MatchPage, bool, error) {
	return s.matchesBy(ctx, QueryMatchesByPlayer, match.KindPlayer, player, page, pageSize)
}

// MatchesByChampion pages through the matches a champion was picked in,
// newest first.
func (s *Service) MatchesByChampion(ctx context.Context, champion string, page, pageSize int) (MatchPage, bool, error) {
	return s.matchesBy(ctx, QueryMatchesByChampion, match.KindChampion, champion, page, pageSize)
}

// RecentMatches pages through every stored match, newest first.
func (s *Service) RecentMatches(ctx context.Context, page, pageSize int) (MatchPage, bool, error) {
	return s.matchesBy(ctx, QueryRecentMatches, "", "", page, pageSize)
}

// matchesBy pages through the matches of one entity, or through all matches
// when kind is empty.
func (s *Service) matchesBy(ctx context.Context, query, kind, name string, page, pageSize int) (MatchPage, bool, error) {
	if kind != "" && strings.TrimSpace(name) == "" {
		return MatchPage{}, false, apperrors.Newf(apperrors.ErrInvalidInput, 400, "%s name is required", kind)
	}
	if pageSize == 0 {
		pageSize = s.cfg.Aggregation.PageSize
	}
	if err := s.validatePage(page, pageSize); err != nil {
		return MatchPage{}, false, err
	}
	params := map[string]string{
		"page":     strconv.Itoa(page),
		"pageSize": strconv.Itoa(pageSize),
	}
	if kind != "" {
		params[kind] = name
	}
	key := cache.Key(query, params)
	return cache.GetOrComputeJSON(ctx, s.queries, key, func(ctx context.Context) (MatchPage, error) {
		ids, _, err := s.matchOrder(ctx, kind, name)
		if err != nil {
			return MatchPage{}, err
		}
		total := len(ids)
		from, to := total, total
		if skipped := page - 1; skipped < (total+pageSize-1)/pageSize {
			from = skipped * pageSize
			to = min(from+pageSize, total)
		}
		records, err := s.store.FetchByIDs(ctx, ids[from:to])
		if err != nil {
			return MatchPage{}, fmt.Errorf("fetching %s page: %w", query, err)
		}
		return MatchPage{
			Kind:    kind,
			Name:    name,
			Matches: records,
			Pagination: Pagination{
				Page:       page,
				PageSize:   pageSize,
				Total:      total,
				TotalPages: (total + pageSize - 1) / pageSize,
			},
		}, nil
	})
}

// matchOrder returns the IDs of every match the entity appears in (every
// match for an empty kind), newest first with ties broken by ID. It is cached
// separately so that paging through a long list sorts it only once.
func (s *Service) matchOrder(ctx context.Context, kind, name string) ([]string, bool, error) {
	var key string
	if kind == "" {
		key = cache.Key(queryMatchOrder, map[string]string{allMatches: "true"})
	} else {
		key = cache.Key(queryMatchOrder, map[string]string{kind: name})
	}
	return cache.GetOrComputeJSON(ctx, s.queries, key, func(ctx context.Context) ([]string, error) {
		var records []match.Record
		var err error
		if kind == "" {
			records, err = s.store.FetchAll(ctx)
		} else {
			records, err = s.recordsFor(ctx, kind, name)
		}
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(records, func(a, b match.Record) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		ids := make([]string, len(records))
		for i := range records {
			ids[i] = records[i].ID
		}
		return ids, nil
	})
}

// Match returns one stored match.
func (s *Service) Match(ctx context.Context, id string) (match.Record, bool, error) {
	key := cache.Key(queryMatch, map[string]string{"id": id})
	return cache.GetOrComputeJSON(ctx, s.queries, key, func(ctx context.Context) (match.Record, error) {
		records, err := s.store.FetchByIDs(ctx, []string{id})
		if err != nil {
			return match.Record{}, fmt.Errorf("fetching match: %w", err)
		}
		if len(records) == 0 {
			return match.Record{}, apperrors.Newf(apperrors.ErrRecordNotFound, 404, "match %s not found", id)
		}
		return records[0], nil
	})
}

// Entities lists the n most frequent entities of a kind straight from the
// index; n <= 0 lists all of them.
func (s *Service) Entities(kind string, n int) ([]EntitySummary, error) {
	ix, ok := s.index.ByKind(kind)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "unknown entity kind %q", kind)
	}
	if !ix.Ready() {
		return nil, apperrors.New(apperrors.ErrIndexNotReady, 503, "entity index is not built yet")
	}
	entries := ix.Top(n)
	out := make([]EntitySummary, len(entries))
	for i, e := range entries {
		out[i] = EntitySummary{Name: e.Key, Matches: e.Count}
	}
	return out, nil
}

// recordsFor returns every record the entity appears in, in index order.
// Before the first successful rebuild it falls back to a full scan.
func (s *Service) recordsFor(ctx context.Context, kind, name string) ([]match.Record, error) {
	ix, ok := s.index.ByKind(kind)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "unknown entity kind %q", kind)
	}
	if s.index.Ready() {
		ids := ix.Lookup(name)
		if len(ids) == 0 {
			return nil, nil
		}
		records, err := s.store.FetchByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("fetching %s %q matches: %w", kind, name, err)
		}
		return records, nil
	}

	logger.FromContext(ctx).Debug("index not ready, scanning store", "kind", kind, "name", name)
	all, err := s.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning matches: %w", err)
	}
	extract := match.PlayerNames
	if kind == match.KindChampion {
		extract = match.ChampionNames
	}
	var out []match.Record
	for i := range all {
		if slices.Contains(extract(&all[i]), name) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *Service) narrowSource() string {
	if s.index.Ready() {
		return sourceIndex
	}
	return sourceScan
}

func (s *Service) observe(query, source string, start time.Time, err error) {
	if err != nil {
		return
	}
	s.metrics.ObserveAggregation(query, source, time.Since(start))
}

func (s *Service) clampLimit(limit int) (int, error) {
	if limit < 0 {
		return 0, &aggregate.InvalidSpecError{Reason: fmt.Sprintf("limit must not be negative, got %d", limit)}
	}
	if limit == 0 {
		limit = s.cfg.Aggregation.DefaultLimit
	}
	if ceiling := s.cfg.Aggregation.MaxLimit; ceiling > 0 && limit > ceiling {
		limit = ceiling
	}
	return limit, nil
}

func (s *Service) validatePage(page, pageSize int) error {
	if page < 1 {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "page must be greater than 0")
	}
	if pageSize < 1 {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "page size must be greater than 0")
	}
	if ceiling := s.cfg.Aggregation.MaxPageSize; ceiling > 0 && pageSize > ceiling {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "page size must not exceed %d", ceiling)
	}
	if page-1 > (math.MaxInt-pageSize)/pageSize {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "page is out of range")
	}
	return nil
}
