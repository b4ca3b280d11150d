package accel

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/resilience"
)

var ctx = context.Background()

func fixtures() []match.Record {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []match.Record{
		{
			ID:        "NA1_1",
			CreatedAt: base,
			Teams:     []match.Team{{TeamID: match.TeamBlue, Win: true}, {TeamID: match.TeamRed}},
			Participants: []match.Participant{
				{PlayerName: "Faker", Champion: "Ahri", TeamID: match.TeamBlue, Win: true, Kills: 5, Deaths: 1, Assists: 7},
				{PlayerName: "Caps", Champion: "Lux", TeamID: match.TeamRed, Kills: 2, Deaths: 4, Assists: 3},
			},
		},
		{
			ID:        "NA1_2",
			CreatedAt: base.Add(time.Hour),
			Teams:     []match.Team{{TeamID: match.TeamBlue}, {TeamID: match.TeamRed, Win: true}},
			Participants: []match.Participant{
				{PlayerName: "Faker", Champion: "Ahri", TeamID: match.TeamBlue, Kills: 7, Deaths: 0, Assists: 2},
				{PlayerName: "Caps", Champion: "Ahri", TeamID: match.TeamRed, Win: true, Kills: 3, Deaths: 2, Assists: 9},
			},
		},
		{
			ID:        "NA1_3",
			CreatedAt: base.Add(2 * time.Hour),
			Teams:     []match.Team{{TeamID: match.TeamBlue, Win: true}, {TeamID: match.TeamRed}},
			Participants: []match.Participant{
				{PlayerName: "Chovy", Champion: "Orianna", TeamID: match.TeamBlue, Win: true, Kills: 4, Deaths: 2, Assists: 8},
				{PlayerName: "Caps", Champion: "Lux", TeamID: match.TeamRed, Kills: 1, Deaths: 5, Assists: 4},
			},
		},
	}
}

func testConfig() config.Config {
	cfg := *config.Default()
	cfg.Index.BuildOnStart = false
	cfg.Index.MinManualInterval = 10 * time.Millisecond
	return cfg
}

type fixture struct {
	svc   *Service
	store *store.Memory
	cache *cache.Memory
}

func newFixture(t *testing.T, records []match.Record, deps Deps) fixture {
	t.Helper()
	st := store.NewMemory(records...)
	c := cache.NewMemory(100, time.Minute)
	deps.Store = st
	deps.Cache = c
	svc := New(testConfig(), deps)
	t.Cleanup(func() { svc.Close() })
	return fixture{svc: svc, store: st, cache: c}
}

func newBuiltFixture(t *testing.T, records []match.Record, deps Deps) fixture {
	t.Helper()
	f := newFixture(t, records, deps)
	_, err := f.svc.Rebuild(ctx)
	require.NoError(t, err)
	return f
}

func groupKeys(groups []aggregate.Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.GroupKey
	}
	return out
}

func TestChampionStatsServedFromCache(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	groups, hit, err := f.svc.ChampionStats(ctx, ChampionQuery{Champion: "Ahri"})
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, groups, 1)
	assert.Equal(t, "Ahri", groups[0].GroupKey)
	assert.Equal(t, 3.0, groups[0].Metrics[match.MetricTotalGames])
	assert.Equal(t, 5.0, groups[0].Metrics[match.MetricAvgKills])
	assert.Equal(t, 66.67, groups[0].Metrics[match.MetricWinRate])
	assert.Equal(t, 11.0, groups[0].Metrics[match.MetricAvgKDA])

	again, hit, err := f.svc.ChampionStats(ctx, ChampionQuery{Champion: "Ahri"})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, groups, again)

	hits, misses := f.svc.Queries().Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestChampionStatsIndexAndScanAgree(t *testing.T) {
	built := newBuiltFixture(t, fixtures(), Deps{})
	cold := newFixture(t, fixtures(), Deps{})
	require.False(t, cold.svc.Index().Ready())

	for _, champion := range []string{"Ahri", "Lux", "Orianna", "Zed", ""} {
		q := ChampionQuery{Champion: champion, RankBy: match.MetricAvgKills}
		viaIndex, _, err := built.svc.ChampionStats(ctx, q)
		require.NoError(t, err)
		viaScan, _, err := cold.svc.ChampionStats(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, viaScan, viaIndex, "champion %q", champion)
	}
}

func TestChampionStatsRanking(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	groups, _, err := f.svc.ChampionStats(ctx, ChampionQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ahri", "Lux", "Orianna"}, groupKeys(groups))

	groups, _, err = f.svc.ChampionStats(ctx, ChampionQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ahri", "Lux"}, groupKeys(groups))

	_, _, err = f.svc.ChampionStats(ctx, ChampionQuery{RankBy: "goldPerMinute"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSpec)
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))

	_, _, err = f.svc.ChampionStats(ctx, ChampionQuery{Limit: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSpec)
}

func TestChampionStatsPushdown(t *testing.T) {
	sq, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "matches.db"), store.Options{
		Retry: resilience.RetryConfig{MaxAttempts: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	_, err = sq.Save(ctx, fixtures()...)
	require.NoError(t, err)

	pushed := New(testConfig(), Deps{Store: sq, Cache: cache.NewMemory(100, time.Minute)})
	t.Cleanup(func() { pushed.Close() })
	scanned := newFixture(t, fixtures(), Deps{})

	for _, rankBy := range []string{match.MetricTotalGames, match.MetricAvgKDA, match.MetricWinRate} {
		want, _, err := scanned.svc.ChampionStats(ctx, ChampionQuery{RankBy: rankBy})
		require.NoError(t, err)
		got, _, err := pushed.ChampionStats(ctx, ChampionQuery{RankBy: rankBy})
		require.NoError(t, err)
		require.Equal(t, groupKeys(want), groupKeys(got), "rank by %s", rankBy)
		for i := range want {
			for name, v := range want[i].Metrics {
				assert.InDelta(t, v, got[i].Metrics[name], 1e-9, "%s %s", want[i].GroupKey, name)
			}
		}
	}
}

func TestPlayerStats(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	g, hit, err := f.svc.PlayerStats(ctx, "Faker")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "Faker", g.GroupKey)
	assert.Equal(t, 2.0, g.Metrics[match.MetricTotalGames])
	assert.Equal(t, 1.0, g.Metrics[match.MetricLosses])
	assert.Equal(t, 6.0, g.Metrics[match.MetricAvgKills])
	assert.Equal(t, 12.0, g.Metrics[match.MetricTotalKills])

	_, _, err = f.svc.PlayerStats(ctx, "Nobody")
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))

	_, _, err = f.svc.PlayerStats(ctx, "  ")
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
}

func TestTeamStatsAndOverview(t *testing.T) {
	f := newFixture(t, fixtures(), Deps{})

	sides, _, err := f.svc.TeamStats(ctx)
	require.NoError(t, err)
	require.Len(t, sides, 2)
	assert.Equal(t, TeamSide{TeamID: match.TeamBlue, Side: "Blue", TotalGames: 3, Wins: 2, WinRate: 66.67}, sides[0])
	assert.Equal(t, TeamSide{TeamID: match.TeamRed, Side: "Red", TotalGames: 3, Wins: 1, WinRate: 33.33}, sides[1])

	ov, _, err := f.svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ov.TotalMatches)
	assert.Equal(t, sides, ov.TeamStatistics)
	assert.Equal(t, []string{"Ahri", "Lux", "Orianna"}, groupKeys(ov.TopChampions))
}

func matchIDs(records []match.Record) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = records[i].ID
	}
	return out
}

func TestMatchesByPlayerPagesNewestFirst(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	page, hit, err := f.svc.MatchesByPlayer(ctx, "Caps", 1, 2)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"NA1_3", "NA1_2"}, matchIDs(page.Matches))
	assert.Equal(t, Pagination{Page: 1, PageSize: 2, Total: 3, TotalPages: 2}, page.Pagination)

	page, _, err = f.svc.MatchesByPlayer(ctx, "Caps", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"NA1_1"}, matchIDs(page.Matches))

	page, _, err = f.svc.MatchesByPlayer(ctx, "Caps", 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Matches)
	assert.Equal(t, 3, page.Pagination.Total)

	page, _, err = f.svc.MatchesByChampion(ctx, "Ahri", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"NA1_2", "NA1_1"}, matchIDs(page.Matches))
	assert.Equal(t, 20, page.Pagination.PageSize)

	page, _, err = f.svc.MatchesByChampion(ctx, "Zed", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Matches)
	assert.Equal(t, 0, page.Pagination.TotalPages)
}

func TestMatchesRejectsBadPages(t *testing.T) {
	f := newFixture(t, fixtures(), Deps{})

	for _, tc := range []struct {
		page, size int
	}{{0, 10}, {-1, 10}, {1, -5}, {1, 101}} {
		_, _, err := f.svc.MatchesByPlayer(ctx, "Caps", tc.page, tc.size)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "page %d size %d", tc.page, tc.size)
		assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	}
}

func TestMatchesPageBounds(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	for _, page := range []int{math.MaxInt, math.MaxInt/20 + 2} {
		_, _, err := f.svc.RecentMatches(ctx, page, 20)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "page %d", page)
		assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	}

	for _, page := range []int{2, 1_000_000, math.MaxInt / 20} {
		got, _, err := f.svc.RecentMatches(ctx, page, 20)
		require.NoError(t, err, "page %d", page)
		assert.Empty(t, got.Matches, "page %d", page)
		assert.Equal(t, Pagination{Page: page, PageSize: 20, Total: 3, TotalPages: 1}, got.Pagination)
	}
}

func TestMatchesBeforeIndexBuildScanStore(t *testing.T) {
	f := newFixture(t, fixtures(), Deps{})

	page, _, err := f.svc.MatchesByPlayer(ctx, "Caps", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"NA1_3", "NA1_2", "NA1_1"}, matchIDs(page.Matches))
}

func TestRecentMatches(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	page, hit, err := f.svc.RecentMatches(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, page.Kind)
	assert.Equal(t, []string{"NA1_3", "NA1_2"}, matchIDs(page.Matches))
	assert.Equal(t, Pagination{Page: 1, PageSize: 2, Total: 3, TotalPages: 2}, page.Pagination)

	_, hit, err = f.svc.RecentMatches(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, hit)

	// A new match drops every cached page of the full list.
	latest := fixtures()[0]
	latest.ID = "NA1_4"
	latest.CreatedAt = latest.CreatedAt.Add(24 * time.Hour)
	_, err = f.svc.Ingest(ctx, []match.Record{latest})
	require.NoError(t, err)

	page, hit, err = f.svc.RecentMatches(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"NA1_4", "NA1_3"}, matchIDs(page.Matches))
	assert.Equal(t, 4, page.Pagination.Total)
}

func TestMatch(t *testing.T) {
	f := newFixture(t, fixtures(), Deps{})

	m, _, err := f.svc.Match(ctx, "NA1_2")
	require.NoError(t, err)
	assert.Equal(t, "NA1_2", m.ID)

	_, _, err = f.svc.Match(ctx, "NA1_404")
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))
}

func TestEntities(t *testing.T) {
	f := newFixture(t, fixtures(), Deps{})

	_, err := f.svc.Entities(match.KindPlayer, 0)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotReady)

	_, err = f.svc.Rebuild(ctx)
	require.NoError(t, err)

	players, err := f.svc.Entities(match.KindPlayer, 2)
	require.NoError(t, err)
	assert.Equal(t, []EntitySummary{{Name: "Caps", Matches: 3}, {Name: "Faker", Matches: 2}}, players)

	_, err = f.svc.Entities("item", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRebuildClearsCache(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	_, _, err := f.svc.ChampionStats(ctx, ChampionQuery{Champion: "Ahri"})
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	_, err = f.svc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.Len())
}

func TestStats(t *testing.T) {
	f := newFixture(t, fixtures(), Deps{})

	st := f.svc.Stats()
	assert.False(t, st.IndexReady)
	assert.Nil(t, st.LastRebuildTime)
	assert.Equal(t, 100, st.CacheMaxSize)

	_, err := f.svc.Rebuild(ctx)
	require.NoError(t, err)
	_, _, err = f.svc.TeamStats(ctx)
	require.NoError(t, err)

	st = f.svc.Stats()
	assert.True(t, st.IndexReady)
	require.NotNil(t, st.LastRebuildTime)
	assert.Equal(t, 1, st.CacheSize)
	// Faker, Caps, Chovy plus Ahri, Lux, Orianna.
	assert.Equal(t, 6, st.IndexEntityCount)
	assert.Equal(t, int64(1), st.QueryMisses)
}

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	events [][]byte
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, value any) error {
	if p.err != nil {
		return p.err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, data)
	return nil
}

func (p *fakePublisher) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

func TestIngestInvalidatesAffectedViews(t *testing.T) {
	pub := &fakePublisher{}
	f := newBuiltFixture(t, fixtures()[:2], Deps{IngestPublisher: pub})

	_, _, err := f.svc.PlayerStats(ctx, "Faker")
	require.NoError(t, err)
	_, _, err = f.svc.PlayerStats(ctx, "Caps")
	require.NoError(t, err)
	_, _, err = f.svc.TeamStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, f.cache.Len())

	res, err := f.svc.Ingest(ctx, fixtures()[:1])
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 1, Inserted: 0}, res)
	assert.Nil(t, pub.last())
	assert.Equal(t, 3, f.cache.Len())

	res, err = f.svc.Ingest(ctx, fixtures()[2:])
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 1, Inserted: 1}, res)
	assert.Equal(t, []string{cache.Key(QueryPlayerStats, map[string]string{match.KindPlayer: "Faker"})}, f.cache.Keys())

	require.NotNil(t, pub.last())
	var ev MatchIngestedEvent
	require.NoError(t, json.Unmarshal(pub.last(), &ev))
	assert.Equal(t, f.svc.ID(), ev.Origin)
	assert.Equal(t, []string{"NA1_3"}, ev.MatchIDs)
	assert.Equal(t, []string{"Chovy", "Caps"}, ev.Players)
	assert.Equal(t, []string{"Orianna", "Lux"}, ev.Champions)
	assert.Equal(t, []string{"NA1_3"}, pub.keys)

	require.Eventually(t, func() bool {
		return f.svc.Index().Players().Contains("Chovy", "NA1_3")
	}, time.Second, 5*time.Millisecond)
}

func TestIngestRejectsInvalidRecords(t *testing.T) {
	f := newFixture(t, nil, Deps{})

	_, err := f.svc.Ingest(ctx, nil)
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))

	_, err = f.svc.Ingest(ctx, []match.Record{{GameMode: "CLASSIC"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 0, f.store.Len())
}

func TestIngestPublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	f := newFixture(t, nil, Deps{IngestPublisher: pub})

	res, err := f.svc.Ingest(ctx, fixtures())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 3, f.store.Len())
}

func TestInvalidateBroadcasts(t *testing.T) {
	pub := &fakePublisher{}
	f := newFixture(t, fixtures(), Deps{InvalidatePublisher: pub})

	_, _, err := f.svc.PlayerStats(ctx, "Faker")
	require.NoError(t, err)
	_, _, err = f.svc.PlayerStats(ctx, "Caps")
	require.NoError(t, err)

	n, err := f.svc.InvalidateEntity(ctx, match.KindPlayer, "Caps")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	var ev InvalidationEvent
	require.NoError(t, json.Unmarshal(pub.last(), &ev))
	assert.Equal(t, f.svc.ID(), ev.Origin)
	assert.Equal(t, match.KindPlayer, ev.Kind)
	assert.Equal(t, "Caps", ev.Name)
	assert.False(t, ev.All)

	_, err = f.svc.InvalidateEntity(ctx, "item", "Boots")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, 1, f.svc.InvalidateAll(ctx))
	assert.Equal(t, 0, f.cache.Len())
}

func TestHandleInvalidation(t *testing.T) {
	f := newFixture(t, fixtures(), Deps{})

	_, _, err := f.svc.PlayerStats(ctx, "Faker")
	require.NoError(t, err)
	_, _, err = f.svc.TeamStats(ctx)
	require.NoError(t, err)

	own, _ := json.Marshal(InvalidationEvent{Origin: f.svc.ID(), All: true})
	require.NoError(t, f.svc.HandleInvalidation(ctx, nil, own))
	assert.Equal(t, 2, f.cache.Len())

	remote, _ := json.Marshal(InvalidationEvent{Origin: "other", Query: QueryTeamStats})
	require.NoError(t, f.svc.HandleInvalidation(ctx, nil, remote))
	assert.Equal(t, 1, f.cache.Len())

	remote, _ = json.Marshal(InvalidationEvent{Origin: "other", Kind: match.KindPlayer, Name: "Faker"})
	require.NoError(t, f.svc.HandleInvalidation(ctx, nil, remote))
	assert.Equal(t, 0, f.cache.Len())

	empty, _ := json.Marshal(InvalidationEvent{Origin: "other"})
	assert.ErrorIs(t, f.svc.HandleInvalidation(ctx, nil, empty), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.HandleInvalidation(ctx, nil, []byte("{")), apperrors.ErrInvalidInput)
}

func TestHandleMatchIngested(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})

	_, _, err := f.svc.PlayerStats(ctx, "Faker")
	require.NoError(t, err)
	_, _, err = f.svc.PlayerStats(ctx, "Chovy")
	require.NoError(t, err)

	ev, _ := json.Marshal(MatchIngestedEvent{Origin: "other", MatchIDs: []string{"EUW1_9"}, Players: []string{"Chovy"}})
	require.NoError(t, f.svc.HandleMatchIngested(ctx, []byte("EUW1_9"), ev))
	assert.Equal(t, []string{cache.Key(QueryPlayerStats, map[string]string{match.KindPlayer: "Faker"})}, f.cache.Keys())
}

func TestIngestEventsRacingClose(t *testing.T) {
	f := newBuiltFixture(t, fixtures(), Deps{})
	ev, _ := json.Marshal(MatchIngestedEvent{Origin: "other", MatchIDs: []string{"EUW1_9"}, Players: []string{"Chovy"}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = f.svc.HandleMatchIngested(ctx, nil, ev)
			}
		}()
	}
	require.NoError(t, f.svc.Close())
	wg.Wait()

	f.svc.rebuildPending.Store(false)
	require.NoError(t, f.svc.HandleMatchIngested(ctx, nil, ev))
	assert.False(t, f.svc.rebuildPending.Load(), "no rebuild is scheduled after Close")
}
