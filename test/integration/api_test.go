//go:build integration

// Package integration contains tests that drive the match API through its
// real HTTP wiring against a PostgreSQL match store and, when reachable, a
// Redis result cache. Kafka is not involved; fan-out is covered by the
// service tests.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/accel"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/health"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := *config.Default()
	cfg.Store.Driver = config.StoreDriverPostgres
	cfg.Postgres = config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "matchanalytics_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "matchanalytics"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Redis.Addr = envOrDefault("TEST_REDIS_ADDR", "localhost:6379")
	// Every run gets its own keyspace on a shared Redis.
	cfg.Redis.KeyPrefix = "ma-it-" + uuid.NewString()[:8] + ":"
	cfg.Index.BuildOnStart = false
	// Keep the post-ingest rebuild out of the way so cache state is stable.
	cfg.Index.MinManualInterval = time.Hour
	cfg.Server.AdminRateLimit = 0
	return cfg
}

// newServer wires the API exactly as cmd/matchapi does, skipping the test
// when PostgreSQL is unavailable.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testConfig(t)
	ctx := context.Background()

	matches, err := store.Open(ctx, cfg, nil)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { matches.Close() })

	checker := health.NewChecker(time.Second)
	checker.Register("store", health.Ping(matches.Ping, health.StatusDown))

	var redisClient *pkgredis.Client
	if rc, err := pkgredis.NewClient(cfg.Redis); err == nil {
		redisClient = rc
		cfg.Cache.Strategy = config.CacheStrategyRedis
		checker.Register("redis", health.Ping(rc.Ping, health.StatusDown))
		t.Cleanup(func() { rc.Close() })
	} else {
		t.Logf("redis unavailable, using the memory cache: %v", err)
		cfg.Cache.Strategy = config.CacheStrategyMemory
	}
	results, err := cache.New(cfg.Cache, cfg.Redis, redisClient, nil)
	require.NoError(t, err)

	svc := accel.New(cfg, accel.Deps{Store: matches, Cache: results})
	t.Cleanup(func() { svc.Close() })
	svc.Start(ctx)

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(svc, "integration"), checker, cfg, nil))
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func call(t *testing.T, method, url string, body any) (*http.Response, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

// runMatches returns two matches for a player and champion unique to this
// run, so the shared database may hold data from earlier runs.
func runMatches() (player, champion string, records []match.Record) {
	run := uuid.NewString()[:8]
	player = "it-player-" + run
	champion = "it-champ-" + run
	base := time.Now().UTC().Truncate(time.Second)
	for i, kills := range []int{5, 7} {
		records = append(records, match.Record{
			ID:          fmt.Sprintf("IT_%s_%d", run, i),
			GameMode:    "CLASSIC",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			DurationSec: 1800,
			Teams:       []match.Team{{TeamID: match.TeamBlue, Win: i == 0}, {TeamID: match.TeamRed, Win: i == 1}},
			Participants: []match.Participant{
				{PlayerName: player, Champion: champion, TeamID: match.TeamBlue, Win: i == 0, Kills: kills, Deaths: 1, Assists: 3},
			},
		})
	}
	return player, champion, records
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestReadiness verifies the store (and Redis when used) report up.
func TestReadiness(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestIngestThenQuery stores matches over HTTP and reads them back through
// the statistics and match endpoints, checking the cache round trip.
func TestIngestThenQuery(t *testing.T) {
	srv := newServer(t)
	player, champion, records := runMatches()

	resp, env := call(t, http.MethodPost, srv.URL+"/api/matches", records)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "ingest: %+v", env.Error)
	var ingested accel.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &ingested))
	assert.Equal(t, accel.IngestResult{Received: 2, Inserted: 2}, ingested)

	// A second ingest of the same matches stores nothing.
	resp, _ = call(t, http.MethodPost, srv.URL+"/api/matches", records)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	playerURL := srv.URL + "/api/statistics/player/" + player
	resp, env = call(t, http.MethodGet, playerURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get(api.CacheHeader))
	var stats struct {
		Statistics struct {
			GroupKey string             `json:"groupKey"`
			Metrics  map[string]float64 `json:"metrics"`
		} `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, player, stats.Statistics.GroupKey)
	assert.Equal(t, 2.0, stats.Statistics.Metrics[match.MetricTotalGames])
	assert.Equal(t, 6.0, stats.Statistics.Metrics[match.MetricAvgKills])
	assert.Equal(t, 50.0, stats.Statistics.Metrics[match.MetricWinRate])

	resp, _ = call(t, http.MethodGet, playerURL, nil)
	assert.Equal(t, "HIT", resp.Header.Get(api.CacheHeader))

	resp, env = call(t, http.MethodGet, srv.URL+"/api/matches/champion/"+champion+"?pageSize=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Matches    []match.Record   `json:"matches"`
		Pagination accel.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Matches, 1)
	assert.Equal(t, records[1].ID, page.Matches[0].ID, "newest first")
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	resp, _ = call(t, http.MethodGet, srv.URL+"/api/matches/"+records[0].ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "immutable")
}

// TestAdminInvalidation verifies an entity invalidation turns the next read
// into a miss.
func TestAdminInvalidation(t *testing.T) {
	srv := newServer(t)
	player, _, records := runMatches()

	resp, _ := call(t, http.MethodPost, srv.URL+"/api/matches", records)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	playerURL := srv.URL + "/api/statistics/player/" + player
	call(t, http.MethodGet, playerURL, nil)
	resp, _ = call(t, http.MethodGet, playerURL, nil)
	require.Equal(t, "HIT", resp.Header.Get(api.CacheHeader))

	resp, _ = call(t, http.MethodPost, srv.URL+"/api/admin/cache/invalidate",
		map[string]string{"kind": match.KindPlayer, "name": player})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, http.MethodGet, playerURL, nil)
	assert.Equal(t, "MISS", resp.Header.Get(api.CacheHeader))
}

// TestUnknownPlayer verifies the error envelope for a missing entity.
func TestUnknownPlayer(t *testing.T) {
	srv := newServer(t)

	resp, env := call(t, http.MethodGet, srv.URL+"/api/statistics/player/it-nobody-"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.NotEmpty(t, env.Error.Message)
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
