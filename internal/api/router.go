package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/middleware"
)

// NewRouter builds the HTTP handler with all routes and middleware.
//
// Route table:
//
//	GET    /api/statistics/champions        champion ranking (?champion=&sort=&limit=)
//	GET    /api/statistics/player/{name}    one player's career
//	GET    /api/statistics/teams            Blue and Red side win rates
//	GET    /api/statistics/overview         dashboard landing summary
//	GET    /api/matches                     all matches, newest first (?page=&pageSize=)
//	GET    /api/matches/{id}                one match
//	GET    /api/matches/player/{name}       a player's matches
//	GET    /api/matches/champion/{name}     a champion's matches
//	GET    /api/players                     players by match count (?limit=)
//	GET    /api/champions                   champions by match count (?limit=)
//	POST   /api/matches                     ingest matches           (rate limited)
//	POST   /api/admin/rebuild               rebuild the indexes      (rate limited)
//	POST   /api/admin/cache/invalidate      drop cached results      (rate limited)
//	GET    /api/admin/stats                 cache and index stats
//	GET    /health                          liveness
//	GET    /ready                           readiness
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Timeout → Metrics → mux
func NewRouter(h *Handler, checker *health.Checker, cfg config.Config, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	clientTTL := cfg.Cache.ClientTTL
	public := middleware.CacheControl(clientTTL, false)
	// A stored match never changes.
	immutable := middleware.CacheControl(clientTTL, true)
	var limiter *middleware.RateLimiter
	if cfg.Server.AdminRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.AdminRateLimit, time.Minute)
	}
	admin := middleware.RateLimit(limiter)

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", checker.ReadyHandler())

	// Statistics API
	mux.Handle("GET /api/statistics/champions", public(http.HandlerFunc(h.ChampionStats)))
	mux.Handle("GET /api/statistics/player/{name}", public(http.HandlerFunc(h.PlayerStats)))
	mux.Handle("GET /api/statistics/teams", public(http.HandlerFunc(h.TeamStats)))
	mux.Handle("GET /api/statistics/overview", public(http.HandlerFunc(h.Overview)))

	// Match API
	mux.Handle("GET /api/matches", public(http.HandlerFunc(h.RecentMatches)))
	mux.Handle("GET /api/matches/{id}", immutable(http.HandlerFunc(h.Match)))
	mux.Handle("GET /api/matches/player/{name}", public(http.HandlerFunc(h.MatchesByPlayer)))
	mux.Handle("GET /api/matches/champion/{name}", public(http.HandlerFunc(h.MatchesByChampion)))
	mux.Handle("POST /api/matches", admin(http.HandlerFunc(h.Ingest)))

	// Entity listings
	mux.Handle("GET /api/players", public(http.HandlerFunc(h.Players)))
	mux.Handle("GET /api/champions", public(http.HandlerFunc(h.Champions)))

	// Admin API
	mux.Handle("POST /api/admin/rebuild", admin(http.HandlerFunc(h.Rebuild)))
	mux.Handle("POST /api/admin/cache/invalidate", admin(http.HandlerFunc(h.Invalidate)))
	mux.HandleFunc("GET /api/admin/stats", h.Stats)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	return chain
}
