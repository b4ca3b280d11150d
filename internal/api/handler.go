// Package api serves the dashboard's statistics and match endpoints over
// HTTP, on top of the acceleration service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/accel"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/middleware"
)

// CacheHeader reports whether the server-side result cache answered.
const CacheHeader = middleware.CacheHeader

// maxIngestBody bounds POST /api/matches.
const maxIngestBody = 32 << 20

type Handler struct {
	svc     *accel.Service
	version string
	logger  *slog.Logger
}

func NewHandler(svc *accel.Service, version string) *Handler {
	return &Handler{
		svc:     svc,
		version: version,
		logger:  slog.Default().With("component", "api-handler"),
	}
}

// ChampionStats serves GET /api/statistics/champions?champion=&sort=&limit=.
func (h *Handler) ChampionStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be an integer"))
		return
	}
	stats, hit, err := h.svc.ChampionStats(r.Context(), accel.ChampionQuery{
		Champion: q.Get("champion"),
		RankBy:   q.Get("sort"),
		Limit:    limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"statistics": stats, "count": len(stats)})
}

// PlayerStats serves GET /api/statistics/player/{name}.
func (h *Handler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, hit, err := h.svc.PlayerStats(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"statistics": stats})
}

func (h *Handler) TeamStats(w http.ResponseWriter, r *http.Request) {
	stats, hit, err := h.svc.TeamStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"statistics": stats})
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, hit, err := h.svc.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"overview": ov})
}

// RecentMatches serves GET /api/matches?page=&pageSize=.
func (h *Handler) RecentMatches(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := h.pagination(w, r)
	if !ok {
		return
	}
	res, hit, err := h.svc.RecentMatches(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"matches": res.Matches, "pagination": res.Pagination})
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	m, hit, err := h.svc.Match(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"match": m})
}

func (h *Handler) MatchesByPlayer(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := h.pagination(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	res, hit, err := h.svc.MatchesByPlayer(r.Context(), name, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"player": name, "matches": res.Matches, "pagination": res.Pagination})
}

func (h *Handler) MatchesByChampion(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := h.pagination(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	res, hit, err := h.svc.MatchesByChampion(r.Context(), name, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeData(w, hit, map[string]any{"champion": name, "matches": res.Matches, "pagination": res.Pagination})
}

// Players serves GET /api/players?limit=, the most active players first.
func (h *Handler) Players(w http.ResponseWriter, r *http.Request) {
	h.entities(w, r, match.KindPlayer, "players")
}

// Champions serves GET /api/champions?limit=, the most picked champions
// first.
func (h *Handler) Champions(w http.ResponseWriter, r *http.Request) {
	h.entities(w, r, match.KindChampion, "champions")
}

func (h *Handler) entities(w http.ResponseWriter, r *http.Request, kind, field string) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil || limit < 0 {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a non-negative integer"))
		return
	}
	list, err := h.svc.Entities(kind, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, success(map[string]any{field: list, "count": len(list)}))
}

// Ingest serves POST /api/matches. The body is one match or an array of
// matches.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	records, err := decodeRecords(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Ingest(r.Context(), records)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("matches ingested over http",
		"received", res.Received,
		"inserted", res.Inserted,
	)
	status := http.StatusCreated
	if res.Inserted == 0 {
		status = http.StatusOK
	}
	h.writeJSON(w, status, success(res))
}

func decodeRecords(body io.Reader) ([]match.Record, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "reading body: %v", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "request body is empty")
	}
	var records []match.Record
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &records)
	} else {
		var one match.Record
		err = json.Unmarshal(data, &one)
		records = []match.Record{one}
	}
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid match JSON: %v", err)
	}
	return records, nil
}

// Rebuild serves POST /api/admin/rebuild.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Trigger(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, success(map[string]any{
		"rebuildId":  res.ID,
		"records":    res.Records,
		"durationMs": res.Duration.Milliseconds(),
		"indexes":    res.Reports,
	}))
}

// invalidateRequest names what to drop; exactly one form is used, in field
// order of precedence.
type invalidateRequest struct {
	All   bool   `json:"all"`
	Query string `json:"query"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
}

// Invalidate serves POST /api/admin/cache/invalidate.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON: %v", err))
		return
	}
	var n int
	switch {
	case req.All:
		n = h.svc.InvalidateAll(r.Context())
	case req.Query != "":
		n = h.svc.InvalidateQuery(r.Context(), req.Query)
	case req.Kind != "":
		var err error
		if n, err = h.svc.InvalidateEntity(r.Context(), req.Kind, req.Name); err != nil {
			h.writeError(w, r, err)
			return
		}
	default:
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			`one of "all", "query" or "kind" and "name" is required`))
		return
	}
	h.writeJSON(w, http.StatusOK, success(map[string]int{"keysDeleted": n}))
}

// Stats serves GET /api/admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, success(h.svc.Stats()))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": h.version})
}

func (h *Handler) pagination(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "page must be an integer"))
		return 0, 0, false
	}
	pageSize, err = intParam(q.Get("pageSize"), 0)
	if err != nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "pageSize must be an integer"))
		return 0, 0, false
	}
	return page, pageSize, true
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func success(data any) envelope { return envelope{Success: true, Data: data} }

func (h *Handler) writeData(w http.ResponseWriter, hit bool, data any) {
	if hit {
		w.Header().Set(CacheHeader, "HIT")
	} else {
		w.Header().Set(CacheHeader, "MISS")
	}
	h.writeJSON(w, http.StatusOK, success(data))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. AppError messages are written as
// is; other server errors are logged and answered generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	h.writeJSON(w, status, envelope{Error: &errorBody{Message: apperrors.PublicMessage(err), Code: status}})
}
