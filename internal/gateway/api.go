package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/roach88/quizarena/internal/session"
	"github.com/roach88/quizarena/internal/store"
)

const maxBodySize = 4096

// ScoreRequest is the body of POST /api/score. Time is the fastest correct
// answer in milliseconds; zero means none.
type ScoreRequest struct {
	PlayerName     string `json:"playerName"`
	Score          int    `json:"score"`
	ProblemsSolved int    `json:"problemsSolved"`
	Time           int64  `json:"time"`
}

// ScoreResponse acknowledges a merged score.
type ScoreResponse struct {
	Success bool               `json:"success"`
	Player  store.PlayerRecord `json:"player"`
}

// EndRequest is the optional body of POST /api/sessions/:id/end.
type EndRequest struct {
	Winner string `json:"winner"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) getQueue(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.engine.QueueStatus())
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	sess, ok := s.engine.Registry().Find(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if _, ok := s.engine.Registry().Find(id); !ok {
		writeError(w, http.StatusNotFound, session.ErrSessionNotFound)
		return
	}

	var req EndRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Winner != "" {
		name, err := session.NormalizeName(req.Winner)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.Winner = name
	}

	if !s.engine.ForceEnd(id, req.Winner) {
		writeError(w, http.StatusServiceUnavailable, errors.New("engine stopped"))
		return
	}
	slog.Info("force-end requested", "session_id", id, "winner", req.Winner, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id})
}

func (s *Server) getProblem(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.problems.Generate())
}

func (s *Server) postScore(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req ScoreRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name, err := session.NormalizeName(req.PlayerName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Score < 0 || req.ProblemsSolved < 0 || req.Time < 0 {
		writeError(w, http.StatusBadRequest, errors.New("score, problemsSolved and time must not be negative"))
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	rec, err := s.scores.Upsert(ctx, store.Result{
		Name:           name,
		Score:          req.Score,
		ProblemsSolved: req.ProblemsSolved,
		BestTime:       time.Duration(req.Time) * time.Millisecond,
	})
	if err != nil {
		slog.Error("saving score", "player", name, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to save score"))
		return
	}
	writeJSON(w, http.StatusOK, ScoreResponse{Success: true, Player: rec})
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), store.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("offset: %w", err))
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	page, err := s.scores.Ranked(ctx, limit, offset)
	if err != nil {
		slog.Error("reading leaderboard", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to read leaderboard"))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getRank(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name, err := session.NormalizeName(ps.ByName("name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	rank, err := s.scores.RankOf(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		slog.Error("reading rank", "player", name, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to read rank"))
	default:
		writeJSON(w, http.StatusOK, rank)
	}
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	stats, err := s.scores.TopStats(ctx)
	if err != nil {
		slog.Error("reading stats", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to read stats"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.timeout)
}

// decodeBody reads one JSON object. With optional set, an empty body leaves
// v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative: %d", n)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
