package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rpsls-backend/internal/engine"
	"github.com/DoyleJ11/rpsls-backend/internal/history"
	"github.com/DoyleJ11/rpsls-backend/internal/hub"
	"github.com/DoyleJ11/rpsls-backend/pkg/protocol"
)

const maxBody = 1 << 10

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// CreateRoom handles POST /rooms. The body is optional and defaults to best of 3.
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.CreateRoom
		err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		bestOf, err := engine.ParseBestOf(req.BestOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rm, err := h.Create(r.Context(), bestOf)
		if err != nil {
			log.Error("create room", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create room")
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: rm.Code()})
	}
}

type roomSummary struct {
	Code      string `json:"code"`
	BestOf    int    `json:"bestOf"`
	Seats     int    `json:"seats"`
	Round     int    `json:"round"`
	MatchOver bool   `json:"matchOver"`
}

// GetRoom handles GET /rooms/{code}, mostly so a share link can be checked before connecting.
func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := h.Find(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		v, err := rm.View(r.Context())
		if err != nil {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		writeJSON(w, http.StatusOK, roomSummary{
			Code:      v.Code,
			BestOf:    int(v.State.BestOf),
			Seats:     v.State.Seated(),
			Round:     v.State.Round,
			MatchOver: v.State.MatchOver,
		})
	}
}

type RivalryReader interface {
	Rivalry(ctx context.Context, a, b string) (history.RivalryStats, error)
}

// Rivalries handles GET /rivalries?player1=&player2=.
func Rivalries(store RivalryReader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p1 := strings.TrimSpace(r.URL.Query().Get("player1"))
		p2 := strings.TrimSpace(r.URL.Query().Get("player2"))
		if p1 == "" || p2 == "" {
			writeError(w, http.StatusBadRequest, "player1 and player2 are required")
			return
		}
		if p1 == p2 {
			writeError(w, http.StatusBadRequest, "a rivalry needs two different players")
			return
		}

		st, err := store.Rivalry(r.Context(), p1, p2)
		if err != nil {
			log.Error("load rivalry", zap.String("player1", p1), zap.String("player2", p2), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load rivalry")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func Stats(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.Count(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms int `json:"rooms"`
		}{Rooms: n})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
