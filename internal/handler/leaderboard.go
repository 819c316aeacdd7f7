package handler

import (
	"net/http"
	"strconv"
)

type LeaderboardHandler struct {
	reader       LeaderboardReader
	defaultLimit int
}

func NewLeaderboardHandler(reader LeaderboardReader, defaultLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{reader: reader, defaultLimit: defaultLimit}
}

// HandleTop returns the ranked points leaderboard.
//
// HTTP: GET /api/leaderboard?limit=15
// RESPONSE: [{"username": "alice", "tokenBalance": 1200}, ...]
//
// Always 200. An unreachable points database is an empty array.
func (h *LeaderboardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = h.defaultLimit
	}
	writeJSON(w, http.StatusOK, h.reader.Top(r.Context(), limit))
}
