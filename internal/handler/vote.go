package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type VoteHandler struct {
	votes  VoteService
	logger *slog.Logger
}

func NewVoteHandler(votes VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logger}
}

// HandleHasVoted reports whether the caller voted for the entry.
//
// HTTP: GET /api/entries/{id}/vote
// RESPONSE: {"voted": true}
func (h *VoteHandler) HandleHasVoted(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	voted, err := h.votes.HasVoted(r.Context(), p.Subject, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"voted": voted})
}

// HandleVote casts the caller's vote.
//
// HTTP: POST /api/entries/{id}/vote
// RESPONSE: {"votesCount": 13}
//
// 409 when already voted, 403 for the caller's own entry, 404 for an unknown
// entry.
func (h *VoteHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	count, err := h.votes.Vote(r.Context(), p.Subject, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"votesCount": count})
}
