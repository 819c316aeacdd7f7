package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/auth"
	"github.com/sakif/ecochallenge/internal/media"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/service"
)

const (
	// maxMultipartMemory is how much of a multipart body is held in memory;
	// the rest spills to temp files.
	maxMultipartMemory = 1 << 20

	// multipartOverhead covers boundaries, headers and the description field
	// on top of the image itself.
	multipartOverhead = 64 << 10

	feedEcosystem = "ecosystem"
)

// EntryHandler serves the entry feed and the entry lifecycle.
type EntryHandler struct {
	entries  EntryService
	votes    VoteService
	maxBytes int64
	pageSize int
	ecoSize  int
	logger   *slog.Logger
}

// EntryHandlerConfig carries the feed and upload limits from config.
type EntryHandlerConfig struct {
	MaxUploadBytes    int64
	FeedPageSize      int
	EcosystemPageSize int
}

// NewEntryHandler wires the entry routes. votes may be nil, in which case
// feed pages carry no per-entry voted flag.
func NewEntryHandler(entries EntryService, votes VoteService, cfg EntryHandlerConfig, logger *slog.Logger) *EntryHandler {
	h := &EntryHandler{
		entries:  entries,
		votes:    votes,
		maxBytes: cfg.MaxUploadBytes,
		pageSize: cfg.FeedPageSize,
		ecoSize:  cfg.EcosystemPageSize,
		logger:   logger,
	}
	if h.maxBytes <= 0 {
		h.maxBytes = media.DefaultMaxBytes
	}
	if h.pageSize <= 0 {
		h.pageSize = service.DefaultPageSize
	}
	if h.ecoSize <= 0 {
		h.ecoSize = service.DefaultEcosystemPageSize
	}
	return h
}

// HandleList returns one page of entries, newest first.
//
// HTTP: GET /api/entries?page=2&pageSize=10&feed=ecosystem
//
// The feed never errors: a storage failure is an empty array. Unparsable
// page numbers fall back to the defaults rather than failing the page.
//
// Auth: optional. A signed-in caller gets "voted" on every entry.
func (h *EntryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, err := strconv.Atoi(q.Get("pageSize"))
	if err != nil || pageSize == 0 {
		pageSize = h.pageSize
		if q.Get("feed") == feedEcosystem {
			pageSize = h.ecoSize
		}
	}

	entries := h.entries.List(r.Context(), page, pageSize)
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		h.markVoted(r, p.Subject, entries)
	}
	writeJSON(w, http.StatusOK, entries)
}

// markVoted sets Voted on every entry. If the votes cannot be read the page
// is served without the flags.
func (h *EntryHandler) markVoted(r *http.Request, userID string, entries []model.Entry) {
	if h.votes == nil || len(entries) == 0 {
		return
	}
	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}

	voted, err := h.votes.VotedAmong(r.Context(), userID, ids)
	if err != nil {
		h.logger.Warn("feed served without voted flags",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	for i := range entries {
		v := voted[entries[i].ID]
		entries[i].Voted = &v
	}
}

// HandleMine returns the caller's entry.
//
// HTTP: GET /api/entries/mine
// Auth: required
func (h *EntryHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	entry, found, err := h.entries.Get(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, apperror.NotFound("entry", p.Subject))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleSubmit accepts the caller's one entry.
//
// HTTP: POST /api/entries
// Auth: required
// BODY: multipart/form-data with
//   - file        (required) JPEG, PNG or GIF
//   - description (optional)
//   - userId      (optional) must be the caller when present
//
// Every rejection of the upload itself is a 400, including "already has an
// entry". That one is a conflict elsewhere in the API but the upload form
// reports it as a bad request.
func (h *EntryHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("file", fmt.Sprintf("file is too large (maximum %d bytes)", h.maxBytes)))
			return
		}
		writeError(w, apperror.ValidationFailed("file", "expected a multipart/form-data upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	if userID := r.MultipartForm.Value["userId"]; len(userID) > 0 && userID[0] != "" && userID[0] != p.Subject {
		h.logger.Warn("entry submit for another user",
			slog.String("caller", p.Subject),
			slog.String("userId", userID[0]),
		)
		writeError(w, apperror.Forbidden("you can only submit your own entry"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "file is required"))
		return
	}
	defer file.Close()

	var description *string
	if vals := r.MultipartForm.Value["description"]; len(vals) > 0 {
		description = &vals[0]
	}

	entry, err := h.entries.Submit(r.Context(), p.Subject, file, description)
	if err != nil {
		if errors.Is(err, apperror.ErrAlreadyExists) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "already_exists",
				Message: "you have already submitted an entry",
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleDelete removes the caller's entry. Deleting someone else's entry, or
// one that does not exist, is accepted and does nothing.
//
// HTTP: DELETE /api/entries/{id}
// Auth: required
func (h *EntryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.entries.Delete(r.Context(), p.Subject, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
