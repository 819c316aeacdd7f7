package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/metrics"
	"github.com/sakif/ecochallenge/internal/repository"
)

type VoteService struct {
	votes   repository.VoteRepository
	retry   retrier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewVoteService(votes repository.VoteRepository, logger *slog.Logger, m *metrics.Metrics) *VoteService {
	return &VoteService{
		votes:   votes,
		retry:   newRetrier(logger, m),
		logger:  logger,
		metrics: m,
	}
}

// HasVoted reports whether userID has voted for entryID.
func (s *VoteService) HasVoted(ctx context.Context, userID, entryID string) (bool, error) {
	if userID == "" || entryID == "" {
		return false, nil
	}
	key := identity.Encode(userID)
	return retryRead(ctx, s.retry, "has voted", func(ctx context.Context) (bool, error) {
		return s.votes.HasVoted(ctx, key, entryID)
	})
}

// VotedAmong reports which of entryIDs userID has voted for. Feed pages use
// it to mark entries the caller already voted on.
func (s *VoteService) VotedAmong(ctx context.Context, userID string, entryIDs []string) (map[string]bool, error) {
	if userID == "" || len(entryIDs) == 0 {
		return map[string]bool{}, nil
	}
	key := identity.Encode(userID)
	return retryRead(ctx, s.retry, "voted entries", func(ctx context.Context) (map[string]bool, error) {
		return s.votes.VotedEntries(ctx, key, entryIDs)
	})
}

// Vote records userID's vote for entryID and returns the entry's new count.
//
// Errors:
//   - ErrAlreadyVoted: a vote by this user on this entry exists
//   - ErrNotFound: no such entry
//   - ErrForbidden: the entry belongs to the voter
//
// The pre-check is a courtesy. The vote transaction re-checks everything
// under the UNIQUE(user_id, entry_id) constraint.
func (s *VoteService) Vote(ctx context.Context, userID, entryID string) (int, error) {
	if userID == "" {
		return 0, apperror.ValidationFailed("userId", "user id is required")
	}
	if entryID == "" {
		return 0, apperror.ValidationFailed("entryId", "entry id is required")
	}

	voted, err := s.HasVoted(ctx, userID, entryID)
	if err != nil {
		return 0, err
	}
	if voted {
		return 0, apperror.AlreadyVoted(entryID)
	}

	key := identity.Encode(userID)
	count, err := s.votes.CastVote(ctx, key, entryID)
	if errors.Is(err, apperror.ErrStorage) {
		// The transaction may have committed before the error surfaced. A
		// vote that landed is reported as cast; only a missing one is retried.
		s.logger.Warn("vote failed, verifying",
			slog.String("userID", userID),
			slog.String("entryID", entryID),
			slog.String("error", err.Error()),
		)
		landed, checkErr := s.HasVoted(ctx, userID, entryID)
		switch {
		case checkErr != nil:
			// Still cannot read the store; report the original failure.
		case landed:
			count, err = s.currentCount(ctx, entryID)
		default:
			count, err = s.votes.CastVote(ctx, key, entryID)
		}
	}
	if err != nil {
		if errors.Is(err, apperror.ErrStorage) {
			s.logger.Error("failed to cast vote",
				slog.String("userID", userID),
				slog.String("entryID", entryID),
				slog.String("error", err.Error()),
			)
		}
		return 0, err
	}

	s.metrics.VoteCast()
	s.logger.Info("vote cast",
		slog.String("userID", userID),
		slog.String("entryID", entryID),
		slog.Int("votesCount", count),
	)
	return count, nil
}

func (s *VoteService) currentCount(ctx context.Context, entryID string) (int, error) {
	type result struct {
		count int
		found bool
	}
	r, err := retryRead(ctx, s.retry, "vote count", func(ctx context.Context) (result, error) {
		n, found, err := s.votes.VoteCount(ctx, entryID)
		return result{n, found}, err
	})
	if err != nil {
		return 0, err
	}
	if !r.found {
		return 0, apperror.NotFound("entry", entryID)
	}
	return r.count, nil
}
