package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/repository"
)

var _ repository.VoteRepository = (*DB)(nil)

// HasVoted reports whether user has a vote row for entryID.
func (db *DB) HasVoted(ctx context.Context, user identity.Key, entryID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM votes WHERE user_id = ? AND entry_id = ?)`,
		user.String(), entryID,
	).Scan(&exists)
	if err != nil {
		return false, apperror.Storage("checking vote", err)
	}
	return exists, nil
}

// VotedEntries returns the subset of entryIDs user has a vote row for, in
// one query for the whole feed page.
func (db *DB) VotedEntries(ctx context.Context, user identity.Key, entryIDs []string) (map[string]bool, error) {
	voted := map[string]bool{}
	if len(entryIDs) == 0 {
		return voted, nil
	}

	args := make([]any, 0, len(entryIDs)+1)
	args = append(args, user.String())
	for _, id := range entryIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entryIDs)), ",")

	rows, err := db.conn.QueryContext(ctx,
		`SELECT entry_id FROM votes WHERE user_id = ? AND entry_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, apperror.Storage("listing votes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Storage("scanning vote", err)
		}
		voted[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Storage("listing votes", err)
	}
	return voted, nil
}

// VoteCount returns votes_count for entryID.
func (db *DB) VoteCount(ctx context.Context, entryID string) (int, bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT votes_count FROM entries WHERE id = ?`, entryID,
	).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, apperror.Storage("reading vote count", err)
	}
	return count, true, nil
}

// CastVote records user's vote on entryID and bumps the entry's counter.
//
// ONE TRANSACTION:
// The vote row and the increment commit together or not at all, so
// votes_count always equals the number of vote rows. The UPDATE is relative
// (votes_count = votes_count + 1) rather than a read-modify-write, which is
// what keeps N concurrent voters from losing increments.
//
// Every statement below runs on tx. The pool has a single connection, and
// tx is holding it.
func (db *DB) CastVote(ctx context.Context, user identity.Key, entryID string) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperror.Storage("starting vote transaction", err)
	}
	// Rollback after a successful Commit is a no-op returning sql.ErrTxDone.
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM entries WHERE id = ?`, entryID,
	).Scan(&owner)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperror.NotFound("entry", entryID)
		}
		return 0, apperror.Storage("loading entry for vote", err)
	}
	if owner == user.String() {
		return 0, apperror.Forbidden("you cannot vote for your own entry")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO votes (id, user_id, entry_id, created_at) VALUES (?, ?, ?, ?)`,
		xid.New().String(), user.String(), entryID, time.Now().UTC(),
	)
	if err != nil {
		switch classify(err) {
		case constraintUnique:
			return 0, apperror.AlreadyVoted(entryID)
		case constraintForeignKey:
			return 0, apperror.ValidationFailed("userId", "a profile is required before voting")
		}
		return 0, apperror.Storage("inserting vote", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE entries SET votes_count = votes_count + 1 WHERE id = ?`, entryID,
	); err != nil {
		return 0, apperror.Storage("incrementing votes", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT votes_count FROM entries WHERE id = ?`, entryID,
	).Scan(&count); err != nil {
		return 0, apperror.Storage("reading vote count", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperror.Storage("committing vote", err)
	}
	return count, nil
}
