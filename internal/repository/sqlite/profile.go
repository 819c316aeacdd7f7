package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

const profileColumns = `id, email, username, profile_picture_url, country, created_at, updated_at`

// UpsertProfile inserts or updates the profile keyed on p.Key and returns the
// stored row.
//
// PARTIAL UPDATES:
// ON CONFLICT(id) DO UPDATE rewrites email and username unconditionally. The
// nullable columns use CASE WHEN <set> so a field the caller left out keeps
// its stored value, while a field set to nil is cleared. On insert an omitted
// field is simply NULL.
//
// The UNIQUE index on username turns a taken username into a conflict here
// even if the service's availability check raced with another request.
func (db *DB) UpsertProfile(ctx context.Context, p repository.ProfileUpsert) (*model.Profile, error) {
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     email = excluded.email,
		     username = excluded.username,
		     profile_picture_url = CASE WHEN ? THEN excluded.profile_picture_url ELSE user_profiles.profile_picture_url END,
		     country = CASE WHEN ? THEN excluded.country ELSE user_profiles.country END,
		     updated_at = excluded.updated_at`,
		p.Key.String(),
		p.Email,
		p.Username,
		p.ProfilePictureURL.Value,
		p.Country.Value,
		now,
		now,
		p.ProfilePictureURL.Set,
		p.Country.Set,
	)
	if err != nil {
		switch classify(err) {
		case constraintUnique:
			return nil, apperror.Conflict("profile", "username "+p.Username+" is taken")
		}
		return nil, apperror.Storage("upserting profile", err)
	}

	profile, found, err := db.GetProfile(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.Storage("upserting profile", errors.New("row missing after upsert"))
	}
	return profile, nil
}

// InsertProfile is the first-login path. ON CONFLICT(id) DO NOTHING makes two
// racing first logins for the same user settle on whichever row landed first,
// instead of the second one overwriting the username.
func (db *DB) InsertProfile(ctx context.Context, p repository.ProfileUpsert) (*model.Profile, error) {
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		p.Key.String(),
		p.Email,
		p.Username,
		p.ProfilePictureURL.Value,
		p.Country.Value,
		now,
		now,
	)
	if err != nil {
		if classify(err) == constraintUnique {
			return nil, apperror.Conflict("profile", "username "+p.Username+" is taken")
		}
		return nil, apperror.Storage("inserting profile", err)
	}

	profile, found, err := db.GetProfile(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.Storage("inserting profile", errors.New("row missing after insert"))
	}
	return profile, nil
}

// GetProfile returns the profile stored under key.
func (db *DB) GetProfile(ctx context.Context, key identity.Key) (*model.Profile, bool, error) {
	var p model.Profile
	var id string

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE id = ?`,
		key.String(),
	).Scan(
		&id,
		&p.Email,
		&p.Username,
		&p.ProfilePictureURL,
		&p.Country,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, apperror.Storage("getting profile", err)
	}

	p.ID = identity.Decode(id)
	return &p, true, nil
}

// UsernameOwner looks up which profile holds username. Matching is exact
// (case-sensitive), the same comparison the UNIQUE index makes.
func (db *DB) UsernameOwner(ctx context.Context, username string) (identity.Key, bool, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM user_profiles WHERE username = ?`, username,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, apperror.Storage("checking username", err)
	}
	return identity.Key(id), true, nil
}
