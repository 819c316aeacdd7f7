// Package leaderboard reads the token leaderboard from the external points
// database. The database belongs to another system; this package only ever
// issues one read-only SELECT against it.
//
// FAILURE IS AN EMPTY BOARD:
// The leaderboard is decoration on the community page. When the database is
// unreachable or not configured, Top logs the failure, counts it, and returns
// an empty slice. Callers never see an error.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sakif/ecochallenge/internal/metrics"
	"github.com/sakif/ecochallenge/internal/model"
)

const (
	DefaultLimit = 15
	MaxLimit     = 100

	table        = "profiles"
	queryTimeout = 5 * time.Second
)

// DefaultDenylist holds the usernames of internal and test accounts.
var DefaultDenylist = []string{"Admin", "Test", "b"}

// Open prepares the pool for the points database without contacting it.
// Connections are made per query, so a database that is down at boot is
// picked up by the first Top call after it recovers. Only a malformed dsn
// fails here.
//
// The pool is kept small: this service issues one query per leaderboard view.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: opening: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: getting pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Reader serves ranked rows. A Reader with a nil db is valid and always
// returns an empty board.
type Reader struct {
	db       *gorm.DB
	denylist []string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewReader returns a Reader over db. A nil denylist means DefaultDenylist.
func NewReader(db *gorm.DB, denylist []string, logger *slog.Logger, m *metrics.Metrics) *Reader {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	return &Reader{db: db, denylist: denylist, logger: logger, metrics: m}
}

// Top returns up to limit rows ordered by token balance, highest first.
// limit <= 0 means DefaultLimit; values above MaxLimit are capped.
func (r *Reader) Top(ctx context.Context, limit int) []model.LeaderboardRow {
	rows := []model.LeaderboardRow{}

	if r.db == nil {
		r.logger.Debug("leaderboard database not configured")
		return rows
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := r.query(r.db.WithContext(ctx), clampLimit(limit)).Find(&rows).Error; err != nil {
		r.logger.Error("leaderboard query failed", "error", err)
		r.metrics.LeaderboardFailure()
		return []model.LeaderboardRow{}
	}
	return rows
}

// query builds:
//
//	SELECT username, token_balance FROM profiles
//	WHERE username NOT IN (...) ORDER BY token_balance DESC LIMIT n
func (r *Reader) query(tx *gorm.DB, limit int) *gorm.DB {
	tx = tx.Table(table).Select("username, token_balance")
	// NOT IN with an empty list renders as NOT IN (NULL), which matches nothing.
	if len(r.denylist) > 0 {
		tx = tx.Where("username NOT IN ?", r.denylist)
	}
	return tx.Order("token_balance DESC").Limit(limit)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
