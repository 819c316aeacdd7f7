package model

import "time"

// Entry is one user's submission to the ecosystem challenge.
//
// VotesCount is maintained by the vote transaction only. Clients never
// write it directly.
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ImageURL    string    `json:"imageUrl"`
	Description *string   `json:"description"`
	VotesCount  int       `json:"votesCount"`
	CreatedAt   time.Time `json:"createdAt"`

	// Author is filled in by feed listings. It is nil when the owner's
	// profile is missing.
	Author *Author `json:"author,omitempty"`

	// Voted is set on feed listings for a signed-in caller. It is nil for
	// anonymous readers and when the votes could not be read.
	Voted *bool `json:"voted,omitempty"`
}

// Author is the slice of the owner's profile shown next to an entry.
type Author struct {
	Username          string  `json:"username"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
}

// LeaderboardRow is one ranked line of the external points leaderboard.
type LeaderboardRow struct {
	Username     string `json:"username"`
	TokenBalance int64  `json:"tokenBalance"`
}
