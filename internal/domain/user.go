package domain

import "time"

// MinRating is the floor below which a skill rating never drops.
const MinRating = 100

// User holds the account fields the market core reads and settles against.
// Session and cosmetic state live elsewhere.
type User struct {
	ID          string
	Username    string
	Balance     int64
	Rating      int // ELO-style skill rating, floored at MinRating
	WinStreak   int
	TotalWins   int
	TotalLosses int
	TotalProfit int64
	IsBot       bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
