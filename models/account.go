package models

import (
	"time"
)

// Account represents a user's token account
type Account struct {
	UserID       int64     `db:"user_id"`
	Balance      int64     `db:"balance"`
	DailyCount   int       `db:"daily_count"`
	DailyResetAt time.Time `db:"daily_reset_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
