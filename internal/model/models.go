// Package model defines the data models for the media concierge bot.
package model

import "time"

// User represents a Telegram user's score record. A record is created
// lazily on the user's first checkin, warning or score interaction.
type User struct {
	ID           int64      `db:"id"`
	Score        int64      `db:"score"`
	CheckinCount int        `db:"checkin_count"`
	WarningCount int        `db:"warning_count"`
	LastCheckin  *time.Time `db:"last_checkin"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// MediaUser represents a linked account on the external media server
// (Emby or Jellyfin). At most one account is linked per Telegram user.
type MediaUser struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	MediaID   string    `db:"media_id"`
	MediaName string    `db:"media_name"`
	ExpiresAt time.Time `db:"expires_at"`
	IsBanned  bool      `db:"is_banned"`
	CreatedAt time.Time `db:"created_at"`
}

// Code represents an activation code for signing up or renewing a
// media account. Codes are single-use and deleted on redemption.
type Code struct {
	Code      string     `db:"code"`
	Type      string     `db:"code_type"`
	CreatedAt time.Time  `db:"created_at"`
	ExpiresAt *time.Time `db:"expires_at"`
}

// Code types for activation codes.
const (
	CodeTypeSignup = "signup" // creates a new media account
	CodeTypeRenew  = "renew"  // extends an existing media account
)
