package domain

import "time"

// Keeper models a staff account: counselors and moderators who run
// appointments and the moderation queue.
type Keeper struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Verified     bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
