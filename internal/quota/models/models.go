// Package models holds the daily usage window types.
package models

import (
	"time"

	id "quizdeck/pkg/domain"
)

// UserUsage is the per-user daily counter state read from the users table.
// A zero window date means the user has never consumed that allowance.
type UserUsage struct {
	UserID       id.UserID
	IsPremium    bool
	CreatedCount int
	CreatedDate  time.Time
	AttemptCount int
	AttemptDate  time.Time
}

// Role derives the quota tier from the premium flag. Guests never reach the
// quota tracker; their allowance is lifetime-scoped and lives with the guest
// identity.
func (u *UserUsage) Role() id.Role {
	if u.IsPremium {
		return id.RolePremium
	}
	return id.RoleFree
}

// Snapshot is the remaining-allowance view returned to clients.
type Snapshot struct {
	Role              string `json:"role"`
	QuizzesUsedToday  int    `json:"quizzes_used_today"`
	QuizzesPerDay     int    `json:"quizzes_per_day"`
	AttemptsUsedToday int    `json:"attempts_used_today"`
	AttemptsPerDay    int    `json:"attempts_per_day"`
	Unlimited         bool   `json:"unlimited"`
}
