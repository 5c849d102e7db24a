package domain

// Role is the user-facing tier derived from identity and subscription state.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleFree    Role = "free"
	RolePremium Role = "premium"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleGuest, RoleFree, RolePremium:
		return true
	}
	return false
}

// Unlimited marks a per-day limit with no cap.
const Unlimited = -1

// RoleLimits is the enumerated per-role configuration table. Every role has
// every field; there is no missing-key case.
type RoleLimits struct {
	MaxQuestions      int
	MaxQuizzesPerDay  int
	MaxAttemptsPerDay int
	MaxFileSizeMB     int64
	CanSaveResults    bool
}

// GuestDocumentCap is the lifetime document allowance for a guest identity.
// The block threshold is defined as "count >= cap", never duplicated.
const GuestDocumentCap = 1

var roleLimits = map[Role]RoleLimits{
	RoleGuest: {
		MaxQuestions:      5,
		MaxQuizzesPerDay:  GuestDocumentCap,
		MaxAttemptsPerDay: 1,
		MaxFileSizeMB:     2,
		CanSaveResults:    false,
	},
	RoleFree: {
		MaxQuestions:      6,
		MaxQuizzesPerDay:  1,
		MaxAttemptsPerDay: 2,
		MaxFileSizeMB:     5,
		CanSaveResults:    true,
	},
	RolePremium: {
		MaxQuestions:      50,
		MaxQuizzesPerDay:  Unlimited,
		MaxAttemptsPerDay: Unlimited,
		MaxFileSizeMB:     50,
		CanSaveResults:    true,
	},
}

// LimitsFor returns the limits table entry for a role. Unknown roles get the
// guest entry, the most restrictive.
func LimitsFor(r Role) RoleLimits {
	if limits, ok := roleLimits[r]; ok {
		return limits
	}
	return roleLimits[RoleGuest]
}
