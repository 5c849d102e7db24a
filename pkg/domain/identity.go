package domain

// Identity is the tagged union of the two actor kinds the system serves: a
// registered user or a guest. Lessons, documents and answers are always owned
// by exactly one of the two; threading the union through service contracts
// replaces null-based branching on foreign keys.
type Identity struct {
	user  UserID
	guest GuestID
}

// RegisteredIdentity builds an Identity for a registered user.
func RegisteredIdentity(id UserID) Identity {
	return Identity{user: id}
}

// GuestIdentity builds an Identity for a guest.
func GuestIdentity(id GuestID) Identity {
	return Identity{guest: id}
}

// User returns the user id and true when the identity is a registered user.
func (i Identity) User() (UserID, bool) {
	return i.user, !i.user.IsNil()
}

// Guest returns the guest id and true when the identity is a guest.
func (i Identity) Guest() (GuestID, bool) {
	return i.guest, !i.guest.IsNil() && i.user.IsNil()
}

// IsRegistered reports whether the identity is a registered user.
func (i Identity) IsRegistered() bool {
	return !i.user.IsNil()
}

// IsNil reports whether the identity carries neither kind.
func (i Identity) IsNil() bool {
	return i.user.IsNil() && i.guest.IsNil()
}

// String renders a stable key for logs and audit events.
func (i Identity) String() string {
	if i.IsRegistered() {
		return "user:" + i.user.String()
	}
	if i.guest.IsNil() {
		return "none"
	}
	return "guest:" + i.guest.String()
}
