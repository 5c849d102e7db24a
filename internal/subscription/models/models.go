// Package models holds the subscription state stored on the user row and
// the read-time projection of it into roles and statuses.
package models

import (
	"time"

	id "quizdeck/pkg/domain"
)

// Statuses reported by the billing provider that count as usable.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"

	// StatusInactive and StatusPermanent are derived labels, never written
	// by the provider.
	StatusInactive  = "inactive"
	StatusPermanent = "permanent"
)

// State is the billing snapshot of one registered user. The webhook is the
// only writer of the provider fields; everything else reads.
type State struct {
	UserID            id.UserID
	Email             string
	IsPremium         bool
	CustomerID        string
	SubscriptionID    string
	Status            string
	Interval          string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	Pending           bool
}

// Role projects the state onto the plan the limits tables key on. The
// premium flag wins over whatever the provider last reported, so manually
// granted accounts stay premium through stale billing data.
func (s *State) Role() id.Role {
	if s.IsPremium {
		return id.RolePremium
	}
	return id.RoleFree
}

// StatusLabel is the user-facing subscription status. Non-premium accounts
// are inactive; premium without a provider subscription is permanent
// (granted outside billing); otherwise the provider's raw status is
// surfaced as-is.
func (s *State) StatusLabel() string {
	if !s.IsPremium {
		return StatusInactive
	}
	if s.SubscriptionID == "" {
		return StatusPermanent
	}
	return s.Status
}

// IsActive reports whether a provider-backed subscription is currently
// usable. past_due counts; the provider is still retrying payment.
func (s *State) IsActive() bool {
	if !s.IsPremium || s.SubscriptionID == "" {
		return false
	}
	switch s.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	}
	return false
}

// Info is the serialized projection returned to clients.
type Info struct {
	Role              string     `json:"role"`
	Status            string     `json:"status"`
	IsActive          bool       `json:"is_active"`
	Interval          string     `json:"interval,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// InfoOf builds the client projection of a state.
func InfoOf(s *State) Info {
	return Info{
		Role:              string(s.Role()),
		Status:            s.StatusLabel(),
		IsActive:          s.IsActive(),
		Interval:          s.Interval,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
}
