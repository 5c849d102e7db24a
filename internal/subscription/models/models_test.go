package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "quizdeck/pkg/domain"
)

// Justification for unit tests:
// Role and status are pure projections over the billing columns, and every
// limits decision in the system keys on them. The table pins the premium
// flag's precedence over provider status, the permanent label for accounts
// granted premium outside billing, and which provider statuses count as
// usable.

func TestDerivation(t *testing.T) {
	periodEnd := time.Now().Add(24 * time.Hour)

	cases := []struct {
		name       string
		state      State
		wantRole   id.Role
		wantStatus string
		wantActive bool
	}{
		{
			name:       "free account",
			state:      State{},
			wantRole:   id.RoleFree,
			wantStatus: StatusInactive,
			wantActive: false,
		},
		{
			name:       "manually granted premium",
			state:      State{IsPremium: true},
			wantRole:   id.RolePremium,
			wantStatus: StatusPermanent,
			wantActive: false,
		},
		{
			name:       "active subscription",
			state:      State{IsPremium: true, SubscriptionID: "sub_1", Status: StatusActive},
			wantRole:   id.RolePremium,
			wantStatus: StatusActive,
			wantActive: true,
		},
		{
			name:       "trial counts as active",
			state:      State{IsPremium: true, SubscriptionID: "sub_1", Status: StatusTrialing},
			wantRole:   id.RolePremium,
			wantStatus: StatusTrialing,
			wantActive: true,
		},
		{
			name:       "past due keeps access while payment retries",
			state:      State{IsPremium: true, SubscriptionID: "sub_1", Status: StatusPastDue},
			wantRole:   id.RolePremium,
			wantStatus: StatusPastDue,
			wantActive: true,
		},
		{
			name: "canceled but premium until period end",
			state: State{
				IsPremium: true, SubscriptionID: "sub_1", Status: StatusCanceled,
				CurrentPeriodEnd: &periodEnd, CancelAtPeriodEnd: true,
			},
			wantRole:   id.RolePremium,
			wantStatus: StatusCanceled,
			wantActive: false,
		},
		{
			name:       "provider status does not demote the premium flag",
			state:      State{IsPremium: true, SubscriptionID: "sub_1", Status: "unpaid"},
			wantRole:   id.RolePremium,
			wantStatus: "unpaid",
			wantActive: false,
		},
		{
			name:       "subscription id without premium is inactive",
			state:      State{SubscriptionID: "sub_1", Status: StatusActive},
			wantRole:   id.RoleFree,
			wantStatus: StatusInactive,
			wantActive: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantRole, tc.state.Role())
			assert.Equal(t, tc.wantStatus, tc.state.StatusLabel())
			assert.Equal(t, tc.wantActive, tc.state.IsActive())
		})
	}
}
