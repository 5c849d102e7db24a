package service

import (
	"context"

	dErrors "quizdeck/pkg/domainerrors"
)

// UnconfiguredProvider rejects every billing call. It is wired when no
// provider credentials are configured, so the rest of the billing surface
// (webhook replay, entitlements) keeps working in development.
type UnconfiguredProvider struct{}

func (UnconfiguredProvider) EnsureCustomer(context.Context, string, string) (string, error) {
	return "", errNotConfigured()
}

func (UnconfiguredProvider) CreateSubscription(context.Context, string, string) (*ProviderSubscription, error) {
	return nil, errNotConfigured()
}

func (UnconfiguredProvider) GetSubscription(context.Context, string) (*ProviderSubscription, error) {
	return nil, errNotConfigured()
}

func (UnconfiguredProvider) CancelAtPeriodEnd(context.Context, string) (*ProviderSubscription, error) {
	return nil, errNotConfigured()
}

func errNotConfigured() error {
	return dErrors.New(dErrors.CodeUnavailable, "billing is not configured")
}
