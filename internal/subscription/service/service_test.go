package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quizdeck/internal/subscription/models"
	subStore "quizdeck/internal/subscription/store"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// Justification for unit tests:
// The webhook is the only writer of billing state, so its application rules
// are load-bearing: a wrong premium flip locks a paying user out or hands
// out free unlimited use. The fake provider lets the create/cancel paths
// exercise the duplicate-creation claim and the stale-subscription
// fallthrough without a network.

type fakeProvider struct {
	customers     int
	subscriptions map[string]*ProviderSubscription
	nextID        string
	createErr     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subscriptions: make(map[string]*ProviderSubscription),
		nextID:        "sub_fake_1",
	}
}

func (p *fakeProvider) EnsureCustomer(context.Context, string, string) (string, error) {
	p.customers++
	return "cus_fake", nil
}

func (p *fakeProvider) CreateSubscription(_ context.Context, _, _ string) (*ProviderSubscription, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	sub := &ProviderSubscription{
		ID:           p.nextID,
		Status:       "incomplete",
		Interval:     "month",
		ClientSecret: "pi_secret",
	}
	p.subscriptions[sub.ID] = sub
	return sub, nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, subscriptionID string) (*ProviderSubscription, error) {
	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no such subscription")
	}
	clone := *sub
	return &clone, nil
}

func (p *fakeProvider) CancelAtPeriodEnd(_ context.Context, subscriptionID string) (*ProviderSubscription, error) {
	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no such subscription")
	}
	sub.CancelAtPeriodEnd = true
	sub.CurrentPeriodEnd = time.Now().Add(20 * 24 * time.Hour)
	clone := *sub
	return &clone, nil
}

type SubscriptionServiceSuite struct {
	suite.Suite
	store    *subStore.InMemoryStore
	provider *fakeProvider
	service  *Service
	userID   id.UserID
}

func TestSubscriptionServiceSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.store = subStore.NewInMemoryStore()
	s.provider = newFakeProvider()
	s.userID = id.NewUserID()
	s.store.Seed(&models.State{UserID: s.userID, Email: "payer@example.com"})

	var err error
	s.service, err = New(s.store, s.provider)
	s.Require().NoError(err)
}

func (s *SubscriptionServiceSuite) state() *models.State {
	state, err := s.store.GetByUserID(context.Background(), s.userID)
	s.Require().NoError(err)
	return state
}

// ===== Create and cancel =====

func (s *SubscriptionServiceSuite) TestCreateProvisionsCustomerAndSubscription() {
	ctx := context.Background()

	checkout, err := s.service.Create(ctx, s.userID, "price_monthly")
	s.Require().NoError(err)
	s.Equal("sub_fake_1", checkout.SubscriptionID)
	s.Equal("pi_secret", checkout.ClientSecret)

	state := s.state()
	s.Equal("cus_fake", state.CustomerID)
	s.Equal("sub_fake_1", state.SubscriptionID)
	s.Equal("incomplete", state.Status)
	s.False(state.Pending, "the creation claim must be released")
	s.Equal(1, s.provider.customers)
}

func (s *SubscriptionServiceSuite) TestCreateRejectsLiveSubscription() {
	ctx := context.Background()

	_, err := s.service.Create(ctx, s.userID, "price_monthly")
	s.Require().NoError(err)
	s.provider.subscriptions["sub_fake_1"].Status = "active"

	_, err = s.service.Create(ctx, s.userID, "price_monthly")
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *SubscriptionServiceSuite) TestCreateReplacesSubscriptionGoneFromProvider() {
	ctx := context.Background()

	_, err := s.service.Create(ctx, s.userID, "price_monthly")
	s.Require().NoError(err)
	delete(s.provider.subscriptions, "sub_fake_1")
	s.provider.nextID = "sub_fake_2"

	checkout, err := s.service.Create(ctx, s.userID, "price_monthly")
	s.Require().NoError(err)
	s.Equal("sub_fake_2", checkout.SubscriptionID)
	s.Equal("sub_fake_2", s.state().SubscriptionID)
}

func (s *SubscriptionServiceSuite) TestCreateReleasesClaimOnProviderFailure() {
	ctx := context.Background()
	s.provider.createErr = dErrors.New(dErrors.CodeUnavailable, "provider down")

	_, err := s.service.Create(ctx, s.userID, "price_monthly")
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
	s.False(s.state().Pending)

	// A later attempt is not blocked by a stuck claim.
	s.provider.createErr = nil
	_, err = s.service.Create(ctx, s.userID, "price_monthly")
	s.NoError(err)
}

func (s *SubscriptionServiceSuite) TestConcurrentClaimConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.ClaimPending(ctx, s.userID))

	_, err := s.service.Create(ctx, s.userID, "price_monthly")
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *SubscriptionServiceSuite) TestCancelSchedulesPeriodEnd() {
	ctx := context.Background()
	_, err := s.service.Create(ctx, s.userID, "price_monthly")
	s.Require().NoError(err)

	cancelAt, err := s.service.Cancel(ctx, s.userID)
	s.Require().NoError(err)
	s.False(cancelAt.IsZero())

	state := s.state()
	s.True(state.CancelAtPeriodEnd)
	s.Require().NotNil(state.CurrentPeriodEnd)
}

func (s *SubscriptionServiceSuite) TestCancelWithoutSubscription() {
	_, err := s.service.Cancel(context.Background(), s.userID)
	s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

// ===== Webhook application =====

func (s *SubscriptionServiceSuite) seedSubscribed(status string) {
	s.store.Seed(&models.State{
		UserID:         s.userID,
		Email:          "payer@example.com",
		IsPremium:      status == models.StatusActive || status == models.StatusTrialing,
		CustomerID:     "cus_fake",
		SubscriptionID: "sub_fake_1",
		Status:         status,
	})
}

func (s *SubscriptionServiceSuite) TestSubscriptionCreatedEventActivatesPremium() {
	ctx := context.Background()
	s.store.Seed(&models.State{UserID: s.userID, Email: "payer@example.com", CustomerID: "cus_fake"})
	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()

	err := s.service.ApplyEvent(ctx, Event{
		Type:             EventSubscriptionCreated,
		CustomerID:       "cus_fake",
		SubscriptionID:   "sub_fake_1",
		Status:           models.StatusActive,
		Interval:         "month",
		CurrentPeriodEnd: &periodEnd,
	})
	s.Require().NoError(err)

	state := s.state()
	s.True(state.IsPremium)
	s.Equal("sub_fake_1", state.SubscriptionID)
	s.Equal("month", state.Interval)
	s.Require().NotNil(state.CurrentPeriodEnd)
}

func (s *SubscriptionServiceSuite) TestIncompleteCreationDoesNotGrantPremium() {
	ctx := context.Background()
	s.store.Seed(&models.State{UserID: s.userID, Email: "payer@example.com", CustomerID: "cus_fake"})

	err := s.service.ApplyEvent(ctx, Event{
		Type:           EventSubscriptionCreated,
		CustomerID:     "cus_fake",
		SubscriptionID: "sub_fake_1",
		Status:         "incomplete",
	})
	s.Require().NoError(err)
	s.False(s.state().IsPremium)
}

func (s *SubscriptionServiceSuite) TestCanceledKeepsPremiumUntilPeriodEnd() {
	s.seedSubscribed(models.StatusActive)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	future := now.Add(10 * 24 * time.Hour)
	err := s.service.ApplyEvent(ctx, Event{
		Type:              EventSubscriptionUpdated,
		SubscriptionID:    "sub_fake_1",
		Status:            models.StatusCanceled,
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  &future,
	})
	s.Require().NoError(err)

	state := s.state()
	s.True(state.IsPremium, "paid period is not over yet")
	s.Equal(models.StatusCanceled, state.Status)
	s.True(state.CancelAtPeriodEnd)
}

func (s *SubscriptionServiceSuite) TestCanceledPastPeriodEndDropsPremium() {
	s.seedSubscribed(models.StatusActive)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	past := now.Add(-time.Hour)
	err := s.service.ApplyEvent(ctx, Event{
		Type:             EventSubscriptionUpdated,
		SubscriptionID:   "sub_fake_1",
		Status:           models.StatusCanceled,
		CurrentPeriodEnd: &past,
	})
	s.Require().NoError(err)
	s.False(s.state().IsPremium)
}

func (s *SubscriptionServiceSuite) TestSubscriptionDeletedClearsBillingFields() {
	s.seedSubscribed(models.StatusActive)
	ctx := context.Background()
	canceledAt := time.Now().UTC()

	err := s.service.ApplyEvent(ctx, Event{
		Type:           EventSubscriptionUpdated,
		SubscriptionID: "sub_fake_1",
		Status:         models.StatusActive,
		CanceledAt:     &canceledAt,
	})
	s.Require().NoError(err)

	err = s.service.ApplyEvent(ctx, Event{
		Type:           EventSubscriptionDeleted,
		SubscriptionID: "sub_fake_1",
	})
	s.Require().NoError(err)

	state := s.state()
	s.False(state.IsPremium)
	s.Equal(models.StatusCanceled, state.Status)
	s.Empty(state.SubscriptionID)
	s.Empty(state.Interval)
	s.Nil(state.CurrentPeriodEnd)
	s.False(state.CancelAtPeriodEnd)
	s.NotNil(state.CanceledAt, "cancellation timestamp is kept for history")
}

func (s *SubscriptionServiceSuite) TestInvoiceEventsToggleStatus() {
	ctx := context.Background()

	s.seedSubscribed(models.StatusPastDue)
	err := s.service.ApplyEvent(ctx, Event{Type: EventInvoicePaid, SubscriptionID: "sub_fake_1"})
	s.Require().NoError(err)
	state := s.state()
	s.True(state.IsPremium)
	s.Equal(models.StatusActive, state.Status)

	err = s.service.ApplyEvent(ctx, Event{Type: EventInvoiceFailed, SubscriptionID: "sub_fake_1"})
	s.Require().NoError(err)
	state = s.state()
	s.False(state.IsPremium)
	s.Equal(models.StatusPastDue, state.Status)
}

func (s *SubscriptionServiceSuite) TestEventForUnknownUserIsDropped() {
	err := s.service.ApplyEvent(context.Background(), Event{
		Type:           EventInvoicePaid,
		SubscriptionID: "sub_unknown",
	})
	s.NoError(err, "the provider must not retry events for users we do not know")
}

func (s *SubscriptionServiceSuite) TestUnknownEventTypeIgnored() {
	err := s.service.ApplyEvent(context.Background(), Event{Type: "charge.refunded"})
	s.NoError(err)
}
