package main

import (
	"context"

	guestservice "quizdeck/internal/guest/service"
	id "quizdeck/pkg/domain"
)

// guestTransferrer adapts the guest service's transfer to the narrower
// contract registration uses: registration only cares that the claim
// succeeded, not what moved.
type guestTransferrer struct {
	guests *guestservice.Service
}

func (t *guestTransferrer) Transfer(ctx context.Context, guestToken string, userID id.UserID) error {
	_, err := t.guests.Transfer(ctx, guestToken, userID)
	return err
}
