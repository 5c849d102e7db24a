// Package models holds the account types shared by the auth store, service
// and handler.
package models

import (
	"strings"
	"time"

	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// User is the account row. Quota counters and billing columns live on the
// same table but are owned by the quota and subscription stores.
type User struct {
	ID             id.UserID
	Email          string
	Username       string
	FirstName      string
	LastName       string
	PasswordHash   string
	EducationLevel string
	IsPremium      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RegisterRequest is the signup payload.
type RegisterRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	EducationLevel  string `json:"education_level"`
	GuestToken      string `json:"guest_token,omitempty"`
}

func (r *RegisterRequest) Validate() error {
	r.Email = strings.TrimSpace(strings.ToLower(r.Email))
	r.Username = strings.TrimSpace(r.Username)
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if len(r.Password) < 8 {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if r.Password != r.ConfirmPassword {
		return dErrors.New(dErrors.CodeValidation, "passwords do not match")
	}
	return nil
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(strings.ToLower(r.Email))
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

// UpdateProfileRequest carries the editable profile fields. Nil pointers
// leave the current value untouched.
type UpdateProfileRequest struct {
	Username       *string `json:"username,omitempty"`
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	EducationLevel *string `json:"education_level,omitempty"`
}

// TokenPair is returned on register and login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Profile is the public view of a user.
type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	EducationLevel string    `json:"education_level"`
	IsPremium      bool      `json:"is_premium"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProfileOf maps a stored user onto its public view.
func ProfileOf(u *User) Profile {
	return Profile{
		ID:             u.ID.String(),
		Email:          u.Email,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		EducationLevel: u.EducationLevel,
		IsPremium:      u.IsPremium,
		CreatedAt:      u.CreatedAt,
	}
}
