package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"quizdeck/internal/auth/models"
	"quizdeck/internal/auth/store/user"
	"quizdeck/internal/auth/token"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
)

// Justification for unit tests: credential checks, the guest transfer hook
// and profile merging are service invariants better pinned here than through
// HTTP fixtures. The token issuer is the real JWT service so the pair the
// suite asserts on is the pair clients would receive.
type AuthServiceSuite struct {
	suite.Suite
	store     *user.InMemoryStore
	tokens    *token.JWTService
	transfers *fakeTransferrer
	service   *Service
}

type fakeTransferrer struct {
	calls    int
	token    string
	userID   id.UserID
	failWith error
}

func (f *fakeTransferrer) Transfer(_ context.Context, guestToken string, userID id.UserID) error {
	f.calls++
	f.token = guestToken
	f.userID = userID
	return f.failWith
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.store = user.NewInMemoryStore()
	s.tokens = token.NewJWTService("test-signing-key", "quizdeck", "quizdeck-api", 15*time.Minute, 24*time.Hour)
	s.transfers = &fakeTransferrer{}
	s.service = New(s.store, s.tokens, WithTransferrer(s.transfers))
}

func registerRequest() models.RegisterRequest {
	return models.RegisterRequest{
		Email:           "Ada@Example.com",
		Username:        "ada",
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
		EducationLevel:  "university",
	}
}

// =============================================================================
// Register
// =============================================================================

func (s *AuthServiceSuite) TestRegister() {
	ctx := context.Background()

	s.Run("creates the account and issues a pair", func() {
		u, pair, err := s.service.Register(ctx, registerRequest())
		s.Require().NoError(err)

		s.Equal("ada@example.com", u.Email, "email is normalized")
		s.NotEmpty(pair.AccessToken)
		s.NotEmpty(pair.RefreshToken)
		s.Equal(int64((15 * time.Minute).Seconds()), pair.ExpiresIn)

		stored, err := s.store.GetByEmail(ctx, "ada@example.com")
		s.Require().NoError(err)
		s.NotEqual("correct horse", stored.PasswordHash)
		s.NoError(bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse")))
	})

	s.Run("duplicate email conflicts", func() {
		_, _, err := s.service.Register(ctx, registerRequest())
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("validation failures", func() {
		cases := map[string]func(*models.RegisterRequest){
			"missing email":     func(r *models.RegisterRequest) { r.Email = "" },
			"malformed email":   func(r *models.RegisterRequest) { r.Email = "not-an-address" },
			"missing username":  func(r *models.RegisterRequest) { r.Username = "  " },
			"short password":    func(r *models.RegisterRequest) { r.Password, r.ConfirmPassword = "short", "short" },
			"password mismatch": func(r *models.RegisterRequest) { r.ConfirmPassword = "something else" },
		}
		for name, mutate := range cases {
			s.Run(name, func() {
				req := registerRequest()
				req.Email = "fresh-" + name + "@example.com"
				mutate(&req)
				_, _, err := s.service.Register(ctx, req)
				s.Require().Error(err)
				s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
			})
		}
	})
}

func (s *AuthServiceSuite) TestRegisterTransfersGuestWork() {
	ctx := context.Background()

	req := registerRequest()
	req.GuestToken = "guest-token-1"
	u, _, err := s.service.Register(ctx, req)
	s.Require().NoError(err)

	s.Equal(1, s.transfers.calls)
	s.Equal("guest-token-1", s.transfers.token)
	s.Equal(u.ID, s.transfers.userID)
}

func (s *AuthServiceSuite) TestRegisterSurvivesFailedTransfer() {
	ctx := context.Background()
	s.transfers.failWith = errors.New("guest already transferred")

	req := registerRequest()
	req.GuestToken = "guest-token-1"
	u, pair, err := s.service.Register(ctx, req)
	s.Require().NoError(err, "registration is not rolled back by a failed transfer")
	s.NotEmpty(pair.AccessToken)

	_, err = s.store.GetByID(ctx, u.ID)
	s.NoError(err)
}

func (s *AuthServiceSuite) TestRegisterWithoutGuestTokenSkipsTransfer() {
	_, _, err := s.service.Register(context.Background(), registerRequest())
	s.Require().NoError(err)
	s.Equal(0, s.transfers.calls)
}

// =============================================================================
// Login and Refresh
// =============================================================================

func (s *AuthServiceSuite) TestLogin() {
	ctx := context.Background()
	_, _, err := s.service.Register(ctx, registerRequest())
	s.Require().NoError(err)

	s.Run("valid credentials return a pair", func() {
		u, pair, err := s.service.Login(ctx, models.LoginRequest{
			Email:    "ADA@example.com",
			Password: "correct horse",
		})
		s.Require().NoError(err)
		s.Equal("ada@example.com", u.Email)
		s.NotEmpty(pair.AccessToken)
	})

	s.Run("wrong password and unknown email are indistinguishable", func() {
		_, _, errWrong := s.service.Login(ctx, models.LoginRequest{
			Email:    "ada@example.com",
			Password: "wrong horse",
		})
		_, _, errUnknown := s.service.Login(ctx, models.LoginRequest{
			Email:    "nobody@example.com",
			Password: "correct horse",
		})
		s.Require().Error(errWrong)
		s.Require().Error(errUnknown)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(errWrong))
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(errUnknown))
		s.Equal(errWrong.Error(), errUnknown.Error())
	})

	s.Run("missing fields fail validation", func() {
		_, _, err := s.service.Login(ctx, models.LoginRequest{Email: "ada@example.com"})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})
}

func (s *AuthServiceSuite) TestRefresh() {
	ctx := context.Background()
	_, pair, err := s.service.Register(ctx, registerRequest())
	s.Require().NoError(err)

	s.Run("refresh token yields a new pair", func() {
		next, err := s.service.Refresh(ctx, pair.RefreshToken)
		s.Require().NoError(err)
		s.NotEmpty(next.AccessToken)
		s.NotEmpty(next.RefreshToken)
	})

	s.Run("access token is rejected", func() {
		_, err := s.service.Refresh(ctx, pair.AccessToken)
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("garbage is rejected", func() {
		_, err := s.service.Refresh(ctx, "not.a.token")
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})
}

// =============================================================================
// Profile
// =============================================================================

func (s *AuthServiceSuite) TestUpdateProfile() {
	ctx := context.Background()
	u, _, err := s.service.Register(ctx, registerRequest())
	s.Require().NoError(err)

	s.Run("nil fields keep current values", func() {
		first := "Ada"
		updated, err := s.service.UpdateProfile(ctx, u.ID, models.UpdateProfileRequest{
			FirstName: &first,
		})
		s.Require().NoError(err)
		s.Equal("Ada", updated.FirstName)
		s.Equal("ada", updated.Username, "untouched field survives")
	})

	s.Run("empty username is rejected", func() {
		empty := ""
		_, err := s.service.UpdateProfile(ctx, u.ID, models.UpdateProfileRequest{
			Username: &empty,
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("unknown user is not found", func() {
		name := "ghost"
		_, err := s.service.UpdateProfile(ctx, id.NewUserID(), models.UpdateProfileRequest{
			Username: &name,
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *AuthServiceSuite) TestCreatorProfile() {
	ctx := context.Background()
	u, _, err := s.service.Register(ctx, registerRequest())
	s.Require().NoError(err)

	level, premium, err := s.service.CreatorProfile(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("university", level)
	s.False(premium)
}
