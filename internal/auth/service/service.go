// Package service implements account registration, login and profile
// management.
package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"quizdeck/internal/auth/models"
	"quizdeck/pkg/device"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, userID id.UserID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
}

// TokenIssuer mints the token pair returned on register and login.
type TokenIssuer interface {
	GeneratePair(userID id.UserID) (access string, refresh string, err error)
	ValidateRefreshToken(tokenString string) (id.UserID, error)
	AccessTTL() time.Duration
}

// Transferrer moves a guest's documents and lessons onto a freshly
// registered account. Implemented by the guest service.
type Transferrer interface {
	Transfer(ctx context.Context, guestToken string, userID id.UserID) error
}

type Service struct {
	store     Store
	tokens    TokenIssuer
	transfers Transferrer
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTransferrer enables guest-to-account transfer at registration time.
func WithTransferrer(t Transferrer) Option {
	return func(s *Service) { s.transfers = t }
}

func New(store Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and returns its first token pair. When the
// request carries a guest token, the guest's work is transferred onto the new
// account; a failed transfer does not roll back the registration, the guest
// can retry the transfer explicitly.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.User, models.TokenPair, error) {
	if err := req.Validate(); err != nil {
		return nil, models.TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	u := &models.User{
		ID:             id.NewUserID(),
		Email:          req.Email,
		Username:       req.Username,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PasswordHash:   string(hash),
		EducationLevel: req.EducationLevel,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, models.TokenPair{}, err
	}

	if req.GuestToken != "" && s.transfers != nil {
		if err := s.transfers.Transfer(ctx, req.GuestToken, u.ID); err != nil {
			s.logger.WarnContext(ctx, "guest transfer at registration failed",
				"user_id", u.ID.String(),
				"error", err,
			)
		}
	}

	pair, err := s.issuePair(u.ID)
	if err != nil {
		return nil, models.TokenPair{}, err
	}
	return u, pair, nil
}

// Login verifies credentials and returns a fresh token pair. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.User, models.TokenPair, error) {
	if err := req.Validate(); err != nil {
		return nil, models.TokenPair{}, err
	}

	u, err := s.store.GetByEmail(ctx, req.Email)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return nil, models.TokenPair{}, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, models.TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, models.TokenPair{}, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	pair, err := s.issuePair(u.ID)
	if err != nil {
		return nil, models.TokenPair{}, err
	}
	s.logger.InfoContext(ctx, "login",
		"user_id", u.ID.String(),
		"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
	)
	return u, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	userID, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid refresh token")
	}
	if _, err := s.store.GetByID(ctx, userID); err != nil {
		return models.TokenPair{}, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
	}
	return s.issuePair(userID)
}

// Profile returns the account behind userID.
func (s *Service) Profile(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.store.GetByID(ctx, userID)
}

// CreatorProfile reports the education level and plan used when generating
// content for the user.
func (s *Service) CreatorProfile(ctx context.Context, userID id.UserID) (string, bool, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return "", false, err
	}
	return u.EducationLevel, u.IsPremium, nil
}

// UpdateProfile applies the non-nil fields of req to the account.
func (s *Service) UpdateProfile(ctx context.Context, userID id.UserID, req models.UpdateProfileRequest) (*models.User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Username != nil {
		if *req.Username == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "username cannot be empty")
		}
		u.Username = *req.Username
	}
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.EducationLevel != nil {
		u.EducationLevel = *req.EducationLevel
	}
	if err := s.store.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) issuePair(userID id.UserID) (models.TokenPair, error) {
	access, refresh, err := s.tokens.GeneratePair(userID)
	if err != nil {
		return models.TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "issue tokens")
	}
	return models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}
