package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/metrics"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

// UserService handles contributor accounts and their avatar and profile media.
type UserService struct {
	userRepo   repository.UserRepository
	refs       *referenceTracker
	bcryptCost int
	logger     zerolog.Logger
}

// UserServiceConfig contains user service settings.
type UserServiceConfig struct {
	// BcryptCost is the bcrypt work factor for password hashes.
	BcryptCost int
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	refRepo repository.ReferenceRepository,
	blobs *BlobService,
	reclaimer Reclaimer,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config UserServiceConfig,
) *UserService {
	cost := config.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	logger = logger.With().Str("service", "user").Logger()
	return &UserService{
		userRepo:   userRepo,
		refs:       newReferenceTracker(refRepo, blobs, reclaimer, m, logger),
		bcryptCost: cost,
		logger:     logger,
	}
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	Username     string
	Email        string
	Password     string
	DisplayName  string
	Bio          string
	IsAdmin      bool
	Avatar       string
	ProfileImage string
	Media        []MediaUpload
}

// Create creates a new user account. Media files are uploaded and linked
// before the insert and deleted again if it fails.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	// Validate input
	if err := s.validateCreateInput(input); err != nil {
		return nil, err
	}

	// Check if username already exists
	exists, err := s.userRepo.ExistsByUsername(ctx, input.Username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to check username existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: username '%s'", domain.ErrUserAlreadyExists, input.Username)
	}

	// Check if email already exists
	exists, err = s.userRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to check email existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: email '%s'", domain.ErrUserAlreadyExists, input.Email)
	}

	// Hash password
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	user := domain.NewUser(input.Username, input.Email, string(passwordHash))
	user.IsAdmin = input.IsAdmin
	user.Bio = input.Bio
	user.Avatar = strings.TrimSpace(input.Avatar)
	user.ProfileImage = strings.TrimSpace(input.ProfileImage)
	if name := strings.TrimSpace(input.DisplayName); name != "" {
		user.DisplayName = name
	}

	err = s.refs.create(ctx, user, input.Media, func(ctx context.Context) error {
		if err := s.userRepo.Create(ctx, user); err != nil {
			if errors.Is(err, domain.ErrUserAlreadyExists) {
				return err
			}
			s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to create user")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", user.ID.String()).
		Str("username", user.Username).
		Bool("is_admin", user.IsAdmin).
		Msg("user created")

	return user, nil
}

// Authenticate verifies user credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		// Log but don't expose whether username exists
		s.logger.Debug().Str("username", username).Msg("user not found during authentication")
		return nil, domain.ErrAccessDenied
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug().Str("username", username).Msg("invalid password during authentication")
		return nil, domain.ErrAccessDenied
	}

	return user, nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("username", username).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return user, nil
}

// UpdateUserInput contains the profile fields to change. Nil fields are kept.
type UpdateUserInput struct {
	DisplayName  *string `json:"display_name"`
	Email        *string `json:"email"`
	Bio          *string `json:"bio"`
	Avatar       *string `json:"avatar"`
	ProfileImage *string `json:"profile_image"`
}

// Update applies input to a user's profile and keeps the ledger in step
// with the avatar and profile image fields.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, input UpdateUserInput) (*domain.User, error) {
	prev, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := prev.Clone()
	if input.DisplayName != nil {
		next.DisplayName = strings.TrimSpace(*input.DisplayName)
	}
	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, ErrInvalidEmail
		}
		next.Email = email
	}
	if input.Bio != nil {
		next.Bio = *input.Bio
	}
	if input.Avatar != nil {
		next.Avatar = strings.TrimSpace(*input.Avatar)
	}
	if input.ProfileImage != nil {
		next.ProfileImage = strings.TrimSpace(*input.ProfileImage)
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.refs.update(ctx, prev, next, s.write(next)); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", id.String()).Msg("user updated")
	return next, nil
}

// UpdatePasswordInput contains the data needed to update a password.
type UpdatePasswordInput struct {
	UserID      uuid.UUID
	OldPassword string
	NewPassword string
}

// UpdatePassword changes a user's password.
func (s *UserService) UpdatePassword(ctx context.Context, input UpdatePasswordInput) error {
	user, err := s.GetByID(ctx, input.UserID)
	if err != nil {
		return err
	}

	// Verify old password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.OldPassword)); err != nil {
		return domain.ErrAccessDenied
	}

	if len(input.NewPassword) < 8 {
		return ErrInvalidPassword
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	user.PasswordHash = string(newHash)
	user.UpdatedAt = time.Now().UTC()

	if err := s.write(user)(ctx); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("password updated")
	return nil
}

// AttachMedia uploads a file and sets it as the user's avatar or profile image.
func (s *UserService) AttachMedia(ctx context.Context, id uuid.UUID, upload MediaUpload) (*domain.User, *domain.Blob, error) {
	prev, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	next := prev.Clone()
	next.UpdatedAt = time.Now().UTC()

	blob, err := s.refs.attach(ctx, prev, next, upload, s.write(next))
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("user_id", id.String()).
		Str("blob_id", blob.ID.String()).
		Str("kind", upload.Kind.String()).
		Msg("media attached to user")

	return next, blob, nil
}

// Delete deletes a user account, then its ledger entries, then every blob
// left without references.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.refs.releaseOwner(ctx, id.String())

	s.logger.Info().Str("user_id", id.String()).Msg("user deleted")
	return nil
}

// List returns users with pagination.
func (s *UserService) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	result, err := s.userRepo.List(ctx, opts.Normalize())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return result, nil
}

func (s *UserService) write(user *domain.User) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := s.userRepo.Update(ctx, user); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) ||
				errors.Is(err, domain.ErrUserAlreadyExists) ||
				errors.Is(err, domain.ErrConcurrentUpdate) {
				return err
			}
			s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to update user")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		return nil
	}
}

// validateCreateInput validates the input for creating a user.
func (s *UserService) validateCreateInput(input CreateUserInput) error {
	// Validate username
	if len(input.Username) < 3 || len(input.Username) > 255 {
		return ErrInvalidUsername
	}

	// Validate email
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return ErrInvalidEmail
	}

	// Validate password
	if len(input.Password) < 8 {
		return ErrInvalidPassword
	}

	return nil
}
