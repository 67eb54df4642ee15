// Package service holds the business rules of the app.
//
// Handlers call services; services call repositories and the auth/email
// utilities:
//
//	AuthHandler   → AuthService   → UserRepository, OTPService, TokenService
//	SocialHandler → SocialService → SocialRepository, VehicleRepository
//	ChatHandler   → ChatService   → ConversationRepository (+ friendship gate)
//
// Business rejections are returned as *apperror.AppError values. Anything
// else is a wrapped storage failure the HTTP layer reports as 500.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/auth"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgUsernameTaken      = "Username is already taken"
	msgEmailTaken         = "An account with this email already exists"
	msgOTPOnlyAccount     = "This account uses sign-in with OTP. Use Send OTP then Verify OTP."
	msgAccountInactive    = "Account is inactive"
	msgUserNotFound       = "User not found"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// NormalizeUsername is the uniqueness key for usernames.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername checks the normalized form of username and returns it.
// The error, when non-nil, is a ValidationFailed with a user-facing message.
func ValidateUsername(username string) (string, error) {
	n := NormalizeUsername(username)
	if l := utf8.RuneCountInString(n); l < minUsernameLen || l > maxUsernameLen {
		return "", apperror.ValidationFailed("username", "Username must be 3–30 characters")
	}
	if !usernamePattern.MatchString(n) {
		return "", apperror.ValidationFailed("username", "Username can only contain letters, numbers and underscores")
	}
	return n, nil
}

// AuthService handles registration, sign-in and profile maintenance.
type AuthService struct {
	users     repository.UserRepository
	otp       *OTPService
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	otp *OTPService,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		otp:       otp,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the signed-in user with a fresh session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Email    string
	Code     string
	Username string
	Password string
}

// Register creates a password account for an email that proved ownership
// with a one-time code.
//
// The code is consumed before the uniqueness checks run. A registration that
// then fails on a taken username needs a new code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	addr := NormalizeEmail(in.Email)
	if addr == "" || strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return nil, apperror.ValidationFailed("", "Email, verification code, username and password are required")
	}

	v, err := s.otp.Verify(ctx, addr, in.Code)
	if err != nil {
		return nil, fmt.Errorf("service/auth: verifying code: %w", err)
	}
	if !v.Verified {
		return nil, apperror.ValidationFailed("code", v.Reason)
	}

	normalized, err := ValidateUsername(in.Username)
	if err != nil {
		return nil, err
	}

	taken, err := s.users.EmailTaken(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}
	if taken {
		return nil, apperror.New(apperror.ErrConflict, msgEmailTaken)
	}
	taken, err = s.users.UsernameTaken(ctx, normalized, "")
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking username: %w", err)
	}
	if taken {
		return nil, apperror.New(apperror.ErrConflict, msgUsernameTaken)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("Password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	user := &model.User{
		Username:           strings.TrimSpace(in.Username),
		UsernameNormalized: normalized,
		Email:              &addr,
		PasswordHash:       &hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// Lost a race against a concurrent registration.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.New(apperror.ErrConflict, duplicateMessage(err))
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.Int64("uniqueID", user.UniqueID),
		slog.String("username", user.Username),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// duplicateMessage picks the user-facing message for a UNIQUE failure on the
// users table.
func duplicateMessage(err error) string {
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return msgEmailTaken
	}
	return msgUsernameTaken
}

// Login signs in with email and password.
//
// Unknown emails and wrong passwords produce the same error. The active flag
// is only checked once the password matched.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	addr := NormalizeEmail(email)
	if addr == "" || password == "" {
		return nil, apperror.ValidationFailed("", "Email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if !user.HasPassword() {
		return nil, apperror.New(apperror.ErrValidation, msgOTPOnlyAccount)
	}
	if err := s.passwords.Verify(*user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !user.IsActive {
		return nil, apperror.Forbidden(msgAccountInactive)
	}

	return s.session(user)
}

// LoginWithOTP signs in an existing account with a one-time code.
//
// An unknown email is rejected before the code is checked, so a typo does not
// burn the challenge.
func (s *AuthService) LoginWithOTP(ctx context.Context, email, code string) (*AuthResult, error) {
	addr := NormalizeEmail(email)
	if addr == "" || strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("", "Email and verification code are required")
	}

	user, err := s.users.GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(apperror.ErrNotFound, "No account found for this email")
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	v, err := s.otp.Verify(ctx, addr, code)
	if err != nil {
		return nil, fmt.Errorf("service/auth: verifying code: %w", err)
	}
	if !v.Verified {
		return nil, apperror.ValidationFailed("code", v.Reason)
	}
	if !user.IsActive {
		return nil, apperror.Forbidden(msgAccountInactive)
	}

	return s.session(user)
}

func (s *AuthService) session(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token: %w", err)
	}
	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

// UsernameAvailability is the answer to CheckUsername. Reason is set only
// when the username is malformed.
type UsernameAvailability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckUsername reports whether username could be registered right now.
func (s *AuthService) CheckUsername(ctx context.Context, username string) (*UsernameAvailability, error) {
	if strings.TrimSpace(username) == "" {
		return nil, apperror.ValidationFailed("username", `Query parameter "username" is required`)
	}
	normalized, err := ValidateUsername(username)
	if err != nil {
		var appErr *apperror.AppError
		errors.As(err, &appErr)
		return &UsernameAvailability{Available: false, Reason: appErr.Message}, nil
	}
	taken, err := s.users.UsernameTaken(ctx, normalized, "")
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking username: %w", err)
	}
	return &UsernameAvailability{Available: !taken}, nil
}

// GetUserByID loads an account by internal id. The auth middleware resolves
// tokens through it.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// GetByUniqueID looks up a user by the nine-digit public id given as text.
// Malformed and unknown ids are reported the same way.
func (s *AuthService) GetByUniqueID(ctx context.Context, raw string) (*model.User, error) {
	id, ok := ParseUniqueID(raw)
	if !ok {
		return nil, apperror.New(apperror.ErrNotFound, msgUserNotFound)
	}
	user, err := s.users.GetUserByUniqueID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(apperror.ErrNotFound, msgUserNotFound)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	return user, nil
}

// ProfileChanges is a partial profile edit. Nil fields are left unchanged.
type ProfileChanges struct {
	Username          *string
	Status            *string
	ProfilePictureURL *string
}

// UpdateProfile applies changes to the caller's own profile. changed is false
// when the edit was empty; the current profile is returned unchanged.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, ch ProfileChanges) (user *model.User, changed bool, err error) {
	var upd model.ProfileUpdate

	if ch.ProfilePictureURL != nil {
		pic := strings.TrimSpace(*ch.ProfilePictureURL)
		upd.ProfilePictureURL = &pic
	}
	if ch.Status != nil {
		status := model.UserStatus(*ch.Status)
		if !status.Valid() {
			return nil, false, apperror.ValidationFailed("status", "status must be one of: online, driving, offline")
		}
		upd.Status = &status
	}
	if ch.Username != nil {
		normalized, err := ValidateUsername(*ch.Username)
		if err != nil {
			return nil, false, err
		}
		taken, err := s.users.UsernameTaken(ctx, normalized, userID)
		if err != nil {
			return nil, false, fmt.Errorf("service/auth: checking username: %w", err)
		}
		if taken {
			return nil, false, apperror.New(apperror.ErrConflict, msgUsernameTaken)
		}
		display := strings.TrimSpace(*ch.Username)
		upd.Username = &display
		upd.UsernameNormalized = &normalized
	}

	if upd.Empty() {
		user, err := s.GetUserByID(ctx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("service/auth: loading profile: %w", err)
		}
		return user, false, nil
	}

	user, err = s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, false, apperror.New(apperror.ErrConflict, msgUsernameTaken)
		}
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, false, apperror.New(apperror.ErrNotFound, msgUserNotFound)
		}
		return nil, false, fmt.Errorf("service/auth: updating profile: %w", err)
	}
	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, true, nil
}
