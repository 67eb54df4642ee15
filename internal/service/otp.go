package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/email"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

const (
	DefaultOTPTTL         = 10 * time.Minute
	DefaultOTPMaxAttempts = 5

	// DevOTPCode is issued for every email while bypass mode is on.
	DevOTPCode = "123456"
)

const (
	msgOTPInvalidOrExpired = "Invalid or expired OTP code"
	msgOTPMaxAttempts      = "Maximum verification attempts exceeded. Please request a new OTP."
)

// OTPOptions configures the OTP engine. Zero values pick the defaults.
type OTPOptions struct {
	// Bypass replaces random codes with DevOTPCode, skips email delivery and
	// returns the code to the caller. The dev code is still a stored
	// challenge and is consumed like any other. Never enable it in production.
	Bypass      bool
	TTL         time.Duration
	MaxAttempts int
}

// OTPService issues and verifies one-time passcodes sent by email.
//
// CHALLENGE LIFECYCLE:
//
//	Issue    → invalidate every unused challenge for the email, store a new one
//	Verify   → wrong code: attempts++ (challenge stays live)
//	         → attempts already at the cap: refused before comparing
//	         → right code: challenge marked used, exactly once
//	(expiry) → challenge is ignored, PurgeExpired eventually deletes it
//
// Invalidate-then-insert is two statements. A verify that lands between them
// can still consume the old code; that window is accepted.
type OTPService struct {
	repo     repository.OTPRepository
	sender   email.Sender
	opts     OTPOptions
	logger   *slog.Logger
	now      func() time.Time
	generate func() (string, error)
}

func NewOTPService(repo repository.OTPRepository, sender email.Sender, opts OTPOptions, logger *slog.Logger) *OTPService {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOTPTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOTPMaxAttempts
	}
	return &OTPService{
		repo:     repo,
		sender:   sender,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		generate: randomCode,
	}
}

// BypassEnabled reports whether the service runs in developer bypass mode.
func (s *OTPService) BypassEnabled() bool {
	return s.opts.Bypass
}

// IssueResult describes a freshly issued challenge.
type IssueResult struct {
	Message          string `json:"-"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
	// DevCode is only set in bypass mode.
	DevCode string `json:"dev_code,omitempty"`
}

// Issue starts a new challenge for rawEmail and delivers the code.
//
// If delivery fails the challenge is already stored and stays valid: the
// caller may retry delivery, and a code that did arrive late still works.
func (s *OTPService) Issue(ctx context.Context, rawEmail string) (*IssueResult, error) {
	addr := NormalizeEmail(rawEmail)
	if addr == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}

	code := DevOTPCode
	if !s.opts.Bypass {
		var err error
		if code, err = s.generate(); err != nil {
			return nil, fmt.Errorf("service/otp: generating code: %w", err)
		}
	}

	if err := s.repo.InvalidateOTPs(ctx, addr); err != nil {
		return nil, fmt.Errorf("service/otp: invalidating previous challenges: %w", err)
	}
	challenge := &model.OTPChallenge{
		Email:     addr,
		Code:      code,
		ExpiresAt: s.now().Add(s.opts.TTL),
	}
	if err := s.repo.CreateOTP(ctx, challenge); err != nil {
		return nil, fmt.Errorf("service/otp: storing challenge: %w", err)
	}

	minutes := int(s.opts.TTL / time.Minute)

	if s.opts.Bypass {
		s.logger.Info("otp issued in bypass mode", slog.String("email", addr))
		return &IssueResult{
			Message:          fmt.Sprintf("OTP sent (DEV MODE - Code: %s)", code),
			ExpiresInMinutes: minutes,
			DevCode:          code,
		}, nil
	}

	if err := s.sender.Send(ctx, addr, email.OTPSubject, email.OTPBody(code, minutes)); err != nil {
		s.logger.Error("otp delivery failed",
			slog.String("email", addr),
			slog.Int64("challengeID", challenge.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.DeliveryFailed("Failed to send verification email", err)
	}

	s.logger.Info("otp issued", slog.String("email", addr), slog.Int64("challengeID", challenge.ID))
	return &IssueResult{
		Message:          "Verification code sent to your email",
		ExpiresInMinutes: minutes,
	}, nil
}

// Verification is the outcome of Verify. Reason is always safe to show the
// user.
type Verification struct {
	Verified bool
	Reason   string
}

// Verify checks code against the live challenge for rawEmail.
//
// A non-nil error means storage failed. Business rejections come back as
// Verified=false with a Reason.
//
// Bypass mode does not skip the lookup: DevOTPCode only verifies against a
// challenge issued in bypass mode, once per issuance.
func (s *OTPService) Verify(ctx context.Context, rawEmail, code string) (*Verification, error) {
	addr := NormalizeEmail(rawEmail)
	if addr == "" {
		return &Verification{Reason: "Email is required"}, nil
	}
	code = strings.TrimSpace(code)

	c, err := s.repo.LatestActiveOTP(ctx, addr)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &Verification{Reason: msgOTPInvalidOrExpired}, nil
		}
		return nil, fmt.Errorf("service/otp: loading challenge: %w", err)
	}
	if c.Expired(s.now()) {
		return &Verification{Reason: msgOTPInvalidOrExpired}, nil
	}
	if c.Attempts >= s.opts.MaxAttempts {
		return &Verification{Reason: msgOTPMaxAttempts}, nil
	}

	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		if err := s.repo.IncrementOTPAttempts(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("service/otp: recording attempt: %w", err)
		}
		remaining := s.opts.MaxAttempts - (c.Attempts + 1)
		if remaining > 0 {
			return &Verification{Reason: fmt.Sprintf("Invalid OTP code. %d attempts remaining.", remaining)}, nil
		}
		return &Verification{Reason: "Invalid OTP code. Please request a new OTP."}, nil
	}

	consumed, err := s.repo.MarkOTPUsed(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("service/otp: consuming challenge: %w", err)
	}
	if !consumed {
		// Someone else verified the same challenge first.
		return &Verification{Reason: msgOTPInvalidOrExpired}, nil
	}
	if s.opts.Bypass {
		return &Verification{Verified: true, Reason: "OTP verified successfully (DEV MODE)"}, nil
	}
	return &Verification{Verified: true, Reason: "OTP verified successfully"}, nil
}

// PurgeExpired deletes challenges whose expiry has passed.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredOTPs(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/otp: purging: %w", err)
	}
	return n, nil
}

var codeSpace = big.NewInt(900000)

// randomCode returns a uniformly random six-digit code in 100000..999999.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// NormalizeEmail trims and lowercases an address. Every lookup keyed on email
// goes through it.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
