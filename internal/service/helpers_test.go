package service

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/convoy/internal/auth"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository/sqlite"
)

// testLogger only prints errors so test output stays readable.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strPtr(s string) *string { return &s }

type sentMail struct {
	To, Subject, Body string
}

// fakeSender records outgoing mail and fails with err when set.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// testEnv is the full service graph on top of an in-memory database.
type testEnv struct {
	db     *sqlite.DB
	mail   *fakeSender
	otp    *OTPService
	auth   *AuthService
	social *SocialService
	chat   *ChatService
	tokens *auth.TokenService
}

// codes returns a generator that hands out the given codes in order.
func codes(list ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := list[0]
		if len(list) > 1 {
			list = list[1:]
		}
		return c, nil
	}
}

func newTestEnv(t *testing.T, opts OTPOptions) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	logger := testLogger()
	mail := &fakeSender{}
	otp := NewOTPService(db, mail, opts, logger)
	social := NewSocialService(db, db, db, logger)
	return &testEnv{
		db:     db,
		mail:   mail,
		otp:    otp,
		auth:   NewAuthService(db, otp, tokens, auth.NewPasswordServiceWithCost(bcrypt.MinCost), logger),
		social: social,
		chat:   NewChatService(db, db, social, logger),
		tokens: tokens,
	}
}

// register creates an account through the bypass code. The env must be in
// bypass mode.
func (e *testEnv) register(t *testing.T, username string) *model.User {
	t.Helper()
	addr := strings.ToLower(username) + "@example.com"
	_, err := e.otp.Issue(context.Background(), addr)
	require.NoError(t, err)
	res, err := e.auth.Register(context.Background(), RegisterInput{
		Email:    addr,
		Code:     DevOTPCode,
		Username: username,
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	return res.User
}

// befriend makes a and b friends through the request flow.
func (e *testEnv) befriend(t *testing.T, a, b *model.User) {
	t.Helper()
	ctx := context.Background()
	req, err := e.social.SendFriendRequest(ctx, a.ID, FriendTarget{UserID: &b.ID})
	require.NoError(t, err)
	_, err = e.social.RespondFriendRequest(ctx, req.ID, b.ID, ActionAccept)
	require.NoError(t, err)
}

// requireAppError asserts err is an AppError matching sentinel with message.
func requireAppError(t *testing.T, err error, sentinel error, message string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	require.EqualError(t, err, message)
}
