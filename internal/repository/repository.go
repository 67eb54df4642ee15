// Package repository declares the storage contracts the services depend on.
//
// Services only ever see these interfaces. The sqlite package provides the
// production implementation; service tests swap in in-memory databases.
//
// ERROR CONTRACT:
//   - a missing row is returned as an *apperror.AppError wrapping ErrNotFound
//   - a uniqueness violation is returned wrapping ErrDuplicate, or the
//     column-specific ErrDuplicateEmail/Phone/Username for users
//   - anything else is a wrapped driver error
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/convoy/internal/model"
)

// ErrDuplicate is wrapped into errors caused by a UNIQUE constraint.
var ErrDuplicate = errors.New("repository: duplicate key")

// Column-specific duplicates on the users table. Each also matches
// ErrDuplicate.
var (
	ErrDuplicateEmail    = fmt.Errorf("%w: email", ErrDuplicate)
	ErrDuplicatePhone    = fmt.Errorf("%w: phone", ErrDuplicate)
	ErrDuplicateUsername = fmt.Errorf("%w: username", ErrDuplicate)
)

type UserRepository interface {
	// CreateUser assigns ID, UniqueID and timestamps and inserts the row.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUniqueID(ctx context.Context, uniqueID int64) (*model.User, error)
	// GetUserByUsername looks up the normalized username.
	GetUserByUsername(ctx context.Context, normalized string) (*model.User, error)
	// UsernameTaken ignores the row whose id is excludeID ("" for none).
	UsernameTaken(ctx context.Context, normalized, excludeID string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
	// GetUserCards returns cards for the given ids in no particular order.
	// Unknown ids are skipped.
	GetUserCards(ctx context.Context, ids []string) ([]model.UserCard, error)
}

type OTPRepository interface {
	// InvalidateOTPs marks every unused challenge for email as used.
	InvalidateOTPs(ctx context.Context, email string) error
	CreateOTP(ctx context.Context, c *model.OTPChallenge) error
	// LatestActiveOTP returns the newest unused challenge for email,
	// expired or not. Expiry is the caller's decision.
	LatestActiveOTP(ctx context.Context, email string) (*model.OTPChallenge, error)
	IncrementOTPAttempts(ctx context.Context, id int64) error
	// MarkOTPUsed reports false when the challenge was already used, so two
	// concurrent verifications cannot both consume it.
	MarkOTPUsed(ctx context.Context, id int64) (bool, error)
	DeleteExpiredOTPs(ctx context.Context, before time.Time) (int64, error)
}

// SearchOptions narrows SearchUsers. UniqueID, when set, matches exactly in
// addition to the username pattern.
type SearchOptions struct {
	Query     string
	UniqueID  *int64
	ExcludeID string
	Limit     int
}

type SocialRepository interface {
	CreateFriendRequest(ctx context.Context, req *model.FriendRequest) error
	// PendingRequest returns the pending request from sender to receiver.
	PendingRequest(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error)
	// AcceptFriendRequest resolves a pending request addressed to receiverID
	// and creates the friendship in the same transaction.
	AcceptFriendRequest(ctx context.Context, id int64, receiverID string) (*model.FriendRequest, error)
	RejectFriendRequest(ctx context.Context, id int64, receiverID string) (*model.FriendRequest, error)
	// CancelFriendRequest deletes a pending request sent by senderID.
	CancelFriendRequest(ctx context.Context, id int64, senderID string) (*model.FriendRequest, error)
	ListReceivedRequests(ctx context.Context, userID string) ([]model.FriendRequestView, error)
	ListSentRequests(ctx context.Context, userID string) ([]model.FriendRequestView, error)
	// PendingRequestsInvolving returns every pending request userID sent or received.
	PendingRequestsInvolving(ctx context.Context, userID string) ([]model.FriendRequest, error)

	// EnsureFriendship is idempotent.
	EnsureFriendship(ctx context.Context, a, b string) (*model.Friendship, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	// RemoveFriendship is idempotent.
	RemoveFriendship(ctx context.Context, a, b string) error
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	CountFriends(ctx context.Context, userID string) (int, error)

	SearchUsers(ctx context.Context, opts SearchOptions) ([]model.UserCard, error)
	// RecentUsers returns up to limit newest accounts whose id is not in exclude.
	RecentUsers(ctx context.Context, exclude []string, limit int) ([]model.UserCard, error)
}

type VehicleRepository interface {
	CreateVehicle(ctx context.Context, v *model.Vehicle) error
	// ListVehicles returns the primary vehicle first, then oldest first.
	ListVehicles(ctx context.Context, userID string) ([]model.Vehicle, error)
	PrimaryVehicles(ctx context.Context, userIDs []string) (map[string]model.Vehicle, error)
}

type ConversationRepository interface {
	// GetOrCreateDirect returns the direct conversation between a and b,
	// creating it and both member rows when absent. created reports which.
	GetOrCreateDirect(ctx context.Context, creatorID, a, b string) (conv *model.Conversation, created bool, err error)
	IsMember(ctx context.Context, conversationID int64, userID string) (bool, error)
	ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]model.Message, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
	MarkRead(ctx context.Context, conversationID int64, userID string) (*model.ReadState, error)
}
