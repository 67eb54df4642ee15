package service

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
)

// =========================================================================
// SendFriendRequest
// =========================================================================

func TestSendFriendRequest_TargetResolution(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	dave := env.register(t, "dave")

	req, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &bob.ID})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, req.ReceiverID)
	assert.Equal(t, model.RequestPending, req.Status)

	req, err = env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UniqueID: strPtr(strconv.FormatInt(carol.UniqueID, 10))})
	require.NoError(t, err)
	assert.Equal(t, carol.ID, req.ReceiverID)

	req, err = env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{Username: strPtr(" DAVE ")})
	require.NoError(t, err)
	assert.Equal(t, dave.ID, req.ReceiverID)
}

func TestSendFriendRequest_Rejections(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	env.befriend(t, alice, carol)

	_, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &bob.ID})
	require.NoError(t, err)

	tests := []struct {
		name     string
		sender   string
		target   FriendTarget
		sentinel error
		message  string
	}{
		{"no target", alice.ID, FriendTarget{}, apperror.ErrValidation, msgInvalidTarget},
		{"unknown user", alice.ID, FriendTarget{Username: strPtr("ghost")}, apperror.ErrValidation, msgInvalidTarget},
		{"malformed unique id", alice.ID, FriendTarget{UniqueID: strPtr("12")}, apperror.ErrValidation, msgInvalidTarget},
		{"self", alice.ID, FriendTarget{UserID: &alice.ID}, apperror.ErrValidation, "You cannot send a friend request to yourself"},
		{"already friends", carol.ID, FriendTarget{UserID: &alice.ID}, apperror.ErrConflict, "You are already friends"},
		{"resend", alice.ID, FriendTarget{UserID: &bob.ID}, apperror.ErrConflict, "Friend request already sent"},
		{"reverse direction", bob.ID, FriendTarget{UserID: &alice.ID}, apperror.ErrConflict,
			"This user already sent you a friend request. Accept it from pending requests."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.social.SendFriendRequest(ctx, tt.sender, tt.target)
			requireAppError(t, err, tt.sentinel, tt.message)
		})
	}
}

// =========================================================================
// RespondFriendRequest / CancelFriendRequest
// =========================================================================

func TestRespondFriendRequest_AcceptCreatesOneFriendship(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	req, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &bob.ID})
	require.NoError(t, err)

	got, err := env.social.RespondFriendRequest(ctx, req.ID, bob.ID, ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, got.Status)
	assert.NotNil(t, got.RespondedAt)

	ab, err := env.social.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	ba, err := env.social.AreFriends(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ab)
	assert.Equal(t, ab, ba)

	aliceCount, err := env.db.CountFriends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, aliceCount)

	// Resolved requests stay resolved.
	_, err = env.social.RespondFriendRequest(ctx, req.ID, bob.ID, ActionReject)
	requireAppError(t, err, apperror.ErrNotFound, "Pending request not found")
}

func TestRespondFriendRequest_OnlyReceiver(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	eve := env.register(t, "eve")

	req, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &bob.ID})
	require.NoError(t, err)

	for _, who := range []string{alice.ID, eve.ID} {
		_, err := env.social.RespondFriendRequest(ctx, req.ID, who, ActionAccept)
		requireAppError(t, err, apperror.ErrNotFound, "Pending request not found")
	}

	got, err := env.social.RespondFriendRequest(ctx, req.ID, bob.ID, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, got.Status)

	friends, err := env.social.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	// A rejected request no longer blocks a new one.
	_, err = env.social.SendFriendRequest(ctx, bob.ID, FriendTarget{UserID: &alice.ID})
	require.NoError(t, err)
}

func TestParseRequestAction(t *testing.T) {
	a, err := ParseRequestAction(" Accept ")
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, a)

	_, err = ParseRequestAction("maybe")
	requireAppError(t, err, apperror.ErrValidation, `Action must be "accept" or "reject"`)
}

func TestCancelFriendRequest(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	req, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &bob.ID})
	require.NoError(t, err)

	_, err = env.social.CancelFriendRequest(ctx, req.ID, bob.ID)
	requireAppError(t, err, apperror.ErrNotFound, "Pending request not found")

	_, err = env.social.CancelFriendRequest(ctx, req.ID, alice.ID)
	require.NoError(t, err)

	sent, err := env.social.ListSentRequests(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, sent)
}

// =========================================================================
// Lists, removal, discovery
// =========================================================================

func TestRequestLists(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	_, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &bob.ID})
	require.NoError(t, err)

	received, err := env.social.ListReceivedRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.NotNil(t, received[0].Sender)
	assert.Equal(t, "alice", received[0].Sender.Username)
	assert.Nil(t, received[0].Receiver)

	sent, err := env.social.ListSentRequests(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].Receiver)
	assert.Equal(t, "bob", sent[0].Receiver.Username)
}

func TestListAndRemoveFriends(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	env.befriend(t, carol, alice)
	env.befriend(t, alice, bob)

	friends, err := env.social.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "bob", friends[0].Username)
	assert.Equal(t, "carol", friends[1].Username)

	// Removal works from either side and is idempotent.
	require.NoError(t, env.social.RemoveFriend(ctx, bob.ID, alice.ID))
	require.NoError(t, env.social.RemoveFriend(ctx, alice.ID, bob.ID))

	friends, err = env.social.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, carol.ID, friends[0].ID)
}

func TestSearchUsers(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bobby")
	env.register(t, "bobcat")
	env.befriend(t, alice, bob)

	_, err := env.social.SearchUsers(ctx, alice.ID, "  ", 0)
	requireAppError(t, err, apperror.ErrValidation, `Query parameter "q" is required`)

	got, err := env.social.SearchUsers(ctx, alice.ID, "bob", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bobby", got[1].Username)
	assert.True(t, got[1].IsFriend)
	assert.Equal(t, model.RelationFriends, got[1].FriendshipStatus)
	assert.Equal(t, model.RelationNone, got[0].FriendshipStatus)

	got, err = env.social.SearchUsers(ctx, alice.ID, strconv.FormatInt(bob.UniqueID, 10), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bob.ID, got[0].ID)

	got, err = env.social.SearchUsers(ctx, alice.ID, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, got, "the caller is never in their own results")
}

func TestSuggestedUsers(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	dave := env.register(t, "dave")
	env.befriend(t, alice, bob)

	_, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &carol.ID})
	require.NoError(t, err)
	_, err = env.social.SendFriendRequest(ctx, dave.ID, FriendTarget{UserID: &alice.ID})
	require.NoError(t, err)

	// Identity shuffle keeps the newest-first order.
	env.social.shuffle = func(int, func(i, j int)) {}

	got, err := env.social.SuggestedUsers(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	status := map[string]model.Relation{}
	for _, u := range got {
		assert.NotEqual(t, alice.ID, u.ID)
		assert.NotEqual(t, bob.ID, u.ID, "friends are not suggested")
		status[u.ID] = u.FriendshipStatus
	}
	assert.Equal(t, model.RelationRequestSent, status[carol.ID])
	assert.Equal(t, model.RelationRequestReceived, status[dave.ID])
}

func TestSuggestedUsers_PrimaryVehicle(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	require.NoError(t, env.db.CreateVehicle(ctx, &model.Vehicle{UserID: bob.ID, Model: "E46 M3", IsPrimary: true}))

	got, err := env.social.SuggestedUsers(ctx, alice.ID, 4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].PrimaryVehicle)
	assert.Equal(t, "E46 M3", got[0].PrimaryVehicle.Model)
}

// =========================================================================
// Profile / MutualFriends
// =========================================================================

func TestProfile(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	dave := env.register(t, "dave")
	env.befriend(t, alice, carol)
	env.befriend(t, bob, carol)
	env.befriend(t, bob, dave)

	require.NoError(t, env.db.CreateVehicle(ctx, &model.Vehicle{UserID: bob.ID, Model: "Civic"}))
	require.NoError(t, env.db.CreateVehicle(ctx, &model.Vehicle{UserID: bob.ID, Model: "Supra", IsPrimary: true}))

	req, err := env.social.SendFriendRequest(ctx, alice.ID, FriendTarget{UserID: &bob.ID})
	require.NoError(t, err)

	p, err := env.social.Profile(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, p.ID)
	assert.Equal(t, 2, p.FriendCount)
	assert.Equal(t, 1, p.MutualFriendsCount)
	assert.False(t, p.IsFriend)
	assert.Equal(t, model.RelationRequestSent, p.FriendshipStatus)
	require.NotNil(t, p.FriendRequestID)
	assert.Equal(t, req.ID, *p.FriendRequestID)
	require.Len(t, p.Vehicles, 2)
	assert.Equal(t, "Supra", p.Vehicles[0].Model)
	require.NotNil(t, p.PrimaryVehicle)
	assert.Equal(t, "Supra", p.PrimaryVehicle.Model)

	// Bob sees the same request from the other side.
	p, err = env.social.Profile(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationRequestReceived, p.FriendshipStatus)
	assert.Empty(t, p.Vehicles)
	assert.Nil(t, p.PrimaryVehicle)

	mutual, err := env.social.MutualFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, mutual, 1)
	assert.Equal(t, carol.ID, mutual[0].ID)
}

func TestProfile_SelfAndMissing(t *testing.T) {
	env := newTestEnv(t, OTPOptions{Bypass: true})
	ctx := context.Background()
	alice := env.register(t, "alice")

	p, err := env.social.Profile(ctx, alice.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationNone, p.FriendshipStatus)
	assert.Zero(t, p.MutualFriendsCount)

	_, err = env.social.Profile(ctx, alice.ID, "does-not-exist")
	requireAppError(t, err, apperror.ErrNotFound, "User not found")
}
