package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/convoy/internal/model"
)

func TestFriendRequestFlow(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")
	bob := h.signup("bob")

	// Display ids may arrive as JSON numbers.
	res := h.do(http.MethodPost, "/social/friend-requests", alice.ID, fmt.Sprintf(`{"to_unique_id": %d}`, bob.UniqueID))
	require.Equal(t, http.StatusCreated, res.Code, res.Message)
	assert.Equal(t, "Friend request sent", res.Message)
	var sent struct {
		Request model.FriendRequest `json:"request"`
	}
	res.decode(t, &sent)

	res = h.do(http.MethodPost, "/social/friend-requests", bob.ID, M{"to_username": "alice"})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "This user already sent you a friend request. Accept it from pending requests.", res.Message)

	res = h.do(http.MethodGet, "/social/friend-requests/pending", bob.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var pending struct {
		Requests []model.FriendRequestView `json:"requests"`
	}
	res.decode(t, &pending)
	require.Len(t, pending.Requests, 1)
	assert.Equal(t, "alice", pending.Requests[0].Sender.Username)

	res = h.do(http.MethodGet, "/social/friend-requests/sent", alice.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)

	path := fmt.Sprintf("/social/friend-requests/%d", sent.Request.ID)
	res = h.do(http.MethodPatch, path, bob.ID, M{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, `Action must be "accept" or "reject"`, res.Message)

	res = h.do(http.MethodPatch, path, alice.ID, M{"action": "accept"})
	assert.Equal(t, http.StatusNotFound, res.Code, "only the receiver may respond")

	res = h.do(http.MethodPatch, path, bob.ID, M{"action": "accept"})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Friend request accepted", res.Message)

	res = h.do(http.MethodGet, "/social/friends", alice.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var friends struct {
		Friends []model.UserCard `json:"friends"`
	}
	res.decode(t, &friends)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, bob.ID, friends.Friends[0].ID)

	res = h.do(http.MethodDelete, "/social/friends/"+alice.ID, bob.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Friend removed", res.Message)
	assert.Equal(t, "null", string(res.Data))
}

func TestFriendRequest_BadTargets(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")

	for _, body := range []string{`{}`, `{"to_unique_id": 12}`, `{"to_username": "ghost"}`} {
		res := h.do(http.MethodPost, "/social/friend-requests", alice.ID, body)
		assert.Equal(t, http.StatusBadRequest, res.Code, body)
		assert.Equal(t, "Provide a valid target: to_user_id, to_unique_id, or to_username", res.Message)
	}

	res := h.do(http.MethodPost, "/social/friend-requests", alice.ID, M{"to_user_id": alice.ID})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "You cannot send a friend request to yourself", res.Message)
}

func TestCancelRequest(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")
	bob := h.signup("bob")

	res := h.do(http.MethodPost, "/social/friend-requests", alice.ID, M{"to_user_id": bob.ID})
	require.Equal(t, http.StatusCreated, res.Code)
	var sent struct {
		Request model.FriendRequest `json:"request"`
	}
	res.decode(t, &sent)

	res = h.do(http.MethodDelete, "/social/friend-requests/abc", alice.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	path := fmt.Sprintf("/social/friend-requests/%d", sent.Request.ID)
	res = h.do(http.MethodDelete, path, alice.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Friend request cancelled", res.Message)

	res = h.do(http.MethodDelete, path, alice.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestDiscovery(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")
	bob := h.signup("bobby")
	carol := h.signup("carol")
	h.befriend(alice, carol)
	h.befriend(bob, carol)

	res := h.do(http.MethodGet, "/social/users/search", alice.ID, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, `Query parameter "q" is required`, res.Message)

	res = h.do(http.MethodGet, "/social/users/search?q=bob", alice.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var found struct {
		Users []model.SocialUser `json:"users"`
	}
	res.decode(t, &found)
	require.Len(t, found.Users, 1)
	assert.Equal(t, model.RelationNone, found.Users[0].FriendshipStatus)

	res = h.do(http.MethodGet, "/social/users/suggested?limit=10", alice.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var suggested struct {
		Users []model.SocialUser `json:"users"`
	}
	res.decode(t, &suggested)
	require.Len(t, suggested.Users, 1)
	assert.Equal(t, bob.ID, suggested.Users[0].ID)

	res = h.do(http.MethodGet, "/social/users/"+bob.ID+"/profile", alice.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var profile struct {
		User model.SocialProfile `json:"user"`
	}
	res.decode(t, &profile)
	assert.Equal(t, 1, profile.User.FriendCount)
	assert.Equal(t, 1, profile.User.MutualFriendsCount)
	assert.NotNil(t, profile.User.Vehicles)

	res = h.do(http.MethodGet, "/social/users/"+bob.ID+"/mutual-friends", alice.ID, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var mutual struct {
		Friends []model.UserCard `json:"friends"`
	}
	res.decode(t, &mutual)
	require.Len(t, mutual.Friends, 1)
	assert.Equal(t, carol.ID, mutual.Friends[0].ID)

	res = h.do(http.MethodGet, "/social/users/nope/profile", alice.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}
