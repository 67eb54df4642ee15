package model

import "time"

// FriendRequestStatus is the state of a friend request.
//
// The only transitions are pending -> accepted and pending -> rejected.
// Resolved requests are never modified again.
type FriendRequestStatus string

const (
	RequestPending  FriendRequestStatus = "pending"
	RequestAccepted FriendRequestStatus = "accepted"
	RequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a directed proposal from SenderID to ReceiverID.
type FriendRequest struct {
	ID          int64               `json:"id"           db:"id"`
	SenderID    string              `json:"sender_id"    db:"sender_id"`
	ReceiverID  string              `json:"receiver_id"  db:"receiver_id"`
	Status      FriendRequestStatus `json:"status"       db:"status"`
	CreatedAt   time.Time           `json:"created_at"   db:"created_at"`
	RespondedAt *time.Time          `json:"responded_at" db:"responded_at"`
}

// FriendRequestView is a request decorated with the other party's card.
// Received lists fill Sender, sent lists fill Receiver.
type FriendRequestView struct {
	FriendRequest
	Sender   *UserCard `json:"sender,omitempty"`
	Receiver *UserCard `json:"receiver,omitempty"`
}

// Friendship is an undirected edge stored with UserOneID < UserTwoID.
type Friendship struct {
	ID        int64     `json:"id"          db:"id"`
	UserOneID string    `json:"user_one_id" db:"user_one_id"`
	UserTwoID string    `json:"user_two_id" db:"user_two_id"`
	CreatedAt time.Time `json:"created_at"  db:"created_at"`
}

// Other returns the id on the far side of the edge from userID.
func (f Friendship) Other(userID string) string {
	if f.UserOneID == userID {
		return f.UserTwoID
	}
	return f.UserOneID
}

// Relation describes how another user relates to the viewer.
type Relation string

const (
	RelationNone            Relation = "none"
	RelationFriends         Relation = "friends"
	RelationRequestSent     Relation = "request_sent"
	RelationRequestReceived Relation = "request_received"
)

// SocialUser is a user card enriched with the viewer's relation to it.
type SocialUser struct {
	UserCard
	IsFriend         bool     `json:"is_friend"`
	FriendshipStatus Relation `json:"friendship_status"`
	PrimaryVehicle   *Vehicle `json:"primary_vehicle"`
}

// SocialProfile is the full profile page of a user as seen by a viewer.
type SocialProfile struct {
	UserCard
	CreatedAt          time.Time `json:"created_at"`
	FriendCount        int       `json:"friend_count"`
	MutualFriendsCount int       `json:"mutual_friends_count"`
	IsFriend           bool      `json:"is_friend"`
	FriendshipStatus   Relation  `json:"friendship_status"`
	FriendRequestID    *int64    `json:"friend_request_id"`
	PrimaryVehicle     *Vehicle  `json:"primary_vehicle"`
	Vehicles           []Vehicle `json:"vehicles"`
}
