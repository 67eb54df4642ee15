package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

const (
	DefaultSearchLimit    = 20
	MaxSearchLimit        = 50
	DefaultSuggestedLimit = 4
	MaxSuggestedLimit     = 20

	// suggestedPoolFactor sizes the candidate pool relative to the limit so
	// repeated calls do not always return the same newest accounts.
	suggestedPoolFactor = 3
)

const (
	msgInvalidTarget     = "Provide a valid target: to_user_id, to_unique_id, or to_username"
	msgSelfRequest       = "You cannot send a friend request to yourself"
	msgAlreadyFriends    = "You are already friends"
	msgRequestSent       = "Friend request already sent"
	msgRequestReceived   = "This user already sent you a friend request. Accept it from pending requests."
	msgRequestNotPending = "Pending request not found"
)

// ParseUniqueID parses a nine-digit public id. ok is false for anything out
// of range or not a plain integer.
func ParseUniqueID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < model.MinUniqueID || id > model.MaxUniqueID {
		return 0, false
	}
	return id, true
}

// SocialService runs the friend graph: requests, friendships, discovery and
// profile pages.
//
// FRIEND REQUEST STATES:
//
//	pending ──accept──▶ accepted  (friendship row created in the same tx)
//	        ──reject──▶ rejected
//	        ──cancel──▶ (deleted, sender only)
//
// At most one pending request exists per pair of users, in either direction.
// The storage layer enforces that with a unique index; the checks below only
// pick the right message.
type SocialService struct {
	users    repository.UserRepository
	social   repository.SocialRepository
	vehicles repository.VehicleRepository
	logger   *slog.Logger
	shuffle  func(n int, swap func(i, j int))
}

func NewSocialService(
	users repository.UserRepository,
	social repository.SocialRepository,
	vehicles repository.VehicleRepository,
	logger *slog.Logger,
) *SocialService {
	return &SocialService{
		users:    users,
		social:   social,
		vehicles: vehicles,
		logger:   logger,
		shuffle:  rand.Shuffle,
	}
}

// FriendTarget names the recipient of a friend request. The first non-nil
// field wins, in field order.
type FriendTarget struct {
	UserID   *string
	UniqueID *string
	Username *string
}

func (s *SocialService) resolveTarget(ctx context.Context, t FriendTarget) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	switch {
	case t.UserID != nil:
		user, err = s.users.GetUserByID(ctx, strings.TrimSpace(*t.UserID))
	case t.UniqueID != nil:
		id, ok := ParseUniqueID(*t.UniqueID)
		if !ok {
			return nil, apperror.ValidationFailed("to_unique_id", msgInvalidTarget)
		}
		user, err = s.users.GetUserByUniqueID(ctx, id)
	case t.Username != nil:
		n := NormalizeUsername(*t.Username)
		if n == "" {
			return nil, apperror.ValidationFailed("to_username", msgInvalidTarget)
		}
		user, err = s.users.GetUserByUsername(ctx, n)
	default:
		return nil, apperror.ValidationFailed("", msgInvalidTarget)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("", msgInvalidTarget)
		}
		return nil, fmt.Errorf("service/social: resolving target: %w", err)
	}
	return user, nil
}

// SendFriendRequest creates a pending request from senderID to the target.
func (s *SocialService) SendFriendRequest(ctx context.Context, senderID string, target FriendTarget) (*model.FriendRequest, error) {
	receiver, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if receiver.ID == senderID {
		return nil, apperror.ValidationFailed("", msgSelfRequest)
	}

	friends, err := s.social.AreFriends(ctx, senderID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("service/social: checking friendship: %w", err)
	}
	if friends {
		return nil, apperror.New(apperror.ErrConflict, msgAlreadyFriends)
	}
	if msg, err := s.pendingConflict(ctx, senderID, receiver.ID); err != nil || msg != "" {
		if err != nil {
			return nil, err
		}
		return nil, apperror.New(apperror.ErrConflict, msg)
	}

	req := &model.FriendRequest{SenderID: senderID, ReceiverID: receiver.ID}
	if err := s.social.CreateFriendRequest(ctx, req); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("service/social: creating friend request: %w", err)
		}
		// A concurrent request slipped in between the checks and the insert.
		msg, lookupErr := s.pendingConflict(ctx, senderID, receiver.ID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if msg == "" {
			msg = msgRequestSent
		}
		return nil, apperror.New(apperror.ErrConflict, msg)
	}

	s.logger.Info("friend request sent",
		slog.Int64("requestID", req.ID),
		slog.String("senderID", senderID),
		slog.String("receiverID", receiver.ID),
	)
	return req, nil
}

// pendingConflict returns the message for a pending request between the two
// users in either direction, or "" when there is none.
func (s *SocialService) pendingConflict(ctx context.Context, senderID, receiverID string) (string, error) {
	for _, dir := range []struct {
		from, to, msg string
	}{
		{senderID, receiverID, msgRequestSent},
		{receiverID, senderID, msgRequestReceived},
	} {
		_, err := s.social.PendingRequest(ctx, dir.from, dir.to)
		if err == nil {
			return dir.msg, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return "", fmt.Errorf("service/social: checking pending requests: %w", err)
		}
	}
	return "", nil
}

// RequestAction is the receiver's answer to a friend request.
type RequestAction string

const (
	ActionAccept RequestAction = "accept"
	ActionReject RequestAction = "reject"
)

// ParseRequestAction accepts "accept" or "reject" in any case.
func ParseRequestAction(raw string) (RequestAction, error) {
	switch a := RequestAction(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionAccept, ActionReject:
		return a, nil
	}
	return "", apperror.ValidationFailed("action", `Action must be "accept" or "reject"`)
}

// RespondFriendRequest resolves a pending request addressed to receiverID.
// Requests that are resolved or belong to someone else look missing.
func (s *SocialService) RespondFriendRequest(ctx context.Context, requestID int64, receiverID string, action RequestAction) (*model.FriendRequest, error) {
	var (
		req *model.FriendRequest
		err error
	)
	switch action {
	case ActionAccept:
		req, err = s.social.AcceptFriendRequest(ctx, requestID, receiverID)
	case ActionReject:
		req, err = s.social.RejectFriendRequest(ctx, requestID, receiverID)
	default:
		_, err = ParseRequestAction(string(action))
		return nil, err
	}
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(apperror.ErrNotFound, msgRequestNotPending)
		}
		return nil, fmt.Errorf("service/social: resolving friend request: %w", err)
	}

	s.logger.Info("friend request resolved",
		slog.Int64("requestID", req.ID),
		slog.String("status", string(req.Status)),
	)
	return req, nil
}

// CancelFriendRequest withdraws a pending request senderID sent.
func (s *SocialService) CancelFriendRequest(ctx context.Context, requestID int64, senderID string) (*model.FriendRequest, error) {
	req, err := s.social.CancelFriendRequest(ctx, requestID, senderID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(apperror.ErrNotFound, msgRequestNotPending)
		}
		return nil, fmt.Errorf("service/social: cancelling friend request: %w", err)
	}
	s.logger.Info("friend request cancelled", slog.Int64("requestID", req.ID))
	return req, nil
}

// ListReceivedRequests returns pending requests addressed to userID, each
// with the sender's card.
func (s *SocialService) ListReceivedRequests(ctx context.Context, userID string) ([]model.FriendRequestView, error) {
	reqs, err := s.social.ListReceivedRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing received requests: %w", err)
	}
	return reqs, nil
}

// ListSentRequests returns pending requests userID sent, each with the
// receiver's card.
func (s *SocialService) ListSentRequests(ctx context.Context, userID string) ([]model.FriendRequestView, error) {
	reqs, err := s.social.ListSentRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing sent requests: %w", err)
	}
	return reqs, nil
}

// ListFriends returns the cards of userID's friends.
func (s *SocialService) ListFriends(ctx context.Context, userID string) ([]model.UserCard, error) {
	ids, err := s.social.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing friends: %w", err)
	}
	return s.cards(ctx, ids)
}

// RemoveFriend deletes the friendship between the two users if there is one.
func (s *SocialService) RemoveFriend(ctx context.Context, userID, otherID string) error {
	if strings.TrimSpace(otherID) == "" {
		return apperror.ValidationFailed("userId", "Invalid user id")
	}
	if err := s.social.RemoveFriendship(ctx, userID, otherID); err != nil {
		return fmt.Errorf("service/social: removing friendship: %w", err)
	}
	s.logger.Info("friend removed", slog.String("userID", userID), slog.String("otherID", otherID))
	return nil
}

// AreFriends reports whether a and b are friends. Argument order is irrelevant.
func (s *SocialService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	ok, err := s.social.AreFriends(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("service/social: checking friendship: %w", err)
	}
	return ok, nil
}

// MutualFriends returns the cards of users who are friends with both.
func (s *SocialService) MutualFriends(ctx context.Context, viewerID, targetID string) ([]model.UserCard, error) {
	if viewerID == targetID {
		return []model.UserCard{}, nil
	}
	ids, err := s.mutualFriendIDs(ctx, viewerID, targetID)
	if err != nil {
		return nil, err
	}
	return s.cards(ctx, ids)
}

func (s *SocialService) mutualFriendIDs(ctx context.Context, a, b string) ([]string, error) {
	var aIDs, bIDs []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		aIDs, err = s.social.FriendIDs(gctx, a)
		return err
	})
	g.Go(func() (err error) {
		bIDs, err = s.social.FriendIDs(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/social: loading friend lists: %w", err)
	}

	inB := make(map[string]struct{}, len(bIDs))
	for _, id := range bIDs {
		inB[id] = struct{}{}
	}
	mutual := make([]string, 0)
	for _, id := range aIDs {
		if _, ok := inB[id]; ok {
			mutual = append(mutual, id)
		}
	}
	return mutual, nil
}

// cards loads user cards for ids and keeps them in username order.
func (s *SocialService) cards(ctx context.Context, ids []string) ([]model.UserCard, error) {
	if len(ids) == 0 {
		return []model.UserCard{}, nil
	}
	cards, err := s.users.GetUserCards(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/social: loading user cards: %w", err)
	}
	sortCards(cards)
	return cards, nil
}

// SearchUsers matches q against the public id (when q is a valid one) and
// usernames. The caller is never in the results.
func (s *SocialService) SearchUsers(ctx context.Context, viewerID, q string, limit int) ([]model.SocialUser, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperror.ValidationFailed("q", `Query parameter "q" is required`)
	}
	opts := repository.SearchOptions{
		Query:     q,
		ExcludeID: viewerID,
		Limit:     clampLimit(limit, DefaultSearchLimit, MaxSearchLimit),
	}
	if id, ok := ParseUniqueID(q); ok {
		opts.UniqueID = &id
	}
	cards, err := s.social.SearchUsers(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/social: searching users: %w", err)
	}
	return s.enrich(ctx, viewerID, cards)
}

// SuggestedUsers picks up to limit random accounts among the newest ones the
// viewer is not yet friends with.
func (s *SocialService) SuggestedUsers(ctx context.Context, viewerID string, limit int) ([]model.SocialUser, error) {
	limit = clampLimit(limit, DefaultSuggestedLimit, MaxSuggestedLimit)

	friendIDs, err := s.social.FriendIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/social: loading friends: %w", err)
	}
	exclude := append([]string{viewerID}, friendIDs...)

	pool, err := s.social.RecentUsers(ctx, exclude, limit*suggestedPoolFactor)
	if err != nil {
		return nil, fmt.Errorf("service/social: loading candidates: %w", err)
	}
	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return s.enrich(ctx, viewerID, pool)
}

// enrich decorates cards with the viewer's relation to each user and the
// user's primary vehicle.
func (s *SocialService) enrich(ctx context.Context, viewerID string, cards []model.UserCard) ([]model.SocialUser, error) {
	out := make([]model.SocialUser, 0, len(cards))
	if len(cards) == 0 {
		return out, nil
	}
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}

	var (
		friendIDs []string
		pending   []model.FriendRequest
		primaries map[string]model.Vehicle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		friendIDs, err = s.social.FriendIDs(gctx, viewerID)
		return err
	})
	g.Go(func() (err error) {
		pending, err = s.social.PendingRequestsInvolving(gctx, viewerID)
		return err
	})
	g.Go(func() (err error) {
		primaries, err = s.vehicles.PrimaryVehicles(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/social: enriching users: %w", err)
	}

	friends := make(map[string]bool, len(friendIDs))
	for _, id := range friendIDs {
		friends[id] = true
	}
	sent := make(map[string]bool)
	received := make(map[string]bool)
	for _, r := range pending {
		if r.SenderID == viewerID {
			sent[r.ReceiverID] = true
		} else {
			received[r.SenderID] = true
		}
	}

	for _, c := range cards {
		su := model.SocialUser{UserCard: c, FriendshipStatus: model.RelationNone}
		switch {
		case friends[c.ID]:
			su.IsFriend = true
			su.FriendshipStatus = model.RelationFriends
		case sent[c.ID]:
			su.FriendshipStatus = model.RelationRequestSent
		case received[c.ID]:
			su.FriendshipStatus = model.RelationRequestReceived
		}
		if v, ok := primaries[c.ID]; ok {
			su.PrimaryVehicle = &v
		}
		out = append(out, su)
	}
	return out, nil
}

// Profile builds targetID's profile page as seen by viewerID.
func (s *SocialService) Profile(ctx context.Context, viewerID, targetID string) (*model.SocialProfile, error) {
	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(apperror.ErrNotFound, msgUserNotFound)
		}
		return nil, fmt.Errorf("service/social: loading user: %w", err)
	}

	p := &model.SocialProfile{
		UserCard:         target.Card(),
		CreatedAt:        target.CreatedAt,
		FriendshipStatus: model.RelationNone,
	}
	self := viewerID == targetID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		p.Vehicles, err = s.vehicles.ListVehicles(gctx, targetID)
		return err
	})
	g.Go(func() (err error) {
		p.FriendCount, err = s.social.CountFriends(gctx, targetID)
		return err
	})
	if !self {
		g.Go(func() error {
			ids, err := s.mutualFriendIDs(gctx, viewerID, targetID)
			p.MutualFriendsCount = len(ids)
			return err
		})
		g.Go(func() error {
			return s.relation(gctx, viewerID, targetID, p)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/social: building profile: %w", err)
	}

	if p.Vehicles == nil {
		p.Vehicles = []model.Vehicle{}
	}
	for i := range p.Vehicles {
		if p.Vehicles[i].IsPrimary {
			v := p.Vehicles[i]
			p.PrimaryVehicle = &v
			break
		}
	}
	return p, nil
}

// relation fills the friendship fields of p. Only one of friends, sent or
// received can hold at a time.
func (s *SocialService) relation(ctx context.Context, viewerID, targetID string, p *model.SocialProfile) error {
	friends, err := s.social.AreFriends(ctx, viewerID, targetID)
	if err != nil {
		return err
	}
	if friends {
		p.IsFriend = true
		p.FriendshipStatus = model.RelationFriends
		return nil
	}
	for _, dir := range []struct {
		from, to string
		rel      model.Relation
	}{
		{viewerID, targetID, model.RelationRequestSent},
		{targetID, viewerID, model.RelationRequestReceived},
	} {
		req, err := s.social.PendingRequest(ctx, dir.from, dir.to)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		p.FriendshipStatus = dir.rel
		p.FriendRequestID = &req.ID
		return nil
	}
	return nil
}

func clampLimit(n, def, ceiling int) int {
	if n <= 0 {
		return def
	}
	return min(n, ceiling)
}

func sortCards(cards []model.UserCard) {
	slices.SortFunc(cards, func(a, b model.UserCard) int {
		return strings.Compare(a.Username, b.Username)
	})
}
