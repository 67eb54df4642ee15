package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/service"
)

// SocialHandler serves /api/social: discovery, friend requests, friends and
// profile pages. Every route requires a signed-in caller.
type SocialHandler struct {
	social *service.SocialService
	logger *slog.Logger
}

func NewSocialHandler(social *service.SocialService, logger *slog.Logger) *SocialHandler {
	return &SocialHandler{social: social, logger: logger}
}

// HandleSearch: GET /api/social/users/search?q=...&limit=20
func (h *SocialHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.social.SearchUsers(r.Context(), currentUserID(r), r.URL.Query().Get("q"), intQuery(r, "limit"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"users": users})
}

// HandleSuggested: GET /api/social/users/suggested?limit=4
func (h *SocialHandler) HandleSuggested(w http.ResponseWriter, r *http.Request) {
	users, err := h.social.SuggestedUsers(r.Context(), currentUserID(r), intQuery(r, "limit"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"users": users})
}

// HandleProfile: GET /api/social/users/{userId}/profile
func (h *SocialHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.social.Profile(r.Context(), currentUserID(r), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"user": profile})
}

// HandleMutualFriends: GET /api/social/users/{userId}/mutual-friends
func (h *SocialHandler) HandleMutualFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.social.MutualFriends(r.Context(), currentUserID(r), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"friends": friends})
}

// looseString accepts a JSON string or number, since clients send display
// ids both ways.
type looseString struct {
	set   bool
	value string
}

func (l *looseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	l.set = true
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		l.value = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	l.value = n.String()
	return nil
}

func (l looseString) ptr() *string {
	if !l.set {
		return nil
	}
	v := strings.TrimSpace(l.value)
	return &v
}

// HandleSendRequest: POST /api/social/friend-requests
// Body: one of {"to_user_id"}, {"to_unique_id"}, {"to_username"}.
func (h *SocialHandler) HandleSendRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToUserID   looseString `json:"to_user_id"`
		ToUniqueID looseString `json:"to_unique_id"`
		ToUsername looseString `json:"to_username"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	req, err := h.social.SendFriendRequest(r.Context(), currentUserID(r), service.FriendTarget{
		UserID:   body.ToUserID.ptr(),
		UniqueID: body.ToUniqueID.ptr(),
		Username: body.ToUsername.ptr(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCreated(w, "Friend request sent", M{"request": req})
}

// HandleListReceived: GET /api/social/friend-requests/pending
func (h *SocialHandler) HandleListReceived(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.social.ListReceivedRequests(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"requests": reqs})
}

// HandleListSent: GET /api/social/friend-requests/sent
func (h *SocialHandler) HandleListSent(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.social.ListSentRequests(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"requests": reqs})
}

var errRequestNotFound = apperror.New(apperror.ErrNotFound, "Pending request not found")

// HandleRespond: PATCH /api/social/friend-requests/{id}  {"action": "accept"|"reject"}
func (h *SocialHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	action, err := service.ParseRequestAction(body.Action)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, r, h.logger, errRequestNotFound)
		return
	}

	req, err := h.social.RespondFriendRequest(r.Context(), id, currentUserID(r), action)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	msg := "Friend request accepted"
	if action == service.ActionReject {
		msg = "Friend request rejected"
	}
	writeOK(w, msg, M{"request": req})
}

// HandleCancel: DELETE /api/social/friend-requests/{id}
func (h *SocialHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, r, h.logger, errRequestNotFound)
		return
	}
	req, err := h.social.CancelFriendRequest(r.Context(), id, currentUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "Friend request cancelled", M{"request": req})
}

// HandleListFriends: GET /api/social/friends
func (h *SocialHandler) HandleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.social.ListFriends(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"friends": friends})
}

// HandleRemoveFriend: DELETE /api/social/friends/{userId}
func (h *SocialHandler) HandleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	if err := h.social.RemoveFriend(r.Context(), currentUserID(r), chi.URLParam(r, "userId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "Friend removed", nil)
}
