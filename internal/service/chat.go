package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

const msgNotMember = "You are not a member of this conversation"

// FriendshipChecker gates the creation of direct conversations.
// SocialService satisfies it.
type FriendshipChecker interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// ChatService owns direct conversations and their messages.
//
// Friendship is only required to open a conversation. Reading, sending and
// marking read depend on membership alone, so unfriending does not lock
// anyone out of an existing thread.
type ChatService struct {
	users   repository.UserRepository
	convs   repository.ConversationRepository
	friends FriendshipChecker
	logger  *slog.Logger
}

func NewChatService(
	users repository.UserRepository,
	convs repository.ConversationRepository,
	friends FriendshipChecker,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		users:   users,
		convs:   convs,
		friends: friends,
		logger:  logger,
	}
}

// OpenDirect returns the direct conversation between userID and otherID,
// creating it on first use. Both users must be friends.
func (s *ChatService) OpenDirect(ctx context.Context, userID, otherID string) (*model.Conversation, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, apperror.ValidationFailed("userId", "Invalid user id")
	}
	if otherID == userID {
		return nil, apperror.ValidationFailed("userId", "Cannot create direct conversation with yourself")
	}

	if _, err := s.users.GetUserByID(ctx, otherID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.New(apperror.ErrNotFound, msgUserNotFound)
		}
		return nil, fmt.Errorf("service/chat: loading user: %w", err)
	}

	ok, err := s.friends.AreFriends(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: checking friendship: %w", err)
	}
	if !ok {
		return nil, apperror.Forbidden("You can only chat with friends")
	}

	conv, created, err := s.convs.GetOrCreateDirect(ctx, userID, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: opening conversation: %w", err)
	}
	if created {
		s.logger.Info("conversation opened",
			slog.Int64("conversationID", conv.ID),
			slog.String("createdBy", userID),
		)
	}
	return conv, nil
}

// ListConversations returns the caller's inbox, newest conversation first.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	convs, err := s.convs.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: listing conversations: %w", err)
	}
	return convs, nil
}

func (s *ChatService) requireMember(ctx context.Context, conversationID int64, userID string) error {
	ok, err := s.convs.IsMember(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("service/chat: checking membership: %w", err)
	}
	if !ok {
		return apperror.Forbidden(msgNotMember)
	}
	return nil
}

// ListMessages returns a page of messages, newest first. limit is clamped to
// 1..MaxMessageLimit (0 means the default) and a negative offset reads from
// the start.
func (s *ChatService) ListMessages(ctx context.Context, conversationID int64, userID string, limit, offset int) ([]model.Message, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultMessageLimit, MaxMessageLimit)
	offset = max(offset, 0)

	msgs, err := s.convs.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service/chat: listing messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// SendInput is a new message. An empty Type means text.
type SendInput struct {
	Type     string
	Content  string
	Metadata json.RawMessage
}

// SendMessage appends a message from userID to the conversation.
func (s *ChatService) SendMessage(ctx context.Context, conversationID int64, userID string, in SendInput) (*model.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "Message content is required")
	}
	typ := model.MessageType(strings.TrimSpace(in.Type))
	if typ == "" {
		typ = model.MessageText
	}
	if !typ.Valid() {
		return nil, apperror.ValidationFailed("type", "type must be one of: text, image, system")
	}
	meta, err := messageMetadata(typ, in.Metadata)
	if err != nil {
		return nil, err
	}

	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Type:           typ,
		Content:        content,
		Metadata:       meta,
	}
	if err := s.convs.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("service/chat: storing message: %w", err)
	}
	s.logger.Debug("message sent",
		slog.Int64("conversationID", conversationID),
		slog.Int64("messageID", msg.ID),
	)
	return msg, nil
}

// messageMetadata validates the optional metadata document. Image messages
// must carry an uploaded attachment.
func messageMetadata(typ model.MessageType, raw json.RawMessage) (model.JSONText, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		if typ == model.MessageImage {
			return nil, apperror.ValidationFailed("metadata", "Image messages require metadata with a url")
		}
		return nil, nil
	}
	if raw[0] != '{' || !json.Valid(raw) {
		return nil, apperror.ValidationFailed("metadata", "metadata must be a JSON object")
	}
	if typ == model.MessageImage {
		var att model.MediaAttachment
		if err := json.Unmarshal(raw, &att); err != nil || strings.TrimSpace(att.URL) == "" {
			return nil, apperror.ValidationFailed("metadata", "Image messages require metadata with a url")
		}
	}
	return model.JSONText(raw), nil
}

// MarkRead moves the caller's read marker to now.
func (s *ChatService) MarkRead(ctx context.Context, conversationID int64, userID string) (*model.ReadState, error) {
	state, err := s.convs.MarkRead(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden(msgNotMember)
		}
		return nil, fmt.Errorf("service/chat: marking read: %w", err)
	}
	return state, nil
}
