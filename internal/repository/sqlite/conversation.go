package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

var _ repository.ConversationRepository = (*DB)(nil)

const (
	conversationColumns = `id, kind, created_by, direct_user_one_id, direct_user_two_id, created_at`
	messageColumns      = `id, conversation_id, sender_id, type, content, metadata, created_at`
)

// GetOrCreateDirect is safe to call concurrently from both participants.
//
// The insert is ON CONFLICT DO NOTHING against UNIQUE(kind, one, two), so
// whichever caller loses the race simply reads the row the winner wrote.
// Member rows are upserted every time, which repairs a conversation whose
// members were lost.
func (db *DB) GetOrCreateDirect(ctx context.Context, creatorID, a, b string) (*model.Conversation, bool, error) {
	one, two := model.CanonicalPair(a, b)
	var (
		conv    model.Conversation
		created bool
	)

	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		now := db.now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (kind, created_by, direct_user_one_id, direct_user_two_id, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (kind, direct_user_one_id, direct_user_two_id) DO NOTHING`,
			model.ConversationDirect, creatorID, one, two, now)
		if err != nil {
			return fmt.Errorf("sqlite: inserting conversation: %w", err)
		}
		n, _ := res.RowsAffected()
		created = n == 1

		if err := tx.GetContext(ctx, &conv,
			`SELECT `+conversationColumns+` FROM conversations
			 WHERE kind = ? AND direct_user_one_id = ? AND direct_user_two_id = ?`,
			model.ConversationDirect, one, two); err != nil {
			return fmt.Errorf("sqlite: loading conversation: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id, joined_at)
			 VALUES (?, ?, ?), (?, ?, ?)
			 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			conv.ID, one, now, conv.ID, two, now)
		if err != nil {
			return fmt.Errorf("sqlite: inserting conversation members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

func (db *DB) IsMember(ctx context.Context, conversationID int64, userID string) (bool, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM conversation_members WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking membership: %w", err)
	}
	return n > 0, nil
}

type conversationRow struct {
	model.Conversation
	LastReadAt *time.Time `db:"last_read_at"`
}

// ListConversations returns the caller's conversations, newest first, each
// with its most recent message and the caller's read marker.
func (db *DB) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	var rows []conversationRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT c.id, c.kind, c.created_by, c.direct_user_one_id, c.direct_user_two_id, c.created_at,
		        m.last_read_at
		 FROM conversation_members m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE m.user_id = ?
		 ORDER BY c.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing conversations of %s: %w", userID, err)
	}

	summaries := make([]model.ConversationSummary, len(rows))
	if len(rows) == 0 {
		return summaries, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	query, args, err := sqlx.In(
		`SELECT `+messageColumns+` FROM messages
		 WHERE id IN (SELECT MAX(id) FROM messages WHERE conversation_id IN (?) GROUP BY conversation_id)`, ids)
	if err != nil {
		return nil, fmt.Errorf("sqlite: building last message query: %w", err)
	}
	var last []model.Message
	if err := db.conn.SelectContext(ctx, &last, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlite: loading last messages: %w", err)
	}
	lastByConv := make(map[int64]*model.Message, len(last))
	for i := range last {
		lastByConv[last[i].ConversationID] = &last[i]
	}

	for i, r := range rows {
		summaries[i] = model.ConversationSummary{
			Conversation: r.Conversation,
			LastReadAt:   r.LastReadAt,
			LastMessage:  lastByConv[r.ID],
		}
	}
	return summaries, nil
}

// ListMessages pages backwards from the newest message.
func (db *DB) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]model.Message, error) {
	msgs := []model.Message{}
	err := db.conn.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ?
		 ORDER BY id DESC LIMIT ? OFFSET ?`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of %d: %w", conversationID, err)
	}
	return msgs, nil
}

func (db *DB) CreateMessage(ctx context.Context, msg *model.Message) error {
	msg.CreatedAt = db.now()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, type, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.SenderID, msg.Type, msg.Content, msg.Metadata, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: inserting message: %w", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: reading message id: %w", err)
	}
	return nil
}

func (db *DB) MarkRead(ctx context.Context, conversationID int64, userID string) (*model.ReadState, error) {
	at := db.now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE conversation_members SET last_read_at = ? WHERE conversation_id = ? AND user_id = ?`,
		at, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marking conversation %d read: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("conversation member", strconv.FormatInt(conversationID, 10))
	}
	return &model.ReadState{ConversationID: conversationID, UserID: userID, LastReadAt: &at}, nil
}
