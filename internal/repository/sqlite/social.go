package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

var _ repository.SocialRepository = (*DB)(nil)

const requestColumns = `id, sender_id, receiver_id, status, created_at, responded_at`

// =========================================================================
// FRIEND REQUESTS
// =========================================================================

// CreateFriendRequest inserts a pending request.
//
// The row also stores the canonical pair of the two ids. A partial UNIQUE
// index over that pair, restricted to pending rows, means two concurrent
// requests between the same users (in either direction) cannot both land:
// the loser gets repository.ErrDuplicate.
func (db *DB) CreateFriendRequest(ctx context.Context, req *model.FriendRequest) error {
	one, two := model.CanonicalPair(req.SenderID, req.ReceiverID)
	req.Status = model.RequestPending
	req.CreatedAt = db.now()
	req.RespondedAt = nil

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id, pair_one_id, pair_two_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.SenderID, req.ReceiverID, one, two, req.Status, req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: inserting friend request: %w", repository.ErrDuplicate)
		}
		return fmt.Errorf("sqlite: inserting friend request: %w", err)
	}
	if req.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: reading friend request id: %w", err)
	}
	return nil
}

func (db *DB) PendingRequest(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := db.conn.GetContext(ctx, &req,
		`SELECT `+requestColumns+` FROM friend_requests
		 WHERE sender_id = ? AND receiver_id = ? AND status = 'pending'`,
		senderID, receiverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("friend request", senderID+"->"+receiverID)
		}
		return nil, fmt.Errorf("sqlite: loading pending request: %w", err)
	}
	return &req, nil
}

// AcceptFriendRequest flips the request to accepted and creates the
// friendship. Both writes commit together or not at all.
func (db *DB) AcceptFriendRequest(ctx context.Context, id int64, receiverID string) (*model.FriendRequest, error) {
	var req *model.FriendRequest
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		req, err = db.resolveRequest(ctx, tx, id, receiverID, model.RequestAccepted)
		if err != nil {
			return err
		}
		_, err = db.ensureFriendship(ctx, tx, req.SenderID, req.ReceiverID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (db *DB) RejectFriendRequest(ctx context.Context, id int64, receiverID string) (*model.FriendRequest, error) {
	var req *model.FriendRequest
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		req, err = db.resolveRequest(ctx, tx, id, receiverID, model.RequestRejected)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// resolveRequest moves a pending request addressed to receiverID into a
// terminal state. Requests that are resolved already, or addressed to someone
// else, are reported as not found.
func (db *DB) resolveRequest(ctx context.Context, tx *sqlx.Tx, id int64, receiverID string, status model.FriendRequestStatus) (*model.FriendRequest, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE friend_requests SET status = ?, responded_at = ?
		 WHERE id = ? AND receiver_id = ? AND status = 'pending'`,
		status, db.now(), id, receiverID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: resolving friend request %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("friend request", strconv.FormatInt(id, 10))
	}

	var req model.FriendRequest
	if err := tx.GetContext(ctx, &req,
		`SELECT `+requestColumns+` FROM friend_requests WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("sqlite: reloading friend request %d: %w", id, err)
	}
	return &req, nil
}

// CancelFriendRequest deletes a pending request the caller sent.
func (db *DB) CancelFriendRequest(ctx context.Context, id int64, senderID string) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &req,
			`SELECT `+requestColumns+` FROM friend_requests
			 WHERE id = ? AND sender_id = ? AND status = 'pending'`, id, senderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("friend request", strconv.FormatInt(id, 10))
			}
			return fmt.Errorf("sqlite: loading friend request %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting friend request %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// requestCardRow is a friend request joined with the other party's card.
type requestCardRow struct {
	model.FriendRequest
	CardID         string           `db:"card_id"`
	CardUniqueID   int64            `db:"card_unique_id"`
	CardUsername   string           `db:"card_username"`
	CardPictureURL *string          `db:"card_profile_picture_url"`
	CardStatus     model.UserStatus `db:"card_status"`
}

func (r requestCardRow) card() *model.UserCard {
	return &model.UserCard{
		ID:                r.CardID,
		UniqueID:          r.CardUniqueID,
		Username:          r.CardUsername,
		ProfilePictureURL: r.CardPictureURL,
		Status:            r.CardStatus,
	}
}

// ListReceivedRequests returns pending requests addressed to userID, newest
// first, each with the sender's card.
func (db *DB) ListReceivedRequests(ctx context.Context, userID string) ([]model.FriendRequestView, error) {
	rows, err := db.listRequestsWithCards(ctx, "receiver_id", "sender_id", userID)
	if err != nil {
		return nil, err
	}
	views := make([]model.FriendRequestView, len(rows))
	for i, r := range rows {
		views[i] = model.FriendRequestView{FriendRequest: r.FriendRequest, Sender: r.card()}
	}
	return views, nil
}

// ListSentRequests returns pending requests userID sent, newest first, each
// with the receiver's card.
func (db *DB) ListSentRequests(ctx context.Context, userID string) ([]model.FriendRequestView, error) {
	rows, err := db.listRequestsWithCards(ctx, "sender_id", "receiver_id", userID)
	if err != nil {
		return nil, err
	}
	views := make([]model.FriendRequestView, len(rows))
	for i, r := range rows {
		views[i] = model.FriendRequestView{FriendRequest: r.FriendRequest, Receiver: r.card()}
	}
	return views, nil
}

// listRequestsWithCards filters on ownColumn and joins the user in cardColumn.
// Both names are constants supplied by the callers above.
func (db *DB) listRequestsWithCards(ctx context.Context, ownColumn, cardColumn, userID string) ([]requestCardRow, error) {
	rows := []requestCardRow{}
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT fr.id, fr.sender_id, fr.receiver_id, fr.status, fr.created_at, fr.responded_at,
		        u.id AS card_id, u.unique_id AS card_unique_id, u.username AS card_username,
		        u.profile_picture_url AS card_profile_picture_url, u.status AS card_status
		 FROM friend_requests fr
		 JOIN users u ON u.id = fr.`+cardColumn+`
		 WHERE fr.`+ownColumn+` = ? AND fr.status = 'pending'
		 ORDER BY fr.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friend requests: %w", err)
	}
	return rows, nil
}

func (db *DB) PendingRequestsInvolving(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	reqs := []model.FriendRequest{}
	err := db.conn.SelectContext(ctx, &reqs,
		`SELECT `+requestColumns+` FROM friend_requests
		 WHERE status = 'pending' AND (sender_id = ? OR receiver_id = ?)`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing pending requests for %s: %w", userID, err)
	}
	return reqs, nil
}

// =========================================================================
// FRIENDSHIPS
// =========================================================================

func (db *DB) EnsureFriendship(ctx context.Context, a, b string) (*model.Friendship, error) {
	return db.ensureFriendship(ctx, db.conn, a, b)
}

// ensureFriendship inserts the canonical pair unless it already exists and
// returns the stored row. q is either the pool or an open transaction.
func (db *DB) ensureFriendship(ctx context.Context, q sqlx.ExtContext, a, b string) (*model.Friendship, error) {
	one, two := model.CanonicalPair(a, b)
	_, err := q.ExecContext(ctx,
		`INSERT INTO friendships (user_one_id, user_two_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_one_id, user_two_id) DO NOTHING`,
		one, two, db.now())
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting friendship: %w", err)
	}

	var f model.Friendship
	if err := sqlx.GetContext(ctx, q, &f,
		`SELECT id, user_one_id, user_two_id, created_at FROM friendships
		 WHERE user_one_id = ? AND user_two_id = ?`, one, two); err != nil {
		return nil, fmt.Errorf("sqlite: loading friendship: %w", err)
	}
	return &f, nil
}

func (db *DB) AreFriends(ctx context.Context, a, b string) (bool, error) {
	one, two := model.CanonicalPair(a, b)
	var n int
	err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM friendships WHERE user_one_id = ? AND user_two_id = ?`, one, two)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking friendship: %w", err)
	}
	return n > 0, nil
}

func (db *DB) RemoveFriendship(ctx context.Context, a, b string) error {
	one, two := model.CanonicalPair(a, b)
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM friendships WHERE user_one_id = ? AND user_two_id = ?`, one, two)
	if err != nil {
		return fmt.Errorf("sqlite: removing friendship: %w", err)
	}
	return nil
}

// FriendIDs returns the ids of userID's friends, most recent friendship first.
func (db *DB) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := db.conn.SelectContext(ctx, &ids,
		`SELECT CASE WHEN user_one_id = ? THEN user_two_id ELSE user_one_id END
		 FROM friendships
		 WHERE user_one_id = ? OR user_two_id = ?
		 ORDER BY id DESC`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friends of %s: %w", userID, err)
	}
	return ids, nil
}

func (db *DB) CountFriends(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM friendships WHERE user_one_id = ? OR user_two_id = ?`, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting friends of %s: %w", userID, err)
	}
	return n, nil
}

// =========================================================================
// DISCOVERY
// =========================================================================

// likeEscaper protects LIKE wildcards in user input; usernames routinely
// contain underscores.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchUsers matches a substring of the normalized username, or the exact
// display id when opts.UniqueID is set, ordered by username.
func (db *DB) SearchUsers(ctx context.Context, opts repository.SearchOptions) ([]model.UserCard, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(opts.Query)) + "%"

	query := `SELECT ` + cardColumns + ` FROM users
		WHERE id <> ? AND is_active = 1 AND (username_normalized LIKE ? ESCAPE '\'`
	args := []any{opts.ExcludeID, pattern}
	if opts.UniqueID != nil {
		query += ` OR unique_id = ?`
		args = append(args, *opts.UniqueID)
	}
	query += `) ORDER BY username_normalized LIMIT ?`
	args = append(args, opts.Limit)

	cards := []model.UserCard{}
	if err := db.conn.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	return cards, nil
}

func (db *DB) RecentUsers(ctx context.Context, exclude []string, limit int) ([]model.UserCard, error) {
	query := `SELECT ` + cardColumns + ` FROM users WHERE is_active = 1`
	var args []any
	if len(exclude) > 0 {
		q, a, err := sqlx.In(query+` AND id NOT IN (?)`, exclude)
		if err != nil {
			return nil, fmt.Errorf("sqlite: building suggestion query: %w", err)
		}
		query, args = db.conn.Rebind(q), a
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	cards := []model.UserCard{}
	if err := db.conn.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: listing recent users: %w", err)
	}
	return cards, nil
}
