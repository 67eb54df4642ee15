package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ConversationKind distinguishes two-party threads from future kinds.
type ConversationKind string

const ConversationDirect ConversationKind = "direct"

// Conversation is a messaging thread. For direct conversations the two
// participant ids are stored in canonical order (see CanonicalPair), and the
// (kind, one, two) triple is unique.
type Conversation struct {
	ID              int64            `json:"id"                  db:"id"`
	Kind            ConversationKind `json:"type"                db:"kind"`
	CreatedBy       string           `json:"created_by"          db:"created_by"`
	DirectUserOneID string           `json:"direct_user_one_id"  db:"direct_user_one_id"`
	DirectUserTwoID string           `json:"direct_user_two_id"  db:"direct_user_two_id"`
	CreatedAt       time.Time        `json:"created_at"          db:"created_at"`
}

// ConversationSummary is a row of the caller's inbox.
type ConversationSummary struct {
	Conversation
	LastReadAt  *time.Time `json:"last_read_at"`
	LastMessage *Message   `json:"last_message"`
}

// ReadState is a member's read marker in a conversation.
type ReadState struct {
	ConversationID int64      `json:"conversation_id" db:"conversation_id"`
	UserID         string     `json:"user_id"         db:"user_id"`
	LastReadAt     *time.Time `json:"last_read_at"    db:"last_read_at"`
}

// MessageType is the rendering hint for a message body.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a supported message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageSystem:
		return true
	}
	return false
}

// Message is a single entry in a conversation.
type Message struct {
	ID             int64       `json:"id"              db:"id"`
	ConversationID int64       `json:"conversation_id" db:"conversation_id"`
	SenderID       string      `json:"sender_id"       db:"sender_id"`
	Type           MessageType `json:"type"            db:"type"`
	Content        string      `json:"content"         db:"content"`
	Metadata       JSONText    `json:"metadata"        db:"metadata"`
	CreatedAt      time.Time   `json:"created_at"      db:"created_at"`
}

// MediaAttachment is the shape returned by the upload service once an image
// has been stored. Image messages carry it as metadata.
type MediaAttachment struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
}

// JSONText is a raw JSON document stored in a nullable TEXT column.
// A nil JSONText is written as NULL and encoded as JSON null.
type JSONText []byte

// Scan implements sql.Scanner.
func (j *JSONText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONText(v)
	default:
		return fmt.Errorf("model: cannot scan %T into JSONText", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// MarshalJSON emits the stored document verbatim.
func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

// UnmarshalJSON keeps a copy of the raw document. A literal null clears it.
func (j *JSONText) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], data...)
	return nil
}
