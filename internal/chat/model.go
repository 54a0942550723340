package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/squadspace/backend/internal/identity"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidChannelID indicates a channel identifier is empty or exceeds storage bounds.
	ErrInvalidChannelID = errors.New("chat: invalid channel id")
	// ErrInvalidContent indicates a message had no content and no attachment.
	ErrInvalidContent = errors.New("chat: invalid message content")
)

// ChannelID represents a validated channel identifier.
type ChannelID string

// NewChannelID validates raw input and returns a ChannelID.
func NewChannelID(rawInput string) (ChannelID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidChannelID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidChannelID, maxIdentifierLength)
	}
	return ChannelID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ChannelID) String() string {
	return string(id)
}

// Channel is a named message stream inside a squad.
type Channel struct {
	ChannelID        string `gorm:"column:channel_id;primaryKey;size:190;not null"`
	SquadID          string `gorm:"column:squad_id;size:190;not null;index:idx_channels_squad_time,priority:1"`
	Name             string `gorm:"column:name;size:190;not null"`
	Type             string `gorm:"column:type;size:32;not null;default:'text'"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_channels_squad_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Channel) TableName() string {
	return "channels"
}

// Message is one persisted chat message.
type Message struct {
	MessageID        string `gorm:"column:message_id;primaryKey;size:190;not null"`
	ChannelID        string `gorm:"column:channel_id;size:190;not null;index:idx_messages_channel_time,priority:1"`
	SenderID         string `gorm:"column:sender_id;size:190;not null"`
	Content          string `gorm:"column:content;type:text;not null"`
	ImageURL         string `gorm:"column:image_url;size:512"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_messages_channel_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "messages"
}

// Reaction is one emoji attached to a message by a user. The unique index
// is what turns a double-submitted reaction into a benign conflict.
type Reaction struct {
	ReactionID       string `gorm:"column:reaction_id;primaryKey;size:190;not null"`
	MessageID        string `gorm:"column:message_id;size:190;not null;uniqueIndex:idx_reactions_message_user_emoji,priority:1"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_reactions_message_user_emoji,priority:2"`
	Emoji            string `gorm:"column:emoji;size:64;not null;uniqueIndex:idx_reactions_message_user_emoji,priority:3"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Reaction) TableName() string {
	return "reactions"
}

// MessageRecord is the denormalized message a channel view renders: the row
// plus its sender profile and reactions.
type MessageRecord struct {
	Message
	Sender    identity.Profile
	Reactions []Reaction
}

// RecordID identifies the message within its view store.
func (r MessageRecord) RecordID() string {
	return r.MessageID
}

// RecordScope is the channel partitioning the view.
func (r MessageRecord) RecordScope() string {
	return r.ChannelID
}

// RecordCreatedAt is the feed ordering timestamp.
func (r MessageRecord) RecordCreatedAt() time.Time {
	return time.Unix(r.CreatedAtSeconds, 0).UTC()
}
