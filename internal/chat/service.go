package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/squadspace/backend/internal/database"
	"github.com/squadspace/backend/internal/identity"
	"github.com/squadspace/backend/internal/livesync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingProfiles   = errors.New("profile service is required")
	noOpLogger           = zap.NewNop()
)

// FeedTableMessages is the change feed topic for message inserts/deletes.
const FeedTableMessages = "messages"

const (
	opServiceNew      = "chat.service.new"
	opCreateChannel   = "chat.create_channel"
	opListChannels    = "chat.list_channels"
	opSendMessage     = "chat.send_message"
	opListMessages    = "chat.list_messages"
	opAddReaction     = "chat.add_reaction"
	opDeleteMessage   = "chat.delete_message"
	defaultChannelTyp = "text"
)

// ServiceError carries a dotted operation code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig wires the chat service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Feed       *livesync.Feed
	Profiles   *identity.Service
	Clock      func() time.Time
	IDProvider livesync.IDProvider
	Logger     *zap.Logger
}

// Service persists channels, messages, and reactions and publishes change
// feed events for each write.
type Service struct {
	db         *gorm.DB
	feed       *livesync.Feed
	profiles   *identity.Service
	clock      func() time.Time
	idProvider livesync.IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the chat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Profiles == nil {
		return nil, newServiceError(opServiceNew, "missing_profiles", errMissingProfiles)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		feed:       cfg.Feed,
		profiles:   cfg.Profiles,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateChannel adds a named channel to the squad.
func (s *Service) CreateChannel(ctx context.Context, squadID, name string) (Channel, error) {
	squadID = strings.TrimSpace(squadID)
	name = strings.TrimSpace(name)
	if squadID == "" || name == "" {
		return Channel{}, newServiceError(opCreateChannel, "invalid_input", ErrInvalidChannelID)
	}
	channelID, err := s.idProvider.NewID()
	if err != nil {
		return Channel{}, newServiceError(opCreateChannel, "id_generation_failed", err)
	}
	channel := Channel{
		ChannelID:        channelID,
		SquadID:          squadID,
		Name:             name,
		Type:             defaultChannelTyp,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&channel).Error; err != nil {
		s.logError(opCreateChannel, "insert_failed", err, zap.String("squad_id", squadID))
		return Channel{}, newServiceError(opCreateChannel, "insert_failed", err)
	}
	return channel, nil
}

// ListChannels returns the squad's channels in creation order.
func (s *Service) ListChannels(ctx context.Context, squadID string) ([]Channel, error) {
	var channels []Channel
	err := s.db.WithContext(ctx).
		Where("squad_id = ?", squadID).
		Order("created_at_s ASC").
		Find(&channels).Error
	if err != nil {
		s.logError(opListChannels, "query_failed", err, zap.String("squad_id", squadID))
		return nil, newServiceError(opListChannels, "query_failed", err)
	}
	return channels, nil
}

// SendMessage persists the message, assembles its denormalized record, and
// publishes the insert to the channel's change feed.
func (s *Service) SendMessage(ctx context.Context, channelID ChannelID, senderID, content, imageURL string) (MessageRecord, error) {
	if strings.TrimSpace(senderID) == "" {
		return MessageRecord{}, newServiceError(opSendMessage, "unauthenticated", livesync.ErrUnauthenticated)
	}
	if strings.TrimSpace(content) == "" && strings.TrimSpace(imageURL) == "" {
		return MessageRecord{}, newServiceError(opSendMessage, "empty_message", ErrInvalidContent)
	}

	messageID, err := s.idProvider.NewID()
	if err != nil {
		return MessageRecord{}, newServiceError(opSendMessage, "id_generation_failed", err)
	}
	message := Message{
		MessageID:        messageID,
		ChannelID:        channelID.String(),
		SenderID:         senderID,
		Content:          content,
		ImageURL:         imageURL,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logError(opSendMessage, "insert_failed", err,
			zap.String("channel_id", channelID.String()),
			zap.String("sender_id", senderID))
		return MessageRecord{}, newServiceError(opSendMessage, "insert_failed", err)
	}

	sender, err := s.profiles.Get(ctx, senderID)
	if err != nil && !errors.Is(err, livesync.ErrNotFound) {
		s.logError(opSendMessage, "sender_lookup_failed", err, zap.String("sender_id", senderID))
		return MessageRecord{}, newServiceError(opSendMessage, "sender_lookup_failed", err)
	}

	record := MessageRecord{Message: message, Sender: sender}
	s.publish(livesync.Event{
		Kind:      livesync.EventInsert,
		Table:     FeedTableMessages,
		Scope:     channelID.String(),
		RowID:     message.MessageID,
		Payload:   record,
		Timestamp: record.RecordCreatedAt(),
	})
	return record, nil
}

// ListMessages returns the channel's messages in feed order with senders
// and reactions attached.
func (s *Service) ListMessages(ctx context.Context, channelID ChannelID) ([]MessageRecord, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID.String()).
		Order("created_at_s ASC").
		Find(&messages).Error
	if err != nil {
		s.logError(opListMessages, "query_failed", err, zap.String("channel_id", channelID.String()))
		return nil, newServiceError(opListMessages, "query_failed", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	messageIDs := make([]string, 0, len(messages))
	senderIDs := make([]string, 0, len(messages))
	for _, message := range messages {
		messageIDs = append(messageIDs, message.MessageID)
		senderIDs = append(senderIDs, message.SenderID)
	}

	var reactions []Reaction
	err = s.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at_s ASC").
		Find(&reactions).Error
	if err != nil {
		s.logError(opListMessages, "reactions_query_failed", err, zap.String("channel_id", channelID.String()))
		return nil, newServiceError(opListMessages, "reactions_query_failed", err)
	}
	reactionsByMessage := make(map[string][]Reaction, len(messages))
	for _, reaction := range reactions {
		reactionsByMessage[reaction.MessageID] = append(reactionsByMessage[reaction.MessageID], reaction)
	}

	senders, err := s.profiles.GetMany(ctx, senderIDs)
	if err != nil {
		s.logError(opListMessages, "senders_query_failed", err, zap.String("channel_id", channelID.String()))
		return nil, newServiceError(opListMessages, "senders_query_failed", err)
	}

	records := make([]MessageRecord, 0, len(messages))
	for _, message := range messages {
		records = append(records, MessageRecord{
			Message:   message,
			Sender:    senders[message.SenderID],
			Reactions: reactionsByMessage[message.MessageID],
		})
	}
	return records, nil
}

// AddReaction attaches an emoji to a message. A duplicate reaction by the
// same user is a benign race and resolves to success without a second row.
func (s *Service) AddReaction(ctx context.Context, messageID, userID, emoji string) (Reaction, error) {
	if strings.TrimSpace(userID) == "" {
		return Reaction{}, newServiceError(opAddReaction, "unauthenticated", livesync.ErrUnauthenticated)
	}

	var message Message
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Reaction{}, newServiceError(opAddReaction, "message_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opAddReaction, "message_lookup_failed", err, zap.String("message_id", messageID))
		return Reaction{}, newServiceError(opAddReaction, "message_lookup_failed", err)
	}

	reactionID, err := s.idProvider.NewID()
	if err != nil {
		return Reaction{}, newServiceError(opAddReaction, "id_generation_failed", err)
	}
	reaction := Reaction{
		ReactionID:       reactionID,
		MessageID:        messageID,
		UserID:           userID,
		Emoji:            emoji,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&reaction).Error; err != nil {
		if database.IsUniqueViolation(err) {
			var existing Reaction
			lookupErr := s.db.WithContext(ctx).
				Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
				Take(&existing).Error
			if lookupErr == nil {
				return existing, nil
			}
			return reaction, nil
		}
		s.logError(opAddReaction, "insert_failed", err, zap.String("message_id", messageID))
		return Reaction{}, newServiceError(opAddReaction, "insert_failed", err)
	}

	s.publish(livesync.Event{
		Kind:      livesync.EventUpdate,
		Table:     FeedTableMessages,
		Scope:     message.ChannelID,
		RowID:     messageID,
		Payload:   reaction,
		Timestamp: s.clock().UTC(),
	})
	return reaction, nil
}

// DeleteMessage removes a message. Only the sender may delete their own
// message.
func (s *Service) DeleteMessage(ctx context.Context, messageID, actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return newServiceError(opDeleteMessage, "unauthenticated", livesync.ErrUnauthenticated)
	}

	var message Message
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(opDeleteMessage, "message_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opDeleteMessage, "message_lookup_failed", err, zap.String("message_id", messageID))
		return newServiceError(opDeleteMessage, "message_lookup_failed", err)
	}
	if message.SenderID != actorID {
		return newServiceError(opDeleteMessage, "not_sender", livesync.ErrPermissionDenied)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&Reaction{}).Error; err != nil {
			return err
		}
		return tx.Where("message_id = ?", messageID).Delete(&Message{}).Error
	})
	if txErr != nil {
		s.logError(opDeleteMessage, "delete_failed", txErr, zap.String("message_id", messageID))
		return newServiceError(opDeleteMessage, "delete_failed", txErr)
	}

	s.publish(livesync.Event{
		Kind:      livesync.EventDelete,
		Table:     FeedTableMessages,
		Scope:     message.ChannelID,
		RowID:     messageID,
		Timestamp: s.clock().UTC(),
	})
	return nil
}

func (s *Service) publish(event livesync.Event) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(event)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("chat service error", attrs...)
}
