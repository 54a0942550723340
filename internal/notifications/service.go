package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/squadspace/backend/internal/livesync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// FeedTableNotifications is the change feed topic for tray inserts.
const FeedTableNotifications = "notifications"

const (
	opServiceNew  = "notifications.service.new"
	opNotify      = "notifications.notify"
	opListForUser = "notifications.list_for_user"
	opMarkRead    = "notifications.mark_read"
	opMarkAllRead = "notifications.mark_all_read"
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

// ServiceConfig wires the notification service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Feed       *livesync.Feed
	Clock      func() time.Time
	IDProvider livesync.IDProvider
	Logger     *zap.Logger
}

// Service persists notifications and pushes them to per-user tray feeds.
type Service struct {
	db         *gorm.DB
	feed       *livesync.Feed
	clock      func() time.Time
	idProvider livesync.IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
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
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Notify stores a notification for the user and publishes it to their tray
// feed.
func (s *Service) Notify(ctx context.Context, userID, kind, body, squadID, resourceID string) (Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return Notification{}, newServiceError(opNotify, "missing_user", livesync.ErrUnauthenticated)
	}
	notificationID, err := s.idProvider.NewID()
	if err != nil {
		return Notification{}, newServiceError(opNotify, "id_generation_failed", err)
	}
	notification := Notification{
		NotificationID:   notificationID,
		UserID:           userID,
		Kind:             kind,
		Body:             body,
		SquadID:          squadID,
		ResourceID:       resourceID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.logError(opNotify, "insert_failed", err, zap.String("user_id", userID))
		return Notification{}, newServiceError(opNotify, "insert_failed", err)
	}

	if s.feed != nil {
		s.feed.Publish(livesync.Event{
			Kind:      livesync.EventInsert,
			Table:     FeedTableNotifications,
			Scope:     userID,
			RowID:     notification.NotificationID,
			Payload:   notification,
			Timestamp: notification.RecordCreatedAt(),
		})
	}
	return notification, nil
}

// ListForUser returns the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	var list []Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_s DESC").
		Find(&list).Error
	if err != nil {
		s.logError(opListForUser, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListForUser, "query_failed", err)
	}
	return list, nil
}

// MarkRead marks one notification read. Only the recipient may do so.
func (s *Service) MarkRead(ctx context.Context, notificationID, actorID string) error {
	var notification Notification
	err := s.db.WithContext(ctx).Where("notification_id = ?", notificationID).Take(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(opMarkRead, "missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opMarkRead, "lookup_failed", err, zap.String("notification_id", notificationID))
		return newServiceError(opMarkRead, "lookup_failed", err)
	}
	if notification.UserID != actorID {
		return newServiceError(opMarkRead, "not_recipient", livesync.ErrPermissionDenied)
	}
	err = s.db.WithContext(ctx).Model(&Notification{}).
		Where("notification_id = ?", notificationID).
		Update("is_read", true).Error
	if err != nil {
		s.logError(opMarkRead, "update_failed", err, zap.String("notification_id", notificationID))
		return newServiceError(opMarkRead, "update_failed", err)
	}
	return nil
}

// MarkAllRead marks every unread notification for the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
	if err != nil {
		s.logError(opMarkAllRead, "update_failed", err, zap.String("user_id", userID))
		return newServiceError(opMarkAllRead, "update_failed", err)
	}
	return nil
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
	s.logger.Error("notifications service error", attrs...)
}
