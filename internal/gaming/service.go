package gaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/squadspace/backend/internal/database"
	"github.com/squadspace/backend/internal/livesync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "gaming.service.new"
	opCreatePost = "gaming.create_post"
	opListPosts  = "gaming.list_posts"
	opJoin       = "gaming.join"
	opLeave      = "gaming.leave"
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

// ServiceConfig wires the LFG service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider livesync.IDProvider
	Logger     *zap.Logger
}

// Service persists LFG posts and capped memberships.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider livesync.IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the LFG service.
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
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreatePost stores a new LFG post and seats its creator.
func (s *Service) CreatePost(ctx context.Context, squadID, createdBy, game, description string, maxPlayers int) (LFGPost, error) {
	if strings.TrimSpace(createdBy) == "" {
		return LFGPost{}, newServiceError(opCreatePost, "unauthenticated", livesync.ErrUnauthenticated)
	}
	if strings.TrimSpace(game) == "" {
		return LFGPost{}, newServiceError(opCreatePost, "missing_game", livesync.ErrNotFound)
	}

	postID, err := s.idProvider.NewID()
	if err != nil {
		return LFGPost{}, newServiceError(opCreatePost, "id_generation_failed", err)
	}
	participantID, err := s.idProvider.NewID()
	if err != nil {
		return LFGPost{}, newServiceError(opCreatePost, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	post := LFGPost{
		PostID:           postID,
		SquadID:          squadID,
		CreatedBy:        createdBy,
		Game:             game,
		Description:      description,
		MaxPlayers:       maxPlayers,
		CreatedAtSeconds: now,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		creator := LFGParticipant{
			ParticipantID:    participantID,
			PostID:           postID,
			UserID:           createdBy,
			CreatedAtSeconds: now,
		}
		return tx.Create(&creator).Error
	})
	if txErr != nil {
		s.logError(opCreatePost, "insert_failed", txErr, zap.String("squad_id", squadID))
		return LFGPost{}, newServiceError(opCreatePost, "insert_failed", txErr)
	}
	return post, nil
}

// ListPosts returns the squad's LFG posts, newest first.
func (s *Service) ListPosts(ctx context.Context, squadID string) ([]LFGPost, error) {
	var posts []LFGPost
	err := s.db.WithContext(ctx).
		Where("squad_id = ?", squadID).
		Order("created_at_s DESC").
		Find(&posts).Error
	if err != nil {
		s.logError(opListPosts, "query_failed", err, zap.String("squad_id", squadID))
		return nil, newServiceError(opListPosts, "query_failed", err)
	}
	return posts, nil
}

// ParticipantCount returns the current number of seated players.
func (s *Service) ParticipantCount(ctx context.Context, postID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&LFGParticipant{}).
		Where("post_id = ?", postID).
		Count(&count).Error
	if err != nil {
		return 0, newServiceError(opJoin, "count_failed", err)
	}
	return int(count), nil
}

// Join seats the user on the post. A full post denies with
// ErrCapacityExceeded; a duplicate join surfaces ErrConflict since it
// signals a race the user should know about. The capacity read is not
// atomic against the insert.
func (s *Service) Join(ctx context.Context, postID, userID string) (LFGParticipant, error) {
	if strings.TrimSpace(userID) == "" {
		return LFGParticipant{}, newServiceError(opJoin, "unauthenticated", livesync.ErrUnauthenticated)
	}

	var post LFGPost
	err := s.db.WithContext(ctx).Where("post_id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LFGParticipant{}, newServiceError(opJoin, "post_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opJoin, "post_lookup_failed", err, zap.String("post_id", postID))
		return LFGParticipant{}, newServiceError(opJoin, "post_lookup_failed", err)
	}

	count, err := s.ParticipantCount(ctx, postID)
	if err != nil {
		return LFGParticipant{}, err
	}
	if decision := livesync.AdmitJoin(count, post.MaxPlayers); decision.Kind == livesync.DecisionDenied {
		return LFGParticipant{}, newServiceError(opJoin, "post_full", decision.Err)
	}

	participantID, err := s.idProvider.NewID()
	if err != nil {
		return LFGParticipant{}, newServiceError(opJoin, "id_generation_failed", err)
	}
	participant := LFGParticipant{
		ParticipantID:    participantID,
		PostID:           postID,
		UserID:           userID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&participant).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return LFGParticipant{}, newServiceError(opJoin, "already_joined", livesync.ErrConflict)
		}
		s.logError(opJoin, "insert_failed", err, zap.String("post_id", postID))
		return LFGParticipant{}, newServiceError(opJoin, "insert_failed", err)
	}
	return participant, nil
}

// Leave removes the user's seat.
func (s *Service) Leave(ctx context.Context, postID, userID string) error {
	result := s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&LFGParticipant{})
	if result.Error != nil {
		s.logError(opLeave, "delete_failed", result.Error, zap.String("post_id", postID))
		return newServiceError(opLeave, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opLeave, "not_joined", livesync.ErrNotFound)
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
	s.logger.Error("gaming service error", attrs...)
}
