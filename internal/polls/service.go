package polls

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
	errInvalidPollType   = errors.New("polls: invalid poll type")
	errNoOptions         = errors.New("polls: at least two options are required")
	noOpLogger           = zap.NewNop()
)

// FeedTableVotes is the change feed topic for vote tallies.
const FeedTableVotes = "poll_votes"

const (
	opServiceNew = "polls.service.new"
	opCreatePoll = "polls.create_poll"
	opListPolls  = "polls.list_polls"
	opVote       = "polls.vote"
	opClosePoll  = "polls.close_poll"
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

// ServiceConfig wires the poll service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Feed       *livesync.Feed
	Clock      func() time.Time
	IDProvider livesync.IDProvider
	Logger     *zap.Logger
}

// Service persists polls, options and guarded votes.
type Service struct {
	db         *gorm.DB
	feed       *livesync.Feed
	clock      func() time.Time
	idProvider livesync.IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the poll service.
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

// CreatePollInput carries the validated fields for a new poll.
type CreatePollInput struct {
	SquadID       string
	CreatedBy     string
	Question      string
	PollType      string
	EndsAtSeconds int64
	OptionLabels  []string
}

// CreatePoll stores the poll and its ordered options in one transaction.
func (s *Service) CreatePoll(ctx context.Context, input CreatePollInput) (Poll, []PollOption, error) {
	if strings.TrimSpace(input.CreatedBy) == "" {
		return Poll{}, nil, newServiceError(opCreatePoll, "unauthenticated", livesync.ErrUnauthenticated)
	}
	if input.PollType != PollTypeSingle && input.PollType != PollTypeMultiple {
		return Poll{}, nil, newServiceError(opCreatePoll, "invalid_poll_type", errInvalidPollType)
	}
	if strings.TrimSpace(input.Question) == "" || len(input.OptionLabels) < 2 {
		return Poll{}, nil, newServiceError(opCreatePoll, "invalid_input", errNoOptions)
	}

	pollID, err := s.idProvider.NewID()
	if err != nil {
		return Poll{}, nil, newServiceError(opCreatePoll, "id_generation_failed", err)
	}
	poll := Poll{
		PollID:           pollID,
		SquadID:          input.SquadID,
		CreatedBy:        input.CreatedBy,
		Question:         input.Question,
		PollType:         input.PollType,
		EndsAtSeconds:    input.EndsAtSeconds,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	options := make([]PollOption, 0, len(input.OptionLabels))
	for i, label := range input.OptionLabels {
		optionID, idErr := s.idProvider.NewID()
		if idErr != nil {
			return Poll{}, nil, newServiceError(opCreatePoll, "id_generation_failed", idErr)
		}
		options = append(options, PollOption{
			OptionID:   optionID,
			PollID:     pollID,
			Label:      label,
			OrderIndex: i,
		})
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&poll).Error; err != nil {
			return err
		}
		return tx.Create(&options).Error
	})
	if txErr != nil {
		s.logError(opCreatePoll, "insert_failed", txErr, zap.String("squad_id", input.SquadID))
		return Poll{}, nil, newServiceError(opCreatePoll, "insert_failed", txErr)
	}
	return poll, options, nil
}

// ListPolls returns the squad's polls, newest first.
func (s *Service) ListPolls(ctx context.Context, squadID string) ([]Poll, error) {
	var polls []Poll
	err := s.db.WithContext(ctx).
		Where("squad_id = ?", squadID).
		Order("created_at_s DESC").
		Find(&polls).Error
	if err != nil {
		s.logError(opListPolls, "query_failed", err, zap.String("squad_id", squadID))
		return nil, newServiceError(opListPolls, "query_failed", err)
	}
	return polls, nil
}

// Options returns the poll's options in display order.
func (s *Service) Options(ctx context.Context, pollID string) ([]PollOption, error) {
	var options []PollOption
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("order_index ASC").
		Find(&options).Error
	if err != nil {
		s.logError(opListPolls, "options_query_failed", err, zap.String("poll_id", pollID))
		return nil, newServiceError(opListPolls, "options_query_failed", err)
	}
	return options, nil
}

// Votes returns every vote on the poll.
func (s *Service) Votes(ctx context.Context, pollID string) ([]PollVote, error) {
	var votes []PollVote
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Find(&votes).Error
	if err != nil {
		s.logError(opVote, "votes_query_failed", err, zap.String("poll_id", pollID))
		return nil, newServiceError(opVote, "votes_query_failed", err)
	}
	return votes, nil
}

// Vote toggles the user's vote on the option. Re-voting the same option
// removes the vote. On a single-choice poll, voting a different option
// replaces the user's prior vote in the same transaction. Closed or
// expired polls refuse the vote.
func (s *Service) Vote(ctx context.Context, pollID, optionID, userID string) (livesync.VoteAction, error) {
	if strings.TrimSpace(userID) == "" {
		return "", newServiceError(opVote, "unauthenticated", livesync.ErrUnauthenticated)
	}

	var poll Poll
	err := s.db.WithContext(ctx).Where("poll_id = ?", pollID).Take(&poll).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", newServiceError(opVote, "poll_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opVote, "poll_lookup_failed", err, zap.String("poll_id", pollID))
		return "", newServiceError(opVote, "poll_lookup_failed", err)
	}

	var option PollOption
	err = s.db.WithContext(ctx).
		Where("option_id = ? AND poll_id = ?", optionID, pollID).
		Take(&option).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", newServiceError(opVote, "option_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opVote, "option_lookup_failed", err, zap.String("poll_id", pollID))
		return "", newServiceError(opVote, "option_lookup_failed", err)
	}

	var existing []PollVote
	err = s.db.WithContext(ctx).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		Find(&existing).Error
	if err != nil {
		s.logError(opVote, "vote_lookup_failed", err, zap.String("poll_id", pollID))
		return "", newServiceError(opVote, "vote_lookup_failed", err)
	}

	state := livesync.VoteState{
		SingleChoice: poll.PollType == PollTypeSingle,
		Closed:       poll.IsClosed,
	}
	if poll.EndsAtSeconds > 0 {
		endsAt := time.Unix(poll.EndsAtSeconds, 0).UTC()
		state.EndsAt = &endsAt
	}
	for _, vote := range existing {
		if vote.OptionID == optionID {
			state.HasVoteForOption = true
		} else {
			state.HasVoteForOtherOpts = true
		}
	}

	now := s.clock().UTC()
	plan, err := livesync.ResolveVote(state, now)
	if err != nil {
		return "", newServiceError(opVote, "poll_closed", err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if plan.ClearOtherVotes {
			err := tx.Where("poll_id = ? AND user_id = ? AND option_id <> ?", pollID, userID, optionID).
				Delete(&PollVote{}).Error
			if err != nil {
				return err
			}
		}
		if plan.Action == livesync.VoteRemoved {
			return tx.Where("poll_id = ? AND user_id = ? AND option_id = ?", pollID, userID, optionID).
				Delete(&PollVote{}).Error
		}
		voteID, idErr := s.idProvider.NewID()
		if idErr != nil {
			return idErr
		}
		return tx.Create(&PollVote{
			VoteID:           voteID,
			PollID:           pollID,
			OptionID:         optionID,
			UserID:           userID,
			CreatedAtSeconds: now.Unix(),
		}).Error
	})
	if txErr != nil {
		s.logError(opVote, "write_failed", txErr, zap.String("poll_id", pollID))
		return "", newServiceError(opVote, "write_failed", txErr)
	}

	if s.feed != nil {
		s.feed.Publish(livesync.Event{
			Kind:      livesync.EventUpdate,
			Table:     FeedTableVotes,
			Scope:     pollID,
			RowID:     optionID,
			Payload:   plan.Action,
			Timestamp: now,
		})
	}
	return plan.Action, nil
}

// ClosePoll marks the poll closed. Only its creator may close it.
func (s *Service) ClosePoll(ctx context.Context, pollID, userID string) error {
	var poll Poll
	err := s.db.WithContext(ctx).Where("poll_id = ?", pollID).Take(&poll).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(opClosePoll, "poll_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opClosePoll, "poll_lookup_failed", err, zap.String("poll_id", pollID))
		return newServiceError(opClosePoll, "poll_lookup_failed", err)
	}
	if poll.CreatedBy != userID {
		return newServiceError(opClosePoll, "not_creator", livesync.ErrPermissionDenied)
	}
	err = s.db.WithContext(ctx).Model(&Poll{}).
		Where("poll_id = ?", pollID).
		Update("is_closed", true).Error
	if err != nil {
		s.logError(opClosePoll, "update_failed", err, zap.String("poll_id", pollID))
		return newServiceError(opClosePoll, "update_failed", err)
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
	s.logger.Error("polls service error", attrs...)
}
