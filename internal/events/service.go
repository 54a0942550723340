package events

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
	errInvalidStatus     = errors.New("events: invalid rsvp status")
	noOpLogger           = zap.NewNop()
)

// FeedTableParticipants is the change feed topic for RSVP changes.
const FeedTableParticipants = "event_participants"

const (
	opServiceNew  = "events.service.new"
	opCreateEvent = "events.create_event"
	opListEvents  = "events.list_events"
	opRSVP        = "events.rsvp"
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

// ServiceConfig wires the event service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Feed       *livesync.Feed
	Clock      func() time.Time
	IDProvider livesync.IDProvider
	Logger     *zap.Logger
}

// Service persists events and guarded RSVPs.
type Service struct {
	db         *gorm.DB
	feed       *livesync.Feed
	clock      func() time.Time
	idProvider livesync.IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the event service.
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

// CreateEventInput carries the validated fields for a new event.
type CreateEventInput struct {
	SquadID          string
	CreatedBy        string
	Title            string
	Description      string
	Location         string
	StartTimeSeconds int64
	EndTimeSeconds   int64
	MaxParticipants  int
}

// CreateEvent stores a new event.
func (s *Service) CreateEvent(ctx context.Context, input CreateEventInput) (Event, error) {
	if strings.TrimSpace(input.CreatedBy) == "" {
		return Event{}, newServiceError(opCreateEvent, "unauthenticated", livesync.ErrUnauthenticated)
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.SquadID) == "" {
		return Event{}, newServiceError(opCreateEvent, "invalid_input", livesync.ErrNotFound)
	}

	eventID, err := s.idProvider.NewID()
	if err != nil {
		return Event{}, newServiceError(opCreateEvent, "id_generation_failed", err)
	}
	event := Event{
		EventID:          eventID,
		SquadID:          input.SquadID,
		CreatedBy:        input.CreatedBy,
		Title:            input.Title,
		Description:      input.Description,
		Location:         input.Location,
		StartTimeSeconds: input.StartTimeSeconds,
		EndTimeSeconds:   input.EndTimeSeconds,
		MaxParticipants:  input.MaxParticipants,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logError(opCreateEvent, "insert_failed", err, zap.String("squad_id", input.SquadID))
		return Event{}, newServiceError(opCreateEvent, "insert_failed", err)
	}
	return event, nil
}

// ListEvents returns the squad's events by start time with participants.
func (s *Service) ListEvents(ctx context.Context, squadID string) ([]Event, error) {
	var list []Event
	err := s.db.WithContext(ctx).
		Where("squad_id = ?", squadID).
		Order("start_time_s ASC").
		Find(&list).Error
	if err != nil {
		s.logError(opListEvents, "query_failed", err, zap.String("squad_id", squadID))
		return nil, newServiceError(opListEvents, "query_failed", err)
	}
	return list, nil
}

// Participants returns the event's RSVP rows in arrival order.
func (s *Service) Participants(ctx context.Context, eventID string) ([]EventParticipant, error) {
	var participants []EventParticipant
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at_s ASC").
		Find(&participants).Error
	if err != nil {
		s.logError(opRSVP, "participants_query_failed", err, zap.String("event_id", eventID))
		return nil, newServiceError(opRSVP, "participants_query_failed", err)
	}
	return participants, nil
}

// RSVP upserts the user's participation. A "going" request against a full
// event is written as "waitlist" instead of failing. The capacity read is
// not atomic against the write; racing admissions can overshoot the cap.
func (s *Service) RSVP(ctx context.Context, eventID, userID, requestedStatus string) (EventParticipant, error) {
	if strings.TrimSpace(userID) == "" {
		return EventParticipant{}, newServiceError(opRSVP, "unauthenticated", livesync.ErrUnauthenticated)
	}
	switch requestedStatus {
	case livesync.StatusGoing, livesync.StatusMaybe, livesync.StatusNotGoing:
	default:
		return EventParticipant{}, newServiceError(opRSVP, "invalid_status", errInvalidStatus)
	}

	var event Event
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return EventParticipant{}, newServiceError(opRSVP, "event_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opRSVP, "event_lookup_failed", err, zap.String("event_id", eventID))
		return EventParticipant{}, newServiceError(opRSVP, "event_lookup_failed", err)
	}

	var goingCount int64
	err = s.db.WithContext(ctx).Model(&EventParticipant{}).
		Where("event_id = ? AND status = ? AND user_id <> ?", eventID, livesync.StatusGoing, userID).
		Count(&goingCount).Error
	if err != nil {
		s.logError(opRSVP, "count_failed", err, zap.String("event_id", eventID))
		return EventParticipant{}, newServiceError(opRSVP, "count_failed", err)
	}

	decision := livesync.AdmitRSVP(requestedStatus, int(goingCount), event.MaxParticipants)
	effectiveStatus := decision.Status

	var participant EventParticipant
	err = s.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Take(&participant).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		participantID, idErr := s.idProvider.NewID()
		if idErr != nil {
			return EventParticipant{}, newServiceError(opRSVP, "id_generation_failed", idErr)
		}
		participant = EventParticipant{
			ParticipantID:    participantID,
			EventID:          eventID,
			UserID:           userID,
			Status:           effectiveStatus,
			CreatedAtSeconds: s.clock().UTC().Unix(),
		}
		if err := s.db.WithContext(ctx).Create(&participant).Error; err != nil {
			s.logError(opRSVP, "insert_failed", err, zap.String("event_id", eventID))
			return EventParticipant{}, newServiceError(opRSVP, "insert_failed", err)
		}
	case err != nil:
		s.logError(opRSVP, "participant_lookup_failed", err, zap.String("event_id", eventID))
		return EventParticipant{}, newServiceError(opRSVP, "participant_lookup_failed", err)
	default:
		participant.Status = effectiveStatus
		err := s.db.WithContext(ctx).Model(&EventParticipant{}).
			Where("participant_id = ?", participant.ParticipantID).
			Update("status", effectiveStatus).Error
		if err != nil {
			s.logError(opRSVP, "update_failed", err, zap.String("event_id", eventID))
			return EventParticipant{}, newServiceError(opRSVP, "update_failed", err)
		}
	}

	if s.feed != nil {
		s.feed.Publish(livesync.Event{
			Kind:      livesync.EventUpdate,
			Table:     FeedTableParticipants,
			Scope:     eventID,
			RowID:     participant.ParticipantID,
			Payload:   participant,
			Timestamp: s.clock().UTC(),
		})
	}
	return participant, nil
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
	s.logger.Error("events service error", attrs...)
}
