package boards

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

// FeedTableTasks is the change feed topic for task changes.
const FeedTableTasks = "tasks"

const (
	opServiceNew  = "boards.service.new"
	opCreateBoard = "boards.create_board"
	opListColumns = "boards.list_columns"
	opCreateTask  = "boards.create_task"
	opListTasks   = "boards.list_tasks"
	opMoveTask    = "boards.move_task"
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

// ServiceConfig wires the board service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Feed       *livesync.Feed
	Clock      func() time.Time
	IDProvider livesync.IDProvider
	Logger     *zap.Logger
}

// Service persists boards, columns, and tasks.
type Service struct {
	db         *gorm.DB
	feed       *livesync.Feed
	clock      func() time.Time
	idProvider livesync.IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the board service.
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

var defaultColumnNames = []string{"To Do", "In Progress", "Done"}

// CreateBoard creates a board with the three default columns.
func (s *Service) CreateBoard(ctx context.Context, squadID, name string) (Board, error) {
	squadID = strings.TrimSpace(squadID)
	name = strings.TrimSpace(name)
	if squadID == "" || name == "" {
		return Board{}, newServiceError(opCreateBoard, "invalid_input", livesync.ErrNotFound)
	}

	boardID, err := s.idProvider.NewID()
	if err != nil {
		return Board{}, newServiceError(opCreateBoard, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	board := Board{BoardID: boardID, SquadID: squadID, Name: name, CreatedAtSeconds: now}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&board).Error; err != nil {
			return err
		}
		for index, columnName := range defaultColumnNames {
			columnID, err := s.idProvider.NewID()
			if err != nil {
				return err
			}
			column := BoardColumn{
				ColumnID:         columnID,
				BoardID:          boardID,
				Name:             columnName,
				OrderIndex:       index,
				CreatedAtSeconds: now,
			}
			if err := tx.Create(&column).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateBoard, "insert_failed", txErr, zap.String("squad_id", squadID))
		return Board{}, newServiceError(opCreateBoard, "insert_failed", txErr)
	}
	return board, nil
}

// ListColumns returns the board's columns in lane order.
func (s *Service) ListColumns(ctx context.Context, boardID string) ([]BoardColumn, error) {
	var columns []BoardColumn
	err := s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("order_index ASC").
		Find(&columns).Error
	if err != nil {
		s.logError(opListColumns, "query_failed", err, zap.String("board_id", boardID))
		return nil, newServiceError(opListColumns, "query_failed", err)
	}
	return columns, nil
}

// CreateTask appends the task at the bottom of its column.
func (s *Service) CreateTask(ctx context.Context, boardID, columnID, createdBy, title, description string) (Task, error) {
	if strings.TrimSpace(createdBy) == "" {
		return Task{}, newServiceError(opCreateTask, "unauthenticated", livesync.ErrUnauthenticated)
	}
	if strings.TrimSpace(title) == "" {
		return Task{}, newServiceError(opCreateTask, "missing_title", livesync.ErrNotFound)
	}

	var maxOrder struct {
		Max *int
	}
	err := s.db.WithContext(ctx).Model(&Task{}).
		Select("MAX(order_index) AS max").
		Where("column_id = ?", columnID).
		Scan(&maxOrder).Error
	if err != nil {
		s.logError(opCreateTask, "order_query_failed", err, zap.String("column_id", columnID))
		return Task{}, newServiceError(opCreateTask, "order_query_failed", err)
	}
	nextOrder := 0
	if maxOrder.Max != nil {
		nextOrder = *maxOrder.Max + 1
	}

	taskID, err := s.idProvider.NewID()
	if err != nil {
		return Task{}, newServiceError(opCreateTask, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	task := Task{
		TaskID:           taskID,
		BoardID:          boardID,
		ColumnID:         columnID,
		Title:            title,
		Description:      description,
		CreatedBy:        createdBy,
		OrderIndex:       nextOrder,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		s.logError(opCreateTask, "insert_failed", err, zap.String("column_id", columnID))
		return Task{}, newServiceError(opCreateTask, "insert_failed", err)
	}

	s.publish(livesync.Event{
		Kind:      livesync.EventInsert,
		Table:     FeedTableTasks,
		Scope:     boardID,
		RowID:     taskID,
		Payload:   task,
		Timestamp: task.RecordCreatedAt(),
	})
	return task, nil
}

// ListTasks returns a column's tasks in display order. Stored indexes can
// collide after moves, so updated_at_s breaks ties.
func (s *Service) ListTasks(ctx context.Context, columnID string) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("column_id = ?", columnID).
		Order("order_index ASC, updated_at_s ASC").
		Find(&tasks).Error
	if err != nil {
		s.logError(opListTasks, "query_failed", err, zap.String("column_id", columnID))
		return nil, newServiceError(opListTasks, "query_failed", err)
	}
	return tasks, nil
}

// MoveTask persists the moved task's new (column, index) pair. Only the
// moved row is written; siblings keep their stored indexes and rely on the
// list query's tie break.
func (s *Service) MoveTask(ctx context.Context, taskID, toColumnID string, toIndex int) (Task, error) {
	var task Task
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, newServiceError(opMoveTask, "task_missing", livesync.ErrNotFound)
	}
	if err != nil {
		s.logError(opMoveTask, "lookup_failed", err, zap.String("task_id", taskID))
		return Task{}, newServiceError(opMoveTask, "lookup_failed", err)
	}

	if toIndex < 0 {
		toIndex = 0
	}
	task.ColumnID = toColumnID
	task.OrderIndex = toIndex
	task.UpdatedAtSeconds = s.clock().UTC().Unix()

	err = s.db.WithContext(ctx).Model(&Task{}).
		Where("task_id = ?", taskID).
		Updates(map[string]any{
			"column_id":    task.ColumnID,
			"order_index":  task.OrderIndex,
			"updated_at_s": task.UpdatedAtSeconds,
		}).Error
	if err != nil {
		s.logError(opMoveTask, "update_failed", err, zap.String("task_id", taskID))
		return Task{}, newServiceError(opMoveTask, "update_failed", err)
	}

	s.publish(livesync.Event{
		Kind:      livesync.EventUpdate,
		Table:     FeedTableTasks,
		Scope:     task.BoardID,
		RowID:     taskID,
		Payload:   task,
		Timestamp: time.Unix(task.UpdatedAtSeconds, 0).UTC(),
	})
	return task, nil
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
	s.logger.Error("boards service error", attrs...)
}
