package boards

import (
	"context"

	"github.com/squadspace/backend/internal/livesync"
)

// BoardView holds a board's drag-and-drop state: a positioned collection of
// task ids per column, renumbered densely on every move. Moves apply
// locally first for responsiveness, then persist only the moved task.
type BoardView struct {
	boardID    string
	service    *Service
	collection *livesync.PositionedCollection
}

// OpenBoardView loads every column's tasks into the local collection.
func OpenBoardView(ctx context.Context, service *Service, boardID string) (*BoardView, error) {
	if service == nil {
		return nil, newServiceError("boards.board_view.open", "missing_service", errMissingDatabase)
	}
	columns, err := service.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}

	collection := livesync.NewPositionedCollection()
	for _, column := range columns {
		tasks, err := service.ListTasks(ctx, column.ColumnID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(tasks))
		for i, task := range tasks {
			ids[i] = task.TaskID
		}
		collection.Load(column.ColumnID, ids)
	}

	return &BoardView{boardID: boardID, service: service, collection: collection}, nil
}

// Move applies the drag locally, renumbering both columns, then persists
// the moved task's final placement.
func (v *BoardView) Move(ctx context.Context, taskID, fromColumnID, toColumnID string, toIndex int) (livesync.Placement, error) {
	fromIndex := -1
	for _, item := range v.collection.Items(fromColumnID) {
		if item.ID == taskID {
			fromIndex = item.Position
			break
		}
	}

	placement, err := v.collection.Move(taskID, fromColumnID, toColumnID, toIndex)
	if err != nil {
		return livesync.Placement{}, err
	}

	if _, err := v.service.MoveTask(ctx, taskID, placement.Container, placement.Position); err != nil {
		// Revert the local move so the view matches the store again.
		v.collection.Move(taskID, placement.Container, fromColumnID, fromIndex)
		return livesync.Placement{}, err
	}
	return placement, nil
}

// Column returns the column's task ids with dense positions.
func (v *BoardView) Column(columnID string) []livesync.PositionedItem {
	return v.collection.Items(columnID)
}
