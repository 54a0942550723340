package boards

import "time"

// Board is a squad's kanban board.
type Board struct {
	BoardID          string `gorm:"column:board_id;primaryKey;size:190;not null"`
	SquadID          string `gorm:"column:squad_id;size:190;not null;index"`
	Name             string `gorm:"column:name;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Board) TableName() string {
	return "boards"
}

// BoardColumn is one ordered lane on a board.
type BoardColumn struct {
	ColumnID         string `gorm:"column:column_id;primaryKey;size:190;not null"`
	BoardID          string `gorm:"column:board_id;size:190;not null;index:idx_columns_board_order,priority:1"`
	Name             string `gorm:"column:name;size:190;not null"`
	OrderIndex       int    `gorm:"column:order_index;not null;index:idx_columns_board_order,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (BoardColumn) TableName() string {
	return "columns"
}

// Task is one card on a board. Stored order indexes are only meaningful
// relative to siblings; list queries break ties by updated_at_s.
type Task struct {
	TaskID           string `gorm:"column:task_id;primaryKey;size:190;not null"`
	BoardID          string `gorm:"column:board_id;size:190;not null;index"`
	ColumnID         string `gorm:"column:column_id;size:190;not null;index:idx_tasks_column_order,priority:1"`
	Title            string `gorm:"column:title;size:320;not null"`
	Description      string `gorm:"column:description;type:text"`
	AssigneeID       string `gorm:"column:assignee_id;size:190"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null"`
	OrderIndex       int    `gorm:"column:order_index;not null;index:idx_tasks_column_order,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Task) TableName() string {
	return "tasks"
}

// RecordID identifies the task within a board view store.
func (t Task) RecordID() string {
	return t.TaskID
}

// RecordScope is the board partitioning task subscriptions.
func (t Task) RecordScope() string {
	return t.BoardID
}

// RecordCreatedAt is the feed ordering timestamp.
func (t Task) RecordCreatedAt() time.Time {
	return time.Unix(t.CreatedAtSeconds, 0).UTC()
}
