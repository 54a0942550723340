package database

import (
	"errors"
	"time"

	"github.com/squadspace/backend/internal/boards"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRenumberTaskPositions = "2026-07-14_renumber_task_positions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRenumberTaskPositions, apply: renumberTaskPositions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Task moves persist only the moved row's index, so stored indexes within a
// column collide over time. This pass rewrites each column's tasks to dense
// 0..n-1 positions in their query order.
func renumberTaskPositions(db *gorm.DB) error {
	if !db.Migrator().HasTable(&boards.Task{}) {
		return nil
	}

	var tasks []boards.Task
	if err := db.Order("column_id ASC, order_index ASC, updated_at_s ASC").Find(&tasks).Error; err != nil {
		return err
	}

	currentColumn := ""
	position := 0
	for _, task := range tasks {
		if task.ColumnID != currentColumn {
			currentColumn = task.ColumnID
			position = 0
		}
		if task.OrderIndex != position {
			err := db.Model(&boards.Task{}).
				Where("task_id = ?", task.TaskID).
				Update("order_index", position).Error
			if err != nil {
				return err
			}
		}
		position++
	}
	return nil
}
