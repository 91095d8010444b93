package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRepository hands out sequential ids from a counter row.
//
// Each call is a single-row read-modify-write inside one transaction. A
// caller whose transaction fails after the increment leaves a gap; values are
// never handed out twice by a successful call.
type CounterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

func (r *CounterRepository) NextSequentialID(ctx context.Context, name string) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&counterModel{Name: name, Value: 0}).Error; err != nil {
			return err
		}
		if err := tx.Model(&counterModel{}).
			Where("name = ?", name).
			UpdateColumn("value", gorm.Expr("value + ?", 1)).Error; err != nil {
			return err
		}
		var m counterModel
		if err := tx.Where("name = ?", name).Take(&m).Error; err != nil {
			return err
		}
		next = m.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
