// Package repository holds the generic store used for small ledger-owned
// configuration tables.
package repository

import (
	"context"
	"errors"

	"github.com/anoteng/regnskap/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Store reads and writes rows of T that carry id and ledger_id columns. Every
// statement is filtered by ledger, so a row is invisible to other ledgers.
type Store[T any] interface {
	List(ctx context.Context, ledgerID snowflake.ID, opts ...option.QueryOption) ([]T, error)
	// Get returns nil without error when the row does not exist.
	Get(ctx context.Context, ledgerID, id snowflake.ID) (*T, error)
	Create(ctx context.Context, row *T) error
	// Update writes fields as given, zero values included, and reports
	// whether a row matched.
	Update(ctx context.Context, ledgerID, id snowflake.ID, fields map[string]any) (bool, error)
	Delete(ctx context.Context, ledgerID, id snowflake.ID) (bool, error)
}

type store[T any] struct {
	db *gorm.DB
}

func NewStore[T any](db *gorm.DB) Store[T] {
	return &store[T]{db: db}
}

func (s *store[T]) scoped(ctx context.Context, ledgerID snowflake.ID) *gorm.DB {
	return s.db.WithContext(ctx).Model(new(T)).Where("ledger_id = ?", ledgerID)
}

func (s *store[T]) List(ctx context.Context, ledgerID snowflake.ID, opts ...option.QueryOption) ([]T, error) {
	stmt := s.scoped(ctx, ledgerID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	rows := []T{}
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *store[T]) Get(ctx context.Context, ledgerID, id snowflake.ID) (*T, error) {
	var row T
	err := s.scoped(ctx, ledgerID).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *store[T]) Create(ctx context.Context, row *T) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *store[T]) Update(ctx context.Context, ledgerID, id snowflake.ID, fields map[string]any) (bool, error) {
	res := s.scoped(ctx, ledgerID).Where("id = ?", id).Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (s *store[T]) Delete(ctx context.Context, ledgerID, id snowflake.ID) (bool, error) {
	res := s.db.WithContext(ctx).Where("ledger_id = ? AND id = ?", ledgerID, id).Delete(new(T))
	return res.RowsAffected > 0, res.Error
}
