package repository

import (
	"context"
	"strings"

	"github.com/anoteng/regnskap/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert never updates; audit rows are append-only.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List returns up to Limit+1 rows, newest first, so the caller can tell
// whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, f domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{}).Where("ledger_id = ?", f.LedgerID)

	for column, value := range map[string]string{
		"action":      f.Action,
		"target_type": f.TargetType,
		"target_id":   f.TargetID,
		"actor_type":  strings.ToUpper(f.ActorType),
	} {
		if value = strings.TrimSpace(value); value != "" {
			stmt = stmt.Where(column+" = ?", value)
		}
	}
	if f.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", f.StartAt.UTC())
	}
	if f.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", f.EndAt.UTC())
	}
	if c := f.Cursor; c != nil {
		stmt = stmt.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
	if f.Limit > 0 {
		stmt = stmt.Limit(f.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
