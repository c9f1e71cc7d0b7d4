package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository stores import logs. Mappings go through the generic store.
type Repository interface {
	InsertLog(ctx context.Context, db *gorm.DB, log *ImportLog) error
	ListLogs(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, limit int) ([]*ImportLog, error)
}
