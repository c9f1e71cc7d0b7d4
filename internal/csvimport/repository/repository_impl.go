package repository

import (
	"context"

	"github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertLog(ctx context.Context, db *gorm.DB, log *domain.ImportLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO import_logs (
			id, ledger_id, user_id, bank_account_id, csv_mapping_id,
			file_name, rows_imported, rows_failed, import_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.LedgerID,
		log.UserID,
		log.BankAccountID,
		log.CSVMappingID,
		log.FileName,
		log.RowsImported,
		log.RowsFailed,
		log.ImportDate,
	).Error
}

func (r *repo) ListLogs(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, limit int) ([]*domain.ImportLog, error) {
	var items []*domain.ImportLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, ledger_id, user_id, bank_account_id, csv_mapping_id,
		        file_name, rows_imported, rows_failed, import_date
		 FROM import_logs
		 WHERE ledger_id = ?
		 ORDER BY import_date DESC, id DESC
		 LIMIT ?`,
		ledgerID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
