package domain

import (
	"context"
	"errors"
	"time"

	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Entry is one audited change. The actor, client address and request id are
// taken from the context.
type Entry struct {
	LedgerID   snowflake.ID
	Action     string
	TargetType string
	TargetID   snowflake.ID
	Metadata   map[string]any
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, ledgerID snowflake.ID, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidLedger    = errors.New("invalid_ledger")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
