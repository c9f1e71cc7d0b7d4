package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	"github.com/anoteng/regnskap/internal/audit/masking"
	"github.com/anoteng/regnskap/internal/clock"
	obscontext "github.com/anoteng/regnskap/internal/observability/context"
	"github.com/anoteng/regnskap/pkg/db/option"
	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/anoteng/regnskap/pkg/telemetry/correlation"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, e auditdomain.Entry) error {
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(e.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	metadata := masking.MaskJSON(e.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		metadata["correlation_id"] = cid
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(auditdomain.ActorTypeSystem),
		Action:     action,
		TargetType: targetType,
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  s.clock.Now(),
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		entry.ActorType = strings.ToUpper(actorType)
		entry.ActorID = optional(actorID)
	}
	if e.LedgerID != 0 {
		id := e.LedgerID
		entry.LedgerID = &id
	}
	if e.TargetID != 0 {
		entry.TargetID = optional(e.TargetID.String())
	}
	ip, userAgent := obscontext.ClientFromContext(ctx)
	entry.IPAddress = optional(ip)
	entry.UserAgent = optional(userAgent)

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, ledgerID snowflake.ID, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if ledgerID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidLedger
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	limit := option.PageLimit(req.Pagination)
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		LedgerID:   ledgerID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), encodeCursor)
	if len(items) > limit {
		items = items[:limit]
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: make([]auditdomain.AuditLog, 0, len(items))}
	for _, item := range items {
		if item != nil {
			resp.AuditLogs = append(resp.AuditLogs, *item)
		}
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func decodeCursor(token string) (*auditdomain.AuditCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
}

func encodeCursor(item *auditdomain.AuditLog) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        item.ID.String(),
		CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
