package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	"github.com/anoteng/regnskap/internal/audit/repository"
	"github.com/anoteng/regnskap/internal/clock"
	obscontext "github.com/anoteng/regnskap/internal/observability/context"
	"github.com/anoteng/regnskap/internal/testutil"
	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuditLogMasksSecretsAndPaginates(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: repository.Provide()})

	ledgerID := node.Generate()
	ctx := obscontext.WithActor(context.Background(), "USER", "42")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "curl/8")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{
			LedgerID:   ledgerID,
			Action:     "bank_connection.create",
			TargetType: "bank_connection",
			TargetID:   node.Generate(),
			Metadata: map[string]any{
				"refresh_token": "secret_abcdef1234",
				"provider":      "enablebanking",
			},
		}))
		fake.Advance(time.Second)
	}
	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{Action: "system.boot"}))
	assert.ErrorIs(t, svc.Record(ctx, auditdomain.Entry{Action: " "}), auditdomain.ErrInvalidAction)

	first, err := svc.List(context.Background(), ledgerID, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)

	entry := first.AuditLogs[0]
	assert.Equal(t, "USER", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "42", *entry.ActorID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
	assert.Equal(t, "secret_****1234", entry.Metadata["refresh_token"])
	assert.Equal(t, "enablebanking", entry.Metadata["provider"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])

	second, err := svc.List(context.Background(), ledgerID, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)

	_, err = svc.List(context.Background(), ledgerID, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-a-token"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
