package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "sync-1")
	ctx, id := EnsureCorrelationID(ctx)
	assert.Equal(t, "sync-1", id)
	assert.Equal(t, "sync-1", ExtractCorrelationID(ctx))
}

func TestEnsureCorrelationIDGeneratesULID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.Len(t, id, 26)
	assert.Equal(t, map[string]string{"correlation_id": id}, Fields(ctx))
}

func TestContextWithRemoteSpanIgnoresGarbage(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "nope", "nope")
	assert.Empty(t, Fields(ctx))

	ctx = ContextWithRemoteSpan(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	fields := Fields(ctx)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}
