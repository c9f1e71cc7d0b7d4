package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type actorKey struct{}
type ledgerKey struct{}

type actor struct {
	Type string
	ID   string
}

// WithRequestID stores the inbound request id.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithActor records who issued the request. Used for log enrichment only.
func WithActor(ctx stdcontext.Context, actorType, actorID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, actorKey{}, actor{
		Type: strings.TrimSpace(actorType),
		ID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx stdcontext.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.Type, value.ID
}

// WithLedgerLabel tags the request's ledger for log lines. Services never read it;
// they receive the ledger id as an explicit argument.
func WithLedgerLabel(ctx stdcontext.Context, ledgerID string) stdcontext.Context {
	ledgerID = strings.TrimSpace(ledgerID)
	if ledgerID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, ledgerKey{}, ledgerID)
}

func LedgerLabelFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(ledgerKey{}).(string)
	return value
}

type clientKey struct{}

type client struct {
	IP        string
	UserAgent string
}

// WithClient records the caller's address and user agent for audit rows.
func WithClient(ctx stdcontext.Context, ip, userAgent string) stdcontext.Context {
	return stdcontext.WithValue(ctx, clientKey{}, client{
		IP:        strings.TrimSpace(ip),
		UserAgent: strings.TrimSpace(userAgent),
	})
}

func ClientFromContext(ctx stdcontext.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(clientKey{}).(client)
	if !ok {
		return "", ""
	}
	return value.IP, value.UserAgent
}
