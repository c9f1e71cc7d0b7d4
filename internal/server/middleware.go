package server

import (
	"strings"

	obscontext "github.com/anoteng/regnskap/internal/observability/context"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID       = "X-User-Id"
	contextUserIDKey   = "user_id"
	contextLedgerIDKey = "ledger_id"
)

// LedgerContext resolves :ledgerId once per request. Handlers read it back
// with ledgerIDFrom and pass it to services explicitly.
func (s *Server) LedgerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Param("ledgerId"))
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, newValidationError("ledger_id", "invalid_ledger", "invalid ledger id"))
			return
		}
		c.Set(contextLedgerIDKey, id)

		ctx := obscontext.WithLedgerLabel(c.Request.Context(), id.String())
		ctx = obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		if raw := strings.TrimSpace(c.GetHeader(HeaderUserID)); raw != "" {
			if userID, err := snowflake.ParseString(raw); err == nil && userID != 0 {
				c.Set(contextUserIDKey, userID)
			}
		}
		c.Next()
	}
}

// RequireUser rejects requests whose X-User-Id header is missing or not an id.
func (s *Server) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := userIDFrom(c); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func ledgerIDFrom(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextLedgerIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func userIDFrom(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok && id != 0
}

func optionalUserID(c *gin.Context) *snowflake.ID {
	if id, ok := userIDFrom(c); ok {
		return &id
	}
	return nil
}

// pathID parses a snowflake path parameter. A bad value is a 400 naming the
// parameter.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return id, true
}
