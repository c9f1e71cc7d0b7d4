package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type startConnectRequest struct {
	BankAccountID  snowflake.ID `json:"bank_account_id"`
	ProviderID     snowflake.ID `json:"provider_id"`
	ExternalBankID string       `json:"external_bank_id"`
}

type updateConnectionRequest struct {
	AutoSyncEnabled     *bool   `json:"auto_sync_enabled"`
	SyncFrequencyHours  *int    `json:"sync_frequency_hours"`
	InitialSyncFromDate *string `json:"initial_sync_from_date"`
}

type syncRequest struct {
	SyncType string `json:"sync_type"`
}

func (s *Server) ListBankProviders(c *gin.Context) {
	providers, err := s.bankSyncSvc.ListProviders(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": providers})
}

func (s *Server) StartBankConnection(c *gin.Context) {
	var req startConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, _ := userIDFrom(c)
	result, err := s.bankSyncSvc.StartConnect(c.Request.Context(), ledgerIDFrom(c), userID, banksyncdomain.StartConnectRequest{
		BankAccountID:  req.BankAccountID,
		ProviderID:     req.ProviderID,
		ExternalBankID: strings.TrimSpace(req.ExternalBankID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// BankConnectionCallback is the OAuth redirect target. The state token
// identifies the ledger, so the route sits outside the ledger group.
func (s *Server) BankConnectionCallback(c *gin.Context) {
	if reason := strings.TrimSpace(c.Query("error")); reason != "" {
		AbortWithError(c, newValidationError("code", "authorization_denied", reason))
		return
	}
	state := strings.TrimSpace(c.Query("state"))
	code := strings.TrimSpace(c.Query("code"))
	if state == "" || code == "" {
		AbortWithError(c, newValidationError("state", "invalid_callback", "state and code are required"))
		return
	}

	result, err := s.bankSyncSvc.CompleteConnect(c.Request.Context(), banksyncdomain.CompleteConnectRequest{
		State:             state,
		Code:              code,
		ExternalAccountID: strings.TrimSpace(c.Query("external_account_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListBankConnections(c *gin.Context) {
	conns, err := s.bankSyncSvc.ListConnections(c.Request.Context(), ledgerIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conns})
}

func (s *Server) GetBankConnection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	conn, err := s.bankSyncSvc.GetConnection(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conn})
}

func (s *Server) UpdateBankConnection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	from, err := parseOptionalTime(stringValue(req.InitialSyncFromDate), false)
	if err != nil {
		AbortWithError(c, newValidationError("initial_sync_from_date", "invalid_initial_sync_from_date", "invalid initial_sync_from_date"))
		return
	}

	conn, err := s.bankSyncSvc.UpdateConnection(c.Request.Context(), ledgerIDFrom(c), id, banksyncdomain.UpdateConnectionRequest{
		AutoSyncEnabled:     req.AutoSyncEnabled,
		SyncFrequencyHours:  req.SyncFrequencyHours,
		InitialSyncFromDate: from,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conn})
}

func (s *Server) DisconnectBankConnection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.bankSyncSvc.Disconnect(c.Request.Context(), ledgerIDFrom(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SyncBankConnection runs a sync inline. An empty body is a manual sync.
func (s *Server) SyncBankConnection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	syncType, err := banksyncdomain.ParseSyncType(req.SyncType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if syncType == banksyncdomain.SyncManual && !s.allowManualSync(c, id) {
		return
	}

	log, err := s.bankSyncSvc.Sync(c.Request.Context(), ledgerIDFrom(c), id, syncType, optionalUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": log})
}

// allowManualSync fails open when the limiter backend errors.
func (s *Server) allowManualSync(c *gin.Context, connectionID snowflake.ID) bool {
	res, err := s.syncLimiter.AllowManualSync(c.Request.Context(), ledgerIDFrom(c), connectionID)
	if err != nil {
		s.log.Warn("manual sync rate limit check failed", zap.String("connection_id", connectionID.String()), zap.Error(err))
		return true
	}
	if res.Allowed {
		return true
	}
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	AbortWithError(c, ErrRateLimited)
	return false
}

func (s *Server) ListBankSyncLogs(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	logs, err := s.bankSyncSvc.ListSyncLogs(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func (s *Server) ListStagedTransactions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	staged, err := s.bankSyncSvc.ListStaged(c.Request.Context(), ledgerIDFrom(c), id, strings.TrimSpace(c.Query("status")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": staged})
}

func (s *Server) IgnoreStagedTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	stagedID, ok := pathID(c, "stagedId")
	if !ok {
		return
	}
	staged, err := s.bankSyncSvc.IgnoreStaged(c.Request.Context(), ledgerIDFrom(c), id, stagedID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": staged})
}
