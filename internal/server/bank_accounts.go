package server

import (
	"net/http"

	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createBankAccountRequest struct {
	Name          string       `json:"name"`
	AccountType   string       `json:"account_type"`
	AccountID     snowflake.ID `json:"account_id"`
	AccountNumber *string      `json:"account_number"`
}

func (s *Server) ListBankAccounts(c *gin.Context) {
	includeInactive, err := parseOptionalBool(c.Query("include_inactive"))
	if err != nil {
		AbortWithError(c, newValidationError("include_inactive", "invalid_include_inactive", "invalid include_inactive"))
		return
	}
	accounts, err := s.bankAccountSvc.List(c.Request.Context(), ledgerIDFrom(c), includeInactive != nil && *includeInactive)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) CreateBankAccount(c *gin.Context) {
	var req createBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	account, err := s.bankAccountSvc.Create(c.Request.Context(), ledgerIDFrom(c), bankaccountdomain.CreateBankAccountRequest{
		Name:          req.Name,
		AccountType:   req.AccountType,
		AccountID:     req.AccountID,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) GetBankAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	account, err := s.bankAccountSvc.Get(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

// DeactivateBankAccount soft-deletes; imported history keeps its reference.
func (s *Server) DeactivateBankAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.bankAccountSvc.Deactivate(c.Request.Context(), ledgerIDFrom(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
