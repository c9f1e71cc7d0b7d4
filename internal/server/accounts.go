package server

import (
	"net/http"
	"strings"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	"github.com/gin-gonic/gin"
)

type createAccountRequest struct {
	AccountNumber   string  `json:"account_number"`
	AccountName     string  `json:"account_name"`
	AccountType     string  `json:"account_type"`
	ParentAccountID *string `json:"parent_account_id"`
	Description     *string `json:"description"`
}

type updateAccountRequest struct {
	AccountNumber   *string `json:"account_number"`
	AccountName     *string `json:"account_name"`
	AccountType     *string `json:"account_type"`
	ParentAccountID *string `json:"parent_account_id"`
	ClearParent     bool    `json:"clear_parent"`
	Description     *string `json:"description"`
	IsActive        *bool   `json:"is_active"`
}

type applyTemplateRequest struct {
	TemplateName string `json:"template_name"`
}

func (s *Server) ListChartTemplates(c *gin.Context) {
	templates, err := s.accountSvc.ListTemplates(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": templates})
}

func (s *Server) ListAccounts(c *gin.Context) {
	includeInactive, err := parseOptionalBool(c.Query("include_inactive"))
	if err != nil {
		AbortWithError(c, newValidationError("include_inactive", "invalid_include_inactive", "invalid include_inactive"))
		return
	}
	req := accountdomain.ListAccountsRequest{Type: strings.TrimSpace(c.Query("type"))}
	if includeInactive != nil {
		req.IncludeInactive = *includeInactive
	}

	accounts, err := s.accountSvc.List(c.Request.Context(), ledgerIDFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	parentID, err := parseOptionalSnowflakeID(stringValue(req.ParentAccountID))
	if err != nil {
		AbortWithError(c, newValidationError("parent_account_id", "invalid_parent_account_id", "invalid parent_account_id"))
		return
	}

	account, err := s.accountSvc.Create(c.Request.Context(), ledgerIDFrom(c), accountdomain.CreateAccountRequest{
		AccountNumber:   req.AccountNumber,
		AccountName:     req.AccountName,
		AccountType:     req.AccountType,
		ParentAccountID: parentID,
		Description:     req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) GetAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	account, err := s.accountSvc.Get(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) UpdateAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	parentID, err := parseOptionalSnowflakeID(stringValue(req.ParentAccountID))
	if err != nil {
		AbortWithError(c, newValidationError("parent_account_id", "invalid_parent_account_id", "invalid parent_account_id"))
		return
	}

	account, err := s.accountSvc.Update(c.Request.Context(), ledgerIDFrom(c), id, accountdomain.UpdateAccountRequest{
		AccountNumber:   req.AccountNumber,
		AccountName:     req.AccountName,
		AccountType:     req.AccountType,
		ParentAccountID: parentID,
		ClearParent:     req.ClearParent,
		Description:     req.Description,
		IsActive:        req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) DeactivateAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	account, err := s.accountSvc.Deactivate(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) DeleteAccount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.accountSvc.Delete(c.Request.Context(), ledgerIDFrom(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ApplyChartTemplate(c *gin.Context) {
	var req applyTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	name := strings.TrimSpace(req.TemplateName)
	if name == "" {
		AbortWithError(c, newValidationError("template_name", "invalid_template_name", "template_name is required"))
		return
	}

	accounts, err := s.accountSvc.ApplyTemplate(c.Request.Context(), ledgerIDFrom(c), name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"created": len(accounts), "accounts": accounts}})
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
