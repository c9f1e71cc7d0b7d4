package server

import (
	"net/http"
	"strings"
	"time"

	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type entryRequest struct {
	AccountID   snowflake.ID     `json:"account_id"`
	Debit       *decimal.Decimal `json:"debit"`
	Credit      *decimal.Decimal `json:"credit"`
	Description *string          `json:"description"`
}

type createTransactionRequest struct {
	TransactionDate string         `json:"transaction_date"`
	Description     string         `json:"description"`
	Reference       *string        `json:"reference"`
	Source          string         `json:"source"`
	SourceReference *string        `json:"source_reference"`
	Entries         []entryRequest `json:"entries"`
}

type updateTransactionRequest struct {
	Version         int64          `json:"version"`
	TransactionDate string         `json:"transaction_date"`
	Description     string         `json:"description"`
	Reference       *string        `json:"reference"`
	Entries         []entryRequest `json:"entries"`
}

type validateTransactionRequest struct {
	Entries []entryRequest `json:"entries"`
}

type listTransactionsQuery struct {
	pagination.Pagination
	From      string `form:"from"`
	To        string `form:"to"`
	AccountID string `form:"account_id"`
	Status    string `form:"status"`
	Source    string `form:"source"`
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}
	accountID, err := parseOptionalSnowflakeID(query.AccountID)
	if err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_account_id", "invalid account_id"))
		return
	}

	resp, err := s.transactionSvc.List(c.Request.Context(), ledgerIDFrom(c), transactiondomain.ListTransactionsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		From:      from,
		To:        to,
		AccountID: accountID,
		Status:    strings.TrimSpace(query.Status),
		Source:    strings.TrimSpace(query.Source),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}

func (s *Server) TransactionQueue(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resp, err := s.transactionSvc.Queue(c.Request.Context(), ledgerIDFrom(c), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}

func (s *Server) CreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	date, ok := requiredDate(c, req.TransactionDate)
	if !ok {
		return
	}
	userID, _ := userIDFrom(c)

	t, err := s.transactionSvc.Create(c.Request.Context(), ledgerIDFrom(c), userID, transactiondomain.CreateTransactionRequest{
		TransactionDate: date,
		Description:     req.Description,
		Reference:       req.Reference,
		Source:          req.Source,
		SourceReference: req.SourceReference,
		Entries:         toEntryInputs(req.Entries),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": t})
}

func (s *Server) GetTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := s.transactionSvc.Get(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": t})
}

// UpdateTransaction replaces a draft wholesale. The body's version must
// match the stored one.
func (s *Server) UpdateTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Version <= 0 {
		AbortWithError(c, newValidationError("version", "invalid_version", "version is required"))
		return
	}
	date, ok := requiredDate(c, req.TransactionDate)
	if !ok {
		return
	}

	t, err := s.transactionSvc.Update(c.Request.Context(), ledgerIDFrom(c), id, transactiondomain.UpdateTransactionRequest{
		ExpectedVersion: req.Version,
		TransactionDate: date,
		Description:     req.Description,
		Reference:       req.Reference,
		Entries:         toEntryInputs(req.Entries),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": t})
}

func (s *Server) DeleteTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	discard, err := parseOptionalBool(c.Query("discard"))
	if err != nil {
		AbortWithError(c, newValidationError("discard", "invalid_discard", "invalid discard"))
		return
	}
	if err := s.transactionSvc.Delete(c.Request.Context(), ledgerIDFrom(c), id, discard != nil && *discard); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) PostTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := s.transactionSvc.Post(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": t})
}

func (s *Server) ReconcileTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := s.transactionSvc.Reconcile(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": t})
}

func (s *Server) ReverseTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, _ := userIDFrom(c)
	t, err := s.transactionSvc.Reverse(c.Request.Context(), ledgerIDFrom(c), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": t})
}

func (s *Server) PostAllDrafts(c *gin.Context) {
	result, err := s.transactionSvc.PostAllDrafts(c.Request.Context(), ledgerIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ValidateTransaction runs the balance rules without persisting anything.
func (s *Server) ValidateTransaction(c *gin.Context) {
	var req validateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	result := s.transactionSvc.Validate(toEntryInputs(req.Entries))
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"valid":        result.Valid(),
		"balanced":     result.Balanced,
		"total_debit":  result.TotalDebit,
		"total_credit": result.TotalCredit,
		"difference":   result.Difference,
		"violations":   result.Violations,
	}})
}

func toEntryInputs(entries []entryRequest) []transactiondomain.EntryInput {
	out := make([]transactiondomain.EntryInput, 0, len(entries))
	for _, e := range entries {
		in := transactiondomain.EntryInput{
			AccountID:   e.AccountID,
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
			Description: e.Description,
		}
		if e.Debit != nil {
			in.Debit = *e.Debit
		}
		if e.Credit != nil {
			in.Credit = *e.Credit
		}
		out = append(out, in)
	}
	return out
}

func requiredDate(c *gin.Context, value string) (time.Time, bool) {
	date, err := parseOptionalTime(value, false)
	if err != nil || date == nil {
		AbortWithError(c, newValidationError("transaction_date", "invalid_transaction_date", "invalid transaction_date"))
		return time.Time{}, false
	}
	return *date, true
}
