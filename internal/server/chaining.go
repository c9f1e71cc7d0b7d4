package server

import (
	"net/http"

	chainingdomain "github.com/anoteng/regnskap/internal/chaining/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type chainRequest struct {
	PrimaryTransactionID   snowflake.ID `json:"primary_transaction_id"`
	SecondaryTransactionID snowflake.ID `json:"secondary_transaction_id"`
	AutoPost               bool         `json:"auto_post"`
}

func (s *Server) ChainSuggestions(c *gin.Context) {
	suggestions, err := s.chainingSvc.Suggestions(c.Request.Context(), ledgerIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": suggestions})
}

func (s *Server) ChainTransactions(c *gin.Context) {
	var req chainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	t, err := s.chainingSvc.Chain(c.Request.Context(), ledgerIDFrom(c), chainingdomain.ChainRequest{
		PrimaryTransactionID:   req.PrimaryTransactionID,
		SecondaryTransactionID: req.SecondaryTransactionID,
		AutoPost:               req.AutoPost,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": t})
}
