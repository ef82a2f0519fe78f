package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skald/internal/money"
)

func (h *APIHandler) BalanceHandler(c *gin.Context) {
	balance, err := h.Ledger.Balance(c.Request.Context(), tenantFrom(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"balance_usd": balance}})
}

func (h *APIHandler) AccountHandler(c *gin.Context) {
	view, err := h.Ledger.Account(c.Request.Context(), tenantFrom(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

type TopUpRequest struct {
	AmountUSD money.Amount `json:"amount_usd"`
}

func (h *APIHandler) TopUpHandler(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, txn, err := h.Ledger.TopUp(c.Request.Context(), tenantFrom(c), req.AmountUSD)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"account": view, "transaction": txn}})
}

func (h *APIHandler) ListUsageHandler(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	records, err := h.Ledger.ListUsage(c.Request.Context(), tenantFrom(c), limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records, "limit": limit, "offset": offset})
}

func (h *APIHandler) ListTransactionsHandler(c *gin.Context) {
	limit, offset, err := parsePagination(c)
	if err != nil {
		BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	txns, err := h.Ledger.ListTransactions(c.Request.Context(), tenantFrom(c), limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txns, "limit": limit, "offset": offset})
}

func (h *APIHandler) UsageSummaryHandler(c *gin.Context) {
	summary, err := h.Ledger.UsageSummary(c.Request.Context(), tenantFrom(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}
