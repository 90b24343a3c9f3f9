package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/billing"
)

const defaultDueWithinDays = 7

// DashboardHandler serves read-only projections.
type DashboardHandler struct {
	engine *billing.Engine
	log    logrus.FieldLogger
}

func NewDashboardHandler(engine *billing.Engine, log logrus.FieldLogger) *DashboardHandler {
	return &DashboardHandler{engine: engine, log: log}
}

func (h *DashboardHandler) OverdueInvoices(c *gin.Context) {
	invoices, err := h.engine.OverdueInvoices(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "count": len(invoices)})
}

// InvoicesDue lists open invoices due in the next ?days= days (default 7).
func (h *DashboardHandler) InvoicesDue(c *gin.Context) {
	days := defaultDueWithinDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer", "code": "ValidationFailed"})
			return
		}
		days = n
	}
	invoices, err := h.engine.InvoicesDueWithin(c.Request.Context(), days)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "count": len(invoices), "days": days})
}

func (h *DashboardHandler) PendingQuotations(c *gin.Context) {
	quotes, err := h.engine.PendingQuotations(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotations": quotes, "count": len(quotes)})
}
