package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/billing"
	"github.com/yourusername/billflow/middleware"
	"github.com/yourusername/billflow/models"
)

// BillingHandler exposes the quotation, invoice and payment lifecycle.
type BillingHandler struct {
	engine     *billing.Engine
	dispatcher EventDispatcher
	log        logrus.FieldLogger
}

func NewBillingHandler(engine *billing.Engine, dispatcher EventDispatcher, log logrus.FieldLogger) *BillingHandler {
	return &BillingHandler{engine: engine, dispatcher: dispatcher, log: log}
}

func (h *BillingHandler) dispatch(c *gin.Context, events []models.Event) {
	dispatchCommitted(c, h.dispatcher, events)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty input yields nil.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

type CreateQuotationRequest struct {
	ClientID   *uint               `json:"client_id"`
	LeadName   string              `json:"lead_name"`
	LeadEmail  string              `json:"lead_email" binding:"omitempty,email"`
	FromLead   bool                `json:"from_lead"`
	Items      []billing.ItemInput `json:"items" binding:"required,min=1"`
	IssueDate  string              `json:"issue_date"`
	ExpiryDate string              `json:"expiry_date"`
	Notes      string              `json:"notes"`
}

func (h *BillingHandler) CreateQuotation(c *gin.Context) {
	var req CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	issue, err := parseDate(req.IssueDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	in := billing.CreateQuotationInput{
		ClientID:   req.ClientID,
		LeadName:   req.LeadName,
		LeadEmail:  req.LeadEmail,
		FromLead:   req.FromLead,
		Items:      req.Items,
		ExpiryDate: expiry,
		Notes:      req.Notes,
	}
	if issue != nil {
		in.IssueDate = *issue
	}
	q, events, err := h.engine.CreateQuotation(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusCreated, q)
}

func (h *BillingHandler) GetQuotation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	q, err := h.engine.GetQuotation(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

type UpdateItemsRequest struct {
	Items []billing.ItemInput `json:"items" binding:"required,min=1"`
}

func (h *BillingHandler) UpdateQuotationItems(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req UpdateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := h.engine.UpdateQuotationItems(c.Request.Context(), id, req.Items)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

type TransitionRequest struct {
	Status   models.QuotationStatus `json:"status" binding:"required"`
	Override bool                   `json:"override"`
	DueDate  string                 `json:"due_date"`
}

// TransitionQuotation moves a quotation along its state machine. Only admins
// may override it. Moving to invoiced converts the quotation and answers
// with the new invoice.
func (h *BillingHandler) TransitionQuotation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Override {
		if _, role, _ := middleware.CurrentUser(c); role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only admins may override the quotation workflow", "code": "Forbidden"})
			return
		}
	}

	if req.Status == models.QuotationInvoiced {
		due, err := parseDate(req.DueDate)
		if err != nil {
			badRequest(c, err)
			return
		}
		h.convert(c, id, due)
		return
	}

	q, events, err := h.engine.TransitionQuotation(c.Request.Context(), id, req.Status, req.Override)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusOK, q)
}

type ConvertRequest struct {
	DueDate string `json:"due_date"`
}

func (h *BillingHandler) ConvertQuotation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ConvertRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	h.convert(c, id, due)
}

func (h *BillingHandler) convert(c *gin.Context, quotationID uint, due *time.Time) {
	inv, events, err := h.engine.CreateInvoiceFromQuotation(c.Request.Context(), quotationID, due)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusCreated, inv)
}

func (h *BillingHandler) DeleteQuotation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.DeleteQuotation(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type CreateInvoiceRequest struct {
	ClientID     *uint               `json:"client_id"`
	ContactEmail string              `json:"contact_email" binding:"omitempty,email"`
	Items        []billing.ItemInput `json:"items" binding:"required,min=1"`
	IssueDate    string              `json:"issue_date"`
	DueDate      string              `json:"due_date"`
	Notes        string              `json:"notes"`
}

func (h *BillingHandler) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	issue, err := parseDate(req.IssueDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	in := billing.CreateInvoiceInput{
		ClientID:     req.ClientID,
		ContactEmail: req.ContactEmail,
		Items:        req.Items,
		DueDate:      due,
		Notes:        req.Notes,
	}
	if issue != nil {
		in.IssueDate = *issue
	}
	inv, events, err := h.engine.CreateInvoice(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusCreated, inv)
}

func (h *BillingHandler) GetInvoice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	inv, err := h.engine.GetInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *BillingHandler) SendInvoice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	inv, events, err := h.engine.SendInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusOK, inv)
}

func (h *BillingHandler) CancelInvoice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	inv, events, err := h.engine.CancelInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusOK, inv)
}

func (h *BillingHandler) RecomputeInvoice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	inv, err := h.engine.RecomputeInvoiceBalance(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *BillingHandler) DeleteInvoice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.DeleteInvoice(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type PaymentRequest struct {
	Amount               decimal.Decimal `json:"amount"`
	PaymentDate          string          `json:"payment_date"`
	PaymentMethod        string          `json:"payment_method"`
	TransactionReference string          `json:"transaction_reference"`
	Notes                string          `json:"notes"`
}

func (r PaymentRequest) input() (billing.PaymentInput, error) {
	date, err := parseDate(r.PaymentDate)
	if err != nil {
		return billing.PaymentInput{}, err
	}
	in := billing.PaymentInput{
		Amount:    r.Amount,
		Method:    r.PaymentMethod,
		Reference: r.TransactionReference,
		Notes:     r.Notes,
	}
	if date != nil {
		in.PaymentDate = *date
	}
	return in, nil
}

type PaymentResponse struct {
	Payment *models.Payment `json:"payment"`
	Invoice *models.Invoice `json:"invoice"`
}

func (h *BillingHandler) ApplyPayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, err)
		return
	}
	payment, inv, events, err := h.engine.ApplyPayment(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusCreated, PaymentResponse{Payment: payment, Invoice: inv})
}

func (h *BillingHandler) CorrectPayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, err)
		return
	}
	payment, inv, err := h.engine.CorrectPayment(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, PaymentResponse{Payment: payment, Invoice: inv})
}

func (h *BillingHandler) DeletePayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	inv, err := h.engine.DeletePayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}
