package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/numbering"
	"gorm.io/gorm"
)

// quotationTransitions is the forward-only quotation state machine.
var quotationTransitions = map[models.QuotationStatus][]models.QuotationStatus{
	models.QuotationDraft:    {models.QuotationSent},
	models.QuotationPending:  {models.QuotationSent},
	models.QuotationSent:     {models.QuotationAccepted, models.QuotationRejected},
	models.QuotationAccepted: {models.QuotationInvoiced},
}

func validQuotationStatus(s models.QuotationStatus) bool {
	switch s {
	case models.QuotationDraft, models.QuotationPending, models.QuotationSent,
		models.QuotationAccepted, models.QuotationRejected, models.QuotationInvoiced:
		return true
	}
	return false
}

// CanTransitionQuotation reports whether from -> to is a legal move without
// administrative override.
func CanTransitionQuotation(from, to models.QuotationStatus) bool {
	for _, next := range quotationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkQuotationTransition applies the state machine. Override lets an
// administrator move a quotation anywhere except into or out of invoiced;
// invoiced is only ever reached from accepted through conversion.
func checkQuotationTransition(q *models.Quotation, target models.QuotationStatus, override bool) error {
	reject := func(reason string) error {
		return &TransitionError{Document: "quotation", Number: q.Number, From: string(q.Status), To: string(target), Reason: reason}
	}
	switch {
	case q.Status == target:
		return reject("already in that status")
	case q.Status == models.QuotationInvoiced:
		return reject("invoiced quotations are final")
	case target == models.QuotationInvoiced && q.Status != models.QuotationAccepted:
		return reject("only accepted quotations can be invoiced")
	case override:
		return nil
	case !CanTransitionQuotation(q.Status, target):
		return reject("")
	}
	return nil
}

type CreateQuotationInput struct {
	ClientID   *uint
	LeadName   string
	LeadEmail  string
	FromLead   bool
	Items      []ItemInput
	IssueDate  time.Time
	ExpiryDate *time.Time
	Notes      string
}

// CreateQuotation drafts a quotation, or records a lead's request as pending.
func (e *Engine) CreateQuotation(ctx context.Context, in CreateQuotationInput) (*models.Quotation, []models.Event, error) {
	leadName := strings.TrimSpace(in.LeadName)
	leadEmail := strings.TrimSpace(in.LeadEmail)
	if in.ClientID == nil && leadName == "" && leadEmail == "" {
		return nil, nil, fmt.Errorf("%w: a client or lead contact is required", ErrInvalidInput)
	}
	lines, err := BuildLineItems(in.Items)
	if err != nil {
		return nil, nil, err
	}

	issue := in.IssueDate
	if issue.IsZero() {
		issue = e.today()
	}
	if in.ExpiryDate != nil && in.ExpiryDate.Before(issue) {
		return nil, nil, fmt.Errorf("%w: expiry date precedes issue date", ErrInvalidInput)
	}
	status := models.QuotationDraft
	if in.FromLead {
		status = models.QuotationPending
	}
	totals := ComputeTotals(lines)

	q := &models.Quotation{
		ClientID:    in.ClientID,
		LeadName:    leadName,
		LeadEmail:   leadEmail,
		Subtotal:    totals.Subtotal,
		TaxAmount:   totals.TaxAmount,
		TotalAmount: totals.Total,
		Status:      status,
		IssueDate:   issue.UTC(),
		ExpiryDate:  in.ExpiryDate,
		Notes:       in.Notes,
	}
	for _, line := range lines {
		q.Items = append(q.Items, models.QuotationItem{LineItem: line})
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ClientID != nil {
			if err := tx.Select("id").First(&models.Client{}, *in.ClientID).Error; err != nil {
				return notFound(err, "client", *in.ClientID)
			}
		}
		number, err := numbering.Next(tx, numbering.ScopeQuotation)
		if err != nil {
			return err
		}
		q.Number = number
		return numbering.Translate(tx.Create(q).Error)
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.WithField("quotation", q.Number).Info("quotation created")
	ev := models.NewEvent(models.EventQuotationCreated, models.SubjectQuotation, q.ID, e.now(), map[string]string{
		models.PayloadNumber: q.Number,
		models.PayloadAmount: q.TotalAmount.StringFixed(2),
		models.PayloadStatus: string(q.Status),
	})
	return q, []models.Event{ev}, nil
}

// UpdateQuotationItems replaces the line items of a quotation that has not
// been sent yet and recomputes its totals.
func (e *Engine) UpdateQuotationItems(ctx context.Context, id uint, items []ItemInput) (*models.Quotation, error) {
	lines, err := BuildLineItems(items)
	if err != nil {
		return nil, err
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := lockQuotation(tx, id)
		if err != nil {
			return err
		}
		if q.Status != models.QuotationDraft && q.Status != models.QuotationPending {
			return fmt.Errorf("%w: quotation %s is %s", ErrAuditLocked, q.Number, q.Status)
		}
		if err := tx.Where("quotation_id = ?", q.ID).Delete(&models.QuotationItem{}).Error; err != nil {
			return fmt.Errorf("clear quotation items: %w", err)
		}
		rows := make([]models.QuotationItem, 0, len(lines))
		for _, line := range lines {
			rows = append(rows, models.QuotationItem{QuotationID: q.ID, LineItem: line})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("save quotation items: %w", err)
		}
		totals := ComputeTotals(lines)
		return tx.Model(q).Updates(map[string]any{
			"subtotal":     totals.Subtotal,
			"tax_amount":   totals.TaxAmount,
			"total_amount": totals.Total,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return e.GetQuotation(ctx, id)
}

// TransitionQuotation moves a quotation through its state machine. A move to
// invoiced converts the quotation into an invoice.
func (e *Engine) TransitionQuotation(ctx context.Context, id uint, target models.QuotationStatus, override bool) (*models.Quotation, []models.Event, error) {
	if !validQuotationStatus(target) {
		return nil, nil, fmt.Errorf("%w: unknown quotation status %q", ErrIllegalTransition, target)
	}
	if target == models.QuotationInvoiced {
		_, events, err := e.CreateInvoiceFromQuotation(ctx, id, nil)
		if err != nil {
			return nil, nil, err
		}
		q, err := e.GetQuotation(ctx, id)
		return q, events, err
	}

	var events []models.Event
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := lockQuotation(tx, id)
		if err != nil {
			return err
		}
		if err := checkQuotationTransition(q, target, override); err != nil {
			return err
		}
		previous := q.Status
		if err := tx.Model(q).Update("status", target).Error; err != nil {
			return fmt.Errorf("update quotation status: %w", err)
		}
		q.Status = target
		events = append(events, e.quotationStatusEvent(q, previous))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	q, err := e.GetQuotation(ctx, id)
	return q, events, err
}

// CreateInvoiceFromQuotation converts an accepted quotation into a draft
// invoice. A quotation spawns at most one invoice.
func (e *Engine) CreateInvoiceFromQuotation(ctx context.Context, quotationID uint, dueDate *time.Time) (*models.Invoice, []models.Event, error) {
	var (
		inv    *models.Invoice
		events []models.Event
	)
	if dueDate != nil && dueDate.Before(e.today()) {
		return nil, nil, fmt.Errorf("%w: due date precedes issue date", ErrInvalidInput)
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := lockQuotation(tx, quotationID)
		if err != nil {
			return err
		}
		if q.Status == models.QuotationInvoiced {
			return fmt.Errorf("%w: quotation %s", ErrAlreadyInvoiced, q.Number)
		}
		if err := checkQuotationTransition(q, models.QuotationInvoiced, false); err != nil {
			return err
		}
		var existing int64
		if err := tx.Unscoped().Model(&models.Invoice{}).Where("quotation_id = ?", q.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing invoice: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: quotation %s", ErrAlreadyInvoiced, q.Number)
		}

		var items []models.QuotationItem
		if err := tx.Where("quotation_id = ?", q.ID).Order("position").Find(&items).Error; err != nil {
			return fmt.Errorf("load quotation items: %w", err)
		}
		lines := make([]models.LineItem, 0, len(items))
		for _, item := range items {
			lines = append(lines, item.LineItem)
		}

		issue := e.today()
		due := issue.Add(e.paymentTerms)
		if dueDate != nil {
			due = dueDate.UTC()
		}
		quotationRef := q.ID
		inv, err = createInvoice(tx, invoiceDraft{
			quotationID:  &quotationRef,
			clientID:     q.ClientID,
			contactEmail: q.LeadEmail,
			lines:        lines,
			issueDate:    issue,
			dueDate:      &due,
			notes:        q.Notes,
		})
		if err != nil {
			return err
		}

		previous := q.Status
		if err := tx.Model(q).Update("status", models.QuotationInvoiced).Error; err != nil {
			return fmt.Errorf("mark quotation invoiced: %w", err)
		}
		q.Status = models.QuotationInvoiced
		events = append(events, e.quotationStatusEvent(q, previous), e.invoiceCreatedEvent(inv))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.log.WithField("invoice", inv.Number).WithField("quotation_id", quotationID).Info("quotation converted to invoice")
	return inv, events, nil
}

// DeleteQuotation removes a quotation that never left draft or pending.
func (e *Engine) DeleteQuotation(ctx context.Context, id uint) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := lockQuotation(tx, id)
		if err != nil {
			return err
		}
		if q.Status != models.QuotationDraft && q.Status != models.QuotationPending {
			return fmt.Errorf("%w: quotation %s is %s", ErrAuditLocked, q.Number, q.Status)
		}
		if err := tx.Where("quotation_id = ?", q.ID).Delete(&models.QuotationItem{}).Error; err != nil {
			return fmt.Errorf("delete quotation items: %w", err)
		}
		return tx.Delete(q).Error
	})
}

func (e *Engine) quotationStatusEvent(q *models.Quotation, previous models.QuotationStatus) models.Event {
	return models.NewEvent(models.EventQuotationStatusChanged, models.SubjectQuotation, q.ID, e.now(), map[string]string{
		models.PayloadNumber:         q.Number,
		models.PayloadStatus:         string(q.Status),
		models.PayloadPreviousStatus: string(previous),
	})
}
