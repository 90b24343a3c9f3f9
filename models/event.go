package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventQuotationCreated       EventType = "quotation.created"
	EventQuotationStatusChanged EventType = "quotation.status_changed"
	EventInvoiceCreated         EventType = "invoice.created"
	EventInvoiceSent            EventType = "invoice.sent"
	EventInvoiceOverdue         EventType = "invoice.overdue"
	EventInvoiceOverdueReminder EventType = "invoice.overdue_reminder"
	EventInvoiceCancelled       EventType = "invoice.cancelled"
	EventPaymentReceived        EventType = "payment.received"
	EventProjectStatusChanged   EventType = "project.status_changed"
	EventTaskAssigned           EventType = "task.assigned"
	EventTaskDueReminder        EventType = "task.due_reminder"
)

// KnownEventTypes lists every event the platform emits.
var KnownEventTypes = []EventType{
	EventQuotationCreated,
	EventQuotationStatusChanged,
	EventInvoiceCreated,
	EventInvoiceSent,
	EventInvoiceOverdue,
	EventInvoiceOverdueReminder,
	EventInvoiceCancelled,
	EventPaymentReceived,
	EventProjectStatusChanged,
	EventTaskAssigned,
	EventTaskDueReminder,
}

// Subject types carried on events.
const (
	SubjectQuotation = "quotation"
	SubjectInvoice   = "invoice"
	SubjectPayment   = "payment"
	SubjectProject   = "project"
	SubjectTask      = "task"
)

// Payload keys shared between producers and the notification layer.
const (
	PayloadNumber         = "number"
	PayloadInvoiceNumber  = "invoice_number"
	PayloadAmount         = "amount"
	PayloadAmountDue      = "amount_due"
	PayloadStatus         = "status"
	PayloadPreviousStatus = "previous_status"
	PayloadAssigneeID     = "assignee_id"
	PayloadTitle          = "title"
	PayloadDueDate        = "due_date"
	PayloadDaysOverdue    = "days_overdue"
	PayloadRecipientEmail = "recipient_email"
	PayloadOverdue        = "overdue"
)

// Event is an immutable record of something that happened to a document,
// project or task. It is produced by the engines and consumed once by the
// notification dispatcher.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	SubjectType string            `json:"subject_type"`
	SubjectID   uint              `json:"subject_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Payload     map[string]string `json:"payload,omitempty"`
}

func NewEvent(eventType EventType, subjectType string, subjectID uint, at time.Time, payload map[string]string) Event {
	copied := make(map[string]string, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		OccurredAt:  at.UTC(),
		Payload:     copied,
	}
}

// Value returns the payload entry for key, or "" when absent.
func (e Event) Value(key string) string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload[key]
}
