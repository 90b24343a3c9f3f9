package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/yourusername/billflow/models"
)

// Recipient is either a platform user (UserID set) or an external address.
type Recipient struct {
	UserID uint
	Name   string
	Email  string
}

// Internal reports whether the recipient is a platform user.
func (r Recipient) Internal() bool {
	return r.UserID != 0
}

// Key identifies the recipient in delivery records.
func (r Recipient) Key() string {
	if r.Internal() {
		return "user:" + strconv.FormatUint(uint64(r.UserID), 10)
	}
	return "email:" + strings.ToLower(r.Email)
}

// Directory answers the lookups recipient resolution needs. Only active
// users are returned.
type Directory interface {
	Admins(ctx context.Context) ([]Recipient, error)
	User(ctx context.Context, id uint) (Recipient, error)
	ProjectTeam(ctx context.Context, projectID uint) ([]Recipient, error)
}

// ResolveRecipients maps an event to the set of people to notify. It reads
// through dir only and has no side effects.
func ResolveRecipients(ctx context.Context, ev models.Event, dir Directory) ([]Recipient, error) {
	fail := func(reason string, err error) error {
		return &RecipientResolutionError{EventID: ev.ID, EventType: ev.Type, Reason: reason, Err: err}
	}

	var (
		recipients []Recipient
		err        error
	)
	switch ev.Type {
	case models.EventQuotationCreated,
		models.EventQuotationStatusChanged,
		models.EventInvoiceCreated,
		models.EventInvoiceSent,
		models.EventInvoiceOverdue,
		models.EventInvoiceCancelled,
		models.EventPaymentReceived:
		recipients, err = dir.Admins(ctx)
		if err != nil {
			return nil, fail("list admins", err)
		}

	case models.EventTaskAssigned, models.EventTaskDueReminder:
		raw := ev.Value(models.PayloadAssigneeID)
		id, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil || id == 0 {
			return nil, fail(fmt.Sprintf("no assignee on task %d", ev.SubjectID), nil)
		}
		user, err := dir.User(ctx, uint(id))
		if err != nil {
			return nil, fail(fmt.Sprintf("load assignee %d", id), err)
		}
		recipients = []Recipient{user}

	case models.EventProjectStatusChanged:
		recipients, err = dir.ProjectTeam(ctx, ev.SubjectID)
		if err != nil {
			return nil, fail(fmt.Sprintf("load team of project %d", ev.SubjectID), err)
		}

	case models.EventInvoiceOverdueReminder:
		if email := strings.TrimSpace(ev.Value(models.PayloadRecipientEmail)); email != "" {
			recipients = append(recipients, Recipient{Email: email})
		}
		admins, err := dir.Admins(ctx)
		if err != nil {
			return nil, fail("list admins", err)
		}
		recipients = append(recipients, admins...)

	default:
		return nil, fail("no recipient rule for event type", nil)
	}

	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		return nil, fail("nobody to notify", nil)
	}
	return recipients, nil
}

func dedupe(in []Recipient) []Recipient {
	seen := make(map[string]bool, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out
}
