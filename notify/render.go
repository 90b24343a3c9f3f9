package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yourusername/billflow/models"
)

// Message is rendered copy for one recipient.
type Message struct {
	Subject string
	Body    string
}

type messageTemplate struct {
	subject string
	body    string
}

var messageTemplates = map[models.EventType]messageTemplate{
	models.EventQuotationCreated: {
		subject: "Quotation {{.P.number}} created",
		body:    "Quotation {{.P.number}} was created with status {{.P.status}} for {{.P.amount}}.",
	},
	models.EventQuotationStatusChanged: {
		subject: "Quotation {{.P.number}} is now {{.P.status}}",
		body:    "Quotation {{.P.number}} moved from {{.P.previous_status}} to {{.P.status}}.",
	},
	models.EventInvoiceCreated: {
		subject: "Invoice {{.P.number}} created",
		body:    "Invoice {{.P.number}} for {{.P.amount}} was created{{with .P.due_date}}, due {{.}}{{end}}.",
	},
	models.EventInvoiceSent: {
		subject: "Invoice {{.P.number}} sent",
		body:    "Invoice {{.P.number}} for {{.P.amount}} was sent to the client{{with .P.due_date}}, due {{.}}{{end}}.",
	},
	models.EventInvoiceOverdue: {
		subject: "Invoice {{.P.number}} is overdue",
		body:    "Invoice {{.P.number}} was due {{.P.due_date}} and still has {{.P.amount_due}} outstanding.",
	},
	models.EventInvoiceOverdueReminder: {
		subject: "Reminder: invoice {{.P.number}} is {{.P.days_overdue}} days overdue",
		body: "Hello{{with .Recipient.Name}} {{.}}{{end}},\n\n" +
			"Invoice {{.P.number}} was due on {{.P.due_date}}. The outstanding balance is {{.P.amount_due}}.\n" +
			"Please arrange payment at your earliest convenience.",
	},
	models.EventInvoiceCancelled: {
		subject: "Invoice {{.P.number}} cancelled",
		body:    "Invoice {{.P.number}} was cancelled (previously {{.P.previous_status}}).",
	},
	models.EventPaymentReceived: {
		subject: "Payment {{.P.number}} received for invoice {{.P.invoice_number}}",
		body:    "A payment of {{.P.amount}} was applied to invoice {{.P.invoice_number}}. Remaining balance: {{.P.amount_due}} ({{.P.status}}).",
	},
	models.EventProjectStatusChanged: {
		subject: "Project {{.P.title}} is now {{.P.status}}",
		body:    "Project {{.P.title}} moved from {{.P.previous_status}} to {{.P.status}}.",
	},
	models.EventTaskAssigned: {
		subject: "New task: {{.P.title}}",
		body:    "You were assigned \"{{.P.title}}\"{{with .P.due_date}}, due {{.}}{{end}}.",
	},
	models.EventTaskDueReminder: {
		subject: "{{if eq .P.overdue \"true\"}}Overdue{{else}}Due soon{{end}}: {{.P.title}}",
		body:    "\"{{.P.title}}\" is due {{.P.due_date}}.",
	},
}

const (
	genericSubject = "Billing notification"
	genericBody    = "There is an update on {{.Event.SubjectType}} {{.Event.SubjectID}} ({{.Event.Type}})."
)

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// Renderer turns events into per-recipient copy. Unknown event types fall
// back to a generic message.
type Renderer struct {
	templates map[models.EventType]compiled
	generic   compiled
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[models.EventType]compiled, len(messageTemplates))}
	for eventType, mt := range messageTemplates {
		c, err := compile(string(eventType), mt)
		if err != nil {
			return nil, err
		}
		r.templates[eventType] = c
	}
	generic, err := compile("generic", messageTemplate{subject: genericSubject, body: genericBody})
	if err != nil {
		return nil, err
	}
	r.generic = generic
	return r, nil
}

// MustRenderer is NewRenderer for the built-in templates, which always parse.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func compile(name string, mt messageTemplate) (compiled, error) {
	subject, err := template.New(name + ".subject").Option("missingkey=zero").Parse(mt.subject)
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s subject: %w", name, err)
	}
	body, err := template.New(name + ".body").Option("missingkey=zero").Parse(mt.body)
	if err != nil {
		return compiled{}, fmt.Errorf("parse %s body: %w", name, err)
	}
	return compiled{subject: subject, body: body}, nil
}

type renderData struct {
	Event     models.Event
	Recipient Recipient
	P         map[string]string
}

func (r *Renderer) Render(ev models.Event, to Recipient) (Message, error) {
	c, ok := r.templates[ev.Type]
	if !ok {
		c = r.generic
	}
	data := renderData{Event: ev, Recipient: to, P: ev.Payload}
	if data.P == nil {
		data.P = map[string]string{}
	}

	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", ev.Type, err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", ev.Type, err)
	}
	return Message{Subject: strings.TrimSpace(subject.String()), Body: body.String()}, nil
}
