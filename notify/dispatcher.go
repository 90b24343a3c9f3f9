// Package notify fans domain events out to the people who should hear about
// them. Delivery is best-effort: failures are recorded and logged, never
// returned to the code that changed state.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultMailTimeout     = 10 * time.Second
	defaultMaxAttempts     = 3
	defaultRetryBackoff    = 2 * time.Second
	defaultMailConcurrency = 4
)

// Result counts per-triple outcomes of one dispatch.
type Result struct {
	Delivered int
	Skipped   int
	Failed    int
}

func (r *Result) add(o Result) {
	r.Delivered += o.Delivered
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

type Dispatcher struct {
	dir         Directory
	policy      ChannelPolicy
	renderer    *Renderer
	inbox       *Inbox
	mailer      Mailer
	deliveries  deliveryLog
	log         logrus.FieldLogger
	clock       func() time.Time
	mailTimeout time.Duration
	maxAttempts int
	backoff     time.Duration
	concurrency int
}

type Option func(*Dispatcher)

func WithDirectory(dir Directory) Option {
	return func(d *Dispatcher) { d.dir = dir }
}

func WithPolicy(p ChannelPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithRetry bounds mail delivery: each attempt gets timeout, failed attempts
// are retried up to maxAttempts with a linear backoff.
func WithRetry(maxAttempts int, timeout, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if timeout > 0 {
			d.mailTimeout = timeout
		}
		if backoff >= 0 {
			d.backoff = backoff
		}
	}
}

func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func NewDispatcher(db *gorm.DB, mailer Mailer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		dir:         NewDBDirectory(db),
		policy:      DefaultPolicy(),
		renderer:    MustRenderer(),
		inbox:       NewInbox(db),
		mailer:      mailer,
		deliveries:  deliveryLog{db: db},
		log:         logrus.StandardLogger(),
		clock:       time.Now,
		mailTimeout: defaultMailTimeout,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
		concurrency: defaultMailConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.mailer == nil {
		d.mailer = LogMailer{Log: d.log}
	}
	return d
}

// Inbox exposes the in-app channel for the inbox API.
func (d *Dispatcher) Inbox() *Inbox {
	return d.inbox
}

type delivery struct {
	recipient Recipient
	channel   Channel
	message   Message
}

// Dispatch delivers ev to every resolved recipient on every channel the
// policy names. Triples already delivered are skipped, so replaying an event
// is safe. The only error returned is a recipient resolution failure;
// transport failures are recorded in the delivery log and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) (Result, error) {
	log := d.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})

	recipients, err := ResolveRecipients(ctx, ev, d.dir)
	if err != nil {
		log.WithError(err).Warn("notification skipped")
		return Result{}, err
	}

	var inApp, mail []delivery
	for _, r := range recipients {
		msg, err := d.renderer.Render(ev, r)
		if err != nil {
			log.WithError(err).WithField("recipient", r.Key()).Error("render notification")
			continue
		}
		for _, ch := range d.policy.ChannelsFor(ev.Type, r) {
			switch ch {
			case ChannelInApp:
				inApp = append(inApp, delivery{recipient: r, channel: ch, message: msg})
			case ChannelMail:
				mail = append(mail, delivery{recipient: r, channel: ch, message: msg})
			}
		}
	}

	var (
		mu     sync.Mutex
		result Result
	)
	tally := func(o Result) {
		mu.Lock()
		result.add(o)
		mu.Unlock()
	}

	// In-app writes for one event stay sequential.
	for _, dl := range inApp {
		tally(d.deliver(ctx, ev, dl, log))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, dl := range mail {
		dl := dl
		g.Go(func() error {
			tally(d.deliver(gctx, ev, dl, log))
			return nil
		})
	}
	_ = g.Wait()

	log.WithFields(logrus.Fields{
		"delivered": result.Delivered,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("event dispatched")
	return result, nil
}

// DispatchAll dispatches events independently; a failure on one never
// blocks the rest.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []models.Event) Result {
	var total Result
	for _, ev := range events {
		res, err := d.Dispatch(ctx, ev)
		if err != nil && !errors.Is(err, ErrRecipientResolution) {
			d.log.WithError(err).WithField("event_id", ev.ID).Error("dispatch event")
		}
		total.add(res)
	}
	return total
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.Event, dl delivery, log logrus.FieldLogger) Result {
	key := dl.recipient.Key()
	log = log.WithFields(logrus.Fields{"recipient": key, "channel": dl.channel})

	done, err := d.deliveries.delivered(ctx, ev.ID, key, dl.channel)
	if err != nil {
		log.WithError(err).Error("check delivery record")
		return Result{Failed: 1}
	}
	if done {
		log.Debug("already delivered")
		return Result{Skipped: 1}
	}

	var out deliveryOutcome
	switch dl.channel {
	case ChannelInApp:
		out = d.deliverInApp(ctx, ev, dl)
	case ChannelMail:
		out = d.deliverMail(ctx, dl, log)
	}
	out.at = d.clock()

	if err := d.deliveries.record(ctx, ev, key, dl.channel, out); err != nil {
		log.WithError(err).Error("record delivery outcome")
	}

	switch out.status {
	case models.DeliveryDelivered:
		return Result{Delivered: 1}
	case models.DeliverySkipped:
		log.WithError(out.err).Info("delivery skipped")
		return Result{Skipped: 1}
	default:
		log.WithError(out.err).WithField("attempt", out.attempts).Error("delivery failed")
		return Result{Failed: 1}
	}
}

func (d *Dispatcher) deliverInApp(ctx context.Context, ev models.Event, dl delivery) deliveryOutcome {
	if _, err := d.inbox.Persist(ctx, ev, dl.recipient.UserID, dl.message); err != nil {
		return deliveryOutcome{
			status:   models.DeliveryFailed,
			attempts: 1,
			err:      &TransportError{Channel: ChannelInApp, Recipient: dl.recipient.Key(), Err: err},
		}
	}
	return deliveryOutcome{status: models.DeliveryDelivered, attempts: 1}
}

func (d *Dispatcher) deliverMail(ctx context.Context, dl delivery, log logrus.FieldLogger) deliveryOutcome {
	if dl.recipient.Email == "" {
		return deliveryOutcome{status: models.DeliverySkipped, err: errors.New("recipient has no email address")}
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, d.mailTimeout)
		err := d.mailer.Send(actx, dl.recipient.Email, dl.message)
		cancel()
		if err == nil {
			return deliveryOutcome{status: models.DeliveryDelivered, attempts: attempt}
		}
		lastErr = &TransportError{Channel: ChannelMail, Recipient: dl.recipient.Key(), Err: err}
		log.WithError(err).WithField("attempt", attempt).Warn("mail attempt failed")

		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return deliveryOutcome{status: models.DeliveryFailed, attempts: attempt, err: lastErr}
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}
	return deliveryOutcome{status: models.DeliveryFailed, attempts: d.maxAttempts, err: lastErr}
}
