package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deliveryLog persists the outcome of every (event, recipient, channel)
// triple.
type deliveryLog struct {
	db *gorm.DB
}

func (l deliveryLog) delivered(ctx context.Context, eventID, recipient string, ch Channel) (bool, error) {
	var d models.Delivery
	err := l.db.WithContext(ctx).
		Where("event_id = ? AND recipient = ? AND channel = ?", eventID, recipient, string(ch)).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load delivery: %w", err)
	}
	return d.Status == models.DeliveryDelivered, nil
}

type deliveryOutcome struct {
	status   models.DeliveryStatus
	attempts int
	err      error
	at       time.Time
}

func (l deliveryLog) record(ctx context.Context, ev models.Event, recipient string, ch Channel, out deliveryOutcome) error {
	d := models.Delivery{
		EventID:   ev.ID,
		Recipient: recipient,
		Channel:   string(ch),
		EventType: string(ev.Type),
		Status:    out.status,
		Attempts:  out.attempts,
	}
	if out.err != nil {
		d.LastError = out.err.Error()
	}
	if out.status == models.DeliveryDelivered {
		at := out.at.UTC()
		d.DeliveredAt = &at
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}, {Name: "recipient"}, {Name: "channel"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":       d.Status,
			"attempts":     gorm.Expr("notification_deliveries.attempts + ?", d.Attempts),
			"last_error":   d.LastError,
			"delivered_at": d.DeliveredAt,
			"updated_at":   out.at.UTC(),
		}),
	}).Create(&d).Error
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
