package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Inbox is the durable in-app channel.
type Inbox struct {
	db *gorm.DB
}

func NewInbox(db *gorm.DB) *Inbox {
	return &Inbox{db: db}
}

// Persist stores the in-app entry for (event, user). Replays of the same
// event are absorbed by the unique key; created reports whether a row was
// written.
func (i *Inbox) Persist(ctx context.Context, ev models.Event, userID uint, msg Message) (bool, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}
	n := models.Notification{
		EventID:         ev.ID,
		RecipientUserID: userID,
		EventType:       string(ev.Type),
		SubjectType:     ev.SubjectType,
		SubjectID:       ev.SubjectID,
		Title:           msg.Subject,
		Body:            msg.Body,
		PayloadJSON:     string(payload),
	}
	res := i.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "recipient_user_id"}},
		DoNothing: true,
	}).Create(&n)
	if res.Error != nil {
		return false, fmt.Errorf("store notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// List returns a user's notifications, newest first.
func (i *Inbox) List(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := i.db.WithContext(ctx).Where("recipient_user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var out []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkRead marks one of the user's notifications read. Marking it again
// keeps the first read time.
func (i *Inbox) MarkRead(ctx context.Context, userID, id uint, at time.Time) (*models.Notification, error) {
	var n models.Notification
	err := i.db.WithContext(ctx).Where("recipient_user_id = ?", userID).First(&n, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNotificationMissing, id)
		}
		return nil, fmt.Errorf("load notification %d: %w", id, err)
	}
	if n.ReadAt != nil {
		return &n, nil
	}
	at = at.UTC()
	if err := i.db.WithContext(ctx).Model(&n).Update("read_at", at).Error; err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	n.ReadAt = &at
	return &n, nil
}
