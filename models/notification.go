package models

import "time"

// Notification is one in-app inbox entry. EventID plus RecipientUserID is the
// idempotency key for the durable channel.
type Notification struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	EventID         string     `gorm:"size:36;not null;uniqueIndex:idx_notification_event_recipient,priority:1" json:"event_id"`
	RecipientUserID uint       `gorm:"not null;uniqueIndex:idx_notification_event_recipient,priority:2;index" json:"recipient_user_id"`
	EventType       string     `gorm:"size:64;not null" json:"event_type"`
	SubjectType     string     `gorm:"size:32" json:"subject_type"`
	SubjectID       uint       `json:"subject_id"`
	Title           string     `gorm:"size:255" json:"title"`
	Body            string     `gorm:"type:text" json:"body"`
	PayloadJSON     string     `gorm:"type:text" json:"payload"`
	ReadAt          *time.Time `json:"read_at"`
}

// TableName overrides the table name
func (Notification) TableName() string {
	return "notifications"
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// Delivery tracks one (event, recipient, channel) triple.
type Delivery struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	EventID     string         `gorm:"size:36;not null;uniqueIndex:idx_delivery_key,priority:1" json:"event_id"`
	Recipient   string         `gorm:"size:255;not null;uniqueIndex:idx_delivery_key,priority:2" json:"recipient"`
	Channel     string         `gorm:"size:16;not null;uniqueIndex:idx_delivery_key,priority:3" json:"channel"`
	EventType   string         `gorm:"size:64;not null" json:"event_type"`
	Status      DeliveryStatus `gorm:"size:16;not null" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `gorm:"type:text" json:"last_error"`
	DeliveredAt *time.Time     `json:"delivered_at"`
}

// TableName overrides the table name
func (Delivery) TableName() string {
	return "notification_deliveries"
}
