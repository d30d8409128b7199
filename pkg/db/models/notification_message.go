package models

import (
	"time"

	"github.com/angelmondragon/convertflow/pkg/enums"
)

// NotificationMessage is an append-only completion notification, keyed by its payload hash.
type NotificationMessage struct {
	MessageHash     string                   `gorm:"column:message_hash;primaryKey"`
	SiteID          string                   `gorm:"column:site_id;not null"`
	ObjectKey       string                   `gorm:"column:object_key;not null;index:idx_notification_messages_object_key"`
	Process         string                   `gorm:"column:process;not null"`
	Status          enums.NotificationStatus `gorm:"column:status;not null"`
	RawStatus       string                   `gorm:"column:raw_status;not null"`
	Payload         string                   `gorm:"column:payload;not null"`
	VendorTimestamp *time.Time               `gorm:"column:vendor_timestamp"`
	ReceivedAt      time.Time                `gorm:"column:received_at;not null"`
}

func (NotificationMessage) TableName() string {
	return "notification_messages"
}
