package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/convertflow/pkg/enums"
)

// ConversionRecord is the per-media aggregate reconciled from sub-process notifications.
type ConversionRecord struct {
	ContentHash   string                 `gorm:"column:content_hash;primaryKey"`
	PathHash      string                 `gorm:"column:path_hash;not null;uniqueIndex:uq_conversion_records_path_hash"`
	FileID        uuid.UUID              `gorm:"column:file_id;not null"`
	InputKey      string                 `gorm:"column:input_key;not null"`
	OverallStatus enums.ConversionStatus `gorm:"column:overall_status;not null;index"`

	TranscodeStatus      enums.ConversionStatus `gorm:"column:transcode_status;not null;default:0"`
	ModerationStatus     enums.ConversionStatus `gorm:"column:moderation_status;not null;default:0"`
	LabelDetectionStatus enums.ConversionStatus `gorm:"column:label_detection_status;not null;default:0"`
	TextDetectionStatus  enums.ConversionStatus `gorm:"column:text_detection_status;not null;default:0"`
	TranscriptionStatus  enums.ConversionStatus `gorm:"column:transcription_status;not null;default:0"`
	EntitiesStatus       enums.ConversionStatus `gorm:"column:entities_status;not null;default:0"`
	SentimentStatus      enums.ConversionStatus `gorm:"column:sentiment_status;not null;default:0"`
	KeyPhrasesStatus     enums.ConversionStatus `gorm:"column:key_phrases_status;not null;default:0"`

	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null"`
	SubmittedAt *time.Time `gorm:"column:submitted_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (ConversionRecord) TableName() string {
	return "conversion_records"
}

// StatusColumn returns the field backing a sub-process status column, or nil.
func (r *ConversionRecord) StatusColumn(column string) *enums.ConversionStatus {
	switch column {
	case "transcode_status":
		return &r.TranscodeStatus
	case "moderation_status":
		return &r.ModerationStatus
	case "label_detection_status":
		return &r.LabelDetectionStatus
	case "text_detection_status":
		return &r.TextDetectionStatus
	case "transcription_status":
		return &r.TranscriptionStatus
	case "entities_status":
		return &r.EntitiesStatus
	case "sentiment_status":
		return &r.SentimentStatus
	case "key_phrases_status":
		return &r.KeyPhrasesStatus
	default:
		return nil
	}
}
