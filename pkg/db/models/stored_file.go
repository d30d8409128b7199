package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/convertflow/pkg/enums"
)

// StoredFile is a source upload or an imported conversion artifact on local storage.
type StoredFile struct {
	ID                  uuid.UUID        `gorm:"column:id;primaryKey"`
	ContentHash         string           `gorm:"column:content_hash;not null;index:idx_stored_files_content_hash"`
	PathHash            string           `gorm:"column:path_hash;not null;uniqueIndex:uq_stored_files_path_hash"`
	Locator             string           `gorm:"column:locator;not null"`
	Origin              enums.FileOrigin `gorm:"column:origin;not null"`
	MimeType            string           `gorm:"column:mime_type;not null"`
	SizeBytes           int64            `gorm:"column:size_bytes;not null"`
	VideoStreams        *int             `gorm:"column:video_streams"`
	AudioStreams        *int             `gorm:"column:audio_streams"`
	MetadataExtractedAt *time.Time       `gorm:"column:metadata_extracted_at"`
	CreatedAt           time.Time        `gorm:"column:created_at;not null"`
}

func (StoredFile) TableName() string {
	return "stored_files"
}

func (f *StoredFile) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// HasVideo reports whether probing found at least one video stream.
func (f StoredFile) HasVideo() bool {
	return f.VideoStreams != nil && *f.VideoStreams > 0
}

// HasAudio reports whether probing found at least one audio stream.
func (f StoredFile) HasAudio() bool {
	return f.AudioStreams != nil && *f.AudioStreams > 0
}
