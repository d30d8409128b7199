package models

// PresetRecord is an output profile requested for a conversion. Rows are immutable.
type PresetRecord struct {
	ContentHash string `gorm:"column:content_hash;primaryKey"`
	PresetID    string `gorm:"column:preset_id;primaryKey"`
	Container   string `gorm:"column:container;not null"`
	Kind        string `gorm:"column:kind;not null"`
}

func (PresetRecord) TableName() string {
	return "preset_records"
}
