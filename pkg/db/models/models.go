package models

// All lists every persisted model in dependency order, for schema bootstrap on SQLite.
func All() []any {
	return []any{
		&StoredFile{},
		&ConversionRecord{},
		&PresetRecord{},
		&NotificationMessage{},
	}
}
