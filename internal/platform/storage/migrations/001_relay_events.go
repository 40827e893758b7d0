package migrations

import (
	"gorm.io/gorm"
)

// Migration001RelayEvents creates the relay event journal.
type Migration001RelayEvents struct{}

func (m *Migration001RelayEvents) Version() string {
	return "001_relay_events"
}

func (m *Migration001RelayEvents) Description() string {
	return "Create relay event journal"
}

func (m *Migration001RelayEvents) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS relay_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic VARCHAR(64) NOT NULL,
			request_id VARCHAR(128),
			url TEXT NOT NULL,
			content_type VARCHAR(255),
			kind VARCHAR(64),
			format VARCHAR(16),
			original_size INTEGER NOT NULL DEFAULT 0,
			output_size INTEGER NOT NULL DEFAULT 0,
			bytes_saved INTEGER NOT NULL DEFAULT 0,
			fallback_applied BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			data JSON,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_relay_events_topic ON relay_events(topic)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_events_created_at ON relay_events(created_at)`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001RelayEvents) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS relay_events`).Error
}
