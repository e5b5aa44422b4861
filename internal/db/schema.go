package db

import (
	"context"
	"fmt"
)

// Statements executed on startup. Tables are created if absent and columns
// added idempotently, so pointing the relay at an older database upgrades it
// in place.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(512) DEFAULT '',
		token VARCHAR(512) NOT NULL,
		organization_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_token ON clients (token)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_organization_id ON clients (organization_id)`,

	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) DEFAULT NULL,
		status INT DEFAULT 0,
		image VARCHAR(255) DEFAULT NULL,
		description TEXT DEFAULT NULL,
		organization_id BIGINT DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_organization_id ON rooms (organization_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms (status)`,

	`CREATE TABLE IF NOT EXISTS room_participants (
		id BIGSERIAL PRIMARY KEY,
		room_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		last_message_seen BIGINT,
		organization_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_room_participants_user_id ON room_participants (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_room_participants_organization_id ON room_participants (organization_id)`,
	`CREATE INDEX IF NOT EXISTS idx_room_participants_room_id ON room_participants (room_id)`,

	`CREATE TABLE IF NOT EXISTS room_messages (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		room_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		message TEXT NOT NULL,
		is_deleted SMALLINT DEFAULT 0,
		message_information TEXT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_room_messages_organization_id ON room_messages (organization_id)`,
	`CREATE INDEX IF NOT EXISTS idx_room_messages_room_id ON room_messages (room_id)`,
	`CREATE INDEX IF NOT EXISTS idx_room_messages_user_id ON room_messages (user_id)`,

	`CREATE TABLE IF NOT EXISTS client_notifications (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		msg_type INT,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_client_notifications_organization_id ON client_notifications (organization_id)`,
	`CREATE INDEX IF NOT EXISTS idx_client_notifications_msg_type ON client_notifications (msg_type)`,
	`CREATE INDEX IF NOT EXISTS idx_client_notifications_user_id ON client_notifications (user_id)`,

	// Columns added after the tables first shipped
	`ALTER TABLE room_participants ADD COLUMN IF NOT EXISTS deleted_at TIMESTAMPTZ NULL DEFAULT NULL`,
	`ALTER TABLE room_participants ADD COLUMN IF NOT EXISTS silent_notifications INT NOT NULL DEFAULT 0`,
	`ALTER TABLE clients ADD COLUMN IF NOT EXISTS device_token TEXT DEFAULT NULL`,
	`ALTER TABLE rooms ADD COLUMN IF NOT EXISTS owner_id BIGINT DEFAULT 0`,
	`ALTER TABLE clients ADD COLUMN IF NOT EXISTS active INT DEFAULT 30`,
}

// Migrate ensures the schema exists and is current.
func (db *Database) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	return nil
}
