package db

import (
	"context"
	"fmt"
)

// schemaStatements create the post office tables. Every statement is
// idempotent so ApplySchema can run on each boot of a local stack.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS data_available_notifications (
		id                TEXT PRIMARY KEY,
		sequence_number   BIGSERIAL NOT NULL UNIQUE,
		recipient         TEXT NOT NULL,
		content_type      TEXT NOT NULL,
		origin            TEXT NOT NULL,
		supports_bundling BOOLEAN NOT NULL,
		weight            INTEGER NOT NULL CHECK (weight > 0),
		state             TEXT NOT NULL DEFAULT 'available'
		                  CHECK (state IN ('available', 'bundled', 'dequeued')),
		bundle_id         TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_available_recipient
		ON data_available_notifications (recipient, sequence_number)
		WHERE state = 'available'`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_bundle_candidates
		ON data_available_notifications (recipient, origin, content_type, sequence_number)
		WHERE state = 'available' AND supports_bundling`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_dequeued
		ON data_available_notifications (updated_at)
		WHERE state = 'dequeued'`,

	`CREATE TABLE IF NOT EXISTS bundles (
		id                     TEXT PRIMARY KEY,
		recipient              TEXT NOT NULL,
		origin                 TEXT NOT NULL,
		content_type           TEXT NOT NULL,
		notification_ids       TEXT[] NOT NULL CHECK (cardinality(notification_ids) > 0),
		content                TEXT,
		notifications_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// At most one non-archived bundle per recipient.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_bundles_active_recipient
		ON bundles (recipient)
		WHERE NOT notifications_archived`,
	`CREATE INDEX IF NOT EXISTS idx_bundles_stale
		ON bundles (updated_at)
		WHERE content IS NOT NULL AND NOT notifications_archived`,

	// IDs of purged dequeued notifications. Never pruned: an ID listed
	// here can not be inserted again.
	`CREATE TABLE IF NOT EXISTS dequeued_notification_ids (
		id          TEXT PRIMARY KEY,
		dequeued_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS idempotency_records (
		token           TEXT PRIMARY KEY,
		notification_id TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// ApplySchema creates tables and indexes that do not exist yet.
func ApplySchema(ctx context.Context, db DBTX) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
