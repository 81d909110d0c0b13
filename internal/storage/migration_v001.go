package storage

import "database/sql"

// migrateV001 creates the pipeline schema: items, the append-only stage
// ledger, summaries, sync records, and digest records. Every statement uses
// IF NOT EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id           TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			source_url   TEXT NOT NULL UNIQUE,
			body         TEXT NOT NULL DEFAULT '',
			source       TEXT NOT NULL DEFAULT '',
			published_at DATETIME NOT NULL,
			ingested_at  DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS stage_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id      TEXT NOT NULL REFERENCES items(id),
			stage        TEXT NOT NULL CHECK (stage IN ('ingested', 'filtered', 'summarized', 'published')),
			outcome      TEXT NOT NULL CHECK (outcome IN ('success', 'failed', 'skipped')),
			error_detail TEXT NOT NULL DEFAULT '',
			occurred_at  DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS summaries (
			item_id     TEXT PRIMARY KEY REFERENCES items(id),
			short_text  TEXT NOT NULL,
			long_text   TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			updated_at  DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sync_records (
			item_id        TEXT PRIMARY KEY REFERENCES items(id),
			remote_page_id TEXT NOT NULL,
			synced_at      DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS digest_records (
			kind           TEXT NOT NULL CHECK (kind IN ('day', 'week', 'month')),
			period_key     TEXT NOT NULL,
			item_count     INTEGER NOT NULL DEFAULT 0,
			narrative      TEXT NOT NULL DEFAULT '',
			remote_page_id TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL,
			PRIMARY KEY (kind, period_key)
		)`,

		// At most one success per (item, stage); duplicate success writes fail
		// at the database layer no matter what the application does.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_stage_events_success
			ON stage_events(item_id, stage) WHERE outcome = 'success'`,

		`CREATE INDEX IF NOT EXISTS idx_stage_events_item_stage ON stage_events(item_id, stage)`,
		`CREATE INDEX IF NOT EXISTS idx_stage_events_stage      ON stage_events(stage, outcome)`,
		`CREATE INDEX IF NOT EXISTS idx_items_published_at      ON items(published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_records_synced_at  ON sync_records(synced_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
