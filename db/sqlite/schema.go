package sqlite

// schema holds the DDL applied at open. Statements are idempotent; columns
// map 1-to-1 to the entity types in package db. Timestamps are unix
// seconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL UNIQUE,
		wallet TEXT NOT NULL DEFAULT '',
		unreachable INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		asset TEXT NOT NULL,
		min_apy REAL NOT NULL DEFAULT 0,
		risk TEXT NOT NULL DEFAULT 'Medium',
		max_notional REAL NOT NULL DEFAULT 0,
		signed INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id)`,
	`CREATE TABLE IF NOT EXISTS pools (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL DEFAULT '',
		underlying_symbol TEXT NOT NULL DEFAULT '',
		underlying_address TEXT NOT NULL DEFAULT '',
		decimals INTEGER NOT NULL DEFAULT 0,
		tvl REAL NOT NULL DEFAULT 0,
		apy REAL NOT NULL DEFAULT 0,
		borrowed REAL NOT NULL DEFAULT 0,
		utilization REAL NOT NULL DEFAULT 0,
		collaterals TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(address, chain_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pools_active ON pools(active, chain_id)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		pool_address TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		shares TEXT NOT NULL DEFAULT '0',
		value REAL NOT NULL DEFAULT 0,
		initial_apy REAL NOT NULL DEFAULT 0,
		current_apy REAL NOT NULL DEFAULT 0,
		net_apy REAL NOT NULL DEFAULT 0,
		last_apy_check INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		UNIQUE(user_id, pool_address, chain_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_active ON positions(active, user_id)`,
	`CREATE TABLE IF NOT EXISTS apy_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pool_address TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		supply_apy REAL NOT NULL DEFAULT 0,
		borrow_apy REAL NOT NULL DEFAULT 0,
		tvl REAL NOT NULL DEFAULT 0,
		recorded_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_pool_time ON apy_samples(pool_address, chain_id, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		sent_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_cooldown ON notifications(user_id, kind, subject, sent_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_kind_subject ON notifications(kind, subject)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		step TEXT NOT NULL,
		partial TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
}
