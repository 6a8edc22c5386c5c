package db

import (
	"database/sql"

	"github.com/charmbracelet/log"
)

const (
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		username TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		actor_uri TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		outbox_uri TEXT,
		followers_uri TEXT,
		public_key_pem TEXT NOT NULL,
		private_key_pem TEXT,
		avatar_url TEXT,
		is_local INTEGER DEFAULT 0,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_actor_uri ON actors(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_actors_domain ON actors(domain);
	`

	sqlCreateMagazinesTable = `CREATE TABLE IF NOT EXISTS magazines (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		name TEXT UNIQUE NOT NULL,
		title TEXT,
		description TEXT,
		is_private INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateModeratorsTable = `CREATE TABLE IF NOT EXISTS moderators (
		id TEXT NOT NULL PRIMARY KEY,
		magazine_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		added_by_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(magazine_id, actor_id)
	)`

	sqlCreateEntriesTable = `CREATE TABLE IF NOT EXISTS entries (
		id TEXT NOT NULL PRIMARY KEY,
		magazine_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		title TEXT,
		url TEXT,
		body TEXT,
		object_uri TEXT UNIQUE,
		visibility TEXT NOT NULL DEFAULT 'public',
		is_pinned INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		edited_at TIMESTAMP,
		deleted_at TIMESTAMP,
		deleted_by TEXT
	)`

	sqlCreateEntriesIndices = `
		CREATE INDEX IF NOT EXISTS idx_entries_magazine_id ON entries(magazine_id);
		CREATE INDEX IF NOT EXISTS idx_entries_object_uri ON entries(object_uri);
	`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		author_id TEXT NOT NULL,
		body TEXT,
		object_uri TEXT UNIQUE,
		visibility TEXT NOT NULL DEFAULT 'public',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		edited_at TIMESTAMP,
		deleted_at TIMESTAMP,
		deleted_by TEXT
	)`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments (
		id TEXT NOT NULL PRIMARY KEY,
		author_id TEXT NOT NULL,
		subject_kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		parent_id TEXT,
		body TEXT,
		object_uri TEXT UNIQUE,
		visibility TEXT NOT NULL DEFAULT 'public',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		edited_at TIMESTAMP,
		deleted_at TIMESTAMP,
		deleted_by TEXT
	)`

	sqlCreateCommentsIndices = `
		CREATE INDEX IF NOT EXISTS idx_comments_subject ON comments(subject_kind, subject_id);
		CREATE INDEX IF NOT EXISTS idx_comments_object_uri ON comments(object_uri);
	`

	sqlCreateVotesTable = `CREATE TABLE IF NOT EXISTS votes (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		subject_kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		activity_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, subject_kind, subject_id)
	)`

	sqlCreateVotesIndices = `
		CREATE INDEX IF NOT EXISTS idx_votes_subject ON votes(subject_kind, subject_id);
		CREATE INDEX IF NOT EXISTS idx_votes_activity_uri ON votes(activity_uri);
	`

	sqlCreateSubscriptionsTable = `CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL,
		target_actor_id TEXT NOT NULL,
		activity_uri TEXT,
		approved INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, target_actor_id)
	)`

	sqlCreateSubscriptionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_subscriptions_target ON subscriptions(target_actor_id);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_uri ON subscriptions(activity_uri);
	`

	sqlCreateBansTable = `CREATE TABLE IF NOT EXISTS bans (
		id TEXT NOT NULL PRIMARY KEY,
		banned_actor_id TEXT NOT NULL,
		issued_by_id TEXT NOT NULL,
		magazine_id TEXT,
		reason TEXT,
		activity_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP
	)`

	sqlCreateBansIndices = `
		CREATE INDEX IF NOT EXISTS idx_bans_banned_actor ON bans(banned_actor_id);
		CREATE INDEX IF NOT EXISTS idx_bans_activity_uri ON bans(activity_uri);
	`

	sqlCreateReportsTable = `CREATE TABLE IF NOT EXISTS reports (
		id TEXT NOT NULL PRIMARY KEY,
		reporter_id TEXT NOT NULL,
		subject_kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		activity_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateLocksTable = `CREATE TABLE IF NOT EXISTS locks (
		id TEXT NOT NULL PRIMARY KEY,
		subject_kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		locked_by_id TEXT NOT NULL,
		locked INTEGER DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(subject_kind, subject_id)
	)`

	// Durable idempotency markers: created on successful apply, never mutated.
	sqlCreateProcessedTable = `CREATE TABLE IF NOT EXISTS processed_activities (
		activity_uri TEXT NOT NULL PRIMARY KEY,
		processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		recipient_uri TEXT NOT NULL DEFAULT '',
		activity_json TEXT NOT NULL,
		key_owner_id TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_retry ON delivery_queue(next_retry_at);
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_inbox ON delivery_queue(inbox_uri, created_at);
	`

	sqlCreateInboundQueueTable = `CREATE TABLE IF NOT EXISTS inbound_queue (
		id TEXT NOT NULL PRIMARY KEY,
		target TEXT,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		headers_json TEXT NOT NULL,
		raw_body TEXT NOT NULL,
		claimed_actor TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_attempt_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateInboundQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_inbound_queue_attempt ON inbound_queue(next_attempt_at);
	`

	sqlCreateActivityLogTable = `CREATE TABLE IF NOT EXISTS activity_log (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		local INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivityLogIndices = `
		CREATE INDEX IF NOT EXISTS idx_activity_log_uri ON activity_log(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_activity_log_type ON activity_log(activity_type);
		CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log(created_at DESC);
	`
)

// RunMigrations creates the schema. All statements are idempotent so they
// run on every start.
func (db *DB) RunMigrations() error {
	log.Info("Running database migrations...")

	statements := []string{
		sqlCreateActorsTable,
		sqlCreateActorsIndices,
		sqlCreateMagazinesTable,
		sqlCreateModeratorsTable,
		sqlCreateEntriesTable,
		sqlCreateEntriesIndices,
		sqlCreatePostsTable,
		sqlCreateCommentsTable,
		sqlCreateCommentsIndices,
		sqlCreateVotesTable,
		sqlCreateVotesIndices,
		sqlCreateSubscriptionsTable,
		sqlCreateSubscriptionsIndices,
		sqlCreateBansTable,
		sqlCreateBansIndices,
		sqlCreateReportsTable,
		sqlCreateLocksTable,
		sqlCreateProcessedTable,
		sqlCreateDeliveryQueueTable,
		sqlCreateDeliveryQueueIndices,
		sqlCreateInboundQueueTable,
		sqlCreateInboundQueueIndices,
		sqlCreateActivityLogTable,
		sqlCreateActivityLogIndices,
	}

	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
