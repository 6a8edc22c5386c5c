package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/domain"
)

const (
	sqlEnqueueDelivery = `INSERT INTO delivery_queue(id, inbox_uri, recipient_uri, activity_json, key_owner_id, attempts, next_retry_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	// Ordered by inbox then submission time so a burst of related activities
	// to one shared inbox goes out in the order it was queued.
	sqlSelectPendingDeliveries = `SELECT id, inbox_uri, recipient_uri, activity_json, key_owner_id, attempts, next_retry_at, created_at
		FROM delivery_queue WHERE next_retry_at <= ? ORDER BY inbox_uri, created_at LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery        = `DELETE FROM delivery_queue WHERE id = ?`

	sqlEnqueueInbound = `INSERT INTO inbound_queue(id, target, method, path, headers_json, raw_body, claimed_actor, attempts, next_attempt_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectDueInbound = `SELECT id, target, method, path, headers_json, raw_body, claimed_actor, attempts, next_attempt_at, received_at
		FROM inbound_queue WHERE next_attempt_at <= ? ORDER BY received_at LIMIT ?`
	sqlUpdateInboundAttempt = `UPDATE inbound_queue SET attempts = ?, next_attempt_at = ? WHERE id = ?`
	sqlDeleteInbound        = `DELETE FROM inbound_queue WHERE id = ?`

	sqlInsertActivityLog = `INSERT INTO activity_log(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, local, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActivityLogByURI = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, local, created_at
		FROM activity_log WHERE activity_uri = ?`
)

// Delivery queue

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlEnqueueDelivery, item.Id, item.InboxURI, item.RecipientURI,
			item.ActivityJSON, item.KeyOwnerId, item.Attempts, item.NextRetryAt, item.CreatedAt)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlSelectPendingDeliveries, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		if err := rows.Scan(&item.Id, &item.InboxURI, &item.RecipientURI, &item.ActivityJSON,
			&item.KeyOwnerId, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return err, &items
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, nextRetry, id)
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id)
		return err
	})
}

// Inbound queue

func (db *DB) EnqueueInbound(env *domain.InboundEnvelope) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlEnqueueInbound, env.Id, env.Target, env.Method, env.Path,
			env.HeadersJSON, env.RawBody, env.ClaimedActor, env.Attempts, env.NextAttemptAt, env.ReceivedAt)
		return err
	})
}

func (db *DB) ReadDueInbound(limit int) (error, *[]domain.InboundEnvelope) {
	rows, err := db.db.Query(sqlSelectDueInbound, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var envs []domain.InboundEnvelope
	for rows.Next() {
		var env domain.InboundEnvelope
		if err := rows.Scan(&env.Id, &env.Target, &env.Method, &env.Path, &env.HeadersJSON,
			&env.RawBody, &env.ClaimedActor, &env.Attempts, &env.NextAttemptAt, &env.ReceivedAt); err != nil {
			return err, &envs
		}
		envs = append(envs, env)
	}
	if err = rows.Err(); err != nil {
		return err, &envs
	}
	return nil, &envs
}

func (db *DB) UpdateInboundAttempt(id uuid.UUID, attempts int, nextAttempt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateInboundAttempt, attempts, nextAttempt, id)
		return err
	})
}

func (db *DB) DeleteInbound(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteInbound, id)
		return err
	})
}

// Activity log (audit, not idempotency)

func (db *DB) CreateActivityRecord(rec *domain.ActivityRecord) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActivityLog, rec.Id, rec.ActivityURI, rec.ActivityType,
			rec.ActorURI, rec.ObjectURI, rec.RawJSON, rec.Local, rec.CreatedAt)
		return err
	})
}

func (db *DB) ReadActivityRecordByURI(uri string) (error, *domain.ActivityRecord) {
	var rec domain.ActivityRecord
	err := db.db.QueryRow(sqlSelectActivityLogByURI, uri).Scan(&rec.Id, &rec.ActivityURI,
		&rec.ActivityType, &rec.ActorURI, &rec.ObjectURI, &rec.RawJSON, &rec.Local, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &rec
}
