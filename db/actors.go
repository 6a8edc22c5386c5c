package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/domain"
)

const (
	sqlInsertActor = `INSERT INTO actors(id, type, username, domain, actor_uri, display_name, summary,
		inbox_uri, shared_inbox_uri, outbox_uri, followers_uri, public_key_pem, private_key_pem,
		avatar_url, is_local, last_fetched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectActor = `SELECT id, type, username, domain, actor_uri, display_name, summary,
		inbox_uri, shared_inbox_uri, outbox_uri, followers_uri, public_key_pem, private_key_pem,
		avatar_url, is_local, last_fetched_at, created_at FROM actors`

	sqlSelectActorById     = sqlSelectActor + ` WHERE id = ?`
	sqlSelectActorByURI    = sqlSelectActor + ` WHERE actor_uri = ?`
	sqlSelectActorByHandle = sqlSelectActor + ` WHERE username = ? AND domain = ?`

	sqlUpdateRemoteActor = `UPDATE actors SET display_name = ?, summary = ?, inbox_uri = ?,
		shared_inbox_uri = ?, outbox_uri = ?, followers_uri = ?, public_key_pem = ?,
		avatar_url = ?, last_fetched_at = ? WHERE actor_uri = ?`

	sqlDeleteActor = `DELETE FROM actors WHERE id = ?`

	sqlSelectSubscriberActors = `SELECT actors.id, actors.type, actors.username, actors.domain,
		actors.actor_uri, actors.display_name, actors.summary, actors.inbox_uri,
		actors.shared_inbox_uri, actors.outbox_uri, actors.followers_uri, actors.public_key_pem,
		actors.private_key_pem, actors.avatar_url, actors.is_local, actors.last_fetched_at,
		actors.created_at FROM actors INNER JOIN subscriptions
		ON subscriptions.actor_id = actors.id
		WHERE subscriptions.target_actor_id = ? AND subscriptions.approved = 1
		ORDER BY subscriptions.created_at`
)

func (db *DB) CreateActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActor,
			a.Id, string(a.Type), a.Username, a.Domain, a.ActorURI, a.DisplayName, a.Summary,
			a.InboxURI, a.SharedInboxURI, a.OutboxURI, a.FollowersURI, a.PublicKeyPem, a.PrivateKeyPem,
			a.AvatarURL, a.IsLocal, a.LastFetchedAt, a.CreatedAt)
		return err
	})
}

func scanActor(row interface{ Scan(...any) error }) (error, *domain.Actor) {
	var a domain.Actor
	var typ string
	err := row.Scan(&a.Id, &typ, &a.Username, &a.Domain, &a.ActorURI, &a.DisplayName, &a.Summary,
		&a.InboxURI, &a.SharedInboxURI, &a.OutboxURI, &a.FollowersURI, &a.PublicKeyPem, &a.PrivateKeyPem,
		&a.AvatarURL, &a.IsLocal, &a.LastFetchedAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	a.Type = domain.ActorType(typ)
	return err, &a
}

func (db *DB) ReadActorById(id uuid.UUID) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorById, id))
}

func (db *DB) ReadActorByURI(uri string) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorByURI, uri))
}

// ReadActorByHandle looks up by (username, domain); domain is empty for
// local actors.
func (db *DB) ReadActorByHandle(username string, actorDomain string) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorByHandle, username, actorDomain))
}

// UpdateRemoteActor refreshes the cached shadow record for a remote actor.
func (db *DB) UpdateRemoteActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateRemoteActor,
			a.DisplayName, a.Summary, a.InboxURI, a.SharedInboxURI, a.OutboxURI,
			a.FollowersURI, a.PublicKeyPem, a.AvatarURL, a.LastFetchedAt, a.ActorURI)
		return err
	})
}

func (db *DB) DeleteActor(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteActor, id)
		return err
	})
}

// ReadSubscriberActors returns the approved followers of an actor.
func (db *DB) ReadSubscriberActors(targetActorId uuid.UUID) (error, *[]domain.Actor) {
	rows, err := db.db.Query(sqlSelectSubscriberActors, targetActorId)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var actors []domain.Actor
	for rows.Next() {
		err, a := scanActor(rows)
		if err != nil {
			return err, &actors
		}
		actors = append(actors, *a)
	}
	if err = rows.Err(); err != nil {
		return err, &actors
	}

	return nil, &actors
}
