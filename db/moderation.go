package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/domain"
)

const (
	sqlInsertVote = `INSERT INTO votes(id, actor_id, subject_kind, subject_id, activity_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectVote = `SELECT id, actor_id, subject_kind, subject_id, activity_uri, created_at FROM votes`
	sqlSelectVoteBySubject = sqlSelectVote + ` WHERE actor_id = ? AND subject_kind = ? AND subject_id = ?`
	sqlSelectVoteByURI     = sqlSelectVote + ` WHERE activity_uri = ?`
	sqlDeleteVoteByURI     = `DELETE FROM votes WHERE activity_uri = ?`
	sqlDeleteVote          = `DELETE FROM votes WHERE actor_id = ? AND subject_kind = ? AND subject_id = ?`
	sqlCountVotes          = `SELECT COUNT(*) FROM votes WHERE subject_kind = ? AND subject_id = ?`

	sqlInsertSubscription = `INSERT INTO subscriptions(id, actor_id, target_actor_id, activity_uri, approved, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectSubscription = `SELECT id, actor_id, target_actor_id, activity_uri, approved, created_at FROM subscriptions`
	sqlSelectSubscriptionByURI    = sqlSelectSubscription + ` WHERE activity_uri = ?`
	sqlSelectSubscriptionByActors = sqlSelectSubscription + ` WHERE actor_id = ? AND target_actor_id = ?`
	sqlApproveSubscriptionByURI   = `UPDATE subscriptions SET approved = 1 WHERE activity_uri = ?`
	sqlDeleteSubscriptionByURI    = `DELETE FROM subscriptions WHERE activity_uri = ?`
	sqlDeleteSubscription         = `DELETE FROM subscriptions WHERE actor_id = ? AND target_actor_id = ?`

	sqlInsertBan = `INSERT INTO bans(id, banned_actor_id, issued_by_id, magazine_id, reason, activity_uri, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectBan = `SELECT id, banned_actor_id, issued_by_id, magazine_id, reason, activity_uri, created_at, expires_at FROM bans`
	sqlSelectBanByURI         = sqlSelectBan + ` WHERE activity_uri = ?`
	sqlSelectBanInstanceScope = sqlSelectBan + ` WHERE banned_actor_id = ? AND magazine_id IS NULL`
	sqlSelectBanMagazineScope = sqlSelectBan + ` WHERE banned_actor_id = ? AND magazine_id = ?`
	sqlDeleteBanByURI         = `DELETE FROM bans WHERE activity_uri = ?`

	sqlInsertReport = `INSERT INTO reports(id, reporter_id, subject_kind, subject_id, reason, status, activity_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectReport        = `SELECT id, reporter_id, subject_kind, subject_id, reason, status, activity_uri, created_at FROM reports`
	sqlSelectReportById    = sqlSelectReport + ` WHERE id = ?`
	sqlUpdateReportStatus  = `UPDATE reports SET status = ? WHERE id = ?`

	sqlUpsertLock = `INSERT INTO locks(id, subject_kind, subject_id, locked_by_id, locked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_kind, subject_id) DO UPDATE SET locked = excluded.locked, locked_by_id = excluded.locked_by_id`
	sqlSelectLock = `SELECT id, subject_kind, subject_id, locked_by_id, locked, created_at FROM locks
		WHERE subject_kind = ? AND subject_id = ?`

	sqlInsertModerator = `INSERT INTO moderators(id, magazine_id, actor_id, added_by_id, created_at)
		VALUES (?, ?, ?, ?, ?)`
	sqlDeleteModerator  = `DELETE FROM moderators WHERE magazine_id = ? AND actor_id = ?`
	sqlSelectModerators = `SELECT id, magazine_id, actor_id, added_by_id, created_at FROM moderators WHERE magazine_id = ?`
	sqlSelectModerator  = `SELECT 1 FROM moderators WHERE magazine_id = ? AND actor_id = ?`
)

// Votes

func InsertVoteTx(tx *sql.Tx, v *domain.Vote) error {
	_, err := tx.Exec(sqlInsertVote, v.Id, v.ActorId, string(v.Subject.Kind), v.Subject.Id, v.ActivityURI, v.CreatedAt)
	return err
}

func (db *DB) CreateVote(v *domain.Vote) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertVoteTx(tx, v)
	})
}

func scanVote(row interface{ Scan(...any) error }) (error, *domain.Vote) {
	var v domain.Vote
	var kind string
	err := row.Scan(&v.Id, &v.ActorId, &kind, &v.Subject.Id, &v.ActivityURI, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	v.Subject.Kind = domain.RefKind(kind)
	return err, &v
}

func (db *DB) ReadVote(actorId uuid.UUID, subject domain.Ref) (error, *domain.Vote) {
	return scanVote(db.db.QueryRow(sqlSelectVoteBySubject, actorId, string(subject.Kind), subject.Id))
}

func (db *DB) ReadVoteByURI(activityURI string) (error, *domain.Vote) {
	return scanVote(db.db.QueryRow(sqlSelectVoteByURI, activityURI))
}

func DeleteVoteByURITx(tx *sql.Tx, activityURI string) error {
	_, err := tx.Exec(sqlDeleteVoteByURI, activityURI)
	return err
}

func DeleteVoteTx(tx *sql.Tx, actorId uuid.UUID, subject domain.Ref) error {
	_, err := tx.Exec(sqlDeleteVote, actorId, string(subject.Kind), subject.Id)
	return err
}

func (db *DB) CountVotes(subject domain.Ref) (error, int) {
	var n int
	err := db.db.QueryRow(sqlCountVotes, string(subject.Kind), subject.Id).Scan(&n)
	return err, n
}

// Subscriptions

func InsertSubscriptionTx(tx *sql.Tx, s *domain.Subscription) error {
	_, err := tx.Exec(sqlInsertSubscription, s.Id, s.ActorId, s.TargetActorId, s.ActivityURI, s.Approved, s.CreatedAt)
	return err
}

func (db *DB) CreateSubscription(s *domain.Subscription) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertSubscriptionTx(tx, s)
	})
}

func scanSubscription(row interface{ Scan(...any) error }) (error, *domain.Subscription) {
	var s domain.Subscription
	err := row.Scan(&s.Id, &s.ActorId, &s.TargetActorId, &s.ActivityURI, &s.Approved, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &s
}

func (db *DB) ReadSubscriptionByURI(uri string) (error, *domain.Subscription) {
	return scanSubscription(db.db.QueryRow(sqlSelectSubscriptionByURI, uri))
}

func (db *DB) ReadSubscription(actorId, targetActorId uuid.UUID) (error, *domain.Subscription) {
	return scanSubscription(db.db.QueryRow(sqlSelectSubscriptionByActors, actorId, targetActorId))
}

func (db *DB) ApproveSubscriptionByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlApproveSubscriptionByURI, uri)
		return err
	})
}

func DeleteSubscriptionByURITx(tx *sql.Tx, uri string) error {
	_, err := tx.Exec(sqlDeleteSubscriptionByURI, uri)
	return err
}

func DeleteSubscriptionTx(tx *sql.Tx, actorId, targetActorId uuid.UUID) error {
	_, err := tx.Exec(sqlDeleteSubscription, actorId, targetActorId)
	return err
}

// Bans

func InsertBanTx(tx *sql.Tx, b *domain.Ban) error {
	var magId uuid.NullUUID
	if b.MagazineId != nil {
		magId = uuid.NullUUID{UUID: *b.MagazineId, Valid: true}
	}
	var expires sql.NullTime
	if b.ExpiresAt != nil {
		expires = sql.NullTime{Time: *b.ExpiresAt, Valid: true}
	}
	_, err := tx.Exec(sqlInsertBan, b.Id, b.BannedActorId, b.IssuedById, magId, b.Reason, b.ActivityURI, b.CreatedAt, expires)
	return err
}

func (db *DB) CreateBan(b *domain.Ban) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertBanTx(tx, b)
	})
}

func scanBan(row interface{ Scan(...any) error }) (error, *domain.Ban) {
	var b domain.Ban
	var magId uuid.NullUUID
	var expires sql.NullTime
	err := row.Scan(&b.Id, &b.BannedActorId, &b.IssuedById, &magId, &b.Reason, &b.ActivityURI, &b.CreatedAt, &expires)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if magId.Valid {
		b.MagazineId = &magId.UUID
	}
	if expires.Valid {
		b.ExpiresAt = &expires.Time
	}
	return err, &b
}

func (db *DB) ReadBanByURI(uri string) (error, *domain.Ban) {
	return scanBan(db.db.QueryRow(sqlSelectBanByURI, uri))
}

// ReadBanScoped finds a ban on an actor, scoped to a magazine when
// magazineId is non-nil, instance-wide otherwise.
func (db *DB) ReadBanScoped(bannedActorId uuid.UUID, magazineId *uuid.UUID) (error, *domain.Ban) {
	if magazineId == nil {
		return scanBan(db.db.QueryRow(sqlSelectBanInstanceScope, bannedActorId))
	}
	return scanBan(db.db.QueryRow(sqlSelectBanMagazineScope, bannedActorId, *magazineId))
}

func DeleteBanByURITx(tx *sql.Tx, uri string) error {
	_, err := tx.Exec(sqlDeleteBanByURI, uri)
	return err
}

// Reports

func InsertReportTx(tx *sql.Tx, r *domain.Report) error {
	_, err := tx.Exec(sqlInsertReport, r.Id, r.ReporterId, string(r.Subject.Kind), r.Subject.Id,
		r.Reason, string(r.Status), r.ActivityURI, r.CreatedAt)
	return err
}

func (db *DB) CreateReport(r *domain.Report) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertReportTx(tx, r)
	})
}

func (db *DB) ReadReportById(id uuid.UUID) (error, *domain.Report) {
	var r domain.Report
	var kind, status string
	err := db.db.QueryRow(sqlSelectReportById, id).Scan(&r.Id, &r.ReporterId, &kind, &r.Subject.Id,
		&r.Reason, &status, &r.ActivityURI, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	r.Subject.Kind = domain.RefKind(kind)
	r.Status = domain.ReportStatus(status)
	return err, &r
}

func (db *DB) UpdateReportStatus(id uuid.UUID, status domain.ReportStatus) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateReportStatus, string(status), id)
		return err
	})
}

// Locks

func UpsertLockTx(tx *sql.Tx, l *domain.Lock) error {
	_, err := tx.Exec(sqlUpsertLock, l.Id, string(l.Subject.Kind), l.Subject.Id, l.LockedById, l.Locked, l.CreatedAt)
	return err
}

func (db *DB) SetLock(l *domain.Lock) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return UpsertLockTx(tx, l)
	})
}

func (db *DB) ReadLock(subject domain.Ref) (error, *domain.Lock) {
	var l domain.Lock
	var kind string
	err := db.db.QueryRow(sqlSelectLock, string(subject.Kind), subject.Id).Scan(
		&l.Id, &kind, &l.Subject.Id, &l.LockedById, &l.Locked, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	l.Subject.Kind = domain.RefKind(kind)
	return err, &l
}

// Moderators

func InsertModeratorTx(tx *sql.Tx, m *domain.Moderator) error {
	_, err := tx.Exec(sqlInsertModerator, m.Id, m.MagazineId, m.ActorId, m.AddedById, m.CreatedAt)
	return err
}

func (db *DB) CreateModerator(m *domain.Moderator) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertModeratorTx(tx, m)
	})
}

func DeleteModeratorTx(tx *sql.Tx, magazineId, actorId uuid.UUID) error {
	_, err := tx.Exec(sqlDeleteModerator, magazineId, actorId)
	return err
}

func (db *DB) ReadModerators(magazineId uuid.UUID) (error, *[]domain.Moderator) {
	rows, err := db.db.Query(sqlSelectModerators, magazineId)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var mods []domain.Moderator
	for rows.Next() {
		var m domain.Moderator
		if err := rows.Scan(&m.Id, &m.MagazineId, &m.ActorId, &m.AddedById, &m.CreatedAt); err != nil {
			return err, &mods
		}
		mods = append(mods, m)
	}
	if err = rows.Err(); err != nil {
		return err, &mods
	}
	return nil, &mods
}

func (db *DB) IsModerator(magazineId, actorId uuid.UUID) (bool, error) {
	var one int
	err := db.db.QueryRow(sqlSelectModerator, magazineId, actorId).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
