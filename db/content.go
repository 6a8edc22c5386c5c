package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/domain"
)

const (
	sqlInsertMagazine = `INSERT INTO magazines(id, actor_id, owner_id, name, title, description, is_private, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectMagazine       = `SELECT id, actor_id, owner_id, name, title, description, is_private, created_at FROM magazines`
	sqlSelectMagazineById   = sqlSelectMagazine + ` WHERE id = ?`
	sqlSelectMagazineByName    = sqlSelectMagazine + ` WHERE name = ?`
	sqlSelectMagazineByActorId = sqlSelectMagazine + ` WHERE actor_id = ?`

	sqlInsertEntry = `INSERT INTO entries(id, magazine_id, author_id, title, url, body, object_uri, visibility, is_pinned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectEntry = `SELECT id, magazine_id, author_id, title, url, body, object_uri, visibility, is_pinned,
		created_at, edited_at, deleted_at, deleted_by FROM entries`
	sqlSelectEntryById        = sqlSelectEntry + ` WHERE id = ?`
	sqlSelectEntryByObjectURI = sqlSelectEntry + ` WHERE object_uri = ?`
	sqlSelectPublicEntries    = sqlSelectEntry + ` WHERE visibility = 'public' AND deleted_at IS NULL ORDER BY created_at DESC LIMIT ?`
	sqlUpdateEntryContent     = `UPDATE entries SET title = ?, url = ?, body = ?, edited_at = ? WHERE id = ?`
	sqlTombstoneEntry         = `UPDATE entries SET title = '', url = '', body = '', deleted_at = ?, deleted_by = ? WHERE id = ?`
	sqlPurgeEntry             = `DELETE FROM entries WHERE id = ?`
	sqlPurgeEntryComments     = `DELETE FROM comments WHERE subject_kind = 'entry' AND subject_id = ?`
	sqlSetEntryPinned         = `UPDATE entries SET is_pinned = ? WHERE id = ?`

	sqlInsertPost = `INSERT INTO posts(id, author_id, body, object_uri, visibility, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectPost = `SELECT id, author_id, body, object_uri, visibility,
		created_at, edited_at, deleted_at, deleted_by FROM posts`
	sqlSelectPostById        = sqlSelectPost + ` WHERE id = ?`
	sqlSelectPostByObjectURI = sqlSelectPost + ` WHERE object_uri = ?`
	sqlUpdatePostContent     = `UPDATE posts SET body = ?, edited_at = ? WHERE id = ?`
	sqlTombstonePost         = `UPDATE posts SET body = '', deleted_at = ?, deleted_by = ? WHERE id = ?`
	sqlPurgePost             = `DELETE FROM posts WHERE id = ?`
	sqlPurgePostComments     = `DELETE FROM comments WHERE subject_kind = 'post' AND subject_id = ?`

	sqlInsertComment = `INSERT INTO comments(id, author_id, subject_kind, subject_id, parent_id, body, object_uri, visibility, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectComment = `SELECT id, author_id, subject_kind, subject_id, parent_id, body, object_uri, visibility,
		created_at, edited_at, deleted_at, deleted_by FROM comments`
	sqlSelectCommentById        = sqlSelectComment + ` WHERE id = ?`
	sqlSelectCommentByObjectURI = sqlSelectComment + ` WHERE object_uri = ?`
	sqlUpdateCommentContent     = `UPDATE comments SET body = ?, edited_at = ? WHERE id = ?`
	sqlTombstoneComment         = `UPDATE comments SET body = '', deleted_at = ?, deleted_by = ? WHERE id = ?`
	sqlPurgeComment             = `DELETE FROM comments WHERE id = ?`
)

func (db *DB) CreateMagazine(m *domain.Magazine) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertMagazine, m.Id, m.ActorId, m.OwnerId, m.Name, m.Title, m.Description, m.IsPrivate, m.CreatedAt)
		return err
	})
}

func scanMagazine(row interface{ Scan(...any) error }) (error, *domain.Magazine) {
	var m domain.Magazine
	err := row.Scan(&m.Id, &m.ActorId, &m.OwnerId, &m.Name, &m.Title, &m.Description, &m.IsPrivate, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &m
}

func (db *DB) ReadMagazineById(id uuid.UUID) (error, *domain.Magazine) {
	return scanMagazine(db.db.QueryRow(sqlSelectMagazineById, id))
}

func (db *DB) ReadMagazineByName(name string) (error, *domain.Magazine) {
	return scanMagazine(db.db.QueryRow(sqlSelectMagazineByName, name))
}

func (db *DB) ReadMagazineByActorId(actorId uuid.UUID) (error, *domain.Magazine) {
	return scanMagazine(db.db.QueryRow(sqlSelectMagazineByActorId, actorId))
}

// Entries

// InsertEntryTx is the transaction-scoped insert used inside ApplyOnce.
func InsertEntryTx(tx *sql.Tx, e *domain.Entry) error {
	_, err := tx.Exec(sqlInsertEntry, e.Id, e.MagazineId, e.AuthorId, e.Title, e.URL, e.Body,
		e.ObjectURI, string(e.Visibility), e.IsPinned, e.CreatedAt)
	return err
}

func (db *DB) CreateEntry(e *domain.Entry) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertEntryTx(tx, e)
	})
}

func scanEntry(row interface{ Scan(...any) error }) (error, *domain.Entry) {
	var e domain.Entry
	var visibility string
	var editedAt, deletedAt sql.NullTime
	var deletedBy uuid.NullUUID
	err := row.Scan(&e.Id, &e.MagazineId, &e.AuthorId, &e.Title, &e.URL, &e.Body, &e.ObjectURI,
		&visibility, &e.IsPinned, &e.CreatedAt, &editedAt, &deletedAt, &deletedBy)
	if err == sql.ErrNoRows {
		return err, nil
	}
	e.Visibility = domain.Visibility(visibility)
	if editedAt.Valid {
		e.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Time
	}
	if deletedBy.Valid {
		e.DeletedBy = &deletedBy.UUID
	}
	return err, &e
}

func (db *DB) ReadEntryById(id uuid.UUID) (error, *domain.Entry) {
	return scanEntry(db.db.QueryRow(sqlSelectEntryById, id))
}

func (db *DB) ReadEntryByObjectURI(uri string) (error, *domain.Entry) {
	return scanEntry(db.db.QueryRow(sqlSelectEntryByObjectURI, uri))
}

func (db *DB) ReadPublicEntries(limit int) (error, *[]domain.Entry) {
	rows, err := db.db.Query(sqlSelectPublicEntries, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		err, e := scanEntry(rows)
		if err != nil {
			return err, &entries
		}
		entries = append(entries, *e)
	}
	if err = rows.Err(); err != nil {
		return err, &entries
	}
	return nil, &entries
}

func UpdateEntryContentTx(tx *sql.Tx, id uuid.UUID, title, url, body string, editedAt time.Time) error {
	_, err := tx.Exec(sqlUpdateEntryContent, title, url, body, editedAt, id)
	return err
}

// TombstoneEntryTx soft-deletes: the identifier and thread position survive,
// the content does not.
func TombstoneEntryTx(tx *sql.Tx, id uuid.UUID, by uuid.UUID, at time.Time) error {
	_, err := tx.Exec(sqlTombstoneEntry, at, by, id)
	return err
}

// PurgeEntryTx hard-removes the entry and cascades to its comments.
func PurgeEntryTx(tx *sql.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(sqlPurgeEntryComments, id); err != nil {
		return err
	}
	_, err := tx.Exec(sqlPurgeEntry, id)
	return err
}

func SetEntryPinnedTx(tx *sql.Tx, id uuid.UUID, pinned bool) error {
	_, err := tx.Exec(sqlSetEntryPinned, pinned, id)
	return err
}

// Posts

func InsertPostTx(tx *sql.Tx, p *domain.Post) error {
	_, err := tx.Exec(sqlInsertPost, p.Id, p.AuthorId, p.Body, p.ObjectURI, string(p.Visibility), p.CreatedAt)
	return err
}

func (db *DB) CreatePost(p *domain.Post) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertPostTx(tx, p)
	})
}

func scanPost(row interface{ Scan(...any) error }) (error, *domain.Post) {
	var p domain.Post
	var visibility string
	var editedAt, deletedAt sql.NullTime
	var deletedBy uuid.NullUUID
	err := row.Scan(&p.Id, &p.AuthorId, &p.Body, &p.ObjectURI, &visibility,
		&p.CreatedAt, &editedAt, &deletedAt, &deletedBy)
	if err == sql.ErrNoRows {
		return err, nil
	}
	p.Visibility = domain.Visibility(visibility)
	if editedAt.Valid {
		p.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	if deletedBy.Valid {
		p.DeletedBy = &deletedBy.UUID
	}
	return err, &p
}

func (db *DB) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostById, id))
}

func (db *DB) ReadPostByObjectURI(uri string) (error, *domain.Post) {
	return scanPost(db.db.QueryRow(sqlSelectPostByObjectURI, uri))
}

func UpdatePostContentTx(tx *sql.Tx, id uuid.UUID, body string, editedAt time.Time) error {
	_, err := tx.Exec(sqlUpdatePostContent, body, editedAt, id)
	return err
}

func TombstonePostTx(tx *sql.Tx, id uuid.UUID, by uuid.UUID, at time.Time) error {
	_, err := tx.Exec(sqlTombstonePost, at, by, id)
	return err
}

func PurgePostTx(tx *sql.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(sqlPurgePostComments, id); err != nil {
		return err
	}
	_, err := tx.Exec(sqlPurgePost, id)
	return err
}

// Comments

func InsertCommentTx(tx *sql.Tx, c *domain.Comment) error {
	var parent uuid.NullUUID
	if c.ParentId != nil {
		parent = uuid.NullUUID{UUID: *c.ParentId, Valid: true}
	}
	_, err := tx.Exec(sqlInsertComment, c.Id, c.AuthorId, string(c.SubjectKind), c.SubjectId,
		parent, c.Body, c.ObjectURI, string(c.Visibility), c.CreatedAt)
	return err
}

func (db *DB) CreateComment(c *domain.Comment) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return InsertCommentTx(tx, c)
	})
}

func scanComment(row interface{ Scan(...any) error }) (error, *domain.Comment) {
	var c domain.Comment
	var kind, visibility string
	var parentId, deletedBy uuid.NullUUID
	var editedAt, deletedAt sql.NullTime
	err := row.Scan(&c.Id, &c.AuthorId, &kind, &c.SubjectId, &parentId, &c.Body, &c.ObjectURI,
		&visibility, &c.CreatedAt, &editedAt, &deletedAt, &deletedBy)
	if err == sql.ErrNoRows {
		return err, nil
	}
	c.SubjectKind = domain.SubjectKind(kind)
	c.Visibility = domain.Visibility(visibility)
	if parentId.Valid {
		c.ParentId = &parentId.UUID
	}
	if editedAt.Valid {
		c.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	if deletedBy.Valid {
		c.DeletedBy = &deletedBy.UUID
	}
	return err, &c
}

func (db *DB) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	return scanComment(db.db.QueryRow(sqlSelectCommentById, id))
}

func (db *DB) ReadCommentByObjectURI(uri string) (error, *domain.Comment) {
	return scanComment(db.db.QueryRow(sqlSelectCommentByObjectURI, uri))
}

func UpdateCommentContentTx(tx *sql.Tx, id uuid.UUID, body string, editedAt time.Time) error {
	_, err := tx.Exec(sqlUpdateCommentContent, body, editedAt, id)
	return err
}

// TombstoneCommentTx keeps the row so children stay attached to the thread.
func TombstoneCommentTx(tx *sql.Tx, id uuid.UUID, by uuid.UUID, at time.Time) error {
	_, err := tx.Exec(sqlTombstoneComment, at, by, id)
	return err
}

func PurgeCommentTx(tx *sql.Tx, id uuid.UUID) error {
	_, err := tx.Exec(sqlPurgeComment, id)
	return err
}
