package service

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
)

type CommentService struct {
	s *Services
}

func (cs *CommentService) GetByID(id uuid.UUID) (*domain.Comment, error) {
	err, c := cs.s.db.ReadCommentById(id)
	return c, mapReadErr(err)
}

func (cs *CommentService) GetByObjectURI(uri string) (*domain.Comment, error) {
	err, c := cs.s.db.ReadCommentByObjectURI(uri)
	return c, mapReadErr(err)
}

func (cs *CommentService) subjectRef(c *domain.Comment) domain.Ref {
	return domain.NewRef(c.SubjectKind.RefKind(), c.SubjectId)
}

// threadLocked reports whether the thread the comment belongs to has been
// closed for new replies.
func (cs *CommentService) threadLocked(c *domain.Comment) (bool, error) {
	err, l := cs.s.db.ReadLock(cs.subjectRef(c))
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return l.Locked, nil
}

func (cs *CommentService) CreateLocal(c *domain.Comment) error {
	locked, err := cs.threadLocked(c)
	if err != nil {
		return err
	}
	if locked {
		return ErrPermissionDenied
	}

	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	c.ObjectURI = cs.s.objectURI("c", c.Id)
	c.CreatedAt = time.Now()
	if c.Visibility == "" {
		c.Visibility = domain.VisibilityPublic
	}
	if err := cs.s.db.CreateComment(c); err != nil {
		return err
	}
	return cs.s.publish(CommentCreated{Comment: c})
}

func (cs *CommentService) EditLocal(id, actorId uuid.UUID, body string) error {
	unlock := cs.s.LockRef(domain.NewRef(domain.RefComment, id))
	defer unlock()

	c, err := cs.GetByID(id)
	if err != nil {
		return err
	}
	if c.IsDeleted() {
		return ErrConflict
	}
	if c.AuthorId != actorId {
		return ErrPermissionDenied
	}

	now := time.Now()
	err = cs.s.db.InTx(func(tx *sql.Tx) error {
		return db.UpdateCommentContentTx(tx, id, body, now)
	})
	if err != nil {
		return err
	}
	c.Body, c.EditedAt = body, &now
	return cs.s.publish(CommentEdited{Comment: c})
}

// DeleteLocal tombstones a comment. Comments are never purged on delete
// because replies beneath them must keep their threading.
func (cs *CommentService) DeleteLocal(id, actorId uuid.UUID) error {
	unlock := cs.s.LockRef(domain.NewRef(domain.RefComment, id))
	defer unlock()

	c, err := cs.GetByID(id)
	if err != nil {
		return err
	}

	asModerator := false
	if c.AuthorId != actorId {
		ok, err := cs.canModerateSubject(c, actorId)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}
		asModerator = true
	}

	err = cs.s.db.InTx(func(tx *sql.Tx) error {
		return db.TombstoneCommentTx(tx, id, actorId, time.Now())
	})
	if err != nil {
		return err
	}
	return cs.s.publish(CommentDeleted{Comment: c, ActorId: actorId, AsModerator: asModerator})
}

// canModerateSubject resolves the magazine behind the comment's thread, if
// any. Comments under bare posts have no moderators.
func (cs *CommentService) canModerateSubject(c *domain.Comment, actorId uuid.UUID) (bool, error) {
	if c.SubjectKind != domain.SubjectEntry {
		return false, nil
	}
	e, err := cs.s.Entries.GetByID(c.SubjectId)
	if err != nil {
		return false, err
	}
	return cs.s.Magazines.CanModerate(e.MagazineId, actorId)
}

// Audience inherits the subject's addressing and additionally cc's the
// parent author so reply notifications reach them directly.
func (cs *CommentService) Audience(c *domain.Comment) (to, cc []string, err error) {
	switch c.SubjectKind {
	case domain.SubjectEntry:
		e, err := cs.s.Entries.GetByID(c.SubjectId)
		if err != nil {
			return nil, nil, err
		}
		to, cc, err = cs.s.Entries.Audience(e)
		if err != nil {
			return nil, nil, err
		}
	case domain.SubjectPost:
		p, err := cs.s.Posts.GetByID(c.SubjectId)
		if err != nil {
			return nil, nil, err
		}
		to, cc, err = cs.s.Posts.Audience(p)
		if err != nil {
			return nil, nil, err
		}
	}

	if c.ParentId != nil {
		if parent, err := cs.GetByID(*c.ParentId); err == nil {
			if author, err := cs.s.Users.GetByID(parent.AuthorId); err == nil {
				cc = append(cc, author.ActorURI)
			}
		}
	}
	return to, cc, nil
}

func (cs *CommentService) ApplyRemoteCreate(activityURI string, c *domain.Comment) error {
	unlock := cs.s.LockRef(cs.subjectRef(c))
	defer unlock()

	locked, err := cs.threadLocked(c)
	if err != nil {
		return err
	}
	if locked {
		return ErrConflict
	}

	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return cs.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertCommentTx(tx, c)
	})
}

func (cs *CommentService) ApplyRemoteEdit(activityURI string, id uuid.UUID, body string, editedAt time.Time) error {
	unlock := cs.s.LockRef(domain.NewRef(domain.RefComment, id))
	defer unlock()

	c, err := cs.GetByID(id)
	if err != nil {
		return err
	}
	if c.IsDeleted() {
		return ErrConflict
	}
	return cs.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.UpdateCommentContentTx(tx, id, body, editedAt)
	})
}

func (cs *CommentService) ApplyRemoteDelete(activityURI string, id, byActorId uuid.UUID) error {
	unlock := cs.s.LockRef(domain.NewRef(domain.RefComment, id))
	defer unlock()

	if _, err := cs.GetByID(id); err != nil {
		return err
	}
	return cs.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.TombstoneCommentTx(tx, id, byActorId, time.Now())
	})
}

// ApplyRemoteLock upserts the thread lock state from a Lock or Undo(Lock)
// activity.
func (cs *CommentService) ApplyRemoteLock(activityURI string, subject domain.Ref, byActorId uuid.UUID, locked bool) error {
	unlock := cs.s.LockRef(subject)
	defer unlock()

	return cs.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.UpsertLockTx(tx, &domain.Lock{
			Id: uuid.New(), Subject: subject, LockedById: byActorId,
			Locked: locked, CreatedAt: time.Now(),
		})
	})
}

// SetThreadLock toggles the lock on a local thread; author or moderator.
func (cs *CommentService) SetThreadLock(subject domain.Ref, actorId uuid.UUID, locked bool) error {
	var authorId uuid.UUID
	var magazineId *uuid.UUID
	switch subject.Kind {
	case domain.RefEntry:
		e, err := cs.s.Entries.GetByID(subject.Id)
		if err != nil {
			return err
		}
		authorId, magazineId = e.AuthorId, &e.MagazineId
	case domain.RefPost:
		p, err := cs.s.Posts.GetByID(subject.Id)
		if err != nil {
			return err
		}
		authorId = p.AuthorId
	default:
		return ErrConflict
	}

	if actorId != authorId {
		if magazineId == nil {
			return ErrPermissionDenied
		}
		ok, err := cs.s.Magazines.CanModerate(*magazineId, actorId)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}
	}

	l := &domain.Lock{Id: uuid.New(), Subject: subject, LockedById: actorId,
		Locked: locked, CreatedAt: time.Now()}
	if err := cs.s.db.SetLock(l); err != nil {
		return err
	}
	return cs.s.publish(ThreadLockToggled{Lock: l})
}
