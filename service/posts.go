package service

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
)

type PostService struct {
	s *Services
}

func (ps *PostService) GetByID(id uuid.UUID) (*domain.Post, error) {
	err, p := ps.s.db.ReadPostById(id)
	return p, mapReadErr(err)
}

func (ps *PostService) GetByObjectURI(uri string) (*domain.Post, error) {
	err, p := ps.s.db.ReadPostByObjectURI(uri)
	return p, mapReadErr(err)
}

func (ps *PostService) CreateLocal(p *domain.Post) error {
	banned, err := ps.s.Magazines.IsBanned(p.AuthorId, nil)
	if err != nil {
		return err
	}
	if banned {
		return ErrPermissionDenied
	}

	if p.Id == uuid.Nil {
		p.Id = uuid.New()
	}
	p.ObjectURI = ps.s.objectURI("p", p.Id)
	p.CreatedAt = time.Now()
	if p.Visibility == "" {
		p.Visibility = domain.VisibilityPublic
	}
	if err := ps.s.db.CreatePost(p); err != nil {
		return err
	}
	return ps.s.publish(PostCreated{Post: p})
}

func (ps *PostService) EditLocal(id, actorId uuid.UUID, body string) error {
	unlock := ps.s.LockRef(domain.NewRef(domain.RefPost, id))
	defer unlock()

	p, err := ps.GetByID(id)
	if err != nil {
		return err
	}
	if p.IsDeleted() {
		return ErrConflict
	}
	if p.AuthorId != actorId {
		return ErrPermissionDenied
	}

	now := time.Now()
	err = ps.s.db.InTx(func(tx *sql.Tx) error {
		return db.UpdatePostContentTx(tx, id, body, now)
	})
	if err != nil {
		return err
	}
	p.Body, p.EditedAt = body, &now
	return ps.s.publish(PostEdited{Post: p})
}

// DeleteLocal tombstones a post. Posts live outside magazines so only
// the author may remove one.
func (ps *PostService) DeleteLocal(id, actorId uuid.UUID) error {
	unlock := ps.s.LockRef(domain.NewRef(domain.RefPost, id))
	defer unlock()

	p, err := ps.GetByID(id)
	if err != nil {
		return err
	}
	if p.AuthorId != actorId {
		return ErrPermissionDenied
	}

	err = ps.s.db.InTx(func(tx *sql.Tx) error {
		return db.TombstonePostTx(tx, id, actorId, time.Now())
	})
	if err != nil {
		return err
	}
	return ps.s.publish(PostDeleted{Post: p, ActorId: actorId})
}

// Purge hard-removes a tombstoned post. Local housekeeping after the
// federated soft delete; purging a live post is refused.
func (ps *PostService) Purge(id, actorId uuid.UUID) error {
	unlock := ps.s.LockRef(domain.NewRef(domain.RefPost, id))
	defer unlock()

	p, err := ps.GetByID(id)
	if err != nil {
		return err
	}
	if !p.IsDeleted() {
		return ErrConflict
	}
	if p.AuthorId != actorId {
		return ErrPermissionDenied
	}

	return ps.s.db.InTx(func(tx *sql.Tx) error {
		return db.PurgePostTx(tx, id)
	})
}

func (ps *PostService) Audience(p *domain.Post) (to, cc []string, err error) {
	author, err := ps.s.Users.GetByID(p.AuthorId)
	if err != nil {
		return nil, nil, err
	}
	switch p.Visibility {
	case domain.VisibilityPrivate:
		return []string{author.FollowersURI}, nil, nil
	case domain.VisibilityUnlisted:
		return []string{author.FollowersURI}, []string{domain.PublicCollection}, nil
	default:
		return []string{domain.PublicCollection}, []string{author.FollowersURI}, nil
	}
}

func (ps *PostService) ApplyRemoteCreate(activityURI string, p *domain.Post) error {
	unlock := ps.s.LockRef(p.Ref())
	defer unlock()

	if p.Id == uuid.Nil {
		p.Id = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return ps.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertPostTx(tx, p)
	})
}

func (ps *PostService) ApplyRemoteEdit(activityURI string, id uuid.UUID, body string, editedAt time.Time) error {
	unlock := ps.s.LockRef(domain.NewRef(domain.RefPost, id))
	defer unlock()

	p, err := ps.GetByID(id)
	if err != nil {
		return err
	}
	if p.IsDeleted() {
		return ErrConflict
	}
	return ps.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.UpdatePostContentTx(tx, id, body, editedAt)
	})
}

func (ps *PostService) ApplyRemoteDelete(activityURI string, id, byActorId uuid.UUID) error {
	unlock := ps.s.LockRef(domain.NewRef(domain.RefPost, id))
	defer unlock()

	if _, err := ps.GetByID(id); err != nil {
		return err
	}
	return ps.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.TombstonePostTx(tx, id, byActorId, time.Now())
	})
}
