package service

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
)

type EntryService struct {
	s *Services
}

func (es *EntryService) GetByID(id uuid.UUID) (*domain.Entry, error) {
	err, e := es.s.db.ReadEntryById(id)
	return e, mapReadErr(err)
}

func (es *EntryService) GetByObjectURI(uri string) (*domain.Entry, error) {
	err, e := es.s.db.ReadEntryByObjectURI(uri)
	return e, mapReadErr(err)
}

func (es *EntryService) ListPublic(limit int) ([]domain.Entry, error) {
	err, entries := es.s.db.ReadPublicEntries(limit)
	if err != nil {
		return nil, err
	}
	return *entries, nil
}

// CreateLocal stores an entry authored on this instance and federates it.
// Banned authors are refused before anything is written.
func (es *EntryService) CreateLocal(e *domain.Entry) error {
	banned, err := es.s.Magazines.IsBanned(e.AuthorId, &e.MagazineId)
	if err != nil {
		return err
	}
	if banned {
		return ErrPermissionDenied
	}

	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}
	e.ObjectURI = es.s.objectURI("e", e.Id)
	e.CreatedAt = time.Now()
	if e.Visibility == "" {
		e.Visibility = domain.VisibilityPublic
	}
	if err := es.s.db.CreateEntry(e); err != nil {
		return err
	}
	return es.s.publish(EntryCreated{Entry: e})
}

func (es *EntryService) EditLocal(id, actorId uuid.UUID, title, url, body string) error {
	unlock := es.s.LockRef(domain.NewRef(domain.RefEntry, id))
	defer unlock()

	e, err := es.GetByID(id)
	if err != nil {
		return err
	}
	if e.IsDeleted() {
		return ErrConflict
	}
	if e.AuthorId != actorId {
		return ErrPermissionDenied
	}

	now := time.Now()
	err = es.s.db.InTx(func(tx *sql.Tx) error {
		return db.UpdateEntryContentTx(tx, id, title, url, body, now)
	})
	if err != nil {
		return err
	}
	e.Title, e.URL, e.Body, e.EditedAt = title, url, body, &now
	return es.s.publish(EntryEdited{Entry: e})
}

// DeleteLocal tombstones an entry, whether the author or a moderator
// asked for it. The thread below survives and the identifier keeps
// resolving, so remote peers can apply the Delete and later an Undo.
func (es *EntryService) DeleteLocal(id, actorId uuid.UUID) error {
	unlock := es.s.LockRef(domain.NewRef(domain.RefEntry, id))
	defer unlock()

	e, err := es.GetByID(id)
	if err != nil {
		return err
	}

	asModerator := false
	if e.AuthorId != actorId {
		ok, err := es.s.db.IsModerator(e.MagazineId, actorId)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}
		asModerator = true
	}

	now := time.Now()
	err = es.s.db.InTx(func(tx *sql.Tx) error {
		return db.TombstoneEntryTx(tx, id, actorId, now)
	})
	if err != nil {
		return err
	}
	return es.s.publish(EntryDeleted{Entry: e, ActorId: actorId, AsModerator: asModerator})
}

// Purge hard-removes a tombstoned entry and its comment thread. It is
// local housekeeping after the federated soft delete, so nothing is
// published; purging a live entry is refused.
func (es *EntryService) Purge(id, actorId uuid.UUID) error {
	unlock := es.s.LockRef(domain.NewRef(domain.RefEntry, id))
	defer unlock()

	e, err := es.GetByID(id)
	if err != nil {
		return err
	}
	if !e.IsDeleted() {
		return ErrConflict
	}
	if e.AuthorId != actorId {
		ok, err := es.s.db.IsModerator(e.MagazineId, actorId)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}
	}

	return es.s.db.InTx(func(tx *sql.Tx) error {
		return db.PurgeEntryTx(tx, id)
	})
}

// SetPinned toggles the sticky flag; moderators only.
func (es *EntryService) SetPinned(id, actorId uuid.UUID, pinned bool) error {
	e, err := es.GetByID(id)
	if err != nil {
		return err
	}
	ok, err := es.s.Magazines.CanModerate(e.MagazineId, actorId)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}

	err = es.s.db.InTx(func(tx *sql.Tx) error {
		return db.SetEntryPinnedTx(tx, id, pinned)
	})
	if err != nil {
		return err
	}
	e.IsPinned = pinned
	return es.s.publish(EntryPinToggled{Entry: e, Pinned: pinned})
}

// Audience computes the delivery addressing for an entry. Private
// magazines never address the public collection.
func (es *EntryService) Audience(e *domain.Entry) (to, cc []string, err error) {
	author, err := es.s.Users.GetByID(e.AuthorId)
	if err != nil {
		return nil, nil, err
	}
	mag, err := es.s.Magazines.GetByID(e.MagazineId)
	if err != nil {
		return nil, nil, err
	}
	magActor, err := es.s.Users.GetByID(mag.ActorId)
	if err != nil {
		return nil, nil, err
	}

	if mag.IsPrivate || e.Visibility == domain.VisibilityPrivate {
		return []string{magActor.FollowersURI}, nil, nil
	}
	if e.Visibility == domain.VisibilityUnlisted {
		return []string{author.FollowersURI, magActor.ActorURI},
			[]string{domain.PublicCollection}, nil
	}
	return []string{domain.PublicCollection},
		[]string{author.FollowersURI, magActor.ActorURI}, nil
}

// Remote-origin appliers. Each runs under the activity's idempotency
// marker and never publishes events back out.

func (es *EntryService) ApplyRemoteCreate(activityURI string, e *domain.Entry) error {
	unlock := es.s.LockRef(e.Ref())
	defer unlock()

	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return es.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertEntryTx(tx, e)
	})
}

func (es *EntryService) ApplyRemoteEdit(activityURI string, id uuid.UUID, title, url, body string, editedAt time.Time) error {
	unlock := es.s.LockRef(domain.NewRef(domain.RefEntry, id))
	defer unlock()

	e, err := es.GetByID(id)
	if err != nil {
		return err
	}
	if e.IsDeleted() {
		return ErrConflict
	}
	return es.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.UpdateEntryContentTx(tx, id, title, url, body, editedAt)
	})
}

// ApplyRemoteDelete mirrors DeleteLocal: the entry is tombstoned no
// matter who sent the Delete, keeping the thread below intact.
func (es *EntryService) ApplyRemoteDelete(activityURI string, id, byActorId uuid.UUID) error {
	unlock := es.s.LockRef(domain.NewRef(domain.RefEntry, id))
	defer unlock()

	if _, err := es.GetByID(id); err != nil {
		return err
	}
	return es.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.TombstoneEntryTx(tx, id, byActorId, time.Now())
	})
}

func (es *EntryService) ApplyRemotePin(activityURI string, id uuid.UUID, pinned bool) error {
	unlock := es.s.LockRef(domain.NewRef(domain.RefEntry, id))
	defer unlock()

	if _, err := es.GetByID(id); err != nil {
		return err
	}
	return es.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.SetEntryPinnedTx(tx, id, pinned)
	})
}
