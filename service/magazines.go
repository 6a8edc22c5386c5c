package service

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/util"
)

type MagazineService struct {
	s *Services
}

func (ms *MagazineService) GetByID(id uuid.UUID) (*domain.Magazine, error) {
	err, m := ms.s.db.ReadMagazineById(id)
	return m, mapReadErr(err)
}

func (ms *MagazineService) GetByName(name string) (*domain.Magazine, error) {
	err, m := ms.s.db.ReadMagazineByName(name)
	return m, mapReadErr(err)
}

// GetByActorId resolves the magazine a Group actor fronts.
func (ms *MagazineService) GetByActorId(actorId uuid.UUID) (*domain.Magazine, error) {
	err, m := ms.s.db.ReadMagazineByActorId(actorId)
	return m, mapReadErr(err)
}

// CreateLocal creates a magazine together with its Group actor. The owner
// becomes the first moderator.
func (ms *MagazineService) CreateLocal(name, title, description string, ownerId uuid.UUID, isPrivate bool) (*domain.Magazine, error) {
	keys := util.GeneratePemKeypair()

	now := time.Now()
	base := fmt.Sprintf("https://%s/m/%s", ms.s.domain, name)
	actor := &domain.Actor{
		Id:            uuid.New(),
		Type:          domain.ActorGroup,
		Username:      name,
		ActorURI:      base,
		DisplayName:   title,
		Summary:       description,
		InboxURI:      base + "/inbox",
		SharedInboxURI: fmt.Sprintf("https://%s/inbox", ms.s.domain),
		OutboxURI:     base + "/outbox",
		FollowersURI:  base + "/followers",
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		IsLocal:       true,
		LastFetchedAt: now,
		CreatedAt:     now,
	}
	if err := ms.s.db.CreateActor(actor); err != nil {
		return nil, err
	}

	m := &domain.Magazine{
		Id: uuid.New(), ActorId: actor.Id, OwnerId: ownerId,
		Name: name, Title: title, Description: description,
		IsPrivate: isPrivate, CreatedAt: now,
	}
	if err := ms.s.db.CreateMagazine(m); err != nil {
		return nil, err
	}

	err := ms.s.db.CreateModerator(&domain.Moderator{
		Id: uuid.New(), MagazineId: m.Id, ActorId: ownerId,
		AddedById: ownerId, CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CanModerate reports whether an actor is the magazine owner or on its
// moderator list.
func (ms *MagazineService) CanModerate(magazineId, actorId uuid.UUID) (bool, error) {
	m, err := ms.GetByID(magazineId)
	if err != nil {
		return false, err
	}
	if m.OwnerId == actorId {
		return true, nil
	}
	return ms.s.db.IsModerator(magazineId, actorId)
}

// isLocal reports whether the magazine's Group actor lives on this
// instance. Moderation of remote magazines is not ours to decide.
func (ms *MagazineService) isLocal(m *domain.Magazine) (bool, error) {
	actor, err := ms.s.Users.GetByID(m.ActorId)
	if err != nil {
		return false, err
	}
	return actor.IsLocal, nil
}

func (ms *MagazineService) AddModerator(magazineId, actorId, byActorId uuid.UUID) error {
	m, err := ms.GetByID(magazineId)
	if err != nil {
		return err
	}
	local, err := ms.isLocal(m)
	if err != nil {
		return err
	}
	if !local {
		return ErrPermissionDenied
	}
	ok, err := ms.CanModerate(magazineId, byActorId)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}

	mod := &domain.Moderator{
		Id: uuid.New(), MagazineId: magazineId, ActorId: actorId,
		AddedById: byActorId, CreatedAt: time.Now(),
	}
	if err := ms.s.db.CreateModerator(mod); err != nil {
		return err
	}
	return ms.s.publish(ModeratorAdded{Moderator: mod})
}

func (ms *MagazineService) RemoveModerator(magazineId, actorId, byActorId uuid.UUID) error {
	m, err := ms.GetByID(magazineId)
	if err != nil {
		return err
	}
	local, err := ms.isLocal(m)
	if err != nil {
		return err
	}
	if !local {
		return ErrPermissionDenied
	}
	if m.OwnerId != byActorId {
		return ErrPermissionDenied
	}

	err = ms.s.db.InTx(func(tx *sql.Tx) error {
		return db.DeleteModeratorTx(tx, magazineId, actorId)
	})
	if err != nil {
		return err
	}
	return ms.s.publish(ModeratorRemoved{Moderator: &domain.Moderator{
		MagazineId: magazineId, ActorId: actorId, AddedById: byActorId,
	}})
}

func (ms *MagazineService) ApplyRemoteModeratorAdd(activityURI string, magazineId, actorId, byActorId uuid.UUID) error {
	return ms.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertModeratorTx(tx, &domain.Moderator{
			Id: uuid.New(), MagazineId: magazineId, ActorId: actorId,
			AddedById: byActorId, CreatedAt: time.Now(),
		})
	})
}

func (ms *MagazineService) ApplyRemoteModeratorRemove(activityURI string, magazineId, actorId uuid.UUID) error {
	return ms.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.DeleteModeratorTx(tx, magazineId, actorId)
	})
}

// IsBanned checks the magazine scope (when given) and the instance-wide
// scope; either suffices.
func (ms *MagazineService) IsBanned(actorId uuid.UUID, magazineId *uuid.UUID) (bool, error) {
	if magazineId != nil {
		err, b := ms.s.db.ReadBanScoped(actorId, magazineId)
		if err != nil && err != sql.ErrNoRows {
			return false, err
		}
		if b != nil && (b.ExpiresAt == nil || b.ExpiresAt.After(time.Now())) {
			return true, nil
		}
	}
	err, b := ms.s.db.ReadBanScoped(actorId, nil)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return b != nil && (b.ExpiresAt == nil || b.ExpiresAt.After(time.Now())), nil
}

// IssueBan bans an actor from a magazine, or instance-wide when magazineId
// is nil (owner-of-instance operations go through the Service actor).
func (ms *MagazineService) IssueBan(bannedActorId, byActorId uuid.UUID, magazineId *uuid.UUID, reason string, expiresAt *time.Time) (*domain.Ban, error) {
	if magazineId != nil {
		ok, err := ms.CanModerate(*magazineId, byActorId)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrPermissionDenied
		}
	}

	b := &domain.Ban{
		Id: uuid.New(), BannedActorId: bannedActorId, IssuedById: byActorId,
		MagazineId: magazineId, Reason: reason,
		ActivityURI: ms.s.mintActivityURI(),
		CreatedAt:   time.Now(), ExpiresAt: expiresAt,
	}
	if err := ms.s.db.CreateBan(b); err != nil {
		return nil, err
	}
	return b, ms.s.publish(BanIssued{Ban: b})
}

// LiftBan removes a ban by its Block activity URI.
func (ms *MagazineService) LiftBan(activityURI string, byActorId uuid.UUID) error {
	err, b := ms.s.db.ReadBanByURI(activityURI)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if b.MagazineId != nil {
		ok, err := ms.CanModerate(*b.MagazineId, byActorId)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}
	}

	err = ms.s.db.InTx(func(tx *sql.Tx) error {
		return db.DeleteBanByURITx(tx, activityURI)
	})
	if err != nil {
		return err
	}
	return ms.s.publish(BanLifted{Ban: b})
}

func (ms *MagazineService) ApplyRemoteBan(activityURI string, b *domain.Ban) error {
	if b.Id == uuid.Nil {
		b.Id = uuid.New()
	}
	b.ActivityURI = activityURI
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	return ms.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertBanTx(tx, b)
	})
}

// ApplyRemoteBanLift removes the ban the given Block URI created. Returns
// ErrNotFound when the Block has not arrived yet, so the caller can defer.
func (ms *MagazineService) ApplyRemoteBanLift(activityURI, blockURI string) error {
	err, _ := ms.s.db.ReadBanByURI(blockURI)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ms.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.DeleteBanByURITx(tx, blockURI)
	})
}

// Moderators lists the magazine's moderator assignments.
func (ms *MagazineService) Moderators(magazineId uuid.UUID) ([]domain.Moderator, error) {
	err, mods := ms.s.db.ReadModerators(magazineId)
	if err != nil {
		return nil, err
	}
	return *mods, nil
}
