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

// UserService covers actors of every type plus the follower graph. Remote
// actor rows are written by the directory, read here.
type UserService struct {
	s *Services
}

func (us *UserService) GetByID(id uuid.UUID) (*domain.Actor, error) {
	err, a := us.s.db.ReadActorById(id)
	return a, mapReadErr(err)
}

func (us *UserService) GetByURI(uri string) (*domain.Actor, error) {
	err, a := us.s.db.ReadActorByURI(uri)
	return a, mapReadErr(err)
}

// GetLocalByUsername finds a local actor; local actors carry an empty
// domain column.
func (us *UserService) GetLocalByUsername(username string) (*domain.Actor, error) {
	err, a := us.s.db.ReadActorByHandle(username, "")
	return a, mapReadErr(err)
}

func (us *UserService) GetByHandle(username, actorDomain string) (*domain.Actor, error) {
	if actorDomain == us.s.domain {
		actorDomain = ""
	}
	err, a := us.s.db.ReadActorByHandle(username, actorDomain)
	return a, mapReadErr(err)
}

// CreateLocal registers a local Person actor with a fresh keypair.
func (us *UserService) CreateLocal(username, displayName string) (*domain.Actor, error) {
	keys := util.GeneratePemKeypair()
	now := time.Now()
	base := fmt.Sprintf("https://%s/u/%s", us.s.domain, username)
	a := &domain.Actor{
		Id:            uuid.New(),
		Type:          domain.ActorPerson,
		Username:      username,
		ActorURI:      base,
		DisplayName:   displayName,
		InboxURI:      base + "/inbox",
		SharedInboxURI: fmt.Sprintf("https://%s/inbox", us.s.domain),
		OutboxURI:     base + "/outbox",
		FollowersURI:  base + "/followers",
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		IsLocal:       true,
		LastFetchedAt: now,
		CreatedAt:     now,
	}
	if err := us.s.db.CreateActor(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Subscribers returns the approved followers of an actor.
func (us *UserService) Subscribers(targetActorId uuid.UUID) ([]domain.Actor, error) {
	err, actors := us.s.db.ReadSubscriberActors(targetActorId)
	if err != nil {
		return nil, err
	}
	return *actors, nil
}

// Follow subscribes a local actor to a target. Local targets approve
// immediately; remote targets stay pending until their Accept arrives.
func (us *UserService) Follow(followerActorId, targetActorId uuid.UUID) (*domain.Subscription, error) {
	err, existing := us.s.db.ReadSubscription(followerActorId, targetActorId)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	target, err := us.GetByID(targetActorId)
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		Id:            uuid.New(),
		ActorId:       followerActorId,
		TargetActorId: targetActorId,
		ActivityURI:   us.s.mintActivityURI(),
		Approved:      target.IsLocal,
		CreatedAt:     time.Now(),
	}
	if err := us.s.db.CreateSubscription(sub); err != nil {
		return nil, err
	}
	if !target.IsLocal {
		return sub, us.s.publish(SubscriptionRequested{Subscription: sub})
	}
	return sub, nil
}

// Unfollow removes the subscription and federates the retraction when the
// target is remote.
func (us *UserService) Unfollow(followerActorId, targetActorId uuid.UUID) error {
	err, sub := us.s.db.ReadSubscription(followerActorId, targetActorId)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	err = us.s.db.InTx(func(tx *sql.Tx) error {
		return db.DeleteSubscriptionTx(tx, followerActorId, targetActorId)
	})
	if err != nil {
		return err
	}

	target, err := us.GetByID(targetActorId)
	if err != nil {
		return err
	}
	if !target.IsLocal {
		return us.s.publish(SubscriptionCanceled{Subscription: sub})
	}
	return nil
}

// ApproveSubscription marks a pending outbound Follow approved, keyed by
// the Follow's activity URI. Called when the remote Accept arrives.
func (us *UserService) ApproveSubscription(followURI string) error {
	err, sub := us.s.db.ReadSubscriptionByURI(followURI)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if sub.Approved {
		return nil
	}
	return us.s.db.ApproveSubscriptionByURI(followURI)
}

// RejectSubscription drops a pending outbound Follow the remote side
// refused.
func (us *UserService) RejectSubscription(followURI string) error {
	err, _ := us.s.db.ReadSubscriptionByURI(followURI)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return us.s.db.InTx(func(tx *sql.Tx) error {
		return db.DeleteSubscriptionByURITx(tx, followURI)
	})
}

// ApplyRemoteFollow records an inbound Follow. Approved is decided by the
// caller: magazines and users on this instance auto-accept unless the
// follower is banned in scope.
func (us *UserService) ApplyRemoteFollow(activityURI string, followerActorId, targetActorId uuid.UUID, approved bool) error {
	err, existing := us.s.db.ReadSubscription(followerActorId, targetActorId)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if existing != nil {
		return db.ErrAlreadyProcessed
	}
	return us.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertSubscriptionTx(tx, &domain.Subscription{
			Id: uuid.New(), ActorId: followerActorId, TargetActorId: targetActorId,
			ActivityURI: activityURI, Approved: approved, CreatedAt: time.Now(),
		})
	})
}

// ApplyRemoteFollowUndo removes the subscription the given Follow URI
// created. ErrNotFound signals the Follow has not been applied yet.
func (us *UserService) ApplyRemoteFollowUndo(activityURI, followURI string) error {
	err, _ := us.s.db.ReadSubscriptionByURI(followURI)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return us.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.DeleteSubscriptionByURITx(tx, followURI)
	})
}

// ApplyRemoteActorDelete drops the shadow record of a remote actor that
// deleted itself.
func (us *UserService) ApplyRemoteActorDelete(actorURI string) error {
	a, err := us.GetByURI(actorURI)
	if err != nil {
		return err
	}
	if a.IsLocal {
		return ErrPermissionDenied
	}
	return us.s.db.DeleteActor(a.Id)
}
