package activitypub

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/domain"
)

// Builder constructs outbound activities. Identifiers are minted under
// the instance domain unless the caller already owns one (Follow, Like
// and Block keep the URI their database row carries so Undo can point
// back at it).
type Builder struct {
	Domain string
}

func NewBuilder(instanceDomain string) *Builder {
	return &Builder{Domain: instanceDomain}
}

func (b *Builder) mint() string {
	return fmt.Sprintf("https://%s/activities/%s", b.Domain, uuid.New())
}

func (b *Builder) base(t ActivityType, actor *domain.Actor, to, cc []string) *Activity {
	now := time.Now().UTC()
	return &Activity{
		Id:        b.mint(),
		Type:      t,
		Actor:     actor.ActorURI,
		To:        to,
		Cc:        cc,
		Published: &now,
	}
}

// Create wraps a freshly authored object. The object inherits the
// activity's addressing when it carries none of its own.
func (b *Builder) Create(actor *domain.Actor, obj *Object, to, cc []string) *Activity {
	if len(obj.To) == 0 {
		obj.To = to
	}
	if len(obj.Cc) == 0 {
		obj.Cc = cc
	}
	a := b.base(TypeCreate, actor, to, cc)
	a.Object = obj
	return a
}

func (b *Builder) Update(actor *domain.Actor, obj *Object, to, cc []string) *Activity {
	now := time.Now().UTC()
	if obj.Updated == nil {
		obj.Updated = &now
	}
	a := b.base(TypeUpdate, actor, to, cc)
	a.Object = obj
	return a
}

// Delete carries a Tombstone for soft deletes. The caller picks the
// acting identity: the author for self-deletes, the magazine's Group
// actor for moderator removals, which also decides the addressing.
func (b *Builder) Delete(actor *domain.Actor, objectURI, formerType string, to, cc []string) *Activity {
	now := time.Now().UTC()
	a := b.base(TypeDelete, actor, to, cc)
	a.Object = &Object{
		Id:         objectURI,
		Type:       ObjectTombstone,
		FormerType: formerType,
		Deleted:    &now,
	}
	return a
}

// Undo wraps a previously sent activity. The inner document keeps its
// original id so the receiving side can find what to reverse.
func (b *Builder) Undo(actor *domain.Actor, inner *Activity, to, cc []string) *Activity {
	inner.Context = nil
	a := b.base(TypeUndo, actor, to, cc)
	a.Object = inner
	return a
}

// Announce relays an activity to the announcing actor's followers,
// typically a magazine boosting a Create into its subscriber base. Only
// one level of nesting is ever produced.
func (b *Builder) Announce(actor *domain.Actor, inner *Activity, to, cc []string) (*Activity, error) {
	if inner.InnerActivity() != nil {
		return nil, fmt.Errorf("%w: refusing to announce a nested activity", ErrMalformedActivity)
	}
	inner.Context = nil
	a := b.base(TypeAnnounce, actor, to, cc)
	a.Object = inner
	return a, nil
}

// Follow asks to subscribe to a target actor. activityURI is the
// identifier the subscription row already carries.
func (b *Builder) Follow(actor *domain.Actor, targetActorURI, activityURI string) *Activity {
	if activityURI == "" {
		activityURI = b.mint()
	}
	now := time.Now().UTC()
	return &Activity{
		Id:        activityURI,
		Type:      TypeFollow,
		Actor:     actor.ActorURI,
		Object:    targetActorURI,
		To:        []string{targetActorURI},
		Published: &now,
	}
}

// Accept approves a Follow aimed at the accepting actor. Accepting on
// someone else's behalf is refused.
func (b *Builder) Accept(actor *domain.Actor, follow *Activity) (*Activity, error) {
	if follow.Type != TypeFollow {
		return nil, fmt.Errorf("%w: can only accept a Follow, got %s", ErrMalformedActivity, follow.Type)
	}
	if follow.ObjectURI() != actor.ActorURI {
		return nil, fmt.Errorf("cannot accept a follow aimed at %s on behalf of %s",
			follow.ObjectURI(), actor.ActorURI)
	}
	follow.Context = nil
	a := b.base(TypeAccept, actor, []string{follow.Actor}, nil)
	a.Object = follow
	return a, nil
}

func (b *Builder) Reject(actor *domain.Actor, follow *Activity) (*Activity, error) {
	if follow.Type != TypeFollow {
		return nil, fmt.Errorf("%w: can only reject a Follow, got %s", ErrMalformedActivity, follow.Type)
	}
	if follow.ObjectURI() != actor.ActorURI {
		return nil, fmt.Errorf("cannot reject a follow aimed at %s on behalf of %s",
			follow.ObjectURI(), actor.ActorURI)
	}
	follow.Context = nil
	a := b.base(TypeReject, actor, []string{follow.Actor}, nil)
	a.Object = follow
	return a, nil
}

// Like favorites an object. activityURI is the vote row's identifier.
func (b *Builder) Like(actor *domain.Actor, objectURI, activityURI string, to []string) *Activity {
	if activityURI == "" {
		activityURI = b.mint()
	}
	now := time.Now().UTC()
	return &Activity{
		Id:        activityURI,
		Type:      TypeLike,
		Actor:     actor.ActorURI,
		Object:    objectURI,
		To:        to,
		Published: &now,
	}
}

// Block bans an actor from the issuing actor's scope: a Group actor bans
// from its magazine, the instance Service actor bans instance-wide.
// activityURI is the ban row's identifier.
func (b *Builder) Block(actor *domain.Actor, blockedActorURI, activityURI, reason string) *Activity {
	if activityURI == "" {
		activityURI = b.mint()
	}
	now := time.Now().UTC()
	return &Activity{
		Id:        activityURI,
		Type:      TypeBlock,
		Actor:     actor.ActorURI,
		Object:    blockedActorURI,
		Summary:   reason,
		To:        []string{blockedActorURI},
		Published: &now,
	}
}

// Lock closes a thread for new replies; reversed with Undo(Lock).
func (b *Builder) Lock(actor *domain.Actor, objectURI string, to, cc []string) *Activity {
	a := b.base(TypeLock, actor, to, cc)
	a.Object = objectURI
	return a
}

// Add places an object into a target collection: an entry into a
// magazine's pinned collection, or an actor into its moderators
// collection.
func (b *Builder) Add(actor *domain.Actor, objectURI, targetURI string, to, cc []string) *Activity {
	a := b.base(TypeAdd, actor, to, cc)
	a.Object = objectURI
	a.Target = targetURI
	return a
}

func (b *Builder) Remove(actor *domain.Actor, objectURI, targetURI string, to, cc []string) *Activity {
	a := b.base(TypeRemove, actor, to, cc)
	a.Object = objectURI
	a.Target = targetURI
	return a
}

// Flag reports an object to the instance responsible for it. Flags are
// addressed to that inbox alone and never carry the public collection.
func (b *Builder) Flag(actor *domain.Actor, objectURI, reason string, to []string) *Activity {
	now := time.Now().UTC()
	return &Activity{
		Id:        b.mint(),
		Type:      TypeFlag,
		Actor:     actor.ActorURI,
		Object:    objectURI,
		Summary:   reason,
		To:        to,
		Published: &now,
	}
}
