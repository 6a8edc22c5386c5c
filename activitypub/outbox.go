package activitypub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/util"
)

// Outbox turns a finished activity into per-inbox delivery queue rows.
// Audience URIs are resolved to concrete inboxes here, once, so the
// delivery worker only ever sees HTTP targets.
type Outbox struct {
	db        *db.DB
	directory *Directory
	conf      *util.FederationConfig
}

func NewOutbox(database *db.DB, directory *Directory, conf *util.FederationConfig) *Outbox {
	return &Outbox{db: database, directory: directory, conf: conf}
}

// Send serializes the activity, fans its audience out to inboxes and
// enqueues one delivery per destination. Local recipients are skipped;
// their copy is already in the database. Recipients that fail to resolve
// are queued by actor URI and resolved by the delivery worker, so a peer
// being down at publish time costs a retry, not the delivery.
func (o *Outbox) Send(ctx context.Context, a *Activity, sender *domain.Actor) error {
	payload, err := Serialize(a)
	if err != nil {
		return err
	}

	inboxes, pending, err := o.ResolveTargets(ctx, a)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, inbox := range inboxes {
		item := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			InboxURI:     inbox,
			ActivityJSON: string(payload),
			KeyOwnerId:   sender.Id,
			NextRetryAt:  now,
			CreatedAt:    now,
		}
		if err := o.db.EnqueueDelivery(item); err != nil {
			return err
		}
	}
	for _, uri := range pending {
		item := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			RecipientURI: uri,
			ActivityJSON: string(payload),
			KeyOwnerId:   sender.Id,
			NextRetryAt:  now,
			CreatedAt:    now,
		}
		if err := o.db.EnqueueDelivery(item); err != nil {
			return err
		}
	}

	if err := o.db.CreateActivityRecord(&domain.ActivityRecord{
		Id: uuid.New(), ActivityURI: a.Id, ActivityType: string(a.Type),
		ActorURI: a.Actor, ObjectURI: a.ObjectURI(), RawJSON: string(payload),
		Local: true, CreatedAt: now,
	}); err != nil {
		log.Warn("Failed to log outbound activity", "activity", a.Id, "err", err)
	}

	log.Info("Queued outbound activity", "type", a.Type, "activity", a.Id,
		"inboxes", len(inboxes), "pending", len(pending))
	return nil
}

// ResolveTargets expands the activity's audience into a deduplicated
// list of remote inbox URIs. Follower collections of local actors expand
// to their subscribers; remote actor URIs resolve through the directory;
// the public collection contributes no inbox of its own. Actor URIs that
// fail to resolve come back in the second list: a fetch timeout means
// the peer is unreachable right now, not that the actor does not exist.
func (o *Outbox) ResolveTargets(ctx context.Context, a *Activity) (inboxes, pending []string, err error) {
	seen := make(map[string]bool)
	add := func(inbox string) {
		if inbox != "" && !seen[inbox] {
			seen[inbox] = true
			inboxes = append(inboxes, inbox)
		}
	}

	for _, uri := range a.Recipients() {
		if uri == domain.PublicCollection {
			continue
		}

		if followedURI, ok := strings.CutSuffix(uri, "/followers"); ok {
			if err, owner := o.db.ReadActorByURI(followedURI); err == nil && owner != nil && owner.IsLocal {
				if err, subs := o.db.ReadSubscriberActors(owner.Id); err == nil {
					for _, sub := range *subs {
						if !sub.IsLocal {
							add(sub.BestInbox(o.conf.PreferSharedInbox))
						}
					}
				}
				continue
			}
			// A remote followers collection is not ours to expand; the
			// owning instance fans out after our delivery to the actor.
			continue
		}

		actor, err := o.directory.GetOrFetch(ctx, uri)
		if err != nil {
			if actorDomain, derr := extractDomain(uri); derr != nil || !o.conf.DomainAllowed(actorDomain) {
				log.Debug("Dropping recipient on disallowed domain", "uri", uri)
				continue
			}
			log.Info("Recipient unresolvable, deferring to delivery worker", "uri", uri, "err", err)
			if !seen[uri] {
				seen[uri] = true
				pending = append(pending, uri)
			}
			continue
		}
		if actor.IsLocal {
			continue
		}
		add(actor.BestInbox(o.conf.PreferSharedInbox))
	}

	if len(inboxes) == 0 && len(pending) == 0 {
		log.Debug("Activity resolved to no remote inboxes", "activity", a.Id)
	}
	return inboxes, pending, nil
}

// SendDirect enqueues a delivery to one explicit inbox, bypassing
// audience resolution. Used for Accept/Reject handshakes.
func (o *Outbox) SendDirect(a *Activity, sender *domain.Actor, inboxURI string) error {
	payload, err := Serialize(a)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := o.db.EnqueueDelivery(&domain.DeliveryQueueItem{
		Id: uuid.New(), InboxURI: inboxURI, ActivityJSON: string(payload),
		KeyOwnerId: sender.Id, NextRetryAt: now, CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("enqueue direct delivery: %w", err)
	}
	return nil
}
