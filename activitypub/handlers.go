package activitypub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
)

// HandlerFunc applies one verified inbound activity on behalf of the
// given remote actor.
type HandlerFunc func(ctx context.Context, remote *domain.Actor, a *Activity) error

// Registry routes verified activities to their type handler. Types with
// no handler are acknowledged and dropped, never retried.
type Registry struct {
	handlers map[ActivityType]HandlerFunc
}

func (r *Registry) Register(t ActivityType, h HandlerFunc) {
	r.handlers[t] = h
}

func (r *Registry) Handle(ctx context.Context, remote *domain.Actor, a *Activity) error {
	h, ok := r.handlers[a.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, a.Type)
	}
	return h(ctx, remote, a)
}

// Handlers binds the registry to the domain services.
type Handlers struct {
	services  *service.Services
	directory *Directory
	outbox    *Outbox
	builder   *Builder
}

func NewRegistry(services *service.Services, directory *Directory, outbox *Outbox, builder *Builder) *Registry {
	h := &Handlers{services: services, directory: directory, outbox: outbox, builder: builder}
	r := &Registry{handlers: make(map[ActivityType]HandlerFunc)}
	r.Register(TypeCreate, h.handleCreate)
	r.Register(TypeUpdate, h.handleUpdate)
	r.Register(TypeDelete, h.handleDelete)
	r.Register(TypeUndo, h.handleUndo)
	r.Register(TypeAnnounce, h.handleAnnounce)
	r.Register(TypeFollow, h.handleFollow)
	r.Register(TypeAccept, h.handleAccept)
	r.Register(TypeReject, h.handleReject)
	r.Register(TypeLike, h.handleLike)
	r.Register(TypeBlock, h.handleBlock)
	r.Register(TypeLock, h.handleLock)
	r.Register(TypeAdd, h.handleAdd)
	r.Register(TypeRemove, h.handleRemove)
	r.Register(TypeFlag, h.handleFlag)
	return r
}

// subject is a local content row found by object URI, with enough
// context to answer permission questions.
type subject struct {
	ref        domain.Ref
	authorId   uuid.UUID
	magazineId *uuid.UUID
}

// findSubject resolves an object URI against entries, posts and
// comments. service.ErrNotFound means the object is not (yet) known.
func (h *Handlers) findSubject(objectURI string) (*subject, error) {
	if e, err := h.services.Entries.GetByObjectURI(objectURI); err == nil {
		return &subject{ref: e.Ref(), authorId: e.AuthorId, magazineId: &e.MagazineId}, nil
	} else if !errors.Is(err, service.ErrNotFound) {
		return nil, err
	}
	if p, err := h.services.Posts.GetByObjectURI(objectURI); err == nil {
		return &subject{ref: p.Ref(), authorId: p.AuthorId}, nil
	} else if !errors.Is(err, service.ErrNotFound) {
		return nil, err
	}
	if c, err := h.services.Comments.GetByObjectURI(objectURI); err == nil {
		s := &subject{ref: c.Ref(), authorId: c.AuthorId}
		if c.SubjectKind == domain.SubjectEntry {
			if e, err := h.services.Entries.GetByID(c.SubjectId); err == nil {
				s.magazineId = &e.MagazineId
			}
		}
		return s, nil
	} else if !errors.Is(err, service.ErrNotFound) {
		return nil, err
	}
	return nil, service.ErrNotFound
}

// canModerate reports whether the remote actor may moderate the subject:
// it is the magazine's own Group actor, or on the moderator list.
func (h *Handlers) canModerate(sub *subject, remote *domain.Actor) (bool, error) {
	if sub.magazineId == nil {
		return false, nil
	}
	mag, err := h.services.Magazines.GetByID(*sub.magazineId)
	if err != nil {
		return false, err
	}
	if mag.ActorId == remote.Id {
		return true, nil
	}
	return h.services.DB().IsModerator(mag.Id, remote.Id)
}

func visibilityOf(to, cc []string) domain.Visibility {
	for _, uri := range to {
		if uri == domain.PublicCollection {
			return domain.VisibilityPublic
		}
	}
	for _, uri := range cc {
		if uri == domain.PublicCollection {
			return domain.VisibilityUnlisted
		}
	}
	return domain.VisibilityPrivate
}

// handleCreate materializes remote content: Pages become entries, Notes
// become posts or comments depending on inReplyTo.
func (h *Handlers) handleCreate(ctx context.Context, remote *domain.Actor, a *Activity) error {
	obj := a.InnerObject()
	if obj == nil || obj.Id == "" {
		return fmt.Errorf("%w: Create without an embedded object", ErrMalformedActivity)
	}
	if obj.AttributedTo != "" && obj.AttributedTo != a.Actor {
		return fmt.Errorf("%w: object attributed to someone else", service.ErrPermissionDenied)
	}

	created := time.Now()
	if obj.Published != nil {
		created = *obj.Published
	}
	vis := visibilityOf(append(a.To, obj.To...), append(a.Cc, obj.Cc...))

	switch obj.Type {
	case ObjectPage:
		if obj.Audience == "" {
			return fmt.Errorf("%w: Page without a magazine audience", ErrMalformedActivity)
		}
		magActor, err := h.directory.GetOrFetch(ctx, obj.Audience)
		if err != nil {
			return err
		}
		mag, err := h.services.Magazines.GetByActorId(magActor.Id)
		if err != nil {
			return err
		}
		banned, err := h.services.Magazines.IsBanned(remote.Id, &mag.Id)
		if err != nil {
			return err
		}
		if banned {
			return fmt.Errorf("%w: author banned in magazine %s", service.ErrPermissionDenied, mag.Name)
		}
		return h.services.Entries.ApplyRemoteCreate(a.Id, &domain.Entry{
			Id: uuid.New(), MagazineId: mag.Id, AuthorId: remote.Id,
			Title: obj.Name, URL: obj.URL, Body: obj.Content,
			ObjectURI: obj.Id, Visibility: vis, CreatedAt: created,
		})

	case ObjectNote:
		if obj.InReplyTo == "" {
			return h.services.Posts.ApplyRemoteCreate(a.Id, &domain.Post{
				Id: uuid.New(), AuthorId: remote.Id, Body: obj.Content,
				ObjectURI: obj.Id, Visibility: vis, CreatedAt: created,
			})
		}
		// A reply threads under an entry, a post, or another comment.
		// An unknown parent usually means its Create is still in
		// flight, so the reply is deferred rather than dropped.
		c := &domain.Comment{
			Id: uuid.New(), AuthorId: remote.Id, Body: obj.Content,
			ObjectURI: obj.Id, Visibility: vis, CreatedAt: created,
		}
		parent, err := h.findSubject(obj.InReplyTo)
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("%w: reply parent %s unknown", ErrDeferred, obj.InReplyTo)
		}
		if err != nil {
			return err
		}
		switch parent.ref.Kind {
		case domain.RefEntry:
			c.SubjectKind, c.SubjectId = domain.SubjectEntry, parent.ref.Id
		case domain.RefPost:
			c.SubjectKind, c.SubjectId = domain.SubjectPost, parent.ref.Id
		case domain.RefComment:
			pc, err := h.services.Comments.GetByID(parent.ref.Id)
			if err != nil {
				return err
			}
			c.SubjectKind, c.SubjectId = pc.SubjectKind, pc.SubjectId
			c.ParentId = &pc.Id
		}
		return h.services.Comments.ApplyRemoteCreate(a.Id, c)

	default:
		log.Debug("Ignoring Create with unsupported object type", "type", obj.Type, "activity", a.Id)
		return nil
	}
}

// handleUpdate covers both content edits and actor profile refreshes.
func (h *Handlers) handleUpdate(ctx context.Context, remote *domain.Actor, a *Activity) error {
	obj := a.InnerObject()
	if obj == nil {
		// Update with a bare actor URI: refresh the shadow record.
		if a.ObjectURI() == a.Actor {
			_, err := h.directory.Refresh(ctx, a.Actor)
			return err
		}
		return fmt.Errorf("%w: Update without an embedded object", ErrMalformedActivity)
	}

	switch domain.ActorType(obj.Type) {
	case domain.ActorPerson, domain.ActorGroup, domain.ActorService:
		if obj.Id != a.Actor {
			return fmt.Errorf("%w: actor update for someone else", service.ErrPermissionDenied)
		}
		_, err := h.directory.Refresh(ctx, obj.Id)
		return err
	}

	sub, err := h.findSubject(obj.Id)
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Errorf("%w: update target %s unknown", ErrDeferred, obj.Id)
	}
	if err != nil {
		return err
	}
	// Edits are author-only; moderators remove, they do not rewrite.
	if sub.authorId != remote.Id {
		return fmt.Errorf("%w: update by non-author", service.ErrPermissionDenied)
	}

	editedAt := time.Now()
	if obj.Updated != nil {
		editedAt = *obj.Updated
	}
	switch sub.ref.Kind {
	case domain.RefEntry:
		return h.services.Entries.ApplyRemoteEdit(a.Id, sub.ref.Id, obj.Name, obj.URL, obj.Content, editedAt)
	case domain.RefPost:
		return h.services.Posts.ApplyRemoteEdit(a.Id, sub.ref.Id, obj.Content, editedAt)
	case domain.RefComment:
		return h.services.Comments.ApplyRemoteEdit(a.Id, sub.ref.Id, obj.Content, editedAt)
	}
	return nil
}

// handleDelete tombstones content, or drops a remote actor's shadow
// when they delete themselves. Deletes for unknown objects are
// acknowledged and dropped.
func (h *Handlers) handleDelete(ctx context.Context, remote *domain.Actor, a *Activity) error {
	objectURI := a.ObjectURI()
	if objectURI == "" {
		return fmt.Errorf("%w: Delete without an object", ErrMalformedActivity)
	}

	if objectURI == a.Actor {
		return h.services.Users.ApplyRemoteActorDelete(objectURI)
	}

	sub, err := h.findSubject(objectURI)
	if errors.Is(err, service.ErrNotFound) {
		log.Debug("Delete for unknown object", "object", objectURI)
		return nil
	}
	if err != nil {
		return err
	}

	asModerator := sub.authorId != remote.Id
	if asModerator {
		ok, err := h.canModerate(sub, remote)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: delete by neither author nor moderator", service.ErrPermissionDenied)
		}
	}

	switch sub.ref.Kind {
	case domain.RefEntry:
		return h.services.Entries.ApplyRemoteDelete(a.Id, sub.ref.Id, remote.Id)
	case domain.RefPost:
		return h.services.Posts.ApplyRemoteDelete(a.Id, sub.ref.Id, remote.Id)
	case domain.RefComment:
		return h.services.Comments.ApplyRemoteDelete(a.Id, sub.ref.Id, remote.Id)
	}
	return nil
}

// handleUndo reverses a prior Follow, Like, Block or Lock. When the
// original has not arrived yet the Undo is deferred, keeping the pair
// commutative under reordering.
func (h *Handlers) handleUndo(ctx context.Context, remote *domain.Actor, a *Activity) error {
	inner := a.InnerActivity()
	if inner != nil {
		if inner.Actor != "" && inner.Actor != a.Actor {
			return fmt.Errorf("%w: undo of someone else's activity", service.ErrPermissionDenied)
		}
		return h.undoByKind(remote, a, inner.Type, inner)
	}

	// URI-only object: infer the kind from what the URI created locally.
	uri := a.ObjectURI()
	if uri == "" {
		return fmt.Errorf("%w: Undo without an object", ErrMalformedActivity)
	}
	database := h.services.DB()
	if err, sub := database.ReadSubscriptionByURI(uri); err == nil && sub != nil {
		return h.undoByKind(remote, a, TypeFollow, &Activity{Id: uri})
	}
	if err, v := database.ReadVoteByURI(uri); err == nil && v != nil {
		return h.undoByKind(remote, a, TypeLike, &Activity{Id: uri})
	}
	if err, b := database.ReadBanByURI(uri); err == nil && b != nil {
		return h.undoByKind(remote, a, TypeBlock, &Activity{Id: uri})
	}
	return fmt.Errorf("%w: undo target %s unknown", ErrDeferred, uri)
}

func (h *Handlers) undoByKind(remote *domain.Actor, undo *Activity, kind ActivityType, inner *Activity) error {
	switch kind {
	case TypeFollow:
		err := h.services.Users.ApplyRemoteFollowUndo(undo.Id, inner.Id)
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("%w: follow %s not applied yet", ErrDeferred, inner.Id)
		}
		return err
	case TypeLike:
		err := h.services.Votes.ApplyRemoteVoteRetraction(undo.Id, inner.Id)
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("%w: like %s not applied yet", ErrDeferred, inner.Id)
		}
		return err
	case TypeBlock:
		err := h.services.Magazines.ApplyRemoteBanLift(undo.Id, inner.Id)
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("%w: block %s not applied yet", ErrDeferred, inner.Id)
		}
		return err
	case TypeLock:
		sub, err := h.findSubject(inner.ObjectURI())
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("%w: lock target unknown", ErrDeferred)
		}
		if err != nil {
			return err
		}
		ok, err := h.canModerate(sub, remote)
		if err != nil {
			return err
		}
		if !ok && sub.authorId != remote.Id {
			return fmt.Errorf("%w: unlock by neither author nor moderator", service.ErrPermissionDenied)
		}
		return h.services.Comments.ApplyRemoteLock(undo.Id, sub.ref, remote.Id, false)
	default:
		log.Debug("Ignoring Undo of unsupported type", "type", kind, "activity", undo.Id)
		return nil
	}
}

// handleAnnounce unwraps a relay one level and re-dispatches the inner
// activity under its own actor. Announced bare URIs are ignored.
func (h *Handlers) handleAnnounce(ctx context.Context, remote *domain.Actor, a *Activity) error {
	inner := a.InnerActivity()
	if inner == nil {
		log.Debug("Ignoring Announce without an embedded activity", "activity", a.Id)
		return nil
	}
	if inner.InnerActivity() != nil {
		return fmt.Errorf("%w: announce nested deeper than one level", ErrMalformedActivity)
	}

	innerActor, err := h.directory.GetOrFetch(ctx, inner.Actor)
	if err != nil {
		return err
	}
	err = h.Handle(ctx, innerActor, inner)
	if errors.Is(err, db.ErrAlreadyProcessed) {
		// The original reached us directly before the relay did.
		return nil
	}
	return err
}

// Handle lets handlers re-enter the registry for unwrapped relays. The
// Handlers value and its Registry are built together in NewRegistry.
func (h *Handlers) Handle(ctx context.Context, remote *domain.Actor, a *Activity) error {
	switch a.Type {
	case TypeCreate:
		return h.handleCreate(ctx, remote, a)
	case TypeUpdate:
		return h.handleUpdate(ctx, remote, a)
	case TypeDelete:
		return h.handleDelete(ctx, remote, a)
	case TypeLike:
		return h.handleLike(ctx, remote, a)
	case TypeUndo:
		return h.handleUndo(ctx, remote, a)
	default:
		log.Debug("Ignoring announced activity of unsupported type", "type", a.Type)
		return nil
	}
}

// handleFollow records the subscription and answers with Accept, or
// Reject when the follower is banned in the target's scope.
func (h *Handlers) handleFollow(ctx context.Context, remote *domain.Actor, a *Activity) error {
	target, err := h.services.Users.GetByURI(a.ObjectURI())
	if err != nil || !target.IsLocal {
		log.Debug("Follow for unknown or non-local target", "target", a.ObjectURI())
		return nil
	}

	var magazineId *uuid.UUID
	if target.Type == domain.ActorGroup {
		if mag, err := h.services.Magazines.GetByActorId(target.Id); err == nil {
			magazineId = &mag.Id
		}
	}
	banned, err := h.services.Magazines.IsBanned(remote.Id, magazineId)
	if err != nil {
		return err
	}

	if banned {
		reject, err := h.builder.Reject(target, &Activity{Id: a.Id, Type: TypeFollow, Actor: a.Actor, Object: a.ObjectURI()})
		if err != nil {
			return err
		}
		if err := h.outbox.SendDirect(reject, target, remote.InboxURI); err != nil {
			return err
		}
		return fmt.Errorf("%w: follower banned in scope", service.ErrPermissionDenied)
	}

	applyErr := h.services.Users.ApplyRemoteFollow(a.Id, remote.Id, target.Id, true)
	if applyErr != nil && !errors.Is(applyErr, db.ErrAlreadyProcessed) {
		return applyErr
	}

	// Accept goes out even for duplicates; the first one may have been
	// lost on the wire.
	accept, err := h.builder.Accept(target, &Activity{Id: a.Id, Type: TypeFollow, Actor: a.Actor, Object: a.ObjectURI()})
	if err != nil {
		return err
	}
	if err := h.outbox.SendDirect(accept, target, remote.InboxURI); err != nil {
		return err
	}
	return applyErr
}

// handleAccept approves our pending outbound Follow.
func (h *Handlers) handleAccept(ctx context.Context, remote *domain.Actor, a *Activity) error {
	followURI := h.referencedFollowURI(a)
	if followURI == "" {
		return fmt.Errorf("%w: Accept without a follow reference", ErrMalformedActivity)
	}
	err := h.services.Users.ApproveSubscription(followURI)
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Errorf("%w: accepted follow %s unknown", ErrDeferred, followURI)
	}
	return err
}

// handleReject drops our pending outbound Follow.
func (h *Handlers) handleReject(ctx context.Context, remote *domain.Actor, a *Activity) error {
	followURI := h.referencedFollowURI(a)
	if followURI == "" {
		return fmt.Errorf("%w: Reject without a follow reference", ErrMalformedActivity)
	}
	err := h.services.Users.RejectSubscription(followURI)
	if errors.Is(err, service.ErrNotFound) {
		log.Debug("Reject for unknown follow", "follow", followURI)
		return nil
	}
	return err
}

func (h *Handlers) referencedFollowURI(a *Activity) string {
	if inner := h.innerFollow(a); inner != nil {
		return inner.Id
	}
	if uri, ok := a.Object.(string); ok {
		return uri
	}
	return ""
}

func (h *Handlers) innerFollow(a *Activity) *Activity {
	inner := a.InnerActivity()
	if inner != nil && inner.Type == TypeFollow {
		return inner
	}
	return nil
}

// handleLike counts a favorite. Likes racing ahead of their content are
// deferred.
func (h *Handlers) handleLike(ctx context.Context, remote *domain.Actor, a *Activity) error {
	sub, err := h.findSubject(a.ObjectURI())
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Errorf("%w: liked object %s unknown", ErrDeferred, a.ObjectURI())
	}
	if err != nil {
		return err
	}
	err = h.services.Votes.ApplyRemoteVote(a.Id, remote.Id, sub.ref)
	if errors.Is(err, service.ErrConflict) {
		// Second Like by the same actor through a different URI; the
		// count stays at one.
		log.Debug("Duplicate vote suppressed", "actor", remote.ActorURI, "subject", sub.ref.Key())
		return nil
	}
	return err
}

// handleBlock records a ban issued by a remote magazine's Group actor
// against one of our users. Person-to-person blocks carry no moderation
// weight here and are ignored.
func (h *Handlers) handleBlock(ctx context.Context, remote *domain.Actor, a *Activity) error {
	if remote.Type != domain.ActorGroup && remote.Type != domain.ActorService {
		log.Debug("Ignoring Block from non-moderating actor", "actor", remote.ActorURI)
		return nil
	}

	blocked, err := h.directory.GetOrFetch(ctx, a.ObjectURI())
	if err != nil {
		return err
	}

	ban := &domain.Ban{
		BannedActorId: blocked.Id,
		IssuedById:    remote.Id,
		Reason:        a.Summary,
	}
	if remote.Type == domain.ActorGroup {
		mag, err := h.services.Magazines.GetByActorId(remote.Id)
		if errors.Is(err, service.ErrNotFound) {
			// A magazine nobody here subscribes to; nothing to scope
			// the ban against.
			log.Debug("Block from unknown magazine", "actor", remote.ActorURI)
			return nil
		}
		if err != nil {
			return err
		}
		ban.MagazineId = &mag.Id
	}
	return h.services.Magazines.ApplyRemoteBan(a.Id, ban)
}

// handleLock closes a thread on a moderator's or the author's say-so.
func (h *Handlers) handleLock(ctx context.Context, remote *domain.Actor, a *Activity) error {
	sub, err := h.findSubject(a.ObjectURI())
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Errorf("%w: lock target %s unknown", ErrDeferred, a.ObjectURI())
	}
	if err != nil {
		return err
	}
	ok, err := h.canModerate(sub, remote)
	if err != nil {
		return err
	}
	if !ok && sub.authorId != remote.Id {
		return fmt.Errorf("%w: lock by neither author nor moderator", service.ErrPermissionDenied)
	}
	return h.services.Comments.ApplyRemoteLock(a.Id, sub.ref, remote.Id, true)
}

// handleAdd pins an entry or appoints a moderator, depending on the
// target collection.
func (h *Handlers) handleAdd(ctx context.Context, remote *domain.Actor, a *Activity) error {
	return h.handleCollectionChange(ctx, remote, a, true)
}

// handleRemove is the inverse of handleAdd.
func (h *Handlers) handleRemove(ctx context.Context, remote *domain.Actor, a *Activity) error {
	return h.handleCollectionChange(ctx, remote, a, false)
}

func (h *Handlers) handleCollectionChange(ctx context.Context, remote *domain.Actor, a *Activity, add bool) error {
	groupURI, collection, ok := splitCollectionTarget(a.Target)
	if !ok {
		log.Debug("Ignoring Add/Remove with unrecognized target", "target", a.Target)
		return nil
	}

	groupActor, err := h.services.Users.GetByURI(groupURI)
	if err != nil {
		return fmt.Errorf("%w: collection owner %s unknown", ErrDeferred, groupURI)
	}
	mag, err := h.services.Magazines.GetByActorId(groupActor.Id)
	if err != nil {
		return err
	}
	// Only the magazine's own Group actor or a listed moderator may
	// touch its collections.
	allowed := mag.ActorId == remote.Id
	if !allowed {
		allowed, err = h.services.DB().IsModerator(mag.Id, remote.Id)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return fmt.Errorf("%w: collection change by non-moderator", service.ErrPermissionDenied)
	}

	switch collection {
	case "pinned":
		e, err := h.services.Entries.GetByObjectURI(a.ObjectURI())
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("%w: pinned entry %s unknown", ErrDeferred, a.ObjectURI())
		}
		if err != nil {
			return err
		}
		return h.services.Entries.ApplyRemotePin(a.Id, e.Id, add)
	case "moderators":
		modActor, err := h.directory.GetOrFetch(ctx, a.ObjectURI())
		if err != nil {
			return err
		}
		if add {
			return h.services.Magazines.ApplyRemoteModeratorAdd(a.Id, mag.Id, modActor.Id, remote.Id)
		}
		return h.services.Magazines.ApplyRemoteModeratorRemove(a.Id, mag.Id, modActor.Id)
	default:
		log.Debug("Ignoring Add/Remove for unsupported collection", "collection", collection)
		return nil
	}
}

// splitCollectionTarget splits ".../m/name/pinned" into the owning actor
// URI and the collection name.
func splitCollectionTarget(target string) (ownerURI, collection string, ok bool) {
	idx := strings.LastIndex(target, "/")
	if idx <= 0 || idx == len(target)-1 {
		return "", "", false
	}
	return target[:idx], target[idx+1:], true
}

// handleFlag files a remote report against local content. Flags for
// unknown objects are dropped, not deferred; there is nothing to
// moderate.
func (h *Handlers) handleFlag(ctx context.Context, remote *domain.Actor, a *Activity) error {
	sub, err := h.findSubject(a.ObjectURI())
	if errors.Is(err, service.ErrNotFound) {
		log.Debug("Flag for unknown object", "object", a.ObjectURI())
		return nil
	}
	if err != nil {
		return err
	}
	return h.services.Reports.ApplyRemoteFlag(a.Id, remote.Id, sub.ref, a.Summary)
}
