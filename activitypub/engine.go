package activitypub

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
	"github.com/grovesocial/grove/util"
)

// Engine is the federation façade: it implements service.Publisher for
// the outbound direction and owns the inbox pipeline for the inbound
// one. Construct it after the services, then hand it back to them with
// SetPublisher.
type Engine struct {
	conf      *util.AppConfig
	services  *service.Services
	directory *Directory
	builder   *Builder
	outbox    *Outbox
	inbox     *Inbox
	deliverer *Deliverer
}

func NewEngine(conf *util.AppConfig, database *db.DB, services *service.Services) *Engine {
	directory := NewDirectory(database, &conf.Conf.Federation)
	builder := NewBuilder(conf.Conf.Domain)
	outbox := NewOutbox(database, directory, &conf.Conf.Federation)
	registry := NewRegistry(services, directory, outbox, builder)
	return &Engine{
		conf:      conf,
		services:  services,
		directory: directory,
		builder:   builder,
		outbox:    outbox,
		inbox:     NewInbox(database, directory, registry, &conf.Conf.Federation),
		deliverer: NewDeliverer(database, directory, &conf.Conf.Federation),
	}
}

// Start launches the delivery and inbox workers.
func (e *Engine) Start(ctx context.Context) {
	if !e.conf.Conf.Federation.Enabled {
		log.Info("Federation disabled, workers not started")
		return
	}
	e.deliverer.Start(ctx)
	e.inbox.Start(ctx)
}

// Inbox exposes the envelope intake to the HTTP layer.
func (e *Engine) Inbox() *Inbox { return e.inbox }

// Directory exposes actor resolution to the HTTP layer.
func (e *Engine) Directory() *Directory { return e.directory }

// Publish translates a domain event into activities and queues their
// delivery. Implements service.Publisher. Audience resolution runs under
// a deadline; recipients it cannot reach in time are handed to the
// delivery worker instead of blocking the local mutation.
func (e *Engine) Publish(ev service.Event) error {
	if !e.conf.Conf.Federation.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch ev := ev.(type) {
	case service.EntryCreated:
		return e.publishEntry(ctx, TypeCreate, ev.Entry)
	case service.EntryEdited:
		return e.publishEntry(ctx, TypeUpdate, ev.Entry)
	case service.EntryDeleted:
		return e.publishEntryDelete(ctx, ev)
	case service.EntryPinToggled:
		return e.publishPinToggle(ctx, ev)
	case service.PostCreated:
		return e.publishPost(ctx, TypeCreate, ev.Post)
	case service.PostEdited:
		return e.publishPost(ctx, TypeUpdate, ev.Post)
	case service.PostDeleted:
		return e.publishPostDelete(ctx, ev)
	case service.CommentCreated:
		return e.publishComment(ctx, TypeCreate, ev.Comment)
	case service.CommentEdited:
		return e.publishComment(ctx, TypeUpdate, ev.Comment)
	case service.CommentDeleted:
		return e.publishCommentDelete(ctx, ev)
	case service.VoteCast:
		return e.publishVote(ctx, ev.Vote)
	case service.VoteRetracted:
		return e.publishVoteRetraction(ctx, ev.Vote)
	case service.SubscriptionRequested:
		return e.publishFollow(ctx, ev.Subscription)
	case service.SubscriptionCanceled:
		return e.publishFollowUndo(ctx, ev.Subscription)
	case service.BanIssued:
		return e.publishBan(ctx, ev.Ban)
	case service.BanLifted:
		return e.publishBanLift(ctx, ev.Ban)
	case service.ReportFiled:
		return e.publishReport(ctx, ev.Report)
	case service.ThreadLockToggled:
		return e.publishLockToggle(ctx, ev.Lock)
	case service.ModeratorAdded:
		return e.publishModeratorChange(ctx, ev.Moderator, true)
	case service.ModeratorRemoved:
		return e.publishModeratorChange(ctx, ev.Moderator, false)
	default:
		log.Debug("No federation mapping for event", "event", ev.EventName())
		return nil
	}
}

func (e *Engine) entryObject(entry *domain.Entry, magActor *domain.Actor, author *domain.Actor) *Object {
	return &Object{
		Id:           entry.ObjectURI,
		Type:         ObjectPage,
		AttributedTo: author.ActorURI,
		Audience:     magActor.ActorURI,
		Name:         entry.Title,
		URL:          entry.URL,
		Content:      entry.Body,
		Published:    &entry.CreatedAt,
		Updated:      entry.EditedAt,
	}
}

// publishEntry sends the author's Create or Update and, when the
// magazine lives here, the magazine's Announce so subscribers on other
// instances receive the boost.
func (e *Engine) publishEntry(ctx context.Context, t ActivityType, entry *domain.Entry) error {
	author, err := e.services.Users.GetByID(entry.AuthorId)
	if err != nil {
		return err
	}
	mag, err := e.services.Magazines.GetByID(entry.MagazineId)
	if err != nil {
		return err
	}
	magActor, err := e.services.Users.GetByID(mag.ActorId)
	if err != nil {
		return err
	}
	to, cc, err := e.services.Entries.Audience(entry)
	if err != nil {
		return err
	}

	obj := e.entryObject(entry, magActor, author)
	var a *Activity
	if t == TypeUpdate {
		a = e.builder.Update(author, obj, to, cc)
	} else {
		a = e.builder.Create(author, obj, to, cc)
	}
	if err := e.outbox.Send(ctx, a, author); err != nil {
		return err
	}

	if magActor.IsLocal && !mag.IsPrivate {
		boost, err := e.builder.Announce(magActor, a,
			[]string{domain.PublicCollection}, []string{magActor.FollowersURI})
		if err != nil {
			return err
		}
		return e.outbox.Send(ctx, boost, magActor)
	}
	return nil
}

// publishEntryDelete addresses the Delete to the entry's original
// audience. Moderator removals speak as the magazine's Group actor and
// additionally reach its followers; self-deletes speak as the author
// and go no further than the entry did.
func (e *Engine) publishEntryDelete(ctx context.Context, ev service.EntryDeleted) error {
	mag, err := e.services.Magazines.GetByID(ev.Entry.MagazineId)
	if err != nil {
		return err
	}
	magActor, err := e.services.Users.GetByID(mag.ActorId)
	if err != nil {
		return err
	}
	to, cc, err := e.services.Entries.Audience(ev.Entry)
	if err != nil {
		return err
	}

	var sender *domain.Actor
	if ev.AsModerator {
		sender = magActor
		cc = appendUnique(cc, to, magActor.ActorURI, magActor.FollowersURI)
	} else {
		sender, err = e.services.Users.GetByID(ev.Entry.AuthorId)
		if err != nil {
			return err
		}
	}
	a := e.builder.Delete(sender, ev.Entry.ObjectURI, ObjectPage, to, cc)
	return e.outbox.Send(ctx, a, sender)
}

// appendUnique adds uris to cc, skipping anything already addressed in
// to or cc.
func appendUnique(cc, to []string, uris ...string) []string {
	seen := make(map[string]bool, len(to)+len(cc))
	for _, uri := range to {
		seen[uri] = true
	}
	for _, uri := range cc {
		seen[uri] = true
	}
	for _, uri := range uris {
		if !seen[uri] {
			cc = append(cc, uri)
			seen[uri] = true
		}
	}
	return cc
}

func (e *Engine) publishPinToggle(ctx context.Context, ev service.EntryPinToggled) error {
	mag, err := e.services.Magazines.GetByID(ev.Entry.MagazineId)
	if err != nil {
		return err
	}
	magActor, err := e.services.Users.GetByID(mag.ActorId)
	if err != nil {
		return err
	}
	to := []string{domain.PublicCollection}
	cc := []string{magActor.FollowersURI}
	target := magActor.ActorURI + "/pinned"

	var a *Activity
	if ev.Pinned {
		a = e.builder.Add(magActor, ev.Entry.ObjectURI, target, to, cc)
	} else {
		a = e.builder.Remove(magActor, ev.Entry.ObjectURI, target, to, cc)
	}
	return e.outbox.Send(ctx, a, magActor)
}

func (e *Engine) publishPost(ctx context.Context, t ActivityType, post *domain.Post) error {
	author, err := e.services.Users.GetByID(post.AuthorId)
	if err != nil {
		return err
	}
	to, cc, err := e.services.Posts.Audience(post)
	if err != nil {
		return err
	}
	obj := &Object{
		Id:           post.ObjectURI,
		Type:         ObjectNote,
		AttributedTo: author.ActorURI,
		Content:      post.Body,
		Published:    &post.CreatedAt,
		Updated:      post.EditedAt,
	}
	var a *Activity
	if t == TypeUpdate {
		a = e.builder.Update(author, obj, to, cc)
	} else {
		a = e.builder.Create(author, obj, to, cc)
	}
	return e.outbox.Send(ctx, a, author)
}

func (e *Engine) publishPostDelete(ctx context.Context, ev service.PostDeleted) error {
	author, err := e.services.Users.GetByID(ev.Post.AuthorId)
	if err != nil {
		return err
	}
	to, cc, err := e.services.Posts.Audience(ev.Post)
	if err != nil {
		return err
	}
	a := e.builder.Delete(author, ev.Post.ObjectURI, ObjectNote, to, cc)
	return e.outbox.Send(ctx, a, author)
}

// inReplyTo resolves the URI a comment answers: its parent comment, or
// the entry/post that roots the thread.
func (e *Engine) inReplyTo(c *domain.Comment) (string, error) {
	if c.ParentId != nil {
		parent, err := e.services.Comments.GetByID(*c.ParentId)
		if err != nil {
			return "", err
		}
		return parent.ObjectURI, nil
	}
	switch c.SubjectKind {
	case domain.SubjectEntry:
		entry, err := e.services.Entries.GetByID(c.SubjectId)
		if err != nil {
			return "", err
		}
		return entry.ObjectURI, nil
	default:
		post, err := e.services.Posts.GetByID(c.SubjectId)
		if err != nil {
			return "", err
		}
		return post.ObjectURI, nil
	}
}

func (e *Engine) publishComment(ctx context.Context, t ActivityType, c *domain.Comment) error {
	author, err := e.services.Users.GetByID(c.AuthorId)
	if err != nil {
		return err
	}
	to, cc, err := e.services.Comments.Audience(c)
	if err != nil {
		return err
	}
	parentURI, err := e.inReplyTo(c)
	if err != nil {
		return err
	}
	obj := &Object{
		Id:           c.ObjectURI,
		Type:         ObjectNote,
		AttributedTo: author.ActorURI,
		InReplyTo:    parentURI,
		Content:      c.Body,
		Published:    &c.CreatedAt,
		Updated:      c.EditedAt,
	}
	var a *Activity
	if t == TypeUpdate {
		a = e.builder.Update(author, obj, to, cc)
	} else {
		a = e.builder.Create(author, obj, to, cc)
	}
	return e.outbox.Send(ctx, a, author)
}

func (e *Engine) publishCommentDelete(ctx context.Context, ev service.CommentDeleted) error {
	sender, err := e.services.Users.GetByID(ev.ActorId)
	if err != nil {
		return err
	}
	to, cc, err := e.services.Comments.Audience(ev.Comment)
	if err != nil {
		return err
	}
	if ev.AsModerator && ev.Comment.SubjectKind == domain.SubjectEntry {
		// Moderator removals speak with the magazine's voice and also
		// reach its followers.
		if entry, err := e.services.Entries.GetByID(ev.Comment.SubjectId); err == nil {
			if mag, err := e.services.Magazines.GetByID(entry.MagazineId); err == nil {
				if magActor, err := e.services.Users.GetByID(mag.ActorId); err == nil && magActor.IsLocal {
					sender = magActor
					cc = appendUnique(cc, to, magActor.ActorURI, magActor.FollowersURI)
				}
			}
		}
	}
	a := e.builder.Delete(sender, ev.Comment.ObjectURI, ObjectNote, to, cc)
	return e.outbox.Send(ctx, a, sender)
}

// publishVote likes the content at its author's instance; the magazine
// actor is cc'd so subscriber counts converge.
func (e *Engine) publishVote(ctx context.Context, v *domain.Vote) error {
	voter, err := e.services.Users.GetByID(v.ActorId)
	if err != nil {
		return err
	}
	objectURI, recipients, err := e.voteTargets(v)
	if err != nil {
		return err
	}
	a := e.builder.Like(voter, objectURI, v.ActivityURI, recipients)
	return e.outbox.Send(ctx, a, voter)
}

func (e *Engine) publishVoteRetraction(ctx context.Context, v *domain.Vote) error {
	voter, err := e.services.Users.GetByID(v.ActorId)
	if err != nil {
		return err
	}
	objectURI, recipients, err := e.voteTargets(v)
	if err != nil {
		return err
	}
	like := e.builder.Like(voter, objectURI, v.ActivityURI, recipients)
	a := e.builder.Undo(voter, like, recipients, nil)
	return e.outbox.Send(ctx, a, voter)
}

// voteTargets resolves the voted object's URI and who should hear about
// the vote: the content's author, plus the magazine actor for entries.
func (e *Engine) voteTargets(v *domain.Vote) (string, []string, error) {
	var objectURI string
	var authorId uuid.UUID
	var magazineId *uuid.UUID

	switch v.Subject.Kind {
	case domain.RefEntry:
		entry, err := e.services.Entries.GetByID(v.Subject.Id)
		if err != nil {
			return "", nil, err
		}
		objectURI, authorId, magazineId = entry.ObjectURI, entry.AuthorId, &entry.MagazineId
	case domain.RefPost:
		post, err := e.services.Posts.GetByID(v.Subject.Id)
		if err != nil {
			return "", nil, err
		}
		objectURI, authorId = post.ObjectURI, post.AuthorId
	case domain.RefComment:
		comment, err := e.services.Comments.GetByID(v.Subject.Id)
		if err != nil {
			return "", nil, err
		}
		objectURI, authorId = comment.ObjectURI, comment.AuthorId
	default:
		return "", nil, fmt.Errorf("vote on unsupported subject %s", v.Subject.Kind)
	}

	author, err := e.services.Users.GetByID(authorId)
	if err != nil {
		return "", nil, err
	}
	recipients := []string{author.ActorURI}
	if magazineId != nil {
		if mag, err := e.services.Magazines.GetByID(*magazineId); err == nil {
			if magActor, err := e.services.Users.GetByID(mag.ActorId); err == nil {
				recipients = append(recipients, magActor.ActorURI)
			}
		}
	}
	return objectURI, recipients, nil
}

func (e *Engine) publishFollow(ctx context.Context, sub *domain.Subscription) error {
	follower, err := e.services.Users.GetByID(sub.ActorId)
	if err != nil {
		return err
	}
	target, err := e.services.Users.GetByID(sub.TargetActorId)
	if err != nil {
		return err
	}
	a := e.builder.Follow(follower, target.ActorURI, sub.ActivityURI)
	return e.outbox.SendDirect(a, follower, target.InboxURI)
}

func (e *Engine) publishFollowUndo(ctx context.Context, sub *domain.Subscription) error {
	follower, err := e.services.Users.GetByID(sub.ActorId)
	if err != nil {
		return err
	}
	target, err := e.services.Users.GetByID(sub.TargetActorId)
	if err != nil {
		return err
	}
	follow := e.builder.Follow(follower, target.ActorURI, sub.ActivityURI)
	a := e.builder.Undo(follower, follow, []string{target.ActorURI}, nil)
	return e.outbox.SendDirect(a, follower, target.InboxURI)
}

// publishBan speaks as the magazine's Group actor for scoped bans, and
// as the issuing moderator for instance-wide ones.
func (e *Engine) publishBan(ctx context.Context, ban *domain.Ban) error {
	sender, blocked, err := e.banParties(ban)
	if err != nil {
		return err
	}
	if !sender.IsLocal || blocked.IsLocal {
		return nil
	}
	a := e.builder.Block(sender, blocked.ActorURI, ban.ActivityURI, ban.Reason)
	return e.outbox.SendDirect(a, sender, blocked.InboxURI)
}

func (e *Engine) publishBanLift(ctx context.Context, ban *domain.Ban) error {
	sender, blocked, err := e.banParties(ban)
	if err != nil {
		return err
	}
	if !sender.IsLocal || blocked.IsLocal {
		return nil
	}
	block := e.builder.Block(sender, blocked.ActorURI, ban.ActivityURI, ban.Reason)
	a := e.builder.Undo(sender, block, []string{blocked.ActorURI}, nil)
	return e.outbox.SendDirect(a, sender, blocked.InboxURI)
}

func (e *Engine) banParties(ban *domain.Ban) (sender, blocked *domain.Actor, err error) {
	blocked, err = e.services.Users.GetByID(ban.BannedActorId)
	if err != nil {
		return nil, nil, err
	}
	if ban.MagazineId != nil {
		mag, err := e.services.Magazines.GetByID(*ban.MagazineId)
		if err != nil {
			return nil, nil, err
		}
		sender, err = e.services.Users.GetByID(mag.ActorId)
		if err != nil {
			return nil, nil, err
		}
		return sender, blocked, nil
	}
	sender, err = e.services.Users.GetByID(ban.IssuedById)
	if err != nil {
		return nil, nil, err
	}
	return sender, blocked, nil
}

// publishReport flags remote content at the instance responsible for it.
// Reports about local content have no remote audience.
func (e *Engine) publishReport(ctx context.Context, r *domain.Report) error {
	reporter, err := e.services.Users.GetByID(r.ReporterId)
	if err != nil {
		return err
	}
	v := domain.Vote{Subject: r.Subject}
	objectURI, _, err := e.voteTargets(&v)
	if err != nil {
		return err
	}

	var authorId uuid.UUID
	switch r.Subject.Kind {
	case domain.RefEntry:
		entry, err := e.services.Entries.GetByID(r.Subject.Id)
		if err != nil {
			return err
		}
		authorId = entry.AuthorId
	case domain.RefPost:
		post, err := e.services.Posts.GetByID(r.Subject.Id)
		if err != nil {
			return err
		}
		authorId = post.AuthorId
	case domain.RefComment:
		comment, err := e.services.Comments.GetByID(r.Subject.Id)
		if err != nil {
			return err
		}
		authorId = comment.AuthorId
	default:
		return nil
	}
	author, err := e.services.Users.GetByID(authorId)
	if err != nil {
		return err
	}
	if author.IsLocal {
		return nil
	}

	a := e.builder.Flag(reporter, objectURI, r.Reason, []string{author.ActorURI})
	return e.outbox.SendDirect(a, reporter, author.BestInbox(false))
}

func (e *Engine) publishLockToggle(ctx context.Context, l *domain.Lock) error {
	locker, err := e.services.Users.GetByID(l.LockedById)
	if err != nil {
		return err
	}

	var objectURI string
	var to, cc []string
	switch l.Subject.Kind {
	case domain.RefEntry:
		entry, err := e.services.Entries.GetByID(l.Subject.Id)
		if err != nil {
			return err
		}
		objectURI = entry.ObjectURI
		to, cc, err = e.services.Entries.Audience(entry)
		if err != nil {
			return err
		}
	case domain.RefPost:
		post, err := e.services.Posts.GetByID(l.Subject.Id)
		if err != nil {
			return err
		}
		objectURI = post.ObjectURI
		to, cc, err = e.services.Posts.Audience(post)
		if err != nil {
			return err
		}
	default:
		return nil
	}

	lock := e.builder.Lock(locker, objectURI, to, cc)
	if l.Locked {
		return e.outbox.Send(ctx, lock, locker)
	}
	a := e.builder.Undo(locker, lock, to, cc)
	return e.outbox.Send(ctx, a, locker)
}

func (e *Engine) publishModeratorChange(ctx context.Context, mod *domain.Moderator, added bool) error {
	mag, err := e.services.Magazines.GetByID(mod.MagazineId)
	if err != nil {
		return err
	}
	magActor, err := e.services.Users.GetByID(mag.ActorId)
	if err != nil {
		return err
	}
	modActor, err := e.services.Users.GetByID(mod.ActorId)
	if err != nil {
		return err
	}

	to := []string{domain.PublicCollection}
	cc := []string{magActor.FollowersURI}
	target := magActor.ActorURI + "/moderators"

	var a *Activity
	if added {
		a = e.builder.Add(magActor, modActor.ActorURI, target, to, cc)
	} else {
		a = e.builder.Remove(magActor, modActor.ActorURI, target, to, cc)
	}
	return e.outbox.Send(ctx, a, magActor)
}
