package service

import (
	"github.com/google/uuid"
	"github.com/grovesocial/grove/domain"
)

// Event is the closed set of domain events the engine can federate.
type Event interface {
	EventName() string
}

type EntryCreated struct{ Entry *domain.Entry }
type EntryEdited struct{ Entry *domain.Entry }
type EntryDeleted struct {
	Entry       *domain.Entry
	ActorId     uuid.UUID
	AsModerator bool
}
type EntryPinToggled struct {
	Entry  *domain.Entry
	Pinned bool
}

type PostCreated struct{ Post *domain.Post }
type PostEdited struct{ Post *domain.Post }
type PostDeleted struct {
	Post    *domain.Post
	ActorId uuid.UUID
}

type CommentCreated struct{ Comment *domain.Comment }
type CommentEdited struct{ Comment *domain.Comment }
type CommentDeleted struct {
	Comment     *domain.Comment
	ActorId     uuid.UUID
	AsModerator bool
}

type VoteCast struct{ Vote *domain.Vote }
type VoteRetracted struct{ Vote *domain.Vote }

type SubscriptionRequested struct{ Subscription *domain.Subscription }
type SubscriptionCanceled struct{ Subscription *domain.Subscription }

type BanIssued struct{ Ban *domain.Ban }
type BanLifted struct{ Ban *domain.Ban }

type ReportFiled struct{ Report *domain.Report }

type ThreadLockToggled struct{ Lock *domain.Lock }

type ModeratorAdded struct{ Moderator *domain.Moderator }
type ModeratorRemoved struct{ Moderator *domain.Moderator }

func (EntryCreated) EventName() string          { return "entry.created" }
func (EntryEdited) EventName() string           { return "entry.edited" }
func (EntryDeleted) EventName() string          { return "entry.deleted" }
func (EntryPinToggled) EventName() string       { return "entry.pin_toggled" }
func (PostCreated) EventName() string           { return "post.created" }
func (PostEdited) EventName() string            { return "post.edited" }
func (PostDeleted) EventName() string           { return "post.deleted" }
func (CommentCreated) EventName() string        { return "comment.created" }
func (CommentEdited) EventName() string         { return "comment.edited" }
func (CommentDeleted) EventName() string        { return "comment.deleted" }
func (VoteCast) EventName() string              { return "vote.cast" }
func (VoteRetracted) EventName() string         { return "vote.retracted" }
func (SubscriptionRequested) EventName() string { return "subscription.requested" }
func (SubscriptionCanceled) EventName() string  { return "subscription.canceled" }
func (BanIssued) EventName() string             { return "ban.issued" }
func (BanLifted) EventName() string             { return "ban.lifted" }
func (ReportFiled) EventName() string           { return "report.filed" }
func (ThreadLockToggled) EventName() string     { return "thread.lock_toggled" }
func (ModeratorAdded) EventName() string        { return "moderator.added" }
func (ModeratorRemoved) EventName() string      { return "moderator.removed" }
