package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ban scopes a banned actor to one magazine, or to the whole instance when
// MagazineId is nil. Bans created from a remote Block keep the Block's
// activity URI so a matching Undo can find them.
type Ban struct {
	Id            uuid.UUID
	BannedActorId uuid.UUID
	IssuedById    uuid.UUID
	MagazineId    *uuid.UUID // nil = instance-wide
	Reason        string
	ActivityURI   string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

func (b *Ban) InstanceWide() bool { return b.MagazineId == nil }

type ReportStatus string

const (
	ReportOpen     ReportStatus = "open"
	ReportResolved ReportStatus = "resolved"
	ReportRejected ReportStatus = "rejected"
)

// Report is a user-filed complaint about a piece of content. Remote Flag
// activities land here.
type Report struct {
	Id          uuid.UUID
	ReporterId  uuid.UUID
	Subject     Ref
	Reason      string
	Status      ReportStatus
	ActivityURI string
	CreatedAt   time.Time
}

// Moderator assigns an actor to a magazine's moderator list.
type Moderator struct {
	Id         uuid.UUID
	MagazineId uuid.UUID
	ActorId    uuid.UUID
	AddedById  uuid.UUID
	CreatedAt  time.Time
}

// Lock marks a thread closed for new comments. Either the author or a
// moderator toggles it.
type Lock struct {
	Id         uuid.UUID
	Subject    Ref
	LockedById uuid.UUID
	Locked     bool
	CreatedAt  time.Time
}
