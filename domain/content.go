package domain

import (
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Magazine is a community. Every magazine owns a Group actor row that does
// the federating; the magazine row holds the content-platform metadata.
type Magazine struct {
	Id          uuid.UUID
	ActorId     uuid.UUID // the Group actor
	OwnerId     uuid.UUID
	Name        string
	Title       string
	Description string
	IsPrivate   bool
	CreatedAt   time.Time
}

// Entry is a link or article posted to a magazine.
type Entry struct {
	Id         uuid.UUID
	MagazineId uuid.UUID
	AuthorId   uuid.UUID
	Title      string
	URL        string
	Body       string
	ObjectURI  string
	Visibility Visibility
	IsPinned   bool
	CreatedAt  time.Time
	EditedAt   *time.Time
	DeletedAt  *time.Time
	DeletedBy  *uuid.UUID
}

func (e *Entry) IsDeleted() bool { return e.DeletedAt != nil }

func (e *Entry) Ref() Ref { return NewRef(RefEntry, e.Id) }

// Post is a standalone microblog post by a user, outside any magazine.
type Post struct {
	Id         uuid.UUID
	AuthorId   uuid.UUID
	Body       string
	ObjectURI  string
	Visibility Visibility
	CreatedAt  time.Time
	EditedAt   *time.Time
	DeletedAt  *time.Time
	DeletedBy  *uuid.UUID
}

func (p *Post) IsDeleted() bool { return p.DeletedAt != nil }

func (p *Post) Ref() Ref { return NewRef(RefPost, p.Id) }

type SubjectKind string

const (
	SubjectEntry SubjectKind = "entry"
	SubjectPost  SubjectKind = "post"
)

func (k SubjectKind) RefKind() RefKind {
	if k == SubjectPost {
		return RefPost
	}
	return RefEntry
}

// Comment threads under an entry or a post.
type Comment struct {
	Id          uuid.UUID
	AuthorId    uuid.UUID
	SubjectKind SubjectKind
	SubjectId   uuid.UUID
	ParentId    *uuid.UUID
	Body        string
	ObjectURI   string
	Visibility  Visibility
	CreatedAt   time.Time
	EditedAt    *time.Time
	DeletedAt   *time.Time
	DeletedBy   *uuid.UUID
}

func (c *Comment) IsDeleted() bool { return c.DeletedAt != nil }

func (c *Comment) Ref() Ref { return NewRef(RefComment, c.Id) }
