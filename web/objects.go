package web

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
)

// ErrNotPublic marks content that exists but is not served to
// unauthenticated fetchers.
var ErrNotPublic = errors.New("object is not publicly dereferenceable")

// objectDoc renders an entry, post or comment as an ActivityPub object.
// Deleted content renders as a Tombstone.
type objectDoc struct {
	Context      string     `json:"@context"`
	Id           string     `json:"id"`
	Type         string     `json:"type"`
	AttributedTo string     `json:"attributedTo,omitempty"`
	InReplyTo    string     `json:"inReplyTo,omitempty"`
	Audience     string     `json:"audience,omitempty"`
	Name         string     `json:"name,omitempty"`
	Content      string     `json:"content,omitempty"`
	URL          string     `json:"url,omitempty"`
	To           []string   `json:"to,omitempty"`
	Cc           []string   `json:"cc,omitempty"`
	Published    *time.Time `json:"published,omitempty"`
	Updated      *time.Time `json:"updated,omitempty"`
	Deleted      *time.Time `json:"deleted,omitempty"`
	FormerType   string     `json:"formerType,omitempty"`
}

const streamsContext = "https://www.w3.org/ns/activitystreams"

func marshalDoc(doc *objectDoc) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func tombstoneDoc(objectURI, formerType string, deletedAt *time.Time) (string, error) {
	return marshalDoc(&objectDoc{
		Context:    streamsContext,
		Id:         objectURI,
		Type:       "Tombstone",
		FormerType: formerType,
		Deleted:    deletedAt,
	})
}

// GetEntryObject renders an entry as a Page. The second return is true
// when the entry is deleted and the doc is a Tombstone (serve 410).
func GetEntryObject(id uuid.UUID, services *service.Services) (string, bool, error) {
	entry, err := services.Entries.GetByID(id)
	if err != nil {
		return "", false, err
	}
	if entry.IsDeleted() {
		doc, err := tombstoneDoc(entry.ObjectURI, "Page", entry.DeletedAt)
		return doc, true, err
	}
	if entry.Visibility == domain.VisibilityPrivate {
		return "", false, ErrNotPublic
	}

	author, err := services.Users.GetByID(entry.AuthorId)
	if err != nil {
		return "", false, err
	}
	mag, err := services.Magazines.GetByID(entry.MagazineId)
	if err != nil {
		return "", false, err
	}
	magActor, err := services.Users.GetByID(mag.ActorId)
	if err != nil {
		return "", false, err
	}
	to, cc, err := services.Entries.Audience(entry)
	if err != nil {
		return "", false, err
	}

	doc, err := marshalDoc(&objectDoc{
		Context:      streamsContext,
		Id:           entry.ObjectURI,
		Type:         "Page",
		AttributedTo: author.ActorURI,
		Audience:     magActor.ActorURI,
		Name:         entry.Title,
		Content:      entry.Body,
		URL:          entry.URL,
		To:           to,
		Cc:           cc,
		Published:    &entry.CreatedAt,
		Updated:      entry.EditedAt,
	})
	return doc, false, err
}

// GetPostObject renders a standalone post as a Note.
func GetPostObject(id uuid.UUID, services *service.Services) (string, bool, error) {
	post, err := services.Posts.GetByID(id)
	if err != nil {
		return "", false, err
	}
	if post.IsDeleted() {
		doc, err := tombstoneDoc(post.ObjectURI, "Note", post.DeletedAt)
		return doc, true, err
	}
	if post.Visibility == domain.VisibilityPrivate {
		return "", false, ErrNotPublic
	}

	author, err := services.Users.GetByID(post.AuthorId)
	if err != nil {
		return "", false, err
	}
	to, cc, err := services.Posts.Audience(post)
	if err != nil {
		return "", false, err
	}

	doc, err := marshalDoc(&objectDoc{
		Context:      streamsContext,
		Id:           post.ObjectURI,
		Type:         "Note",
		AttributedTo: author.ActorURI,
		Content:      post.Body,
		To:           to,
		Cc:           cc,
		Published:    &post.CreatedAt,
		Updated:      post.EditedAt,
	})
	return doc, false, err
}

// GetCommentObject renders a comment as a Note replying to its parent,
// or to its subject when it is a top-level comment.
func GetCommentObject(id uuid.UUID, services *service.Services) (string, bool, error) {
	comment, err := services.Comments.GetByID(id)
	if err != nil {
		return "", false, err
	}
	if comment.IsDeleted() {
		doc, err := tombstoneDoc(comment.ObjectURI, "Note", comment.DeletedAt)
		return doc, true, err
	}
	if comment.Visibility == domain.VisibilityPrivate {
		return "", false, ErrNotPublic
	}

	author, err := services.Users.GetByID(comment.AuthorId)
	if err != nil {
		return "", false, err
	}
	inReplyTo, err := commentParentURI(comment, services)
	if err != nil {
		return "", false, err
	}
	to, cc, err := services.Comments.Audience(comment)
	if err != nil {
		return "", false, err
	}

	doc, err := marshalDoc(&objectDoc{
		Context:      streamsContext,
		Id:           comment.ObjectURI,
		Type:         "Note",
		AttributedTo: author.ActorURI,
		InReplyTo:    inReplyTo,
		Content:      comment.Body,
		To:           to,
		Cc:           cc,
		Published:    &comment.CreatedAt,
		Updated:      comment.EditedAt,
	})
	return doc, false, err
}

func commentParentURI(c *domain.Comment, services *service.Services) (string, error) {
	if c.ParentId != nil {
		parent, err := services.Comments.GetByID(*c.ParentId)
		if err != nil {
			return "", err
		}
		return parent.ObjectURI, nil
	}
	if c.SubjectKind == domain.SubjectPost {
		post, err := services.Posts.GetByID(c.SubjectId)
		if err != nil {
			return "", err
		}
		return post.ObjectURI, nil
	}
	entry, err := services.Entries.GetByID(c.SubjectId)
	if err != nil {
		return "", err
	}
	return entry.ObjectURI, nil
}
