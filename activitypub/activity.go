package activitypub

import (
	"time"
)

type ActivityType string

const (
	TypeCreate   ActivityType = "Create"
	TypeUpdate   ActivityType = "Update"
	TypeDelete   ActivityType = "Delete"
	TypeUndo     ActivityType = "Undo"
	TypeAnnounce ActivityType = "Announce"
	TypeFollow   ActivityType = "Follow"
	TypeAccept   ActivityType = "Accept"
	TypeReject   ActivityType = "Reject"
	TypeLike     ActivityType = "Like"
	TypeBlock    ActivityType = "Block"
	TypeAdd      ActivityType = "Add"
	TypeRemove   ActivityType = "Remove"
	TypeFlag     ActivityType = "Flag"
	TypeLock     ActivityType = "Lock"
)

var knownTypes = map[ActivityType]bool{
	TypeCreate: true, TypeUpdate: true, TypeDelete: true, TypeUndo: true,
	TypeAnnounce: true, TypeFollow: true, TypeAccept: true, TypeReject: true,
	TypeLike: true, TypeBlock: true, TypeAdd: true, TypeRemove: true,
	TypeFlag: true, TypeLock: true,
}

// Object type names used in activity payloads.
const (
	ObjectPage      = "Page" // magazine entry
	ObjectNote      = "Note" // post or comment
	ObjectTombstone = "Tombstone"
)

// activityContext is the JSON-LD context stamped on every outbound
// document.
var activityContext = []any{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
}

// Object is a content payload carried inside a Create or Update, or a
// Tombstone inside a Delete.
type Object struct {
	Id           string     `json:"id"`
	Type         string     `json:"type"`
	AttributedTo string     `json:"attributedTo,omitempty"`
	InReplyTo    string     `json:"inReplyTo,omitempty"`
	Audience     string     `json:"audience,omitempty"` // the magazine's Group actor
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

// Activity is the wire unit of federation. Object holds one of: a bare
// URI string, an *Object payload, or a nested *Activity (Undo, Accept,
// Reject, Announce).
type Activity struct {
	Context   any          `json:"@context,omitempty"`
	Id        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Actor     string       `json:"actor"`
	Object    any          `json:"object,omitempty"`
	Target    string       `json:"target,omitempty"`
	To        []string     `json:"to,omitempty"`
	Cc        []string     `json:"cc,omitempty"`
	Published *time.Time   `json:"published,omitempty"`
	Summary   string       `json:"summary,omitempty"` // ban or report reason
}

// ObjectURI resolves the object field to its identifier regardless of
// representation.
func (a *Activity) ObjectURI() string {
	switch o := a.Object.(type) {
	case string:
		return o
	case *Object:
		return o.Id
	case *Activity:
		return o.Id
	default:
		return ""
	}
}

// InnerActivity returns the nested activity, if the object is one.
func (a *Activity) InnerActivity() *Activity {
	inner, _ := a.Object.(*Activity)
	return inner
}

// InnerObject returns the embedded content payload, if the object is one.
func (a *Activity) InnerObject() *Object {
	obj, _ := a.Object.(*Object)
	return obj
}

// Recipients is the union of to and cc.
func (a *Activity) Recipients() []string {
	out := make([]string, 0, len(a.To)+len(a.Cc))
	out = append(out, a.To...)
	return append(out, a.Cc...)
}
