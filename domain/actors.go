package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorPerson  ActorType = "Person"  // a user
	ActorGroup   ActorType = "Group"   // a magazine
	ActorService ActorType = "Service" // an instance actor
)

// Actor is a federated identity, local or remote. Remote actors are cached
// shadow records refreshed on a TTL or on signature-verification failure;
// local actors additionally carry the private key they sign with.
type Actor struct {
	Id             uuid.UUID
	Type           ActorType
	Username       string
	Domain         string // empty for local actors
	ActorURI       string
	DisplayName    string
	Summary        string
	InboxURI       string
	SharedInboxURI string
	OutboxURI      string
	FollowersURI   string
	PublicKeyPem   string
	PrivateKeyPem  string // local actors only
	AvatarURL      string
	IsLocal        bool
	LastFetchedAt  time.Time
	CreatedAt      time.Time
}

// Handle renders the short name, "name" for local and "name@domain" for
// remote actors.
func (a *Actor) Handle() string {
	if a.Domain == "" {
		return a.Username
	}
	return fmt.Sprintf("%s@%s", a.Username, a.Domain)
}

// BestInbox prefers the per-instance shared inbox when the actor
// advertises one.
func (a *Actor) BestInbox(preferShared bool) string {
	if preferShared && a.SharedInboxURI != "" {
		return a.SharedInboxURI
	}
	return a.InboxURI
}

// KeyId is the fragment URI remote servers use to look up our public key.
func (a *Actor) KeyId() string {
	return a.ActorURI + "#main-key"
}

func (a *Actor) Ref() Ref {
	kind := RefUser
	if a.Type == ActorGroup {
		kind = RefMagazine
	}
	return NewRef(kind, a.Id)
}

func (a *Actor) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tHandle: %s \n\tType: %s \n\tActorURI: %s", a.Id, a.Handle(), a.Type, a.ActorURI)
}
