package web

import (
	"encoding/json"
	"fmt"

	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
)

type actorEndpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

type actorKey struct {
	Id           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// actorDoc is the ActivityPub actor document served for local users and
// magazine Group actors.
type actorDoc struct {
	Context           any            `json:"@context"`
	Id                string         `json:"id"`
	Type              string         `json:"type"`
	PreferredUsername string         `json:"preferredUsername"`
	Name              string         `json:"name,omitempty"`
	Summary           string         `json:"summary,omitempty"`
	Inbox             string         `json:"inbox"`
	Outbox            string         `json:"outbox,omitempty"`
	Followers         string         `json:"followers,omitempty"`
	URL               string         `json:"url,omitempty"`
	ManuallyApproves  bool           `json:"manuallyApprovesFollowers"`
	Discoverable      bool           `json:"discoverable"`
	Endpoints         actorEndpoints `json:"endpoints"`
	PublicKey         actorKey       `json:"publicKey"`
}

var actorContext = []string{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
}

// GetActorDoc renders a local actor as ActivityPub JSON. Remote shadows
// are never served; their home instance is authoritative.
func GetActorDoc(a *domain.Actor, manualApproval bool) (string, error) {
	if !a.IsLocal {
		return "", fmt.Errorf("actor %s is not local", a.ActorURI)
	}
	name := a.DisplayName
	if name == "" {
		name = a.Username
	}
	doc := actorDoc{
		Context:           actorContext,
		Id:                a.ActorURI,
		Type:              string(a.Type),
		PreferredUsername: a.Username,
		Name:              name,
		Summary:           a.Summary,
		Inbox:             a.InboxURI,
		Outbox:            a.OutboxURI,
		Followers:         a.FollowersURI,
		URL:               a.ActorURI,
		ManuallyApproves:  manualApproval,
		Discoverable:      true,
		Endpoints:         actorEndpoints{SharedInbox: a.SharedInboxURI},
		PublicKey: actorKey{
			Id:           a.KeyId(),
			Owner:        a.ActorURI,
			PublicKeyPem: a.PublicKeyPem,
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetUserActor looks up a local user and renders their Person document.
func GetUserActor(username string, services *service.Services) (string, error) {
	user, err := services.Users.GetLocalByUsername(username)
	if err != nil {
		return "", err
	}
	return GetActorDoc(user, false)
}

// GetMagazineActor renders the Group document for a local magazine.
// Private magazines review follows by hand, so their document says so.
func GetMagazineActor(name string, services *service.Services) (string, error) {
	mag, err := services.Magazines.GetByName(name)
	if err != nil {
		return "", err
	}
	actor, err := services.Users.GetByID(mag.ActorId)
	if err != nil {
		return "", err
	}
	return GetActorDoc(actor, mag.IsPrivate)
}
