package web

import (
	"encoding/json"

	"github.com/grovesocial/grove/service"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webfingerDoc struct {
	Subject string          `json:"subject"`
	Links   []webfingerLink `json:"links"`
}

// GetWebfinger resolves acct:name@domain to a local user or magazine
// actor. Magazines share the name namespace with users on other
// platforms, so both tables are consulted.
func GetWebfinger(name string, services *service.Services) (string, error) {
	actorURI := ""
	if user, err := services.Users.GetLocalByUsername(name); err == nil {
		actorURI = user.ActorURI
	} else if mag, merr := services.Magazines.GetByName(name); merr == nil {
		actor, aerr := services.Users.GetByID(mag.ActorId)
		if aerr != nil {
			return "", aerr
		}
		actorURI = actor.ActorURI
	} else {
		return "", err
	}

	doc := webfingerDoc{
		Subject: "acct:" + name + "@" + services.Domain(),
		Links: []webfingerLink{{
			Rel:  "self",
			Type: "application/activity+json",
			Href: actorURI,
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
