package web

import (
	"encoding/json"

	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
)

type collectionDoc struct {
	Context    string `json:"@context"`
	Id         string `json:"id"`
	Type       string `json:"type"`
	TotalItems int    `json:"totalItems"`
}

// GetFollowersCollection serves the follower count without the member
// list; who follows whom stays between the two parties.
func GetFollowersCollection(actor *domain.Actor, services *service.Services) (string, error) {
	subs, err := services.Users.Subscribers(actor.Id)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(collectionDoc{
		Context:    streamsContext,
		Id:         actor.FollowersURI,
		Type:       "OrderedCollection",
		TotalItems: len(subs),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetOutboxCollection serves an empty outbox. Activities reach followers
// by push; the outbox exists so crawlers get a well-formed answer.
func GetOutboxCollection(actor *domain.Actor) (string, error) {
	data, err := json.Marshal(collectionDoc{
		Context:    streamsContext,
		Id:         actor.OutboxURI,
		Type:       "OrderedCollection",
		TotalItems: 0,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
