package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one actor's favorite on one piece of content. The (ActorId,
// Subject) pair is unique so a re-sent Like can never double count.
type Vote struct {
	Id          uuid.UUID
	ActorId     uuid.UUID
	Subject     Ref
	ActivityURI string // Like activity URI, minted locally or taken from the remote Like
	CreatedAt   time.Time
}

// Subscription is a follower relationship between actors (user follows
// user, or user subscribes to a magazine). Pending until Accepted.
type Subscription struct {
	Id            uuid.UUID
	ActorId       uuid.UUID // the follower
	TargetActorId uuid.UUID // the followed actor
	ActivityURI   string    // Follow activity URI
	Approved      bool
	CreatedAt     time.Time
}
