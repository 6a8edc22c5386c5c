package domain

import (
	"time"

	"github.com/google/uuid"
)

// PublicCollection is the ActivityStreams sentinel for world-readable
// addressing. Private content must never carry it.
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

// InboundEnvelope is the unit handed to the inbox processor before trust
// is established. Enough of the original HTTP request is captured that the
// signature can be verified after the envelope leaves the request cycle.
type InboundEnvelope struct {
	Id            uuid.UUID
	Target        string // local actor username the delivery addressed
	Method        string
	Path          string
	HeadersJSON   string // signature-relevant headers of the original request
	RawBody       string
	ClaimedActor  string
	Attempts      int
	NextAttemptAt time.Time
	ReceivedAt    time.Time
}

// DeliveryQueueItem is one signed POST waiting to go out. KeyOwnerId names
// the local actor whose key signs the request. When the recipient could
// not be resolved at enqueue time, InboxURI is empty and RecipientURI
// carries the actor URI; the delivery worker resolves it under the same
// retry schedule as the delivery itself.
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	RecipientURI string
	ActivityJSON string
	KeyOwnerId   uuid.UUID
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}

// GroupKey is the per-destination ordering key: the inbox when known,
// otherwise the still-unresolved recipient.
func (i *DeliveryQueueItem) GroupKey() string {
	if i.InboxURI != "" {
		return i.InboxURI
	}
	return i.RecipientURI
}

// ActivityRecord is the audit row kept per federation event, inbound and
// outbound. The processed_activities table, not this one, carries the
// idempotency guarantee.
type ActivityRecord struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Local        bool
	CreatedAt    time.Time
}
