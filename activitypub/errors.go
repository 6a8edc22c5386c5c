package activitypub

import "errors"

var (
	// ErrMalformedActivity marks JSON that is missing id, type or actor,
	// or that cannot be decoded at all. Never retried.
	ErrMalformedActivity = errors.New("malformed activity")

	// ErrUnknownType marks an activity type no handler is registered
	// for. Acknowledged and dropped, per the protocol's tolerance rule.
	ErrUnknownType = errors.New("unknown activity type")

	// ErrSignatureInvalid marks an inbound request whose HTTP signature
	// does not verify against the claimed actor's key, even after a key
	// refresh.
	ErrSignatureInvalid = errors.New("http signature invalid")

	// ErrActorUnresolvable marks a failed webfinger or actor-document
	// fetch. Transient by assumption; the envelope is retried.
	ErrActorUnresolvable = errors.New("actor unresolvable")

	// ErrDeferred marks an activity whose prerequisite has not arrived
	// yet, e.g. an Undo delivered before its Follow. Retried with backoff.
	ErrDeferred = errors.New("activity deferred")

	// ErrDeliveryFailed marks an outbound POST the destination refused
	// or never answered.
	ErrDeliveryFailed = errors.New("delivery failed")
)
