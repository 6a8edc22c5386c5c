package activitypub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Serialize renders an activity as a JSON-LD document, stamping the
// default context when none is set. Activities missing their required
// fields never leave the process.
func Serialize(a *Activity) ([]byte, error) {
	if a.Id == "" || a.Type == "" || a.Actor == "" {
		return nil, fmt.Errorf("%w: id, type and actor are required", ErrMalformedActivity)
	}
	if !knownTypes[a.Type] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, a.Type)
	}
	if a.Context == nil {
		a.Context = activityContext
	}
	return json.Marshal(a)
}

// rawActivity mirrors Activity with the object still undecoded.
type rawActivity struct {
	Id        string          `json:"id"`
	Type      ActivityType    `json:"type"`
	Actor     string          `json:"actor"`
	Object    json.RawMessage `json:"object"`
	Target    string          `json:"target"`
	To        []string        `json:"to"`
	Cc        []string        `json:"cc"`
	Published *jsonTime       `json:"published"`
	Summary   string          `json:"summary"`
}

// ParseActivity decodes an inbound document, resolving the polymorphic
// object field into a URI string, an embedded Object or a nested
// Activity. Nesting is resolved one level deep per call, which covers
// every shape this server emits or accepts.
func ParseActivity(data []byte) (*Activity, error) {
	var raw rawActivity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}
	if raw.Id == "" || raw.Type == "" || raw.Actor == "" {
		return nil, fmt.Errorf("%w: id, type and actor are required", ErrMalformedActivity)
	}
	if !knownTypes[raw.Type] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, raw.Type)
	}

	a := &Activity{
		Id: raw.Id, Type: raw.Type, Actor: raw.Actor, Target: raw.Target,
		To: raw.To, Cc: raw.Cc, Summary: raw.Summary,
	}
	if raw.Published != nil {
		t := raw.Published.t
		a.Published = &t
	}

	if len(raw.Object) > 0 {
		obj, err := parseObjectField(raw.Object)
		if err != nil {
			return nil, err
		}
		a.Object = obj
	}
	return a, nil
}

func parseObjectField(data json.RawMessage) (any, error) {
	var uri string
	if err := json.Unmarshal(data, &uri); err == nil {
		return uri, nil
	}

	// Peek the type discriminator to tell nested activities apart from
	// content payloads.
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: object is neither URI nor document", ErrMalformedActivity)
	}

	if knownTypes[ActivityType(probe.Type)] {
		var inner rawActivity
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
		}
		nested := &Activity{
			Id: inner.Id, Type: inner.Type, Actor: inner.Actor, Target: inner.Target,
			To: inner.To, Cc: inner.Cc, Summary: inner.Summary,
		}
		if inner.Published != nil {
			t := inner.Published.t
			nested.Published = &t
		}
		// The inner object of a nested activity is kept as a URI or a
		// payload; deeper activity nesting is not accepted.
		if len(inner.Object) > 0 {
			var innerURI string
			if err := json.Unmarshal(inner.Object, &innerURI); err == nil {
				nested.Object = innerURI
			} else {
				var payload Object
				if err := json.Unmarshal(inner.Object, &payload); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
				}
				nested.Object = &payload
			}
		}
		return nested, nil
	}

	var payload Object
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}
	return &payload, nil
}

// jsonTime accepts the RFC3339 variants seen in the wild.
type jsonTime struct {
	t time.Time
}

func (jt *jsonTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			jt.t = t
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
