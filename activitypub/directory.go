package activitypub

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/util"
)

// actorResponse is the JSON shape of a remote ActivityPub actor document.
type actorResponse struct {
	Context           interface{} `json:"@context"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name"`
	Summary           string      `json:"summary"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox"`
	Followers         string      `json:"followers"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	Icon struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// webfingerResponse is the discovery document served at
// /.well-known/webfinger.
type webfingerResponse struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// Directory resolves actor identities: local rows straight from the
// database, remote ones through webfinger plus a TTL'd shadow cache.
type Directory struct {
	db     *db.DB
	conf   *util.FederationConfig
	client *http.Client
	ttl    time.Duration
}

func NewDirectory(database *db.DB, conf *util.FederationConfig) *Directory {
	return &Directory{
		db:     database,
		conf:   conf,
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    time.Duration(conf.ActorCacheTTLHours) * time.Hour,
	}
}

// Lookup resolves a "user@domain" handle through webfinger and returns
// the cached or freshly fetched actor.
func (d *Directory) Lookup(ctx context.Context, handle string) (*domain.Actor, error) {
	name, actorDomain, err := util.ParseHandle(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorUnresolvable, err)
	}
	if !d.conf.DomainAllowed(actorDomain) {
		return nil, fmt.Errorf("%w: domain %s not allowed", ErrActorUnresolvable, actorDomain)
	}

	// A known actor skips discovery entirely.
	if err, cached := d.db.ReadActorByHandle(name, actorDomain); err == nil && cached != nil {
		if time.Since(cached.LastFetchedAt) < d.ttl {
			return cached, nil
		}
	}

	wfURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s",
		actorDomain, url.QueryEscape(fmt.Sprintf("%s@%s", name, actorDomain)))
	req, err := http.NewRequestWithContext(ctx, "GET", wfURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: webfinger request failed: %v", ErrActorUnresolvable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: webfinger status %d", ErrActorUnresolvable, resp.StatusCode)
	}

	var wf webfingerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&wf); err != nil {
		return nil, fmt.Errorf("%w: bad webfinger document: %v", ErrActorUnresolvable, err)
	}

	for _, link := range wf.Links {
		if link.Rel == "self" && link.Href != "" {
			return d.GetOrFetch(ctx, link.Href)
		}
	}
	return nil, fmt.Errorf("%w: webfinger has no self link", ErrActorUnresolvable)
}

// GetOrFetch returns the actor for a URI, fetching and caching the remote
// document when the shadow record is missing or stale.
func (d *Directory) GetOrFetch(ctx context.Context, actorURI string) (*domain.Actor, error) {
	err, cached := d.db.ReadActorByURI(actorURI)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if cached != nil {
		if cached.IsLocal || time.Since(cached.LastFetchedAt) < d.ttl {
			return cached, nil
		}
		// Stale shadow: refresh, but fall back to it when the origin is
		// down rather than failing the caller.
		fresh, ferr := d.Refresh(ctx, actorURI)
		if ferr != nil {
			log.Debug("Stale actor refresh failed, serving cached", "actor", actorURI, "err", ferr)
			return cached, nil
		}
		return fresh, nil
	}
	return d.Refresh(ctx, actorURI)
}

// Refresh fetches the actor document unconditionally and upserts the
// shadow record. Used on cache expiry and on signature mismatch, where a
// key rotation is the likely cause.
func (d *Directory) Refresh(ctx context.Context, actorURI string) (*domain.Actor, error) {
	actorDomain, err := extractDomain(actorURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorUnresolvable, err)
	}
	if !d.conf.DomainAllowed(actorDomain) {
		return nil, fmt.Errorf("%w: domain %s not allowed", ErrActorUnresolvable, actorDomain)
	}

	doc, err := d.fetchActorDoc(ctx, actorURI)
	if err != nil {
		return nil, err
	}

	actorType := domain.ActorType(doc.Type)
	switch actorType {
	case domain.ActorPerson, domain.ActorGroup, domain.ActorService:
	default:
		actorType = domain.ActorPerson
	}

	actor := &domain.Actor{
		Id:             uuid.New(),
		Type:           actorType,
		Username:       doc.PreferredUsername,
		Domain:         actorDomain,
		ActorURI:       doc.ID,
		DisplayName:    doc.Name,
		Summary:        doc.Summary,
		InboxURI:       doc.Inbox,
		SharedInboxURI: doc.Endpoints.SharedInbox,
		OutboxURI:      doc.Outbox,
		FollowersURI:   doc.Followers,
		PublicKeyPem:   doc.PublicKey.PublicKeyPem,
		AvatarURL:      doc.Icon.URL,
		IsLocal:        false,
		LastFetchedAt:  time.Now(),
		CreatedAt:      time.Now(),
	}

	if err, existing := d.db.ReadActorByURI(doc.ID); err == nil && existing != nil {
		actor.Id = existing.Id
		actor.CreatedAt = existing.CreatedAt
		if err := d.db.UpdateRemoteActor(actor); err != nil {
			return nil, err
		}
		return actor, nil
	}
	if err := d.db.CreateActor(actor); err != nil {
		return nil, err
	}
	return actor, nil
}

func (d *Directory) fetchActorDoc(ctx context.Context, actorURI string) (*actorResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", actorURI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: actor fetch failed: %v", ErrActorUnresolvable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: actor fetch status %d", ErrActorUnresolvable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorUnresolvable, err)
	}

	var doc actorResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: bad actor document: %v", ErrActorUnresolvable, err)
	}
	if doc.ID == "" || doc.Inbox == "" || doc.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("%w: actor document missing required fields", ErrActorUnresolvable)
	}
	return &doc, nil
}

// extractDomain pulls the host out of an actor URI.
func extractDomain(actorURI string) (string, error) {
	u, err := url.Parse(actorURI)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid actor URI %q", actorURI)
	}
	return u.Host, nil
}
