package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
	"github.com/grovesocial/grove/util"
	"golang.org/x/sync/errgroup"
)

// Inbox takes raw inbound deliveries off the durable queue and walks each
// through parse, actor resolution, signature verification, dedup and
// routing. The HTTP layer only persists envelopes; all trust decisions
// happen here, off the request cycle.
type Inbox struct {
	db        *db.DB
	directory *Directory
	registry  *Registry
	conf      *util.FederationConfig
}

func NewInbox(database *db.DB, directory *Directory, registry *Registry, conf *util.FederationConfig) *Inbox {
	return &Inbox{db: database, directory: directory, registry: registry, conf: conf}
}

// Enqueue persists a raw delivery for asynchronous processing. Called
// from the HTTP handler, which then answers 202.
func (in *Inbox) Enqueue(target, method, path string, headers http.Header, body []byte, claimedActor string) error {
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return err
	}
	now := time.Now()
	return in.db.EnqueueInbound(&domain.InboundEnvelope{
		Id:            uuid.New(),
		Target:        target,
		Method:        method,
		Path:          path,
		HeadersJSON:   string(headersJSON),
		RawBody:       string(body),
		ClaimedActor:  claimedActor,
		NextAttemptAt: now,
		ReceivedAt:    now,
	})
}

// Start runs the inbox workers until the context ends.
func (in *Inbox) Start(ctx context.Context) {
	log.Info("Starting inbox workers", "workers", in.conf.InboxWorkers)
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				in.processDue(ctx)
			}
		}
	}()
}

func (in *Inbox) processDue(ctx context.Context) {
	err, envs := in.db.ReadDueInbound(50)
	if err != nil {
		log.Error("Failed to read inbound queue", "err", err)
		return
	}
	if envs == nil || len(*envs) == 0 {
		return
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(in.conf.InboxWorkers)
	for _, env := range *envs {
		g.Go(func() error {
			in.Process(ctx, &env)
			return nil
		})
	}
	g.Wait()
}

// Process walks one envelope through the full inbound state machine and
// settles it: done (removed from the queue) or deferred (retry later).
func (in *Inbox) Process(ctx context.Context, env *domain.InboundEnvelope) {
	outcome := in.processOnce(ctx, env)
	switch outcome {
	case "deferred":
		env.Attempts++
		if env.Attempts >= in.conf.MaxInboundAttempts {
			log.Warn("Giving up on inbound envelope", "envelope", env.Id, "attempts", env.Attempts)
			metricInbound.WithLabelValues("failed").Inc()
			in.db.DeleteInbound(env.Id)
			return
		}
		metricInbound.WithLabelValues("deferred").Inc()
		in.db.UpdateInboundAttempt(env.Id, env.Attempts, time.Now().Add(backoffFor(env.Attempts)))
	default:
		metricInbound.WithLabelValues(outcome).Inc()
		in.db.DeleteInbound(env.Id)
	}
}

// processOnce returns the envelope outcome: applied, duplicate, ignored,
// rejected, or deferred.
func (in *Inbox) processOnce(ctx context.Context, env *domain.InboundEnvelope) string {
	a, err := ParseActivity([]byte(env.RawBody))
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			log.Debug("Ignoring activity of unknown type", "envelope", env.Id)
			return "ignored"
		}
		log.Debug("Dropping malformed activity", "envelope", env.Id, "err", err)
		return "rejected"
	}
	metricInboundByType.WithLabelValues(string(a.Type)).Inc()

	actorDomain, err := extractDomain(a.Actor)
	if err != nil || !in.conf.DomainAllowed(actorDomain) {
		log.Info("Rejecting activity from blocked domain", "domain", actorDomain, "activity", a.Id)
		return "rejected"
	}

	// Cheap duplicate pre-check; ApplyOnce inside the services is the
	// real guarantee.
	if done, err := in.db.IsProcessed(a.Id); err == nil && done {
		return "duplicate"
	}

	remote, err := in.directory.GetOrFetch(ctx, a.Actor)
	if err != nil {
		metricActorFetches.WithLabelValues("error").Inc()
		log.Info("Actor unresolvable, deferring", "actor", a.Actor, "err", err)
		return "deferred"
	}
	metricActorFetches.WithLabelValues("ok").Inc()

	if err := in.verify(env, remote); err != nil {
		// A stale cached key is the benign explanation; refresh once
		// and retry before distrusting the envelope.
		refreshed, rerr := in.directory.Refresh(ctx, a.Actor)
		if rerr != nil {
			log.Info("Key refresh failed, deferring", "actor", a.Actor, "err", rerr)
			return "deferred"
		}
		if err := in.verify(env, refreshed); err != nil {
			log.Warn("Rejecting activity with invalid signature", "actor", a.Actor, "activity", a.Id)
			return "rejected"
		}
		remote = refreshed
	}

	err = in.registry.Handle(ctx, remote, a)
	switch {
	case err == nil:
		in.record(a, env)
		return "applied"
	case errors.Is(err, db.ErrAlreadyProcessed):
		return "duplicate"
	case errors.Is(err, ErrDeferred):
		log.Debug("Deferring activity", "activity", a.Id, "reason", err)
		return "deferred"
	case errors.Is(err, ErrUnknownType), errors.Is(err, ErrMalformedActivity):
		log.Debug("Ignoring unusable activity", "activity", a.Id, "err", err)
		return "ignored"
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrConflict):
		log.Info("Rejecting activity", "activity", a.Id, "err", err)
		return "rejected"
	case errors.Is(err, ErrActorUnresolvable):
		return "deferred"
	default:
		// Unclassified errors are assumed transient (storage hiccups,
		// network) and retried with the same bounded backoff.
		log.Warn("Activity processing failed, deferring", "activity", a.Id, "err", err)
		return "deferred"
	}
}

// verify reconstructs the original HTTP request from the envelope and
// checks its signature against the actor's cached key. The signer must
// be the activity's actor.
func (in *Inbox) verify(env *domain.InboundEnvelope, remote *domain.Actor) error {
	req, err := envelopeRequest(env)
	if err != nil {
		return err
	}
	signerURI, err := VerifyRequest(req, remote.PublicKeyPem)
	if err != nil {
		return err
	}
	if signerURI != remote.ActorURI {
		return fmt.Errorf("%w: signed by %s, claimed %s", ErrSignatureInvalid, signerURI, remote.ActorURI)
	}
	return nil
}

// envelopeRequest rebuilds enough of the original HTTP request that the
// signature covering (request-target), host, date and digest can be
// re-checked after the request itself is long gone.
func envelopeRequest(env *domain.InboundEnvelope) (*http.Request, error) {
	var headers http.Header
	if err := json.Unmarshal([]byte(env.HeadersJSON), &headers); err != nil {
		return nil, fmt.Errorf("%w: bad stored headers: %v", ErrSignatureInvalid, err)
	}

	host := headers.Get("Host")
	req, err := http.NewRequest(env.Method, "https://"+host+env.Path, strings.NewReader(env.RawBody))
	if err != nil {
		return nil, err
	}
	req.Header = headers
	req.Host = host
	return req, nil
}

// record writes the audit row for an applied inbound activity.
func (in *Inbox) record(a *Activity, env *domain.InboundEnvelope) {
	err := in.db.CreateActivityRecord(&domain.ActivityRecord{
		Id: uuid.New(), ActivityURI: a.Id, ActivityType: string(a.Type),
		ActorURI: a.Actor, ObjectURI: a.ObjectURI(), RawJSON: env.RawBody,
		Local: false, CreatedAt: time.Now(),
	})
	if err != nil {
		log.Warn("Failed to log inbound activity", "activity", a.Id, "err", err)
	}
}
