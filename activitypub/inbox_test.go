package activitypub

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
	"github.com/grovesocial/grove/util"
)

type inboxFixture struct {
	db       *db.DB
	services *service.Services
	inbox    *Inbox
	conf     *util.FederationConfig

	remoteKeys *util.RsaKeyPair
	remote     *domain.Actor
}

// newInboxFixture wires a full inbound pipeline against a throwaway
// database, with one cached remote actor whose key we hold. Cached
// actors keep every test offline.
func newInboxFixture(t *testing.T) *inboxFixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conf := &util.FederationConfig{
		Enabled: true, DeliveryWorkers: 1, InboxWorkers: 1,
		ActorCacheTTLHours: 24, MaxDeliveryAttempts: 10, MaxInboundAttempts: 10,
		BlockedDomains: []string{"evil.example"},
	}

	services := service.New(database, "grove.example")
	directory := NewDirectory(database, conf)
	builder := NewBuilder("grove.example")
	outbox := NewOutbox(database, directory, conf)
	registry := NewRegistry(services, directory, outbox, builder)

	remoteKeys := util.GeneratePemKeypair()
	remote := &domain.Actor{
		Id: uuid.New(), Type: domain.ActorPerson, Username: "bob",
		Domain: "remote.example", ActorURI: "https://remote.example/u/bob",
		InboxURI:      "https://remote.example/u/bob/inbox",
		PublicKeyPem:  remoteKeys.Public,
		LastFetchedAt: time.Now(), CreatedAt: time.Now(),
	}
	if err := database.CreateActor(remote); err != nil {
		t.Fatalf("Failed to create remote actor: %v", err)
	}

	return &inboxFixture{
		db: database, services: services, conf: conf,
		inbox:      NewInbox(database, directory, registry, conf),
		remoteKeys: remoteKeys, remote: remote,
	}
}

// envelope signs an activity as the fixture's remote actor and wraps it
// the way the HTTP layer would.
func (f *inboxFixture) envelope(t *testing.T, a *Activity) *domain.InboundEnvelope {
	t.Helper()
	body, err := Serialize(a)
	if err != nil {
		t.Fatalf("Failed to serialize activity: %v", err)
	}
	req := signedTestRequest(t, f.remoteKeys, f.remote.ActorURI+"#main-key", body)

	headersJSON, err := json.Marshal(req.Header)
	if err != nil {
		t.Fatalf("Failed to marshal headers: %v", err)
	}
	return &domain.InboundEnvelope{
		Id: uuid.New(), Target: "alice", Method: "POST", Path: "/u/alice/inbox",
		HeadersJSON: string(headersJSON), RawBody: string(body),
		ClaimedActor: a.Actor, NextAttemptAt: time.Now(), ReceivedAt: time.Now(),
	}
}

func TestInboxFollowAppliesAndAccepts(t *testing.T) {
	f := newInboxFixture(t)
	alice, err := f.services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create local user: %v", err)
	}

	follow := &Activity{
		Id: "https://remote.example/activities/f1", Type: TypeFollow,
		Actor: f.remote.ActorURI, Object: alice.ActorURI,
	}
	outcome := f.inbox.processOnce(context.Background(), f.envelope(t, follow))
	if outcome != "applied" {
		t.Fatalf("Expected applied, got %s", outcome)
	}

	subs, err := f.services.Users.Subscribers(alice.Id)
	if err != nil {
		t.Fatalf("Failed to read subscribers: %v", err)
	}
	if len(subs) != 1 || subs[0].ActorURI != f.remote.ActorURI {
		t.Fatalf("Expected bob subscribed to alice, got %v", subs)
	}

	// The Accept handshake must be waiting in the delivery queue.
	err, items := f.db.ReadPendingDeliveries(10)
	if err != nil {
		t.Fatalf("Failed to read delivery queue: %v", err)
	}
	if len(*items) != 1 {
		t.Fatalf("Expected one queued delivery, got %d", len(*items))
	}
	if (*items)[0].InboxURI != f.remote.InboxURI {
		t.Errorf("Expected Accept addressed to bob's inbox, got %s", (*items)[0].InboxURI)
	}
	accept, err := ParseActivity([]byte((*items)[0].ActivityJSON))
	if err != nil {
		t.Fatalf("Queued Accept does not parse: %v", err)
	}
	if accept.Type != TypeAccept || accept.InnerActivity().Id != follow.Id {
		t.Errorf("Expected Accept wrapping the follow, got %s of %v", accept.Type, accept.Object)
	}

	err, rec := f.db.ReadActivityRecordByURI(follow.Id)
	if err != nil {
		t.Fatalf("Expected an audit record for the follow: %v", err)
	}
	if rec.Local {
		t.Error("Inbound activity must be recorded as remote")
	}
}

func TestInboxSecondDeliveryIsDuplicate(t *testing.T) {
	f := newInboxFixture(t)
	alice, err := f.services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create local user: %v", err)
	}

	follow := &Activity{
		Id: "https://remote.example/activities/f2", Type: TypeFollow,
		Actor: f.remote.ActorURI, Object: alice.ActorURI,
	}
	if outcome := f.inbox.processOnce(context.Background(), f.envelope(t, follow)); outcome != "applied" {
		t.Fatalf("Expected applied, got %s", outcome)
	}
	if outcome := f.inbox.processOnce(context.Background(), f.envelope(t, follow)); outcome != "duplicate" {
		t.Errorf("Expected duplicate on redelivery, got %s", outcome)
	}
}

func TestInboxUndoBeforeOriginalDefers(t *testing.T) {
	f := newInboxFixture(t)

	undo := &Activity{
		Id: "https://remote.example/activities/u1", Type: TypeUndo,
		Actor: f.remote.ActorURI,
		Object: &Activity{
			Id: "https://remote.example/activities/like-404", Type: TypeLike,
			Actor: f.remote.ActorURI, Object: "https://grove.example/e/404",
		},
	}
	if outcome := f.inbox.processOnce(context.Background(), f.envelope(t, undo)); outcome != "deferred" {
		t.Errorf("Expected deferred for undo before its like, got %s", outcome)
	}
}

func TestInboxLikeBeforeContentDefers(t *testing.T) {
	f := newInboxFixture(t)

	like := &Activity{
		Id: "https://remote.example/activities/l1", Type: TypeLike,
		Actor: f.remote.ActorURI, Object: "https://grove.example/e/not-yet",
	}
	if outcome := f.inbox.processOnce(context.Background(), f.envelope(t, like)); outcome != "deferred" {
		t.Errorf("Expected deferred for like before content, got %s", outcome)
	}
}

func TestInboxCreatesEntryFromRemote(t *testing.T) {
	f := newInboxFixture(t)
	owner, err := f.services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create local user: %v", err)
	}
	mag, err := f.services.Magazines.CreateLocal("golang", "Go", "", owner.Id, false)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}
	magActor, err := f.services.Users.GetByID(mag.ActorId)
	if err != nil {
		t.Fatalf("Failed to read magazine actor: %v", err)
	}

	create := &Activity{
		Id: "https://remote.example/activities/c1", Type: TypeCreate,
		Actor: f.remote.ActorURI,
		To:    []string{domain.PublicCollection},
		Object: &Object{
			Id: "https://remote.example/e/1", Type: ObjectPage,
			AttributedTo: f.remote.ActorURI, Audience: magActor.ActorURI,
			Name: "Remote title", Content: "Remote body",
		},
	}
	if outcome := f.inbox.processOnce(context.Background(), f.envelope(t, create)); outcome != "applied" {
		t.Fatalf("Expected applied, got %s", outcome)
	}

	entry, err := f.services.Entries.GetByObjectURI("https://remote.example/e/1")
	if err != nil {
		t.Fatalf("Expected entry to exist: %v", err)
	}
	if entry.Title != "Remote title" || entry.MagazineId != mag.Id {
		t.Errorf("Entry not materialized correctly: %+v", entry)
	}
	if entry.AuthorId != f.remote.Id {
		t.Errorf("Expected remote author, got %s", entry.AuthorId)
	}
}

func TestInboxBannedAuthorRejected(t *testing.T) {
	f := newInboxFixture(t)
	owner, err := f.services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create local user: %v", err)
	}
	mag, err := f.services.Magazines.CreateLocal("golang", "Go", "", owner.Id, false)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}
	if _, err := f.services.Magazines.IssueBan(f.remote.Id, owner.Id, &mag.Id, "spam", nil); err != nil {
		t.Fatalf("Failed to issue ban: %v", err)
	}
	magActor, err := f.services.Users.GetByID(mag.ActorId)
	if err != nil {
		t.Fatalf("Failed to read magazine actor: %v", err)
	}

	create := &Activity{
		Id: "https://remote.example/activities/c2", Type: TypeCreate,
		Actor: f.remote.ActorURI,
		Object: &Object{
			Id: "https://remote.example/e/2", Type: ObjectPage,
			AttributedTo: f.remote.ActorURI, Audience: magActor.ActorURI,
			Name: "Spam",
		},
	}
	if outcome := f.inbox.processOnce(context.Background(), f.envelope(t, create)); outcome != "rejected" {
		t.Errorf("Expected rejected for banned author, got %s", outcome)
	}
}

func TestInboxBlockedDomainRejected(t *testing.T) {
	f := newInboxFixture(t)

	a := &Activity{
		Id: "https://evil.example/activities/1", Type: TypeLike,
		Actor: "https://evil.example/u/troll", Object: "https://grove.example/e/1",
	}
	body, _ := Serialize(a)
	env := &domain.InboundEnvelope{
		Id: uuid.New(), Target: "alice", Method: "POST", Path: "/u/alice/inbox",
		HeadersJSON: "{}", RawBody: string(body), ClaimedActor: a.Actor,
		NextAttemptAt: time.Now(), ReceivedAt: time.Now(),
	}
	if outcome := f.inbox.processOnce(context.Background(), env); outcome != "rejected" {
		t.Errorf("Expected rejected for blocked domain, got %s", outcome)
	}
}

func TestInboxMalformedAndUnknownDropped(t *testing.T) {
	f := newInboxFixture(t)

	env := &domain.InboundEnvelope{
		Id: uuid.New(), RawBody: "not json", HeadersJSON: "{}",
		NextAttemptAt: time.Now(), ReceivedAt: time.Now(),
	}
	if outcome := f.inbox.processOnce(context.Background(), env); outcome != "rejected" {
		t.Errorf("Expected rejected for malformed body, got %s", outcome)
	}

	env = &domain.InboundEnvelope{
		Id:          uuid.New(),
		RawBody:     `{"id":"https://a.example/1","type":"Teleport","actor":"https://a.example/u/x"}`,
		HeadersJSON: "{}", NextAttemptAt: time.Now(), ReceivedAt: time.Now(),
	}
	if outcome := f.inbox.processOnce(context.Background(), env); outcome != "ignored" {
		t.Errorf("Expected ignored for unknown type, got %s", outcome)
	}
}

func TestInboxDeferralGivesUpEventually(t *testing.T) {
	f := newInboxFixture(t)
	f.conf.MaxInboundAttempts = 2

	like := &Activity{
		Id: "https://remote.example/activities/l2", Type: TypeLike,
		Actor: f.remote.ActorURI, Object: "https://grove.example/e/never",
	}
	env := f.envelope(t, like)
	if err := f.db.EnqueueInbound(env); err != nil {
		t.Fatalf("Failed to enqueue envelope: %v", err)
	}

	// First pass defers and reschedules; the envelope stays queued.
	f.inbox.Process(context.Background(), env)
	if err, due := f.db.ReadDueInbound(10); err != nil || len(*due) != 0 {
		t.Fatalf("Expected envelope rescheduled into the future, got %d due (%v)", len(*due), err)
	}

	// Second pass hits the attempt ceiling and drops it.
	env.NextAttemptAt = time.Now()
	f.inbox.Process(context.Background(), env)
	ok, err := f.db.IsProcessed(like.Id)
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if ok {
		t.Error("A gave-up activity must not be marked processed")
	}
}
