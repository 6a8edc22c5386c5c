package activitypub

import (
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
	"github.com/grovesocial/grove/util"
)

type engineFixture struct {
	db       *db.DB
	services *service.Services
	engine   *Engine
}

// newEngineFixture wires services and engine together the way main does,
// so local mutations flow through Publish into the delivery queue.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conf := &util.AppConfig{}
	conf.Conf.Domain = "grove.example"
	conf.Conf.Federation = util.FederationConfig{
		Enabled: true, DeliveryWorkers: 1, InboxWorkers: 1,
		ActorCacheTTLHours: 24, MaxDeliveryAttempts: 10, MaxInboundAttempts: 10,
	}

	services := service.New(database, "grove.example")
	engine := NewEngine(conf, database, services)
	services.SetPublisher(engine)
	return &engineFixture{db: database, services: services, engine: engine}
}

// addRemoteFollower caches a remote actor and subscribes it to the given
// local actor, giving outbound activities somewhere to go.
func (f *engineFixture) addRemoteFollower(t *testing.T, name string, of *domain.Actor) *domain.Actor {
	t.Helper()
	follower := &domain.Actor{
		Id: uuid.New(), Type: domain.ActorPerson, Username: name,
		Domain:   "remote.example",
		ActorURI: "https://remote.example/u/" + name,
		InboxURI: "https://remote.example/u/" + name + "/inbox",
		LastFetchedAt: time.Now(), CreatedAt: time.Now(),
	}
	if err := f.db.CreateActor(follower); err != nil {
		t.Fatalf("Failed to create remote follower: %v", err)
	}
	err := f.db.CreateSubscription(&domain.Subscription{
		Id: uuid.New(), ActorId: follower.Id, TargetActorId: of.Id,
		ActivityURI: "https://remote.example/activities/" + uuid.NewString(),
		Approved:    true, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to subscribe follower: %v", err)
	}
	return follower
}

// queuedDelete finds the Delete activity for the given object in the
// delivery queue. All rows for one activity carry the same payload.
func (f *engineFixture) queuedDelete(t *testing.T, objectURI string) *Activity {
	t.Helper()
	err, items := f.db.ReadPendingDeliveries(100)
	if err != nil {
		t.Fatalf("Failed to read delivery queue: %v", err)
	}
	for _, item := range *items {
		a, err := ParseActivity([]byte(item.ActivityJSON))
		if err != nil {
			continue
		}
		if a.Type == TypeDelete && a.ObjectURI() == objectURI {
			return a
		}
	}
	t.Fatalf("No queued Delete for %s", objectURI)
	return nil
}

func TestEntryDeleteKeepsOriginalAudience(t *testing.T) {
	f := newEngineFixture(t)
	owner, err := f.services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}
	mag, err := f.services.Magazines.CreateLocal("golang", "Go", "", owner.Id, false)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}
	magActor, err := f.services.Users.GetByID(mag.ActorId)
	if err != nil {
		t.Fatalf("Failed to read magazine actor: %v", err)
	}
	author, err := f.services.Users.CreateLocal("bob", "Bob")
	if err != nil {
		t.Fatalf("Failed to create author: %v", err)
	}
	f.addRemoteFollower(t, "carol", author)

	entry := &domain.Entry{MagazineId: mag.Id, AuthorId: author.Id, Title: "mine"}
	if err := f.services.Entries.CreateLocal(entry); err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}
	if err := f.services.Entries.DeleteLocal(entry.Id, author.Id); err != nil {
		t.Fatalf("Failed to delete entry: %v", err)
	}

	del := f.queuedDelete(t, entry.ObjectURI)
	if del.Actor != author.ActorURI {
		t.Errorf("Self-delete must speak as the author, got %s", del.Actor)
	}
	if !slices.Contains(del.To, domain.PublicCollection) {
		t.Errorf("Public entry's Delete must keep public addressing, got to=%v", del.To)
	}
	if !slices.Contains(del.Cc, author.FollowersURI) {
		t.Errorf("Delete must reach the author's followers, got cc=%v", del.Cc)
	}
	if slices.Contains(del.Cc, magActor.FollowersURI) {
		t.Errorf("Self-delete must not widen to the magazine's followers, got cc=%v", del.Cc)
	}
}

func TestEntryDeleteByModeratorAddsAuthorityScope(t *testing.T) {
	f := newEngineFixture(t)
	owner, err := f.services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}
	mag, err := f.services.Magazines.CreateLocal("golang", "Go", "", owner.Id, false)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}
	magActor, err := f.services.Users.GetByID(mag.ActorId)
	if err != nil {
		t.Fatalf("Failed to read magazine actor: %v", err)
	}
	author, err := f.services.Users.CreateLocal("bob", "Bob")
	if err != nil {
		t.Fatalf("Failed to create author: %v", err)
	}
	f.addRemoteFollower(t, "carol", author)

	entry := &domain.Entry{MagazineId: mag.Id, AuthorId: author.Id, Title: "theirs"}
	if err := f.services.Entries.CreateLocal(entry); err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}
	if err := f.services.Entries.DeleteLocal(entry.Id, owner.Id); err != nil {
		t.Fatalf("Failed to delete entry as moderator: %v", err)
	}

	del := f.queuedDelete(t, entry.ObjectURI)
	if del.Actor != magActor.ActorURI {
		t.Errorf("Moderator delete must speak as the magazine, got %s", del.Actor)
	}
	if !slices.Contains(del.Cc, author.FollowersURI) {
		t.Errorf("Moderator delete must still reach the original audience, got cc=%v", del.Cc)
	}
	if !slices.Contains(del.Cc, magActor.FollowersURI) {
		t.Errorf("Moderator delete must additionally reach the magazine's followers, got cc=%v", del.Cc)
	}
}

func TestPrivateEntryDeleteStaysPrivate(t *testing.T) {
	f := newEngineFixture(t)
	owner, err := f.services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}
	mag, err := f.services.Magazines.CreateLocal("secret", "Secret", "", owner.Id, true)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}
	magActor, err := f.services.Users.GetByID(mag.ActorId)
	if err != nil {
		t.Fatalf("Failed to read magazine actor: %v", err)
	}
	f.addRemoteFollower(t, "carol", magActor)

	entry := &domain.Entry{
		MagazineId: mag.Id, AuthorId: owner.Id, Title: "members only",
		Visibility: domain.VisibilityPrivate,
	}
	if err := f.services.Entries.CreateLocal(entry); err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}
	if err := f.services.Entries.DeleteLocal(entry.Id, owner.Id); err != nil {
		t.Fatalf("Failed to delete entry: %v", err)
	}

	del := f.queuedDelete(t, entry.ObjectURI)
	if slices.Contains(del.To, domain.PublicCollection) || slices.Contains(del.Cc, domain.PublicCollection) {
		t.Errorf("Private entry's Delete must never address the public collection, got to=%v cc=%v", del.To, del.Cc)
	}
	if !slices.Contains(del.To, magActor.FollowersURI) {
		t.Errorf("Private entry's Delete must go to the magazine's followers, got to=%v", del.To)
	}
}
