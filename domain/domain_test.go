package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestActorHandle(t *testing.T) {
	local := Actor{Username: "alice", IsLocal: true}
	if local.Handle() != "alice" {
		t.Errorf("Expected 'alice', got '%s'", local.Handle())
	}

	remote := Actor{Username: "bob", Domain: "example.com"}
	if remote.Handle() != "bob@example.com" {
		t.Errorf("Expected 'bob@example.com', got '%s'", remote.Handle())
	}
}

func TestActorBestInbox(t *testing.T) {
	a := Actor{
		InboxURI:       "https://example.com/u/bob/inbox",
		SharedInboxURI: "https://example.com/inbox",
	}
	if a.BestInbox(true) != "https://example.com/inbox" {
		t.Error("Expected shared inbox when preferred and advertised")
	}
	if a.BestInbox(false) != "https://example.com/u/bob/inbox" {
		t.Error("Expected personal inbox when shared not preferred")
	}

	noShared := Actor{InboxURI: "https://example.com/u/bob/inbox"}
	if noShared.BestInbox(true) != "https://example.com/u/bob/inbox" {
		t.Error("Expected personal inbox fallback when no shared inbox")
	}
}

func TestRefKey(t *testing.T) {
	id := uuid.New()
	r := NewRef(RefEntry, id)
	want := "entry:" + id.String()
	if r.Key() != want {
		t.Errorf("Expected '%s', got '%s'", want, r.Key())
	}
	if r.IsZero() {
		t.Error("Populated ref should not be zero")
	}
	if !(Ref{}).IsZero() {
		t.Error("Empty ref should be zero")
	}
}

func TestActorRefKind(t *testing.T) {
	user := Actor{Id: uuid.New(), Type: ActorPerson}
	if user.Ref().Kind != RefUser {
		t.Errorf("Expected user ref, got %s", user.Ref().Kind)
	}
	mag := Actor{Id: uuid.New(), Type: ActorGroup}
	if mag.Ref().Kind != RefMagazine {
		t.Errorf("Expected magazine ref, got %s", mag.Ref().Kind)
	}
}

func TestEntryTombstone(t *testing.T) {
	e := Entry{Id: uuid.New(), Title: "a title"}
	if e.IsDeleted() {
		t.Error("Fresh entry should not be deleted")
	}
	now := time.Now()
	by := uuid.New()
	e.DeletedAt = &now
	e.DeletedBy = &by
	if !e.IsDeleted() {
		t.Error("Tombstoned entry should report deleted")
	}
}

func TestBanScope(t *testing.T) {
	instance := Ban{Id: uuid.New()}
	if !instance.InstanceWide() {
		t.Error("Ban without magazine should be instance-wide")
	}
	magId := uuid.New()
	scoped := Ban{Id: uuid.New(), MagazineId: &magId}
	if scoped.InstanceWide() {
		t.Error("Ban with magazine should be scoped")
	}
}
