package web

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/grovesocial/grove/service"
)

func newTestServices(t *testing.T) *service.Services {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return service.New(database, "grove.example")
}

func TestGetWebFingerNotFound(t *testing.T) {
	result := GetWebFingerNotFound()
	expected := `{"detail":"Not Found"}`
	if result != expected {
		t.Errorf("Expected %s, got %s", expected, result)
	}
}

func TestGetWebfingerResolvesUserAndMagazine(t *testing.T) {
	services := newTestServices(t)
	alice, err := services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := services.Magazines.CreateLocal("golang", "Go", "", alice.Id, false); err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}

	doc, err := GetWebfinger("alice", services)
	if err != nil {
		t.Fatalf("GetWebfinger failed: %v", err)
	}
	var wf webfingerDoc
	if err := json.Unmarshal([]byte(doc), &wf); err != nil {
		t.Fatalf("Webfinger output is not valid JSON: %v", err)
	}
	if wf.Subject != "acct:alice@grove.example" {
		t.Errorf("Expected subject acct:alice@grove.example, got %s", wf.Subject)
	}
	if len(wf.Links) != 1 || wf.Links[0].Href != alice.ActorURI {
		t.Errorf("Expected self link to %s, got %v", alice.ActorURI, wf.Links)
	}

	doc, err = GetWebfinger("golang", services)
	if err != nil {
		t.Fatalf("GetWebfinger failed for magazine: %v", err)
	}
	if !strings.Contains(doc, "https://grove.example/m/golang") {
		t.Errorf("Expected magazine actor URI in %s", doc)
	}

	if _, err := GetWebfinger("nobody", services); err == nil {
		t.Error("Expected error for unknown name")
	}
}

func TestGetUserActorDocument(t *testing.T) {
	services := newTestServices(t)
	if _, err := services.Users.CreateLocal("alice", "Alice"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	doc, err := GetUserActor("alice", services)
	if err != nil {
		t.Fatalf("GetUserActor failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Actor doc is not valid JSON: %v", err)
	}
	if parsed["type"] != "Person" {
		t.Errorf("Expected Person, got %v", parsed["type"])
	}
	if parsed["preferredUsername"] != "alice" {
		t.Errorf("Expected preferredUsername alice, got %v", parsed["preferredUsername"])
	}
	key, ok := parsed["publicKey"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected a publicKey object")
	}
	if !strings.Contains(key["publicKeyPem"].(string), "PUBLIC KEY") {
		t.Error("Expected a PEM public key in the actor doc")
	}
	if parsed["manuallyApprovesFollowers"] != false {
		t.Error("Users must not require manual follower approval")
	}
}

func TestGetMagazineActorApprovalFlag(t *testing.T) {
	services := newTestServices(t)
	alice, err := services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := services.Magazines.CreateLocal("secret", "Secret", "", alice.Id, true); err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}

	doc, err := GetMagazineActor("secret", services)
	if err != nil {
		t.Fatalf("GetMagazineActor failed: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Actor doc is not valid JSON: %v", err)
	}
	if parsed["type"] != "Group" {
		t.Errorf("Expected Group, got %v", parsed["type"])
	}
	if parsed["manuallyApprovesFollowers"] != true {
		t.Error("Private magazines must review follows by hand")
	}
}

func TestGetEntryObjectAndTombstone(t *testing.T) {
	services := newTestServices(t)
	alice, err := services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	mag, err := services.Magazines.CreateLocal("golang", "Go", "", alice.Id, false)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}

	entry := &domain.Entry{
		MagazineId: mag.Id, AuthorId: alice.Id,
		Title: "Generics in practice", Body: "notes",
		Visibility: domain.VisibilityPublic,
	}
	if err := services.Entries.CreateLocal(entry); err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}

	doc, gone, err := GetEntryObject(entry.Id, services)
	if err != nil {
		t.Fatalf("GetEntryObject failed: %v", err)
	}
	if gone {
		t.Fatal("Live entry must not render as tombstone")
	}
	var parsed objectDoc
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Object doc is not valid JSON: %v", err)
	}
	if parsed.Type != "Page" || parsed.Name != "Generics in practice" {
		t.Errorf("Expected Page with title, got %s %q", parsed.Type, parsed.Name)
	}
	if parsed.AttributedTo != alice.ActorURI {
		t.Errorf("Expected attributedTo %s, got %s", alice.ActorURI, parsed.AttributedTo)
	}
	if len(parsed.To) == 0 || parsed.To[0] != domain.PublicCollection {
		t.Errorf("Expected public addressing, got %v", parsed.To)
	}

	// Author delete tombstones, so the URI keeps resolving as 410.
	if err := services.Entries.DeleteLocal(entry.Id, alice.Id); err != nil {
		t.Fatalf("Failed to delete entry: %v", err)
	}
	doc, gone, err = GetEntryObject(entry.Id, services)
	if err != nil {
		t.Fatalf("GetEntryObject on deleted entry failed: %v", err)
	}
	if !gone {
		t.Error("Deleted entry must render as tombstone")
	}
	var stone objectDoc
	if err := json.Unmarshal([]byte(doc), &stone); err != nil {
		t.Fatalf("Tombstone doc is not valid JSON: %v", err)
	}
	if stone.Type != "Tombstone" || stone.FormerType != "Page" {
		t.Errorf("Expected Tombstone of Page, got %s of %s", stone.Type, stone.FormerType)
	}
}

func TestGetEntryObjectPrivateHidden(t *testing.T) {
	services := newTestServices(t)
	alice, err := services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	mag, err := services.Magazines.CreateLocal("secret", "Secret", "", alice.Id, true)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}

	entry := &domain.Entry{
		MagazineId: mag.Id, AuthorId: alice.Id,
		Title: "Members only", Visibility: domain.VisibilityPrivate,
	}
	if err := services.Entries.CreateLocal(entry); err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}

	if _, _, err := GetEntryObject(entry.Id, services); err != ErrNotPublic {
		t.Errorf("Expected ErrNotPublic, got %v", err)
	}
}

func TestGetCommentObjectThreading(t *testing.T) {
	services := newTestServices(t)
	alice, err := services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	mag, err := services.Magazines.CreateLocal("golang", "Go", "", alice.Id, false)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}
	entry := &domain.Entry{
		MagazineId: mag.Id, AuthorId: alice.Id,
		Title: "A title", Visibility: domain.VisibilityPublic,
	}
	if err := services.Entries.CreateLocal(entry); err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}
	comment := &domain.Comment{
		AuthorId: alice.Id, SubjectKind: domain.SubjectEntry, SubjectId: entry.Id,
		Body: "first", Visibility: domain.VisibilityPublic,
	}
	if err := services.Comments.CreateLocal(comment); err != nil {
		t.Fatalf("Failed to create comment: %v", err)
	}

	doc, _, err := GetCommentObject(comment.Id, services)
	if err != nil {
		t.Fatalf("GetCommentObject failed: %v", err)
	}
	var parsed objectDoc
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Object doc is not valid JSON: %v", err)
	}
	if parsed.InReplyTo != entry.ObjectURI {
		t.Errorf("Expected inReplyTo %s, got %s", entry.ObjectURI, parsed.InReplyTo)
	}

	// Deleting a comment leaves a tombstone so threading survives.
	if err := services.Comments.DeleteLocal(comment.Id, alice.Id); err != nil {
		t.Fatalf("Failed to delete comment: %v", err)
	}
	doc, gone, err := GetCommentObject(comment.Id, services)
	if err != nil {
		t.Fatalf("GetCommentObject after delete failed: %v", err)
	}
	if !gone || !strings.Contains(doc, "Tombstone") {
		t.Errorf("Expected tombstone for deleted comment, got gone=%v doc=%s", gone, doc)
	}
}

func TestGetFollowersCollectionCountOnly(t *testing.T) {
	services := newTestServices(t)
	alice, err := services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	bob, err := services.Users.CreateLocal("bob", "Bob")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := services.Users.Follow(bob.Id, alice.Id); err != nil {
		t.Fatalf("Failed to follow: %v", err)
	}

	doc, err := GetFollowersCollection(alice, services)
	if err != nil {
		t.Fatalf("GetFollowersCollection failed: %v", err)
	}
	var parsed collectionDoc
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Collection doc is not valid JSON: %v", err)
	}
	if parsed.TotalItems != 1 {
		t.Errorf("Expected 1 follower, got %d", parsed.TotalItems)
	}
	if strings.Contains(doc, bob.ActorURI) {
		t.Error("Follower list must not leak member URIs")
	}
}

func TestGetRSSListsPublicEntries(t *testing.T) {
	services := newTestServices(t)
	alice, err := services.Users.CreateLocal("alice", "Alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	mag, err := services.Magazines.CreateLocal("golang", "Go", "", alice.Id, false)
	if err != nil {
		t.Fatalf("Failed to create magazine: %v", err)
	}
	entry := &domain.Entry{
		MagazineId: mag.Id, AuthorId: alice.Id,
		Title: "Hello fediverse", Visibility: domain.VisibilityPublic,
	}
	if err := services.Entries.CreateLocal(entry); err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}

	rss, err := GetRSS(services, 10)
	if err != nil {
		t.Fatalf("GetRSS failed: %v", err)
	}
	if !strings.Contains(rss, "<rss") || !strings.Contains(rss, "Hello fediverse") {
		t.Errorf("Expected RSS with the entry title, got %s", rss)
	}
}

func TestGetActorDocRefusesRemote(t *testing.T) {
	remote := &domain.Actor{
		Id: uuid.New(), Type: domain.ActorPerson, Username: "bob",
		Domain: "remote.example", ActorURI: "https://remote.example/u/bob",
	}
	if _, err := GetActorDoc(remote, false); err == nil {
		t.Error("Expected error rendering a remote shadow actor")
	}
}
