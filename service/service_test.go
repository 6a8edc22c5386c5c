package service

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	events []Event
}

func (p *capturePublisher) Publish(ev Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) last() Event {
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

func newTestServices(t *testing.T) (*Services, *capturePublisher) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	s := New(database, "grove.example")
	pub := &capturePublisher{}
	s.SetPublisher(pub)
	return s, pub
}

// newFixture creates a local user, a magazine owned by them, and the
// magazine's Group actor.
func newFixture(t *testing.T, s *Services) (owner *domain.Actor, mag *domain.Magazine) {
	t.Helper()
	owner, err := s.Users.CreateLocal("alice", "Alice")
	require.NoError(t, err)
	mag, err = s.Magazines.CreateLocal("golang", "Go", "All things Go", owner.Id, false)
	require.NoError(t, err)
	return owner, mag
}

func TestCreateLocalEntryMintsURIAndFederates(t *testing.T) {
	s, pub := newTestServices(t)
	owner, mag := newFixture(t, s)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "hello"}
	require.NoError(t, s.Entries.CreateLocal(e))

	assert.Equal(t, "https://grove.example/e/"+e.Id.String(), e.ObjectURI)
	created, ok := pub.last().(EntryCreated)
	require.True(t, ok, "expected EntryCreated, got %T", pub.last())
	assert.Equal(t, e.Id, created.Entry.Id)
}

func TestDeleteLocalEntryTombstonesForAuthorAndModerator(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)
	author, err := s.Users.CreateLocal("bob", "Bob")
	require.NoError(t, err)

	byAuthor := &domain.Entry{MagazineId: mag.Id, AuthorId: author.Id, Title: "mine"}
	require.NoError(t, s.Entries.CreateLocal(byAuthor))
	require.NoError(t, s.Entries.DeleteLocal(byAuthor.Id, author.Id))
	got, err := s.Entries.GetByID(byAuthor.Id)
	require.NoError(t, err, "author delete keeps the row resolvable")
	assert.True(t, got.IsDeleted(), "author delete leaves a tombstone")
	assert.Equal(t, author.Id, *got.DeletedBy)

	byMod := &domain.Entry{MagazineId: mag.Id, AuthorId: author.Id, Title: "theirs"}
	require.NoError(t, s.Entries.CreateLocal(byMod))
	require.NoError(t, s.Entries.DeleteLocal(byMod.Id, owner.Id))
	got, err = s.Entries.GetByID(byMod.Id)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted(), "moderator delete leaves a tombstone")
	assert.Equal(t, owner.Id, *got.DeletedBy)
}

func TestPurgeEntryRequiresTombstoneFirst(t *testing.T) {
	s, _ := newTestServices(t)
	_, mag := newFixture(t, s)
	author, err := s.Users.CreateLocal("bob", "Bob")
	require.NoError(t, err)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: author.Id, Title: "ephemeral"}
	require.NoError(t, s.Entries.CreateLocal(e))

	assert.ErrorIs(t, s.Entries.Purge(e.Id, author.Id), ErrConflict, "live entries cannot be purged")

	require.NoError(t, s.Entries.DeleteLocal(e.Id, author.Id))
	require.NoError(t, s.Entries.Purge(e.Id, author.Id))
	_, err = s.Entries.GetByID(e.Id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLocalPostTombstones(t *testing.T) {
	s, _ := newTestServices(t)
	author, err := s.Users.CreateLocal("bob", "Bob")
	require.NoError(t, err)

	p := &domain.Post{AuthorId: author.Id, Body: "hello"}
	require.NoError(t, s.Posts.CreateLocal(p))
	require.NoError(t, s.Posts.DeleteLocal(p.Id, author.Id))

	got, err := s.Posts.GetByID(p.Id)
	require.NoError(t, err, "deleted post stays resolvable")
	assert.True(t, got.IsDeleted())

	require.NoError(t, s.Posts.Purge(p.Id, author.Id))
	_, err = s.Posts.GetByID(p.Id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLocalEntryStrangerDenied(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)
	stranger, err := s.Users.CreateLocal("mallory", "Mallory")
	require.NoError(t, err)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "x"}
	require.NoError(t, s.Entries.CreateLocal(e))
	assert.ErrorIs(t, s.Entries.DeleteLocal(e.Id, stranger.Id), ErrPermissionDenied)
}

func TestBannedAuthorCannotPost(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)
	author, err := s.Users.CreateLocal("bob", "Bob")
	require.NoError(t, err)

	_, err = s.Magazines.IssueBan(author.Id, owner.Id, &mag.Id, "spam", nil)
	require.NoError(t, err)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: author.Id, Title: "spam"}
	assert.ErrorIs(t, s.Entries.CreateLocal(e), ErrPermissionDenied)
}

func TestPrivateMagazineAudienceNeverPublic(t *testing.T) {
	s, _ := newTestServices(t)
	owner, err := s.Users.CreateLocal("alice", "Alice")
	require.NoError(t, err)
	mag, err := s.Magazines.CreateLocal("secret", "Secret", "", owner.Id, true)
	require.NoError(t, err)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "quiet"}
	require.NoError(t, s.Entries.CreateLocal(e))

	to, cc, err := s.Entries.Audience(e)
	require.NoError(t, err)
	for _, uri := range append(to, cc...) {
		assert.NotEqual(t, domain.PublicCollection, uri)
	}
}

func TestPublicEntryAudienceIncludesPublic(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "loud"}
	require.NoError(t, s.Entries.CreateLocal(e))

	to, _, err := s.Entries.Audience(e)
	require.NoError(t, err)
	assert.Contains(t, to, domain.PublicCollection)
}

func TestCommentBlockedOnLockedThread(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "t"}
	require.NoError(t, s.Entries.CreateLocal(e))
	require.NoError(t, s.Comments.SetThreadLock(e.Ref(), owner.Id, true))

	c := &domain.Comment{AuthorId: owner.Id, SubjectKind: domain.SubjectEntry, SubjectId: e.Id, Body: "late"}
	assert.ErrorIs(t, s.Comments.CreateLocal(c), ErrPermissionDenied)

	remote := s.Comments.ApplyRemoteCreate("https://remote.example/activities/9", &domain.Comment{
		AuthorId: owner.Id, SubjectKind: domain.SubjectEntry, SubjectId: e.Id,
		Body: "also late", ObjectURI: "https://remote.example/c/9",
		Visibility: domain.VisibilityPublic,
	})
	assert.ErrorIs(t, remote, ErrConflict)
}

func TestVoteCastIdempotentLocally(t *testing.T) {
	s, pub := newTestServices(t)
	owner, mag := newFixture(t, s)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "t"}
	require.NoError(t, s.Entries.CreateLocal(e))

	v1, err := s.Votes.Cast(owner.Id, e.Ref())
	require.NoError(t, err)
	v2, err := s.Votes.Cast(owner.Id, e.Ref())
	require.NoError(t, err)
	assert.Equal(t, v1.Id, v2.Id, "second cast returns the existing vote")

	n, err := s.Votes.Count(e.Ref())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	casts := 0
	for _, ev := range pub.events {
		if _, ok := ev.(VoteCast); ok {
			casts++
		}
	}
	assert.Equal(t, 1, casts)
}

func TestApplyRemoteVoteRejectsSecondURISameActor(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "t"}
	require.NoError(t, s.Entries.CreateLocal(e))

	voter, err := s.Users.CreateLocal("carol", "Carol")
	require.NoError(t, err)

	require.NoError(t, s.Votes.ApplyRemoteVote("https://remote.example/likes/1", voter.Id, e.Ref()))
	err = s.Votes.ApplyRemoteVote("https://remote.example/likes/2", voter.Id, e.Ref())
	assert.ErrorIs(t, err, ErrConflict)

	n, err := s.Votes.Count(e.Ref())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVoteRetractionBeforeVoteIsNotFound(t *testing.T) {
	s, _ := newTestServices(t)

	err := s.Votes.ApplyRemoteVoteRetraction("https://remote.example/undo/1", "https://remote.example/likes/404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFollowLocalTargetApprovesImmediately(t *testing.T) {
	s, pub := newTestServices(t)
	alice, err := s.Users.CreateLocal("alice", "Alice")
	require.NoError(t, err)
	bob, err := s.Users.CreateLocal("bob", "Bob")
	require.NoError(t, err)

	sub, err := s.Users.Follow(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.True(t, sub.Approved)
	for _, ev := range pub.events {
		_, ok := ev.(SubscriptionRequested)
		assert.False(t, ok, "local follow must not federate")
	}
}

func TestFollowUndoBeforeFollowIsNotFound(t *testing.T) {
	s, _ := newTestServices(t)

	err := s.Users.ApplyRemoteFollowUndo("https://remote.example/undo/2", "https://remote.example/follows/404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyRemoteDeleteIdempotent(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)

	e := &domain.Entry{MagazineId: mag.Id, AuthorId: owner.Id, Title: "t"}
	require.NoError(t, s.Entries.CreateLocal(e))

	uri := "https://remote.example/activities/del-1"
	require.NoError(t, s.Entries.ApplyRemoteDelete(uri, e.Id, owner.Id))
	err := s.Entries.ApplyRemoteDelete(uri, e.Id, owner.Id)
	assert.ErrorIs(t, err, db.ErrAlreadyProcessed)

	got, err := s.Entries.GetByID(e.Id)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
}

func TestRemoteBanLiftRestoresAccess(t *testing.T) {
	s, _ := newTestServices(t)
	owner, mag := newFixture(t, s)
	target, err := s.Users.CreateLocal("bob", "Bob")
	require.NoError(t, err)

	// A lift arriving before its Block is not applicable yet; the caller
	// defers it.
	err = s.Magazines.ApplyRemoteBanLift(
		"https://remote.example/activities/undo-404",
		"https://remote.example/activities/block-404")
	assert.ErrorIs(t, err, ErrNotFound)

	blockURI := "https://remote.example/activities/block-1"
	ban := &domain.Ban{
		BannedActorId: target.Id, IssuedById: owner.Id,
		MagazineId: &mag.Id, Reason: "spam",
	}
	require.NoError(t, s.Magazines.ApplyRemoteBan(blockURI, ban))
	banned, err := s.Magazines.IsBanned(target.Id, &mag.Id)
	require.NoError(t, err)
	assert.True(t, banned)

	require.NoError(t, s.Magazines.ApplyRemoteBanLift("https://remote.example/activities/undo-1", blockURI))
	banned, err = s.Magazines.IsBanned(target.Id, &mag.Id)
	require.NoError(t, err)
	assert.False(t, banned, "lifting the ban restores access")

	// Replaying the lift finds nothing left to undo.
	err = s.Magazines.ApplyRemoteBanLift("https://remote.example/activities/undo-2", blockURI)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModeratorChangeOnRemoteMagazineDenied(t *testing.T) {
	s, _ := newTestServices(t)
	owner, err := s.Users.CreateLocal("alice", "Alice")
	require.NoError(t, err)

	// Shadow a remote magazine: remote Group actor plus magazine row.
	remoteActor := &domain.Actor{
		Id: uuid.New(), Type: domain.ActorGroup, Username: "elsewhere",
		Domain: "remote.example", ActorURI: "https://remote.example/m/elsewhere",
		InboxURI: "https://remote.example/m/elsewhere/inbox", IsLocal: false,
	}
	require.NoError(t, s.DB().CreateActor(remoteActor))
	mag := &domain.Magazine{Id: uuid.New(), ActorId: remoteActor.Id, OwnerId: owner.Id, Name: "elsewhere"}
	require.NoError(t, s.DB().CreateMagazine(mag))

	err = s.Magazines.AddModerator(mag.Id, owner.Id, owner.Id)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
