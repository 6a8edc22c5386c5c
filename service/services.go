// Package service holds the domain services the federation engine consumes
// and the surrounding application calls. Every service distinguishes
// local-origin mutations (which publish a domain event for federation) from
// remote-origin appliers (which run under the activity's idempotency marker
// and never re-federate).
package service

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a remote mutation that can never apply, e.g. a
	// Delete aimed at an already purged object.
	ErrConflict = errors.New("domain conflict")
	// ErrPermissionDenied marks a local action that is not eligible for
	// federation, e.g. moderator changes on a remote magazine.
	ErrPermissionDenied = errors.New("permission denied")
)

// Publisher receives domain events for outbound federation. The engine
// implements it; services treat it as fire-and-forget.
type Publisher interface {
	Publish(ev Event) error
}

type Services struct {
	Entries   *EntryService
	Posts     *PostService
	Comments  *CommentService
	Magazines *MagazineService
	Users     *UserService
	Reports   *ReportService
	Votes     *VoteService

	db        *db.DB
	domain    string // public https domain of this instance
	locks     *refLocker
	publisher Publisher
}

func New(database *db.DB, instanceDomain string) *Services {
	s := &Services{
		db:     database,
		domain: instanceDomain,
		locks:  newRefLocker(),
	}
	s.Entries = &EntryService{s: s}
	s.Posts = &PostService{s: s}
	s.Comments = &CommentService{s: s}
	s.Magazines = &MagazineService{s: s}
	s.Users = &UserService{s: s}
	s.Reports = &ReportService{s: s}
	s.Votes = &VoteService{s: s}
	return s
}

// SetPublisher wires the federation engine in after construction; the
// engine itself needs the services first.
func (s *Services) SetPublisher(p Publisher) {
	s.publisher = p
}

// DB exposes the storage handle to the federation engine.
func (s *Services) DB() *db.DB { return s.db }

// Domain is the public domain of this instance.
func (s *Services) Domain() string { return s.domain }

// LockRef serializes appliers touching the same entity. Returns the
// unlock function.
func (s *Services) LockRef(ref domain.Ref) func() {
	return s.locks.lock(ref.Key())
}

// publish hands an event to the engine. Federation is best-effort relative
// to the local mutation: errors other than permission problems are logged,
// not returned.
func (s *Services) publish(ev Event) error {
	if s.publisher == nil {
		return nil
	}
	err := s.publisher.Publish(ev)
	if err != nil && !errors.Is(err, ErrPermissionDenied) {
		log.Warn("Failed to federate event", "event", ev.EventName(), "err", err)
		return nil
	}
	return err
}

func (s *Services) objectURI(path string, id fmt.Stringer) string {
	return fmt.Sprintf("https://%s/%s/%s", s.domain, path, id.String())
}

// mintActivityURI assigns a stable identifier to locally originated
// activity-backed relations (Follow, Like, Block) so a later Undo can
// reference them.
func (s *Services) mintActivityURI() string {
	return fmt.Sprintf("https://%s/activities/%s", s.domain, uuid.New())
}

func mapReadErr(err error) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// refLocker hands out one mutex per entity key, so concurrent appliers on
// the same DomainReference resolve deterministically instead of
// last-applied-wins.
type refLocker struct {
	mu   sync.Mutex
	held map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newRefLocker() *refLocker {
	return &refLocker{held: make(map[string]*refLock)}
}

func (l *refLocker) lock(key string) func() {
	l.mu.Lock()
	rl, ok := l.held[key]
	if !ok {
		rl = &refLock{}
		l.held[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}
