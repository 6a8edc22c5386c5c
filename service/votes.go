package service

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
)

type VoteService struct {
	s *Services
}

func (vs *VoteService) Count(subject domain.Ref) (int, error) {
	err, n := vs.s.db.CountVotes(subject)
	return n, err
}

// Cast records a local favorite. A second vote by the same actor on the
// same subject is a no-op.
func (vs *VoteService) Cast(actorId uuid.UUID, subject domain.Ref) (*domain.Vote, error) {
	unlock := vs.s.LockRef(subject)
	defer unlock()

	err, existing := vs.s.db.ReadVote(actorId, subject)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	v := &domain.Vote{
		Id: uuid.New(), ActorId: actorId, Subject: subject,
		ActivityURI: vs.s.mintActivityURI(), CreatedAt: time.Now(),
	}
	if err := vs.s.db.CreateVote(v); err != nil {
		return nil, err
	}
	return v, vs.s.publish(VoteCast{Vote: v})
}

// Retract removes a local favorite and federates the Undo.
func (vs *VoteService) Retract(actorId uuid.UUID, subject domain.Ref) error {
	unlock := vs.s.LockRef(subject)
	defer unlock()

	err, v := vs.s.db.ReadVote(actorId, subject)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	err = vs.s.db.InTx(func(tx *sql.Tx) error {
		return db.DeleteVoteTx(tx, actorId, subject)
	})
	if err != nil {
		return err
	}
	return vs.s.publish(VoteRetracted{Vote: v})
}

// ApplyRemoteVote records an inbound Like. The unique (actor, subject)
// constraint turns a double vote through two distinct Like URIs into
// ErrConflict rather than a double count.
func (vs *VoteService) ApplyRemoteVote(activityURI string, actorId uuid.UUID, subject domain.Ref) error {
	unlock := vs.s.LockRef(subject)
	defer unlock()

	err, existing := vs.s.db.ReadVote(actorId, subject)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if existing != nil {
		return ErrConflict
	}
	return vs.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertVoteTx(tx, &domain.Vote{
			Id: uuid.New(), ActorId: actorId, Subject: subject,
			ActivityURI: activityURI, CreatedAt: time.Now(),
		})
	})
}

// ApplyRemoteVoteRetraction removes the vote the given Like URI created.
// ErrNotFound signals the Like has not been applied yet.
func (vs *VoteService) ApplyRemoteVoteRetraction(activityURI, likeURI string) error {
	err, v := vs.s.db.ReadVoteByURI(likeURI)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	unlock := vs.s.LockRef(v.Subject)
	defer unlock()

	return vs.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.DeleteVoteByURITx(tx, likeURI)
	})
}
