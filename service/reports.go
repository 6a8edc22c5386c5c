package service

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/grovesocial/grove/db"
	"github.com/grovesocial/grove/domain"
)

type ReportService struct {
	s *Services
}

func (rs *ReportService) GetByID(id uuid.UUID) (*domain.Report, error) {
	err, r := rs.s.db.ReadReportById(id)
	return r, mapReadErr(err)
}

// File opens a report on a piece of content and federates it to the
// moderators responsible for the subject.
func (rs *ReportService) File(reporterId uuid.UUID, subject domain.Ref, reason string) (*domain.Report, error) {
	r := &domain.Report{
		Id: uuid.New(), ReporterId: reporterId, Subject: subject,
		Reason: reason, Status: domain.ReportOpen,
		ActivityURI: rs.s.mintActivityURI(), CreatedAt: time.Now(),
	}
	if err := rs.s.db.CreateReport(r); err != nil {
		return nil, err
	}
	return r, rs.s.publish(ReportFiled{Report: r})
}

// Resolve closes a report; moderators of the subject's magazine only.
func (rs *ReportService) Resolve(id, byActorId uuid.UUID, status domain.ReportStatus) error {
	r, err := rs.GetByID(id)
	if err != nil {
		return err
	}
	ok, err := rs.canModerateSubject(r.Subject, byActorId)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return rs.s.db.UpdateReportStatus(id, status)
}

func (rs *ReportService) canModerateSubject(subject domain.Ref, actorId uuid.UUID) (bool, error) {
	switch subject.Kind {
	case domain.RefEntry:
		e, err := rs.s.Entries.GetByID(subject.Id)
		if err != nil {
			return false, err
		}
		return rs.s.Magazines.CanModerate(e.MagazineId, actorId)
	case domain.RefComment:
		c, err := rs.s.Comments.GetByID(subject.Id)
		if err != nil {
			return false, err
		}
		return rs.s.Comments.canModerateSubject(c, actorId)
	default:
		return false, nil
	}
}

// ApplyRemoteFlag stores an inbound Flag as an open report.
func (rs *ReportService) ApplyRemoteFlag(activityURI string, reporterId uuid.UUID, subject domain.Ref, reason string) error {
	return rs.s.db.ApplyOnce(activityURI, func(tx *sql.Tx) error {
		return db.InsertReportTx(tx, &domain.Report{
			Id: uuid.New(), ReporterId: reporterId, Subject: subject,
			Reason: reason, Status: domain.ReportOpen,
			ActivityURI: activityURI, CreatedAt: time.Now(),
		})
	})
}
