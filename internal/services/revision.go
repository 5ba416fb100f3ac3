package services

import (
	"context"
	"time"

	"github.com/songcraft/backend/internal/models"
)

// RevisionService drives the per-project revision sub-machine:
// pending → requested → in_progress → delivered. Slots are consumed in
// ordinal order and at most one revision per project is outstanding.
type RevisionService struct {
	ledger   LedgerStore
	notifier Notifier
	now      func() time.Time
}

func NewRevisionService(ledger LedgerStore, notifier Notifier) *RevisionService {
	return &RevisionService{ledger: ledger, notifier: notifier, now: time.Now}
}

// RequestRevision claims the customer's next unused revision slot. It fails
// when another revision is still outstanding or all purchased slots have
// been delivered.
func (s *RevisionService) RequestRevision(ctx context.Context, projectID, customerID uint, notes string, wantsMeeting bool) (*models.Revision, error) {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.CustomerID != customerID {
		return nil, ErrUnauthorized
	}
	if project.Status != models.ProjectStatusInProgress && project.Status != models.ProjectStatusReview {
		return nil, ErrStateConflict
	}

	revisions, err := s.ledger.ListRevisions(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var next *models.Revision
	for i := range revisions {
		if revisions[i].IsOutstanding() {
			return nil, ErrRevisionOutstanding
		}
		if next == nil && revisions[i].Status == models.RevisionStatusPending {
			next = &revisions[i]
		}
	}
	if next == nil {
		return nil, ErrNoRevisionsRemaining
	}

	requestedAt := s.now()
	err = s.ledger.UpdateRevisionIfStatus(ctx, next.ID,
		[]string{models.RevisionStatusPending},
		map[string]interface{}{
			"status":        models.RevisionStatusRequested,
			"client_notes":  notes,
			"wants_meeting": wantsMeeting,
			"requested_at":  requestedAt,
		})
	if err != nil {
		return nil, err
	}

	if project.ProducerID != nil {
		s.notifier.Send(NotifyRevisionRequested, recipientProducer(*project.ProducerID), map[string]interface{}{
			"project_id":      project.ID,
			"title":           project.Title,
			"revision_number": next.Number,
			"wants_meeting":   wantsMeeting,
		})
	}

	return s.ledger.GetRevision(ctx, next.ID)
}

// StartRevision marks a requested revision as being worked on. The producer
// may attach a meeting link when the customer asked for a call.
func (s *RevisionService) StartRevision(ctx context.Context, revisionID, producerID uint, meetingLink string) (*models.Revision, error) {
	revision, err := s.ledger.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeProducer(ctx, revision.ProjectID, producerID); err != nil {
		return nil, err
	}

	err = s.ledger.UpdateRevisionIfStatus(ctx, revisionID,
		[]string{models.RevisionStatusRequested},
		map[string]interface{}{
			"status":       models.RevisionStatusInProgress,
			"meeting_link": meetingLink,
		})
	if err != nil {
		return nil, err
	}

	return s.ledger.GetRevision(ctx, revisionID)
}

// DeliverRevision completes an in-progress revision with a link to the new
// audio files.
func (s *RevisionService) DeliverRevision(ctx context.Context, revisionID, producerID uint, driveLink string) (*models.Revision, error) {
	revision, err := s.ledger.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	project, err := s.ledger.GetProject(ctx, revision.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.ProducerID == nil || *project.ProducerID != producerID {
		return nil, ErrUnauthorized
	}

	deliveredAt := s.now()
	err = s.ledger.UpdateRevisionIfStatus(ctx, revisionID,
		[]string{models.RevisionStatusInProgress},
		map[string]interface{}{
			"status":       models.RevisionStatusDelivered,
			"drive_link":   driveLink,
			"delivered_at": deliveredAt,
		})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(NotifyRevisionDelivered, recipientCustomer(project.CustomerID), map[string]interface{}{
		"project_id":      project.ID,
		"title":           project.Title,
		"revision_number": revision.Number,
		"drive_link":      driveLink,
	})

	return s.ledger.GetRevision(ctx, revisionID)
}

// SubmitFeedback records the customer's one-shot feedback on a delivered
// revision. A second submission is rejected, never merged.
func (s *RevisionService) SubmitFeedback(ctx context.Context, revisionID, customerID uint, feedback string) error {
	revision, err := s.ledger.GetRevision(ctx, revisionID)
	if err != nil {
		return err
	}
	project, err := s.ledger.GetProject(ctx, revision.ProjectID)
	if err != nil {
		return err
	}
	if project.CustomerID != customerID {
		return ErrUnauthorized
	}

	if err := s.ledger.SetRevisionFeedback(ctx, revisionID, feedback); err != nil {
		return err
	}

	if project.ProducerID != nil {
		s.notifier.Send(NotifyFeedbackSubmitted, recipientProducer(*project.ProducerID), map[string]interface{}{
			"project_id":      project.ID,
			"title":           project.Title,
			"revision_number": revision.Number,
		})
	}
	return nil
}

// ListRevisions returns all revision slots of a project in ordinal order.
func (s *RevisionService) ListRevisions(ctx context.Context, projectID uint) ([]models.Revision, error) {
	return s.ledger.ListRevisions(ctx, projectID)
}

func (s *RevisionService) authorizeProducer(ctx context.Context, projectID, producerID uint) error {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.ProducerID == nil || *project.ProducerID != producerID {
		return ErrUnauthorized
	}
	return nil
}
