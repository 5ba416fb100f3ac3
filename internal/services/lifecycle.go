package services

import (
	"fmt"
	"time"

	"context"

	"github.com/songcraft/backend/internal/config"
	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services/gateway"
	"github.com/songcraft/backend/pkg/logger"
)

// Forward-only status transitions a producer may drive. Cancellation and
// reassignment are the only paths off this line.
var forwardTransitions = map[string]string{
	models.ProjectStatusInProgress: models.ProjectStatusAccepted,
	models.ProjectStatusReview:     models.ProjectStatusInProgress,
	models.ProjectStatusCompleted:  models.ProjectStatusReview,
}

// SettlementResult reports the outcome of a money-moving resolution. An
// AlreadySettled result means the operation was a no-op replay against a
// terminal project and carries the originally recorded amounts.
type SettlementResult struct {
	Action         string `json:"action"` // approved, denied, refunded, reassigned, completed
	RefundCents    int64  `json:"refund_cents,omitempty"`
	RefundPercent  int    `json:"refund_percent,omitempty"`
	PayoutCents    int64  `json:"payout_cents,omitempty"`
	GatewayRef     string `json:"gateway_ref,omitempty"`
	ManualRequired bool   `json:"manual_required,omitempty"`
	AlreadySettled bool   `json:"already_settled,omitempty"`
}

// ProjectLifecycleService owns every project status transition and all money
// movement. Side effects are ordered precondition check → gateway call →
// ledger commit → notification, so a gateway failure never leaves a half
// committed ledger and a ledger failure after a gateway success reconciles
// through the payout record on retry.
type ProjectLifecycleService struct {
	ledger   LedgerStore
	gateway  gateway.PaymentGateway
	notifier Notifier
	policy   SettlementPolicy
	window   time.Duration
	now      func() time.Time
}

func NewProjectLifecycleService(ledger LedgerStore, gw gateway.PaymentGateway, notifier Notifier, cfg *config.SettlementConfig) *ProjectLifecycleService {
	return &ProjectLifecycleService{
		ledger:   ledger,
		gateway:  gw,
		notifier: notifier,
		policy: SettlementPolicy{
			PlatformFeePercent:      cfg.PlatformFeePercent,
			FallbackProgressPercent: cfg.FallbackProgressPercent,
		},
		window: time.Duration(cfg.AcceptanceWindowHours) * time.Hour,
		now:    time.Now,
	}
}

func refundKey(projectID uint) string {
	return fmt.Sprintf("project-%d-refund", projectID)
}

func payoutKey(projectID uint) string {
	return fmt.Sprintf("project-%d-payout", projectID)
}

func reassignKey(projectID, producerID uint) string {
	return fmt.Sprintf("project-%d-reassign-%d", projectID, producerID)
}

// CaptureCompleted handles the payment-captured event: the project leaves
// pending_payment and the producer acceptance window starts. Replaying the
// event with the same payment reference is a no-op.
func (s *ProjectLifecycleService) CaptureCompleted(ctx context.Context, projectID uint, paymentRef string, amountCents int64) error {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	if project.Status != models.ProjectStatusPendingPayment {
		if project.PaymentReference == paymentRef {
			return nil
		}
		return ErrStateConflict
	}

	if amountCents != project.PriceCents {
		return fmt.Errorf("captured amount %d does not match project price %d", amountCents, project.PriceCents)
	}

	deadline := s.now().Add(s.window)
	err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
		[]string{models.ProjectStatusPendingPayment},
		map[string]interface{}{
			"payment_reference":   paymentRef,
			"status":              models.ProjectStatusPaid,
			"acceptance_deadline": deadline,
		})
	if err != nil {
		return err
	}

	s.notifier.Send(NotifyPaymentCaptured, recipientCustomer(project.CustomerID), map[string]interface{}{
		"project_id":          project.ID,
		"title":               project.Title,
		"amount_cents":        amountCents,
		"acceptance_deadline": deadline,
	})
	return nil
}

// ProducerAccept claims a paid project for a producer, clears the deadline
// and instantiates the purchased revision slots.
func (s *ProjectLifecycleService) ProducerAccept(ctx context.Context, projectID, producerID uint) error {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	if project.IsProducerBlocked(producerID) {
		return ErrProducerBlocked
	}

	if project.Status != models.ProjectStatusPaid {
		// The sweep may already have auto-refunded an expired project.
		if project.Status == models.ProjectStatusRefunded && project.RefundReason == models.RefundReasonNoProducerAccepted {
			return ErrAcceptanceWindowExpired
		}
		return ErrStateConflict
	}

	if project.AcceptanceDeadline != nil && s.now().After(*project.AcceptanceDeadline) {
		return ErrAcceptanceWindowExpired
	}

	err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
		[]string{models.ProjectStatusPaid},
		map[string]interface{}{
			"status":              models.ProjectStatusAccepted,
			"producer_id":         producerID,
			"acceptance_deadline": nil,
		})
	if err != nil {
		return err
	}

	revisions := make([]models.Revision, 0, project.RevisionsPurchased)
	for i := 1; i <= project.RevisionsPurchased; i++ {
		revisions = append(revisions, models.Revision{
			ProjectID: projectID,
			Number:    i,
			Status:    models.RevisionStatusPending,
		})
	}
	if err := s.ledger.CreateRevisions(ctx, revisions); err != nil {
		return err
	}

	s.notifier.Send(NotifyProjectAccepted, recipientCustomer(project.CustomerID), map[string]interface{}{
		"project_id":  project.ID,
		"title":       project.Title,
		"producer_id": producerID,
	})
	return nil
}

// AdvanceStatus moves the project one step along
// accepted → in_progress → review → completed. Reaching completed performs
// the full settlement transfer to the producer. Skips and backward moves are
// rejected; repeating the current status is a no-op.
func (s *ProjectLifecycleService) AdvanceStatus(ctx context.Context, projectID, producerID uint, newStatus string) (*SettlementResult, error) {
	expected, ok := forwardTransitions[newStatus]
	if !ok {
		return nil, fmt.Errorf("invalid target status %q: %w", newStatus, ErrStateConflict)
	}

	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.ProducerID == nil {
		return nil, ErrNoProducerAssigned
	}
	if producerID != 0 && *project.ProducerID != producerID {
		return nil, ErrUnauthorized
	}

	if project.Status == newStatus {
		return &SettlementResult{Action: newStatus, AlreadySettled: true}, nil
	}
	if project.Status != expected {
		return nil, ErrStateConflict
	}

	if newStatus == models.ProjectStatusCompleted {
		return s.completeProject(ctx, project)
	}

	err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
		[]string{expected},
		map[string]interface{}{"status": newStatus})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(NotifyStatusAdvanced, recipientCustomer(project.CustomerID), map[string]interface{}{
		"project_id": project.ID,
		"title":      project.Title,
		"status":     newStatus,
	})
	return &SettlementResult{Action: newStatus}, nil
}

// completeProject settles a finished commission in full: producer share is
// transferred, the platform fee retained, both persisted on the project.
func (s *ProjectLifecycleService) completeProject(ctx context.Context, project *models.Project) (*SettlementResult, error) {
	payout, fee := s.policy.SplitFull(project.PriceCents)
	producerID := *project.ProducerID
	key := payoutKey(project.ID)

	result := &SettlementResult{Action: "completed", PayoutCents: payout}

	record, err := s.ledger.GetPayoutRecordByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	paidAt := (*time.Time)(nil)
	switch {
	case record != nil:
		// Transfer already executed on a previous attempt; reconcile the
		// ledger without calling the gateway again.
		result.GatewayRef = record.GatewayRef
		result.ManualRequired = record.Status == models.PayoutStatusManualRequired
		if record.Status == models.PayoutStatusSucceeded {
			t := s.now()
			paidAt = &t
		}
	case payout > 0:
		producer, err := s.ledger.GetUser(ctx, producerID)
		if err != nil {
			return nil, err
		}
		if producer.PayoutVerified && producer.PayoutAccountID != "" {
			ref, err := s.gateway.Transfer(ctx, producer.PayoutAccountID, payout, key)
			if err != nil {
				return nil, err
			}
			result.GatewayRef = ref
			t := s.now()
			paidAt = &t
			if err := s.ledger.CreatePayoutRecord(ctx, &models.PayoutRecord{
				ProjectID:      project.ID,
				ProducerID:     &producerID,
				Kind:           models.PayoutKindTransfer,
				Status:         models.PayoutStatusSucceeded,
				AmountCents:    payout,
				Currency:       project.Currency,
				IdempotencyKey: key,
				GatewayRef:     ref,
				Reason:         "completion_payout",
			}); err != nil {
				return nil, err
			}
		} else {
			// Never drop a payout silently; flag it for manual handling.
			result.ManualRequired = true
			if err := s.ledger.CreatePayoutRecord(ctx, &models.PayoutRecord{
				ProjectID:      project.ID,
				ProducerID:     &producerID,
				Kind:           models.PayoutKindTransfer,
				Status:         models.PayoutStatusManualRequired,
				AmountCents:    payout,
				Currency:       project.Currency,
				IdempotencyKey: key,
				Reason:         "completion_payout",
			}); err != nil {
				return nil, err
			}
		}
	}

	err = s.ledger.UpdateProjectIfStatus(ctx, project.ID,
		[]string{models.ProjectStatusReview},
		map[string]interface{}{
			"status":                models.ProjectStatusCompleted,
			"producer_payout_cents": payout,
			"platform_fee_cents":    fee,
			"producer_paid_at":      paidAt,
		})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(NotifyProducerPaid, recipientProducer(producerID), map[string]interface{}{
		"project_id":      project.ID,
		"title":           project.Title,
		"payout_cents":    payout,
		"manual_required": result.ManualRequired,
	})
	return result, nil
}

// RequestCancellation puts a customer's project into cancellation_requested
// and returns the advisory refund percentage for the human reviewer. No
// money moves here.
func (s *ProjectLifecycleService) RequestCancellation(ctx context.Context, projectID, requesterID uint, reason string) (int, error) {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}

	if project.CustomerID != requesterID {
		return 0, ErrUnauthorized
	}

	delivered, err := s.ledger.CountDeliveredRevisions(ctx, projectID)
	if err != nil {
		return 0, err
	}
	recommended := RecommendedRefundPercent(project.ProducerID != nil, delivered, project.RevisionsPurchased)

	if project.Status == models.ProjectStatusCancellationRequested {
		return recommended, nil
	}

	err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
		[]string{models.ProjectStatusAccepted, models.ProjectStatusInProgress, models.ProjectStatusReview},
		map[string]interface{}{
			"status":              models.ProjectStatusCancellationRequested,
			"cancellation_reason": reason,
		})
	if err != nil {
		return 0, err
	}

	s.notifier.Send(NotifyCancellationRequested, recipientAdmins(), map[string]interface{}{
		"project_id":          project.ID,
		"title":               project.Title,
		"reason":              reason,
		"recommended_percent": recommended,
	})
	return recommended, nil
}

// ResolveCancellation applies or denies a pending cancellation. Approval
// refunds refundPercent of the price through the gateway and moves the
// project to refunded. Calling it again on an already refunded project
// returns the recorded outcome without a second gateway call.
func (s *ProjectLifecycleService) ResolveCancellation(ctx context.Context, projectID uint, approve bool, refundPercent int, reviewerIsAdmin bool) (*SettlementResult, error) {
	if !reviewerIsAdmin {
		return nil, ErrUnauthorized
	}

	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.Status == models.ProjectStatusRefunded {
		result := &SettlementResult{Action: "approved", AlreadySettled: true}
		if project.RefundPercent != nil {
			result.RefundPercent = *project.RefundPercent
		}
		if record, err := s.ledger.GetPayoutRecordByKey(ctx, refundKey(projectID)); err == nil && record != nil {
			result.RefundCents = record.AmountCents
			result.GatewayRef = record.GatewayRef
		}
		return result, nil
	}

	if project.Status != models.ProjectStatusCancellationRequested {
		return nil, ErrStateConflict
	}

	if !approve {
		err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
			[]string{models.ProjectStatusCancellationRequested},
			map[string]interface{}{"status": models.ProjectStatusInProgress})
		if err != nil {
			return nil, err
		}
		s.notifier.Send(NotifyCancellationDenied, recipientCustomer(project.CustomerID), map[string]interface{}{
			"project_id": project.ID,
			"title":      project.Title,
		})
		return &SettlementResult{Action: "denied"}, nil
	}

	if refundPercent < 0 || refundPercent > 100 {
		return nil, fmt.Errorf("refund percent %d out of range", refundPercent)
	}

	amount := RefundAmount(project.PriceCents, refundPercent)
	key := refundKey(projectID)
	result := &SettlementResult{Action: "approved", RefundCents: amount, RefundPercent: refundPercent}

	record, err := s.ledger.GetPayoutRecordByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	switch {
	case record != nil:
		result.GatewayRef = record.GatewayRef
	case amount > 0:
		ref, err := s.gateway.Refund(ctx, project.PaymentReference, amount, key)
		if err != nil {
			return nil, err
		}
		result.GatewayRef = ref
		if err := s.ledger.CreatePayoutRecord(ctx, &models.PayoutRecord{
			ProjectID:      project.ID,
			Kind:           models.PayoutKindRefund,
			Status:         models.PayoutStatusSucceeded,
			AmountCents:    amount,
			Currency:       project.Currency,
			IdempotencyKey: key,
			GatewayRef:     ref,
			Reason:         models.RefundReasonCancellation,
		}); err != nil {
			return nil, err
		}
	}

	now := s.now()
	err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
		[]string{models.ProjectStatusCancellationRequested},
		map[string]interface{}{
			"status":         models.ProjectStatusRefunded,
			"refunded_at":    now,
			"refund_percent": refundPercent,
			"refund_reason":  models.RefundReasonCancellation,
		})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(NotifyCancellationApproved, recipientCustomer(project.CustomerID), map[string]interface{}{
		"project_id":     project.ID,
		"title":          project.Title,
		"refund_cents":   amount,
		"refund_percent": refundPercent,
	})
	return result, nil
}

// ReassignProducer removes the assigned producer, pays out their delivered
// share, blocks them from re-accepting and puts the project back on the
// market with a fresh acceptance deadline.
func (s *ProjectLifecycleService) ReassignProducer(ctx context.Context, projectID uint, reason string, reviewerIsAdmin bool) (*SettlementResult, error) {
	if !reviewerIsAdmin {
		return nil, ErrUnauthorized
	}

	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.ProducerID == nil {
		return nil, ErrNoProducerAssigned
	}
	if project.IsTerminal() {
		return nil, ErrStateConflict
	}

	outgoing := *project.ProducerID
	delivered, err := s.ledger.CountDeliveredRevisions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payout := s.policy.ProratedPayout(project.PriceCents, delivered, project.RevisionsPurchased)
	key := reassignKey(projectID, outgoing)

	result := &SettlementResult{Action: "reassigned", PayoutCents: payout}

	record, err := s.ledger.GetPayoutRecordByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil {
		result.GatewayRef = record.GatewayRef
		result.ManualRequired = record.Status == models.PayoutStatusManualRequired
	} else if payout > 0 {
		producer, err := s.ledger.GetUser(ctx, outgoing)
		if err != nil {
			return nil, err
		}
		if producer.PayoutVerified && producer.PayoutAccountID != "" {
			ref, err := s.gateway.Transfer(ctx, producer.PayoutAccountID, payout, key)
			if err != nil {
				return nil, err
			}
			result.GatewayRef = ref
			if err := s.ledger.CreatePayoutRecord(ctx, &models.PayoutRecord{
				ProjectID:      project.ID,
				ProducerID:     &outgoing,
				Kind:           models.PayoutKindTransfer,
				Status:         models.PayoutStatusSucceeded,
				AmountCents:    payout,
				Currency:       project.Currency,
				IdempotencyKey: key,
				GatewayRef:     ref,
				Reason:         "reassignment_payout",
			}); err != nil {
				return nil, err
			}
		} else {
			result.ManualRequired = true
			if err := s.ledger.CreatePayoutRecord(ctx, &models.PayoutRecord{
				ProjectID:      project.ID,
				ProducerID:     &outgoing,
				Kind:           models.PayoutKindTransfer,
				Status:         models.PayoutStatusManualRequired,
				AmountCents:    payout,
				Currency:       project.Currency,
				IdempotencyKey: key,
				Reason:         "reassignment_payout",
			}); err != nil {
				return nil, err
			}
		}
	}

	deadline := s.now().Add(s.window)
	err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
		[]string{
			models.ProjectStatusAccepted,
			models.ProjectStatusInProgress,
			models.ProjectStatusReview,
			models.ProjectStatusCancellationRequested,
		},
		map[string]interface{}{
			"status":                models.ProjectStatusPaid,
			"producer_id":           nil,
			"blocked_producer_ids":  project.WithBlockedProducer(outgoing),
			"acceptance_deadline":   deadline,
			"producer_payout_cents": nil,
			"platform_fee_cents":    nil,
		})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(NotifyProducerChanged, recipientCustomer(project.CustomerID), map[string]interface{}{
		"project_id":      project.ID,
		"title":           project.Title,
		"reason":          reason,
		"payout_cents":    payout,
		"manual_required": result.ManualRequired,
	})
	return result, nil
}

// AutoRefundExpired is the sweep-only path for projects whose acceptance
// deadline passed without a producer claiming them. It follows the same
// settlement path as a 100% cancellation approval, system initiated.
func (s *ProjectLifecycleService) AutoRefundExpired(ctx context.Context, projectID uint) error {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	if project.Status == models.ProjectStatusRefunded {
		return nil
	}
	if project.Status != models.ProjectStatusPendingPayment && project.Status != models.ProjectStatusPaid {
		return ErrStateConflict
	}
	if project.AcceptanceDeadline == nil || !s.now().After(*project.AcceptanceDeadline) {
		return ErrStateConflict
	}

	key := refundKey(projectID)
	record, err := s.ledger.GetPayoutRecordByKey(ctx, key)
	if err != nil {
		return err
	}
	// Nothing was captured for a project still pending payment, so there is
	// nothing to send back through the gateway.
	if record == nil && project.PaymentReference != "" {
		ref, err := s.gateway.Refund(ctx, project.PaymentReference, project.PriceCents, key)
		if err != nil {
			return err
		}
		if err := s.ledger.CreatePayoutRecord(ctx, &models.PayoutRecord{
			ProjectID:      project.ID,
			Kind:           models.PayoutKindRefund,
			Status:         models.PayoutStatusSucceeded,
			AmountCents:    project.PriceCents,
			Currency:       project.Currency,
			IdempotencyKey: key,
			GatewayRef:     ref,
			Reason:         models.RefundReasonNoProducerAccepted,
		}); err != nil {
			return err
		}
	}

	now := s.now()
	err = s.ledger.UpdateProjectIfStatus(ctx, projectID,
		[]string{models.ProjectStatusPendingPayment, models.ProjectStatusPaid},
		map[string]interface{}{
			"status":         models.ProjectStatusRefunded,
			"refunded_at":    now,
			"refund_percent": 100,
			"refund_reason":  models.RefundReasonNoProducerAccepted,
		})
	if err != nil {
		// A producer acceptance raced the sweep and won; keep the losing
		// side visible in the audit trail.
		logger.Warn().Uint("project_id", projectID).Err(err).Msg("auto refund lost the race")
		LogWarning("settlement", "auto_refund_conflict",
			fmt.Sprintf("auto refund of project %d skipped: %v", projectID, err), nil, "", "", nil)
		return err
	}

	s.notifier.Send(NotifyDeadlineExpired, recipientCustomer(project.CustomerID), map[string]interface{}{
		"project_id":   project.ID,
		"title":        project.Title,
		"refund_cents": project.PriceCents,
	})
	return nil
}

// RecommendedRefund recomputes the advisory refund percentage for display.
func (s *ProjectLifecycleService) RecommendedRefund(ctx context.Context, projectID uint) (int, error) {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	delivered, err := s.ledger.CountDeliveredRevisions(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return RecommendedRefundPercent(project.ProducerID != nil, delivered, project.RevisionsPurchased), nil
}
