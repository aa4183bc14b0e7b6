package service

import (
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
)

func (s *ServiceSuite) cardOrder() int64 {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, _ := s.seedLine("Lamp", "30.00", 2)

	job := productJob(userID, addressID, lineID, 1)
	job.PaymentMethod = domain.PaymentMethodCard

	res, err := s.processor.Process(s.Ctx, job)
	s.Require().NoError(err)

	return res.OrderID
}

func (s *ServiceSuite) paymentStatus(orderID int64) domain.PaymentStatus {
	order, err := s.repos.Orders.GetOrder(s.Ctx, s.DbPool, orderID)
	s.Require().NoError(err)
	return order.PaymentStatus
}

func (s *ServiceSuite) TestReconcile_SucceededMarksPaidOnce() {
	orderID := s.cardOrder()
	before := len(s.notifier.kinds())

	event := &domain.PaymentEvent{EventID: "evt_paid", OrderID: orderID, Outcome: domain.PaymentOutcomeSucceeded}

	s.Require().NoError(s.reconciler.Reconcile(s.Ctx, event))
	s.Require().Equal(domain.PaymentStatusPaid, s.paymentStatus(orderID))

	s.Require().NoError(s.reconciler.Reconcile(s.Ctx, event))
	s.Require().Equal(domain.PaymentStatusPaid, s.paymentStatus(orderID))

	kinds := s.notifier.kinds()[before:]
	s.Require().Equal([]domain.NotificationKind{domain.NotificationPaymentSucceeded}, kinds)
}

func (s *ServiceSuite) TestReconcile_FailureAfterPaidKeepsPaid() {
	orderID := s.cardOrder()

	s.Require().NoError(s.reconciler.Reconcile(s.Ctx, &domain.PaymentEvent{
		EventID: "evt_paid",
		OrderID: orderID,
		Outcome: domain.PaymentOutcomeSucceeded,
	}))
	before := len(s.notifier.kinds())

	s.Require().NoError(s.reconciler.Reconcile(s.Ctx, &domain.PaymentEvent{
		EventID: "evt_late_failure",
		OrderID: orderID,
		Outcome: domain.PaymentOutcomeFailed,
	}))

	s.Require().Equal(domain.PaymentStatusPaid, s.paymentStatus(orderID))
	s.Require().Len(s.notifier.kinds(), before)
}

func (s *ServiceSuite) TestReconcile_FailedThenPaid() {
	orderID := s.cardOrder()

	s.Require().NoError(s.reconciler.Reconcile(s.Ctx, &domain.PaymentEvent{
		EventID: "evt_failed",
		OrderID: orderID,
		Outcome: domain.PaymentOutcomeFailed,
	}))
	s.Require().Equal(domain.PaymentStatusFailed, s.paymentStatus(orderID))

	s.Require().NoError(s.reconciler.Reconcile(s.Ctx, &domain.PaymentEvent{
		EventID: "evt_retry_paid",
		OrderID: orderID,
		Outcome: domain.PaymentOutcomeSucceeded,
	}))
	s.Require().Equal(domain.PaymentStatusPaid, s.paymentStatus(orderID))
}

func (s *ServiceSuite) TestReconcile_UnknownOrderIsNotClaimed() {
	event := &domain.PaymentEvent{EventID: "evt_early", OrderID: 9999, Outcome: domain.PaymentOutcomeSucceeded}

	err := s.reconciler.Reconcile(s.Ctx, event)
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)

	var claimed int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT COUNT(*) FROM processed_events WHERE event_id = $1`, event.EventID,
	).Scan(&claimed))
	s.Require().Zero(claimed)
}
