package service

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	generalDomain "github.com/sakashimaa/checkout-pipeline/pkg/domain"
)

type queuedRow struct {
	aggregateID string
	eventType   string
	messageKey  string
	topic       string
	payload     []byte
}

func (s *ServiceSuite) queuedJobs() []queuedRow {
	rows, err := s.DbPool.Query(s.Ctx, `SELECT aggregate_id, event_type, message_key, topic, payload FROM outbox ORDER BY id`)
	s.Require().NoError(err)
	defer rows.Close()

	var out []queuedRow
	for rows.Next() {
		var r queuedRow
		s.Require().NoError(rows.Scan(&r.aggregateID, &r.eventType, &r.messageKey, &r.topic, &r.payload))
		out = append(out, r)
	}
	s.Require().NoError(rows.Err())

	return out
}

func (s *ServiceSuite) TestSubmit_QueuesCartJob() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("T-shirt", "10.00", 5)
	s.seedCart(userID, cartLine{lineID: lineID, productID: productID, quantity: 2, price: "10.00"})

	accepted, err := s.intake.Submit(s.Ctx, domain.CheckoutRequest{
		UserID:        userID,
		AddressID:     addressID,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		DeliveryPrice: money("5.00"),
		FromCart:      true,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(accepted.JobID)

	rows := s.queuedJobs()
	s.Require().Len(rows, 1)
	s.Require().Equal(accepted.JobID, rows[0].aggregateID)
	s.Require().Equal(generalDomain.EventCheckoutRequested, rows[0].eventType)
	s.Require().Equal(strconv.FormatInt(userID, 10), rows[0].messageKey)
	s.Require().Equal("checkout_jobs", rows[0].topic)

	var job domain.Job
	s.Require().NoError(json.Unmarshal(rows[0].payload, &job))
	s.Require().Equal(accepted.JobID, job.JobID)
	s.Require().Len(job.CartItems, 1)
	s.Require().Equal(lineID, job.CartItems[0].DetailsID)

	status, err := s.statuses.Get(s.Ctx, accepted.JobID)
	s.Require().NoError(err)
	s.Require().Equal(domain.JobStateQueued, status.State)

	// Nothing is reserved until the worker runs.
	s.Require().EqualValues(5, s.lineQuantity(lineID))
	s.Require().Zero(s.orderCount())

	res, err := s.processor.Process(s.Ctx, &job)
	s.Require().NoError(err)

	order, err := s.repos.Orders.GetOrder(s.Ctx, s.DbPool, res.OrderID)
	s.Require().NoError(err)
	s.Require().Equal("25.00", order.TotalPriceAfterDiscount.StringFixed(2))
	s.Require().Equal(accepted.JobID, order.JobID)
}

func (s *ServiceSuite) TestSubmit_QueuesSingleProductJob() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, _ := s.seedLine("Mug", "7.50", 3)

	accepted, err := s.intake.Submit(s.Ctx, domain.CheckoutRequest{
		UserID:        userID,
		AddressID:     addressID,
		PaymentMethod: domain.PaymentMethodCard,
		Product:       &domain.SingleProductRequest{DetailsID: lineID, Quantity: 2},
	})
	s.Require().NoError(err)

	rows := s.queuedJobs()
	s.Require().Len(rows, 1)

	var job domain.Job
	s.Require().NoError(json.Unmarshal(rows[0].payload, &job))
	s.Require().Equal(accepted.JobID, job.JobID)
	s.Require().NotNil(job.SingleProduct)
	s.Require().Equal("Mug", job.SingleProduct.ProductName)
	s.Require().Equal("7.50", job.SingleProduct.ProductPrice.StringFixed(2))
}

func (s *ServiceSuite) TestSubmit_Rejections() {
	userID, addressID := s.seedUser("buyer@example.com")
	otherUserID, otherAddressID := s.seedUser("other@example.com")
	expiredCouponID := s.seedCoupon("OLD", domain.CouponTypeFixed, "10", time.Now().Add(-time.Hour))
	missing := int64(4242)

	tests := []struct {
		name string
		req  domain.CheckoutRequest
		want error
	}{
		{
			name: "empty cart",
			req:  domain.CheckoutRequest{UserID: userID, AddressID: addressID, PaymentMethod: domain.PaymentMethodCard, FromCart: true},
			want: domain.ErrCartEmpty,
		},
		{
			name: "address of another user",
			req:  domain.CheckoutRequest{UserID: userID, AddressID: otherAddressID, PaymentMethod: domain.PaymentMethodCard, FromCart: true},
			want: domain.ErrAddressNotFound,
		},
		{
			name: "unknown user",
			req:  domain.CheckoutRequest{UserID: otherUserID + 100, AddressID: addressID, PaymentMethod: domain.PaymentMethodCard, FromCart: true},
			want: domain.ErrUserNotFound,
		},
		{
			name: "expired coupon",
			req: domain.CheckoutRequest{
				UserID:        userID,
				AddressID:     addressID,
				PaymentMethod: domain.PaymentMethodCard,
				CouponID:      &expiredCouponID,
				FromCart:      true,
			},
			want: domain.ErrCouponExpired,
		},
		{
			name: "unknown inventory line",
			req: domain.CheckoutRequest{
				UserID:        userID,
				AddressID:     addressID,
				PaymentMethod: domain.PaymentMethodCard,
				Product:       &domain.SingleProductRequest{DetailsID: missing, Quantity: 1},
			},
			want: domain.ErrInventoryLineNotFound,
		},
		{
			name: "both sources",
			req: domain.CheckoutRequest{
				UserID:        userID,
				AddressID:     addressID,
				PaymentMethod: domain.PaymentMethodCard,
				FromCart:      true,
				Product:       &domain.SingleProductRequest{DetailsID: missing, Quantity: 1},
			},
			want: domain.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.intake.Submit(s.Ctx, tt.req)
			s.Require().ErrorIs(err, tt.want)
			s.Require().Equal(domain.ClassValidation, domain.Classify(err))
		})
	}

	s.Require().Empty(s.queuedJobs())
}
