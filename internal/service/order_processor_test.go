package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/metrics"
	"github.com/sakashimaa/checkout-pipeline/internal/payment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func cartJob(userID, addressID int64, method domain.PaymentMethod, delivery string, lines ...cartLine) *domain.Job {
	job := &domain.Job{
		JobID:         uuid.NewString(),
		UserID:        userID,
		AddressID:     addressID,
		PaymentMethod: method,
		DeliveryPrice: money(delivery),
		EnqueuedAt:    time.Now().UTC(),
	}

	for _, l := range lines {
		job.CartItems = append(job.CartItems, domain.JobCartItem{
			DetailsID: l.lineID,
			Quantity:  l.quantity,
			ProductID: l.productID,
			UnitPrice: money(l.price),
		})
	}

	return job
}

func productJob(userID, addressID, lineID int64, quantity int32) *domain.Job {
	return &domain.Job{
		JobID:         uuid.NewString(),
		UserID:        userID,
		AddressID:     addressID,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		DeliveryPrice: decimal.Zero,
		SingleProduct: &domain.JobProduct{
			DetailsID:    lineID,
			Quantity:     quantity,
			ProductName:  "Mug",
			ProductPrice: money("7.50"),
		},
		EnqueuedAt: time.Now().UTC(),
	}
}

func (s *ServiceSuite) TestProcess_CartCheckoutCreatesOrder() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("T-shirt", "10.00", 5)
	line := cartLine{lineID: lineID, productID: productID, quantity: 2, price: "10.00"}
	s.seedCart(userID, line)

	res, err := s.processor.Process(s.Ctx, cartJob(userID, addressID, domain.PaymentMethodCashOnDelivery, "5.00", line))
	s.Require().NoError(err)
	s.Require().False(res.Duplicate)
	s.Require().Nil(res.PaymentURL)

	order, err := s.repos.Orders.GetOrder(s.Ctx, s.DbPool, res.OrderID)
	s.Require().NoError(err)
	s.Require().Equal("25.00", order.TotalPrice.StringFixed(2))
	s.Require().Equal("25.00", order.TotalPriceAfterDiscount.StringFixed(2))
	s.Require().Equal(domain.OrderStatusPending, order.OrderStatus)
	s.Require().Equal(domain.PaymentStatusUnpaid, order.PaymentStatus)
	s.Require().Len(order.Items, 1)
	s.Require().Equal("T-shirt", order.Items[0].ProductName)
	s.Require().EqualValues(2, order.Items[0].Quantity)

	s.Require().EqualValues(3, s.lineQuantity(lineID))
	s.Require().Zero(s.cartItemCount(userID))
	s.Require().Equal([]domain.NotificationKind{domain.NotificationOrderCreated}, s.notifier.kinds())
}

func (s *ServiceSuite) TestProcess_InsufficientStockChangesNothing() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("T-shirt", "10.00", 1)
	line := cartLine{lineID: lineID, productID: productID, quantity: 2, price: "10.00"}
	s.seedCart(userID, line)

	_, err := s.processor.Process(s.Ctx, cartJob(userID, addressID, domain.PaymentMethodCashOnDelivery, "5.00", line))
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Require().Equal(domain.ClassConflict, domain.Classify(err))

	s.Require().Zero(s.orderCount())
	s.Require().EqualValues(1, s.lineQuantity(lineID))
	s.Require().Equal(1, s.cartItemCount(userID))
	s.Require().Empty(s.notifier.kinds())
}

func (s *ServiceSuite) TestProcess_FailureOnLaterLineRollsBackEarlierReservations() {
	userID, addressID := s.seedUser("buyer@example.com")

	stocks := []int32{3, 3, 0, 3, 3}
	lines := make([]cartLine, 0, len(stocks))
	for _, stock := range stocks {
		lineID, productID := s.seedLine("Sock", "2.00", stock)
		lines = append(lines, cartLine{lineID: lineID, productID: productID, quantity: 1, price: "2.00"})
	}
	s.seedCart(userID, lines...)

	_, err := s.processor.Process(s.Ctx, cartJob(userID, addressID, domain.PaymentMethodCashOnDelivery, "0", lines...))
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	for i, l := range lines {
		s.Require().EqualValues(stocks[i], s.lineQuantity(l.lineID), "line %d", i)
	}
	s.Require().Zero(s.orderCount())
	s.Require().Equal(len(lines), s.cartItemCount(userID))
}

func (s *ServiceSuite) TestProcess_PercentageCouponApplied() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("Jacket", "50.00", 4)
	line := cartLine{lineID: lineID, productID: productID, quantity: 2, price: "50.00"}
	s.seedCart(userID, line)
	couponID := s.seedCoupon("SAVE20", domain.CouponTypePercentage, "20", time.Now().Add(24*time.Hour))

	job := cartJob(userID, addressID, domain.PaymentMethodCashOnDelivery, "0", line)
	job.CouponID = &couponID

	res, err := s.processor.Process(s.Ctx, job)
	s.Require().NoError(err)

	order, err := s.repos.Orders.GetOrder(s.Ctx, s.DbPool, res.OrderID)
	s.Require().NoError(err)
	s.Require().Equal("100.00", order.TotalPrice.StringFixed(2))
	s.Require().Equal("80.00", order.TotalPriceAfterDiscount.StringFixed(2))
	s.Require().Equal(&couponID, order.CouponID)
}

func (s *ServiceSuite) TestProcess_CouponExpiredWhileQueuedRejected() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("Jacket", "50.00", 4)
	s.seedCart(userID, cartLine{lineID: lineID, productID: productID, quantity: 1, price: "50.00"})
	expiry := time.Now().Add(time.Hour)
	couponID := s.seedCoupon("LASTCALL", domain.CouponTypeFixed, "10", expiry)

	accepted, err := s.intake.Submit(s.Ctx, domain.CheckoutRequest{
		UserID:        userID,
		AddressID:     addressID,
		CouponID:      &couponID,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		DeliveryPrice: money("0"),
		FromCart:      true,
	})
	s.Require().NoError(err)

	rows := s.queuedJobs()
	s.Require().Len(rows, 1)

	var job domain.Job
	s.Require().NoError(json.Unmarshal(rows[0].payload, &job))
	s.Require().Equal(accepted.JobID, job.JobID)

	// The job sits in the queue until the coupon has expired.
	s.processor.(*orderProcessor).now = func() time.Time { return expiry.Add(time.Minute) }

	_, err = s.processor.Process(s.Ctx, &job)
	s.Require().ErrorIs(err, domain.ErrInvalidCoupon)
	s.Require().True(domain.Classify(err).Terminal())

	s.Require().Zero(s.orderCount())
	s.Require().EqualValues(4, s.lineQuantity(lineID))
	s.Require().Equal(1, s.cartItemCount(userID))
}

func (s *ServiceSuite) TestProcess_CardPaymentStoresURL() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("Lamp", "30.00", 2)
	line := cartLine{lineID: lineID, productID: productID, quantity: 1, price: "30.00"}
	s.seedCart(userID, line)

	res, err := s.processor.Process(s.Ctx, cartJob(userID, addressID, domain.PaymentMethodCard, "4.50", line))
	s.Require().NoError(err)
	s.Require().NotNil(res.PaymentURL)
	s.Require().Equal("https://pay.example/session", *res.PaymentURL)

	order, err := s.repos.Orders.GetOrder(s.Ctx, s.DbPool, res.OrderID)
	s.Require().NoError(err)
	s.Require().Equal(res.PaymentURL, order.PaymentURL)

	s.Require().Len(s.gateway.requests, 1)
	req := s.gateway.requests[0]
	s.Require().Equal(res.OrderID, req.OrderID)
	s.Require().Equal("buyer@example.com", req.Email)
	s.Require().Equal("34.50", req.Total.StringFixed(2))

	s.Require().Equal([]domain.NotificationKind{
		domain.NotificationOrderCreated,
		domain.NotificationPaymentLinkIssued,
	}, s.notifier.kinds())
}

func (s *ServiceSuite) TestProcess_FullyDiscountedCardOrderSkipsGateway() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("Mug", "10.00", 3)
	line := cartLine{lineID: lineID, productID: productID, quantity: 1, price: "10.00"}
	s.seedCart(userID, line)
	couponID := s.seedCoupon("FREEMUG", domain.CouponTypeFixed, "15", time.Now().Add(24*time.Hour))

	job := cartJob(userID, addressID, domain.PaymentMethodCard, "0", line)
	job.CouponID = &couponID

	res, err := s.processor.Process(s.Ctx, job)
	s.Require().NoError(err)
	s.Require().Nil(res.PaymentURL)
	s.Require().Empty(s.gateway.requests)

	order, err := s.repos.Orders.GetOrder(s.Ctx, s.DbPool, res.OrderID)
	s.Require().NoError(err)
	s.Require().Equal("10.00", order.TotalPrice.StringFixed(2))
	s.Require().Equal("0.00", order.TotalPriceAfterDiscount.StringFixed(2))
	s.Require().Equal(domain.PaymentStatusPaid, order.PaymentStatus)
	s.Require().Nil(order.PaymentURL)
	s.Require().EqualValues(2, s.lineQuantity(lineID))

	s.Require().Equal([]domain.NotificationKind{domain.NotificationOrderCreated}, s.notifier.kinds())
}

func (s *ServiceSuite) TestProcess_PaymentFailureRollsBack() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("Lamp", "30.00", 2)
	line := cartLine{lineID: lineID, productID: productID, quantity: 1, price: "30.00"}
	s.seedCart(userID, line)
	s.gateway.err = errGatewayDown

	_, err := s.processor.Process(s.Ctx, cartJob(userID, addressID, domain.PaymentMethodCard, "0", line))
	s.Require().ErrorIs(err, errGatewayDown)
	s.Require().Equal(domain.ClassTransient, domain.Classify(err))

	s.Require().Zero(s.orderCount())
	s.Require().EqualValues(2, s.lineQuantity(lineID))
	s.Require().Equal(1, s.cartItemCount(userID))
	s.Require().Empty(s.notifier.kinds())
}

type blockingGateway struct{}

func (blockingGateway) ProcessPayment(ctx context.Context, _ payment.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *ServiceSuite) TestProcess_SlowPaymentTimesOut() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, _ := s.seedLine("Lamp", "30.00", 2)

	processor := NewOrderProcessor(
		s.DbPool,
		zap.NewNop(),
		s.repos,
		payment.NewRegistry().Register(domain.PaymentMethodCard, blockingGateway{}),
		s.notifier,
		metrics.New(prometheus.NewRegistry()),
		50*time.Millisecond,
	)

	job := productJob(userID, addressID, lineID, 1)
	job.PaymentMethod = domain.PaymentMethodCard

	_, err := processor.Process(s.Ctx, job)
	s.Require().ErrorIs(err, context.DeadlineExceeded)
	s.Require().Zero(s.orderCount())
	s.Require().EqualValues(2, s.lineQuantity(lineID))
}

func (s *ServiceSuite) TestProcess_RedeliveredJobIsNoop() {
	userID, addressID := s.seedUser("buyer@example.com")
	lineID, productID := s.seedLine("T-shirt", "10.00", 5)
	line := cartLine{lineID: lineID, productID: productID, quantity: 2, price: "10.00"}
	s.seedCart(userID, line)

	job := cartJob(userID, addressID, domain.PaymentMethodCashOnDelivery, "0", line)

	first, err := s.processor.Process(s.Ctx, job)
	s.Require().NoError(err)

	second, err := s.processor.Process(s.Ctx, job)
	s.Require().NoError(err)
	s.Require().True(second.Duplicate)
	s.Require().Equal(first.OrderID, second.OrderID)

	s.Require().Equal(1, s.orderCount())
	s.Require().EqualValues(3, s.lineQuantity(lineID))
	s.Require().Len(s.notifier.kinds(), 1)
}

func (s *ServiceSuite) TestProcess_ConcurrentJobsNeverOversell() {
	const (
		stock = 4
		jobs  = 10
	)

	lineID, _ := s.seedLine("Mug", "7.50", stock)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for i := 0; i < jobs; i++ {
		userID, addressID := s.seedUser(uuid.NewString() + "@example.com")
		job := productJob(userID, addressID, lineID, 1)

		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.processor.Process(context.Background(), job)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(stock, succeeded)
	s.Require().Equal(jobs-stock, rejected)
	s.Require().EqualValues(0, s.lineQuantity(lineID))
	s.Require().Equal(stock, s.orderCount())
}
