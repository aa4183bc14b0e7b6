package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/db"
	"github.com/sakashimaa/checkout-pipeline/pkg/testsuite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type RepositorySuite struct {
	testsuite.BaseSuite

	inventory InventoryRepository
	orders    OrderRepository
	carts     CartRepository
	logger    *zap.Logger
}

func (s *RepositorySuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *RepositorySuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *RepositorySuite) SetupTest() {
	s.TruncateTables("order_items", "orders", "cart_items", "carts", "inventory_lines", "products", "addresses", "users")

	s.logger = zap.NewNop()
	s.inventory = NewInventoryRepository(s.logger)
	s.orders = NewOrderRepository(s.logger)
	s.carts = NewCartRepository(s.logger)
}

func (s *RepositorySuite) seedLine(price string, quantity int32) int64 {
	var productID int64
	err := s.DbPool.QueryRow(s.Ctx,
		`INSERT INTO products (name, price) VALUES ('Hoodie', $1) RETURNING id`,
		decimal.RequireFromString(price),
	).Scan(&productID)
	s.Require().NoError(err)

	var lineID int64
	err = s.DbPool.QueryRow(s.Ctx,
		`INSERT INTO inventory_lines (product_id, color, size, quantity) VALUES ($1, 'black', 'M', $2) RETURNING id`,
		productID, quantity,
	).Scan(&lineID)
	s.Require().NoError(err)

	return lineID
}

func (s *RepositorySuite) lineQuantity(lineID int64) int32 {
	var qty int32
	err := s.DbPool.QueryRow(s.Ctx, `SELECT quantity FROM inventory_lines WHERE id = $1`, lineID).Scan(&qty)
	s.Require().NoError(err)

	return qty
}

func (s *RepositorySuite) TestReserve_DecrementsAndSnapshotsPrice() {
	lineID := s.seedLine("10.00", 5)

	var reservation *domain.Reservation
	err := db.WithTransaction(s.Ctx, s.DbPool, s.logger, func(tx pgx.Tx) error {
		var err error
		reservation, err = s.inventory.Reserve(s.Ctx, tx, lineID, 2)
		return err
	})
	s.Require().NoError(err)

	s.Require().True(decimal.RequireFromString("10.00").Equal(reservation.UnitPrice))
	s.Require().Equal("Hoodie", reservation.ProductName)
	s.Require().EqualValues(3, reservation.Remaining)
	s.Require().EqualValues(3, s.lineQuantity(lineID))
}

func (s *RepositorySuite) TestReserve_InsufficientStockLeavesLineUntouched() {
	lineID := s.seedLine("10.00", 1)

	err := db.WithTransaction(s.Ctx, s.DbPool, s.logger, func(tx pgx.Tx) error {
		_, err := s.inventory.Reserve(s.Ctx, tx, lineID, 2)
		return err
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Require().EqualValues(1, s.lineQuantity(lineID))
}

func (s *RepositorySuite) TestReserve_UnknownLine() {
	err := db.WithTransaction(s.Ctx, s.DbPool, s.logger, func(tx pgx.Tx) error {
		_, err := s.inventory.Reserve(s.Ctx, tx, 4242, 1)
		return err
	})
	s.Require().ErrorIs(err, domain.ErrInventoryLineNotFound)
}

func (s *RepositorySuite) TestReserve_ConcurrentReservationsNeverOversell() {
	const (
		stock   = 7
		workers = 20
	)
	lineID := s.seedLine("4.99", stock)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := db.WithTransaction(context.Background(), s.DbPool, s.logger, func(tx pgx.Tx) error {
				_, err := s.inventory.Reserve(context.Background(), tx, lineID, 1)
				return err
			})

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
	s.Require().Equal(workers-stock, rejected)
	s.Require().EqualValues(0, s.lineQuantity(lineID))
}

func (s *RepositorySuite) TestCreateOrder_DuplicateJobIsReported() {
	var userID, addressID int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `INSERT INTO users (email) VALUES ('a@b.c') RETURNING id`).Scan(&userID))
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `INSERT INTO addresses (user_id) VALUES ($1) RETURNING id`, userID).Scan(&addressID))

	newOrder := func() *domain.Order {
		return &domain.Order{
			JobID:         "5f1d7a64-2a0c-4b7e-8a43-6e2d9c1b0f11",
			UserID:        userID,
			AddressID:     addressID,
			OrderStatus:   domain.OrderStatusPending,
			PaymentMethod: domain.PaymentMethodCashOnDelivery,
			PaymentStatus: domain.PaymentStatusUnpaid,
		}
	}

	for i, want := range []bool{true, false} {
		var created bool
		err := db.WithTransaction(s.Ctx, s.DbPool, s.logger, func(tx pgx.Tx) error {
			var err error
			created, err = s.orders.CreateOrder(s.Ctx, tx, newOrder())
			return err
		})
		s.Require().NoError(err)
		s.Require().Equal(want, created, "attempt %d", i)
	}

	order, err := s.orders.GetOrderByJobID(s.Ctx, s.DbPool, "5f1d7a64-2a0c-4b7e-8a43-6e2d9c1b0f11")
	s.Require().NoError(err)
	s.Require().Equal(domain.PaymentStatusUnpaid, order.PaymentStatus)
}

func (s *RepositorySuite) TestGetCart_MissingCartIsEmpty() {
	cart, err := s.carts.GetCart(s.Ctx, s.DbPool, 999)
	s.Require().NoError(err)
	s.Require().Empty(cart.Items)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}
