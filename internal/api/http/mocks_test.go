package http

import (
	"context"

	"github.com/stretchr/testify/mock"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/service"
)

type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) RequestPreview(ctx context.Context, req service.PreviewRequest) (*domain.Reservation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationService) RequestHold(ctx context.Context, customerID, reservationID string) (*domain.Reservation, error) {
	args := m.Called(ctx, customerID, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationService) ConfirmPayment(ctx context.Context, reservationID, transactionID string) (*domain.ConfirmationOutcome, error) {
	args := m.Called(ctx, reservationID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConfirmationOutcome), args.Error(1)
}

func (m *MockReservationService) Cancel(ctx context.Context, customerID, reservationID, reason string) (*domain.Reservation, error) {
	args := m.Called(ctx, customerID, reservationID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationService) Expire(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationService) GetReservation(ctx context.Context, customerID, reservationID string) (*domain.Reservation, *domain.Contract, error) {
	args := m.Called(ctx, customerID, reservationID)
	var res *domain.Reservation
	if args.Get(0) != nil {
		res = args.Get(0).(*domain.Reservation)
	}
	var c *domain.Contract
	if args.Get(1) != nil {
		c = args.Get(1).(*domain.Contract)
	}
	return res, c, args.Error(2)
}

func (m *MockReservationService) StartRental(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationService) CompleteRental(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationService) ExpireDueHolds(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationService) IssueMissingContracts(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationService) ReconcileVehicles(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPaymentListener struct {
	mock.Mock
}

func (m *MockPaymentListener) OnPaymentSignal(ctx context.Context, signal domain.PaymentSignal) (*domain.ConfirmationOutcome, error) {
	args := m.Called(ctx, signal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConfirmationOutcome), args.Error(1)
}

func (m *MockPaymentListener) ReconcilePending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) GetNotifications(ctx context.Context, customerID string, page, pageSize int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, customerID, page, pageSize)
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}

type MockContractRepo struct {
	mock.Mock
}

func (m *MockContractRepo) CreateIfAbsent(ctx context.Context, c *domain.Contract) (*domain.Contract, bool, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.Contract), args.Bool(1), args.Error(2)
}

func (m *MockContractRepo) GetByReservationID(ctx context.Context, reservationID string) (*domain.Contract, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *MockContractRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Contract, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}
