package testutil

import (
	"context"

	"github.com/poyrazK/authbroker/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockRepo implements ports.AuthIDRepository with testify expectations.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, id string, customerID, label *string) (*domain.AuthID, error) {
	args := m.Called(id, customerID, label)
	rec, _ := args.Get(0).(*domain.AuthID)
	return rec, args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*domain.AuthID, error) {
	args := m.Called(id)
	rec, _ := args.Get(0).(*domain.AuthID)
	return rec, args.Error(1)
}

func (m *MockRepo) List(ctx context.Context) ([]domain.AuthID, error) {
	args := m.Called()
	recs, _ := args.Get(0).([]domain.AuthID)
	return recs, args.Error(1)
}

func (m *MockRepo) SetActive(ctx context.Context, id string, active bool) (*domain.AuthID, error) {
	args := m.Called(id, active)
	rec, _ := args.Get(0).(*domain.AuthID)
	return rec, args.Error(1)
}

func (m *MockRepo) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepo) Close() error {
	return nil
}

// MockService implements ports.AuthIDService with testify expectations.
type MockService struct {
	mock.Mock
}

func (m *MockService) Issue(ctx context.Context, customerID, label *string) (*domain.AuthID, error) {
	args := m.Called(customerID, label)
	rec, _ := args.Get(0).(*domain.AuthID)
	return rec, args.Error(1)
}

func (m *MockService) Get(ctx context.Context, id string) (*domain.AuthID, error) {
	args := m.Called(id)
	rec, _ := args.Get(0).(*domain.AuthID)
	return rec, args.Error(1)
}

func (m *MockService) List(ctx context.Context) ([]domain.AuthID, error) {
	args := m.Called()
	recs, _ := args.Get(0).([]domain.AuthID)
	return recs, args.Error(1)
}

func (m *MockService) Enable(ctx context.Context, id string) (*domain.AuthID, error) {
	args := m.Called(id)
	rec, _ := args.Get(0).(*domain.AuthID)
	return rec, args.Error(1)
}

func (m *MockService) Disable(ctx context.Context, id string) (*domain.AuthID, error) {
	args := m.Called(id)
	rec, _ := args.Get(0).(*domain.AuthID)
	return rec, args.Error(1)
}

func (m *MockService) Verify(ctx context.Context, id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockService) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockService) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	checks, _ := args.Get(0).(map[string]error)
	return checks
}
