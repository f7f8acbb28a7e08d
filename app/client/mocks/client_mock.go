package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) Me(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

type MockRoster struct {
	mock.Mock
}

func (m *MockRoster) EnrolledUsers(ctx context.Context, courseID string) ([]int64, error) {
	args := m.Called(ctx, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}
