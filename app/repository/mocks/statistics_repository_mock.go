package mocks

import (
	"context"
	"time"

	models "course-statistics-service/app/models"

	"github.com/stretchr/testify/mock"
)

type MockStatisticsRepo struct {
	mock.Mock
}

func (m *MockStatisticsRepo) Find(ctx context.Context, userID int64, assessmentID string, kind models.Kind) (*models.StatisticRecord, error) {
	args := m.Called(ctx, userID, assessmentID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatisticRecord), args.Error(1)
}

func (m *MockStatisticsRepo) Create(ctx context.Context, s models.NewStatistic) (*models.StatisticRecord, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatisticRecord), args.Error(1)
}

func (m *MockStatisticsRepo) Update(ctx context.Context, record *models.StatisticRecord, changes models.StatisticChanges) (*models.StatisticRecord, error) {
	args := m.Called(ctx, record, changes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatisticRecord), args.Error(1)
}

func (m *MockStatisticsRepo) UpsertSubmission(ctx context.Context, s models.NewStatistic, withGrade bool) (*models.StatisticRecord, bool, error) {
	args := m.Called(ctx, s, withGrade)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.StatisticRecord), args.Bool(1), args.Error(2)
}

func (m *MockStatisticsRepo) UpsertTitle(ctx context.Context, s models.NewStatistic) (*models.StatisticRecord, bool, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.StatisticRecord), args.Bool(1), args.Error(2)
}

func (m *MockStatisticsRepo) AverageGrade(ctx context.Context, filter models.StatisticsFilter) (float64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockStatisticsRepo) CompletionStats(ctx context.Context, filter models.StatisticsFilter) (int64, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockStatisticsRepo) ListByCourse(ctx context.Context, courseID string, start, end *time.Time) ([]models.StatisticRecord, error) {
	args := m.Called(ctx, courseID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StatisticRecord), args.Error(1)
}

func (m *MockStatisticsRepo) ListByUserAndCourse(ctx context.Context, userID int64, courseID string, start, end *time.Time) ([]models.StatisticRecord, error) {
	args := m.Called(ctx, userID, courseID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StatisticRecord), args.Error(1)
}

func (m *MockStatisticsRepo) ListAllFiltered(ctx context.Context, filter models.StatisticsFilter) ([]models.StatisticRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StatisticRecord), args.Error(1)
}
