package service

import (
	"context"
	"math"
	"time"

	"course-statistics-service/app/apperror"
	models "course-statistics-service/app/models"
	"course-statistics-service/app/repository"
)

// Aggregator answers the read side: averages, completion rates and record logs.
type Aggregator struct {
	repo repository.StatisticsRepository
}

func NewAggregator(repo repository.StatisticsRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

func (a *Aggregator) Global(ctx context.Context) (models.Summary, error) {
	return a.summary(ctx, models.StatisticsFilter{})
}

func (a *Aggregator) CourseDetail(ctx context.Context, courseID string, start, end *time.Time) (models.DetailedStatistics, error) {
	summary, err := a.summary(ctx, models.StatisticsFilter{CourseID: &courseID, Start: start, End: end})
	if err != nil {
		return models.DetailedStatistics{}, err
	}
	records, err := a.repo.ListByCourse(ctx, courseID, start, end)
	if err != nil {
		return models.DetailedStatistics{}, err
	}
	return detailed(summary, courseID, records), nil
}

func (a *Aggregator) UserDetail(ctx context.Context, userID int64, courseID string, start, end *time.Time) (models.DetailedStatistics, error) {
	summary, err := a.summary(ctx, models.StatisticsFilter{UserID: &userID, CourseID: &courseID, Start: start, End: end})
	if err != nil {
		return models.DetailedStatistics{}, err
	}
	records, err := a.repo.ListByUserAndCourse(ctx, userID, courseID, start, end)
	if err != nil {
		return models.DetailedStatistics{}, err
	}
	return detailed(summary, courseID, records), nil
}

// Export returns the raw rows for a spreadsheet. Unlike the detail views an empty
// result is a NotFound.
func (a *Aggregator) Export(ctx context.Context, filter models.StatisticsFilter) ([]models.StatisticRecord, error) {
	records, err := a.repo.ListAllFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.NotFound("No se encontraron estadísticas con los filtros proporcionados")
	}
	return records, nil
}

func (a *Aggregator) summary(ctx context.Context, filter models.StatisticsFilter) (models.Summary, error) {
	avg, err := a.repo.AverageGrade(ctx, filter)
	if err != nil {
		return models.Summary{}, err
	}
	total, completed, err := a.repo.CompletionStats(ctx, filter)
	if err != nil {
		return models.Summary{}, err
	}
	return models.Summary{
		AverageGrade:   Round2(avg),
		CompletionRate: Round2(CompletionRate(total, completed)),
		Total:          total,
		Completed:      completed,
	}, nil
}

func detailed(summary models.Summary, courseID string, records []models.StatisticRecord) models.DetailedStatistics {
	logs := make([]models.StatisticLog, 0, len(records))
	for _, r := range records {
		logs = append(logs, models.NewStatisticLog(r))
	}
	return models.DetailedStatistics{Summary: summary, CourseID: courseID, Logs: logs}
}

// CompletionRate is completed/total as a percentage, 0 when there is nothing to complete.
func CompletionRate(total, completed int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
