package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	models "course-statistics-service/app/models"

	"github.com/jmoiron/sqlx"
)

type StatisticsRepository interface {
	Find(ctx context.Context, userID int64, assessmentID string, kind models.Kind) (*models.StatisticRecord, error)
	Create(ctx context.Context, s models.NewStatistic) (*models.StatisticRecord, error)
	Update(ctx context.Context, record *models.StatisticRecord, changes models.StatisticChanges) (*models.StatisticRecord, error)
	// UpsertSubmission inserts s, or marks the existing record submitted. When withGrade is
	// set, a non-nil s.Grade also replaces the stored grade. The bool reports an insert.
	UpsertSubmission(ctx context.Context, s models.NewStatistic, withGrade bool) (*models.StatisticRecord, bool, error)
	// UpsertTitle inserts s, or changes only the title of the existing record.
	UpsertTitle(ctx context.Context, s models.NewStatistic) (*models.StatisticRecord, bool, error)
	AverageGrade(ctx context.Context, filter models.StatisticsFilter) (float64, error)
	CompletionStats(ctx context.Context, filter models.StatisticsFilter) (total int64, completed int64, err error)
	ListByCourse(ctx context.Context, courseID string, start, end *time.Time) ([]models.StatisticRecord, error)
	ListByUserAndCourse(ctx context.Context, userID int64, courseID string, start, end *time.Time) ([]models.StatisticRecord, error)
	ListAllFiltered(ctx context.Context, filter models.StatisticsFilter) ([]models.StatisticRecord, error)
}

const statisticColumns = `id, user_id, course_id, assessment_id, title, kind, submitted, grade, recorded_at`

type statisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository works with both the postgres and sqlite3 drivers; queries are
// written with ? placeholders and rebound for the driver in use.
func NewStatisticsRepository(db *sqlx.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) Find(ctx context.Context, userID int64, assessmentID string, kind models.Kind) (*models.StatisticRecord, error) {
	query := r.db.Rebind(`SELECT ` + statisticColumns + ` FROM statistics
		WHERE user_id = ? AND assessment_id = ? AND kind = ?`)

	var rec models.StatisticRecord
	err := r.db.GetContext(ctx, &rec, query, userID, assessmentID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find statistic: %w", err)
	}
	return &rec, nil
}

func (r *statisticsRepository) Create(ctx context.Context, s models.NewStatistic) (*models.StatisticRecord, error) {
	s.RecordedAt = recordedAt(s.RecordedAt)
	query := r.db.Rebind(`
		INSERT INTO statistics (user_id, course_id, assessment_id, title, kind, submitted, grade, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + statisticColumns)

	var rec models.StatisticRecord
	err := r.db.QueryRowxContext(ctx, query,
		s.UserID, s.CourseID, s.AssessmentID, s.Title, s.Kind, s.Submitted, s.Grade, s.RecordedAt,
	).StructScan(&rec)
	if err != nil {
		return nil, fmt.Errorf("create statistic: %w", err)
	}
	return &rec, nil
}

func (r *statisticsRepository) Update(ctx context.Context, record *models.StatisticRecord, changes models.StatisticChanges) (*models.StatisticRecord, error) {
	var sets []string
	var args []interface{}

	if changes.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *changes.Title)
	}
	if changes.Submitted != nil {
		sets = append(sets, "submitted = ?")
		args = append(args, *changes.Submitted)
	}
	if changes.Grade != nil {
		sets = append(sets, "grade = ?")
		args = append(args, *changes.Grade)
	}

	var query string
	if len(sets) == 0 {
		query = `SELECT ` + statisticColumns + ` FROM statistics WHERE id = ?`
	} else {
		query = `UPDATE statistics SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + statisticColumns
	}
	args = append(args, record.ID)

	var rec models.StatisticRecord
	if err := r.db.QueryRowxContext(ctx, r.db.Rebind(query), args...).StructScan(&rec); err != nil {
		return nil, fmt.Errorf("update statistic %d: %w", record.ID, err)
	}
	return &rec, nil
}

func (r *statisticsRepository) UpsertSubmission(ctx context.Context, s models.NewStatistic, withGrade bool) (*models.StatisticRecord, bool, error) {
	set := "submitted = TRUE"
	if withGrade {
		set += ", grade = COALESCE(excluded.grade, statistics.grade)"
	}
	return r.upsert(ctx, s, set)
}

func (r *statisticsRepository) UpsertTitle(ctx context.Context, s models.NewStatistic) (*models.StatisticRecord, bool, error) {
	return r.upsert(ctx, s, "title = excluded.title")
}

// upsert is a single statement keyed on the (user_id, assessment_id, kind) constraint, so
// concurrent first deliveries for the same key cannot produce two rows.
func (r *statisticsRepository) upsert(ctx context.Context, s models.NewStatistic, set string) (*models.StatisticRecord, bool, error) {
	s.RecordedAt = recordedAt(s.RecordedAt)
	query := r.db.Rebind(`
		INSERT INTO statistics (user_id, course_id, assessment_id, title, kind, submitted, grade, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, assessment_id, kind) DO UPDATE SET ` + set + `
		RETURNING ` + statisticColumns)

	var rec models.StatisticRecord
	err := r.db.QueryRowxContext(ctx, query,
		s.UserID, s.CourseID, s.AssessmentID, s.Title, s.Kind, s.Submitted, s.Grade, s.RecordedAt,
	).StructScan(&rec)
	if err != nil {
		return nil, false, fmt.Errorf("upsert statistic: %w", err)
	}

	// recorded_at is never touched on conflict, so it only equals ours when the row is new
	return &rec, rec.RecordedAt.Equal(s.RecordedAt), nil
}

func (r *statisticsRepository) AverageGrade(ctx context.Context, filter models.StatisticsFilter) (float64, error) {
	where, args := buildWhere(filter)
	query := `SELECT COALESCE(AVG(grade), 0.0) FROM statistics` + where

	var avg float64
	if err := r.db.GetContext(ctx, &avg, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("average grade: %w", err)
	}
	return avg, nil
}

func (r *statisticsRepository) CompletionStats(ctx context.Context, filter models.StatisticsFilter) (int64, int64, error) {
	where, args := buildWhere(filter)
	query := `SELECT COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN submitted THEN 1 ELSE 0 END), 0) AS completed
		FROM statistics` + where

	var out struct {
		Total     int64 `db:"total"`
		Completed int64 `db:"completed"`
	}
	if err := r.db.GetContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return 0, 0, fmt.Errorf("completion stats: %w", err)
	}
	return out.Total, out.Completed, nil
}

func (r *statisticsRepository) ListByCourse(ctx context.Context, courseID string, start, end *time.Time) ([]models.StatisticRecord, error) {
	return r.ListAllFiltered(ctx, models.StatisticsFilter{CourseID: &courseID, Start: start, End: end})
}

func (r *statisticsRepository) ListByUserAndCourse(ctx context.Context, userID int64, courseID string, start, end *time.Time) ([]models.StatisticRecord, error) {
	return r.ListAllFiltered(ctx, models.StatisticsFilter{UserID: &userID, CourseID: &courseID, Start: start, End: end})
}

func (r *statisticsRepository) ListAllFiltered(ctx context.Context, filter models.StatisticsFilter) ([]models.StatisticRecord, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + statisticColumns + ` FROM statistics` + where + ` ORDER BY recorded_at DESC, id DESC`

	records := []models.StatisticRecord{}
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list statistics: %w", err)
	}
	return records, nil
}

func buildWhere(filter models.StatisticsFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.CourseID != nil {
		conds = append(conds, "course_id = ?")
		args = append(args, *filter.CourseID)
	}
	if filter.Start != nil {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, filter.Start.UTC())
	}
	if filter.End != nil {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, filter.End.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// recordedAt defaults to now; postgres keeps microseconds so the value is truncated to
// compare equal after a round trip.
func recordedAt(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}
