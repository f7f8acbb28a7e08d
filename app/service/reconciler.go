package service

import (
	"context"
	"fmt"
	"sync"

	"course-statistics-service/app/apperror"
	models "course-statistics-service/app/models"
	"course-statistics-service/app/repository"
	"course-statistics-service/logger"

	"golang.org/x/sync/errgroup"
)

// RosterProvider resolves the users enrolled in a course.
type RosterProvider interface {
	EnrolledUsers(ctx context.Context, courseID string) ([]int64, error)
}

// Reconciler turns user and course events into writes on the statistics table.
type Reconciler struct {
	repo    repository.StatisticsRepository
	roster  RosterProvider
	log     *logger.Logger
	strict  bool
	workers int
}

type ReconcilerOption func(*Reconciler)

// WithStrictUserEvents rejects user events for records that do not exist yet (404)
// instead of creating them.
func WithStrictUserEvents(strict bool) ReconcilerOption {
	return func(r *Reconciler) { r.strict = strict }
}

// WithFanoutWorkers bounds how many enrolled users a course event writes in parallel.
func WithFanoutWorkers(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

func NewReconciler(repo repository.StatisticsRepository, roster RosterProvider, log *logger.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{repo: repo, roster: roster, log: log, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessUserEvent applies a Submitted or Graded event. Grading implies submission.
func (r *Reconciler) ProcessUserEvent(ctx context.Context, ev models.UserStatisticsEvent) (*models.StatisticRecord, error) {
	if ev.UserID == nil {
		return nil, apperror.Validation("id_user es requerido", nil)
	}
	userID := *ev.UserID
	graded := ev.Event == models.EventGraded

	if r.strict {
		return r.applyToExisting(ctx, userID, ev, graded)
	}

	var title string
	if ev.Data.Title != nil {
		title = *ev.Data.Title
	}
	rec, created, err := r.repo.UpsertSubmission(ctx, models.NewStatistic{
		UserID:       userID,
		CourseID:     ev.CourseID,
		AssessmentID: ev.AssessmentID,
		Title:        title,
		Kind:         ev.NotificationType,
		Submitted:    true,
		Grade:        ev.Data.Grade,
	}, graded)
	if err != nil {
		return nil, err
	}

	r.log.Debug("user event applied",
		"user_id", userID, "assessment_id", ev.AssessmentID, "event", ev.Event, "created", created)
	return rec, nil
}

func (r *Reconciler) applyToExisting(ctx context.Context, userID int64, ev models.UserStatisticsEvent, graded bool) (*models.StatisticRecord, error) {
	existing, err := r.repo.Find(ctx, userID, ev.AssessmentID, ev.NotificationType)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperror.NotFound(fmt.Sprintf(
			"No existe estadística para el usuario %d y la evaluación %s", userID, ev.AssessmentID))
	}

	submitted := true
	changes := models.StatisticChanges{Submitted: &submitted}
	if graded {
		changes.Grade = ev.Data.Grade
	}
	return r.repo.Update(ctx, existing, changes)
}

// ProcessCourseEvent applies a course event to every enrolled user. A roster failure
// aborts before any write. After that each user is written on its own: a failure for
// one user is logged and counted, and the writes for the others stay committed.
func (r *Reconciler) ProcessCourseEvent(ctx context.Context, ev models.CourseStatisticsEvent) (models.FanoutResult, error) {
	users, err := r.roster.EnrolledUsers(ctx, ev.CourseID)
	if err != nil {
		return models.FanoutResult{}, fmt.Errorf("roster for course %s: %w", ev.CourseID, err)
	}

	result := models.FanoutResult{Users: len(users)}
	courseID := ev.CourseID

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.workers)

	for _, userID := range users {
		userID := userID
		// failures are counted, not returned, so one user never cancels the rest
		g.Go(func() error {
			_, created, err := r.repo.UpsertTitle(ctx, models.NewStatistic{
				UserID:       userID,
				CourseID:     &courseID,
				AssessmentID: ev.AssessmentID,
				Title:        ev.Data.Title,
				Kind:         ev.NotificationType,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				r.log.Error("course event write failed",
					"course_id", courseID, "user_id", userID, "assessment_id", ev.AssessmentID, "error", err)
			case created:
				result.Created++
			default:
				result.Updated++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	r.log.Info("course event applied",
		"course_id", courseID, "assessment_id", ev.AssessmentID, "event", ev.Event,
		"users", result.Users, "created", result.Created, "updated", result.Updated, "failed", result.Failed)
	return result, nil
}
