package models

import "time"

// Kind is the assessment type carried in notification_type.
type Kind string

const (
	KindExam       Kind = "Examen"
	KindAssignment Kind = "Tarea"
)

type UserEventType string

const (
	EventSubmitted UserEventType = "Entregado"
	EventGraded    UserEventType = "Calificado"
)

type CourseEventType string

const (
	EventCreated CourseEventType = "Nuevo"
	EventUpdated CourseEventType = "Actualizado"
)

// StatisticRecord is one row of the statistics table. There is at most one
// record per (UserID, AssessmentID, Kind).
type StatisticRecord struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	CourseID     *string   `db:"course_id"`
	AssessmentID string    `db:"assessment_id"`
	Title        string    `db:"title"`
	Kind         Kind      `db:"kind"`
	Submitted    bool      `db:"submitted"`
	Grade        *float64  `db:"grade"`
	RecordedAt   time.Time `db:"recorded_at"`
}

// NewStatistic holds the values for a record that does not exist yet.
type NewStatistic struct {
	UserID       int64
	CourseID     *string
	AssessmentID string
	Title        string
	Kind         Kind
	Submitted    bool
	Grade        *float64
	RecordedAt   time.Time
}

// StatisticChanges lists the fields to change on an existing record. Nil means unchanged.
type StatisticChanges struct {
	Title     *string
	Submitted *bool
	Grade     *float64
}

// StatisticsFilter is AND-combined; Start and End are inclusive bounds on RecordedAt.
type StatisticsFilter struct {
	UserID   *int64
	CourseID *string
	Start    *time.Time
	End      *time.Time
}
