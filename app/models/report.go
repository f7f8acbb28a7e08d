package models

import "time"

type Summary struct {
	AverageGrade   float64 `json:"promedio_calificaciones"`
	CompletionRate float64 `json:"tasa_finalizacion"`
	Total          int64   `json:"total_asignaciones"`
	Completed      int64   `json:"asignaciones_completadas"`
}

type StatisticLog struct {
	ID           int64    `json:"id"`
	UserID       int64    `json:"user_id"`
	CourseID     *string  `json:"course_id"`
	Title        string   `json:"titulo"`
	Kind         Kind     `json:"tipo"`
	Submitted    bool     `json:"entregado"`
	Grade        *float64 `json:"calificacion"`
	AssessmentID string   `json:"assessment_id"`
	Date         string   `json:"fecha"`
}

type DetailedStatistics struct {
	Summary
	CourseID string         `json:"course_id"`
	Logs     []StatisticLog `json:"logs"`
}

func NewStatisticLog(r StatisticRecord) StatisticLog {
	return StatisticLog{
		ID:           r.ID,
		UserID:       r.UserID,
		CourseID:     r.CourseID,
		Title:        r.Title,
		Kind:         r.Kind,
		Submitted:    r.Submitted,
		Grade:        r.Grade,
		AssessmentID: r.AssessmentID,
		Date:         r.RecordedAt.Format(time.RFC3339Nano),
	}
}

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Detail   string `json:"detail,omitempty"`
	Status   int    `json:"status"`
	Instance string `json:"instance,omitempty"`
}
