package models

type StatisticsEventData struct {
	Title     *string  `json:"titulo"`
	Grade     *float64 `json:"nota"`
	Submitted bool     `json:"entregado"`
}

type UserStatisticsEvent struct {
	UserID           *int64              `json:"id_user" validate:"required,min=0"`
	AssessmentID     string              `json:"assessment_id" validate:"required"`
	CourseID         *string             `json:"course_id,omitempty"`
	NotificationType Kind                `json:"notification_type" validate:"required,oneof=Examen Tarea"`
	Event            UserEventType       `json:"event" validate:"required,oneof=Entregado Calificado"`
	Data             StatisticsEventData `json:"data"`
}

type CourseEventData struct {
	Title string `json:"titulo" validate:"required"`
}

type CourseStatisticsEvent struct {
	AssessmentID     string          `json:"assessment_id" validate:"required"`
	CourseID         string          `json:"course_id" validate:"required"`
	NotificationType Kind            `json:"notification_type" validate:"required,oneof=Examen Tarea"`
	Event            CourseEventType `json:"event" validate:"required,oneof=Nuevo Actualizado"`
	Data             CourseEventData `json:"data"`
}

// FanoutResult counts what a course event did to each enrolled user's record.
type FanoutResult struct {
	Users   int `json:"usuarios"`
	Created int `json:"creados"`
	Updated int `json:"actualizados"`
	Failed  int `json:"fallidos"`
}

type ExportRequest struct {
	UserID    *int64  `json:"user_id"`
	CourseID  *string `json:"course_id"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}
