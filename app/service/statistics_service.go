package service

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"course-statistics-service/app/apperror"
	"course-statistics-service/app/export"
	models "course-statistics-service/app/models"
	"course-statistics-service/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// StatisticsService holds the HTTP handlers. Errors are returned to Fiber's
// ErrorHandler, which turns them into problem documents.
type StatisticsService struct {
	reconciler *Reconciler
	aggregator *Aggregator
	validate   *validator.Validate
	log        *logger.Logger
	now        func() time.Time
}

func NewStatisticsService(r *Reconciler, a *Aggregator, log *logger.Logger) *StatisticsService {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &StatisticsService{reconciler: r, aggregator: a, validate: v, log: log, now: time.Now}
}

// === POST /user-statistics ===
func (s *StatisticsService) SaveUserStatistics(c *fiber.Ctx) error {
	var ev models.UserStatisticsEvent
	if err := s.parseBody(c, &ev); err != nil {
		return err
	}

	if _, err := s.reconciler.ProcessUserEvent(c.UserContext(), ev); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Estadística de usuario procesada correctamente"})
}

// === POST /course-statistics ===
func (s *StatisticsService) SaveCourseStatistics(c *fiber.Ctx) error {
	var ev models.CourseStatisticsEvent
	if err := s.parseBody(c, &ev); err != nil {
		return err
	}

	result, err := s.reconciler.ProcessCourseEvent(c.UserContext(), ev)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return apperror.Partial(fmt.Sprintf("%d de %d usuarios fallaron (creados: %d, actualizados: %d)",
			result.Failed, result.Users, result.Created, result.Updated))
	}

	return c.JSON(fiber.Map{
		"message":      "Estadísticas de curso procesadas correctamente",
		"usuarios":     result.Users,
		"creados":      result.Created,
		"actualizados": result.Updated,
		"fallidos":     result.Failed,
	})
}

// === GET /statistics/global ===
func (s *StatisticsService) GetGlobalStatistics(c *fiber.Ctx) error {
	summary, err := s.aggregator.Global(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// === GET /statistics/course/:course_id ===
func (s *StatisticsService) GetCourseStatistics(c *fiber.Ctx) error {
	start, end, err := dateRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return err
	}

	detail, err := s.aggregator.CourseDetail(c.UserContext(), c.Params("course_id"), start, end)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// === GET /statistics/user/:course_id/:user_id ===
func (s *StatisticsService) GetUserStatistics(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
	if err != nil {
		return apperror.Validation("user_id debe ser un entero", err)
	}
	start, end, err := dateRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return err
	}

	detail, err := s.aggregator.UserDetail(c.UserContext(), userID, c.Params("course_id"), start, end)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// === POST /statistics/export-excel ===
func (s *StatisticsService) ExportExcel(c *fiber.Ctx) error {
	var req models.ExportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperror.Validation("Cuerpo de la solicitud inválido", err)
		}
	}

	filter, err := ExportFilter(req)
	if err != nil {
		return err
	}

	records, err := s.aggregator.Export(c.UserContext(), filter)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, records); err != nil {
		return apperror.Internal(err)
	}

	c.Attachment(export.FileName(s.now()))
	c.Set(fiber.HeaderContentType, export.ContentType)
	return c.SendStream(&buf, buf.Len())
}

func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ExportFilter turns the export body into a store filter.
func ExportFilter(req models.ExportRequest) (models.StatisticsFilter, error) {
	var startRaw, endRaw string
	if req.StartDate != nil {
		startRaw = *req.StartDate
	}
	if req.EndDate != nil {
		endRaw = *req.EndDate
	}
	start, end, err := dateRange(startRaw, endRaw)
	if err != nil {
		return models.StatisticsFilter{}, err
	}
	return models.StatisticsFilter{UserID: req.UserID, CourseID: req.CourseID, Start: start, End: end}, nil
}

func (s *StatisticsService) parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperror.Validation("Cuerpo de la solicitud inválido", err)
	}
	if err := s.validate.Struct(out); err != nil {
		return apperror.Validation(describeValidation(err), err)
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Cuerpo de la solicitud inválido"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s debe ser uno de [%s]", fe.Field(), fe.Param()))
		case "min":
			parts = append(parts, fmt.Sprintf("%s debe ser mayor o igual a %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s es requerido", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}

const dateLayout = "2006-01-02"

// dateRange parses optional start/end values. A date-only end covers that whole day.
func dateRange(startRaw, endRaw string) (*time.Time, *time.Time, error) {
	start, _, err := parseDate("start_date", startRaw)
	if err != nil {
		return nil, nil, err
	}
	end, dateOnly, err := parseDate("end_date", endRaw)
	if err != nil {
		return nil, nil, err
	}
	if end != nil && dateOnly {
		e := end.Add(24*time.Hour - time.Nanosecond)
		end = &e
	}
	return start, end, nil
}

func parseDate(name, raw string) (*time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return &t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false, apperror.Validation(fmt.Sprintf("%s debe tener formato YYYY-MM-DD o RFC 3339", name), err)
	}
	return &t, false, nil
}
