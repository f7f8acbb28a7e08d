package service_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"course-statistics-service/app/apperror"
	clientmocks "course-statistics-service/app/client/mocks"
	"course-statistics-service/app/export"
	models "course-statistics-service/app/models"
	"course-statistics-service/app/repository"
	"course-statistics-service/app/repository/mocks"
	"course-statistics-service/app/response"
	"course-statistics-service/app/service"
	"course-statistics-service/database"
	"course-statistics-service/logger"
	"course-statistics-service/middleware"
	"course-statistics-service/route"
)

// --- SETUP HELPERS ---

type testEnv struct {
	app      *fiber.App
	repo     *mocks.MockStatisticsRepo
	identity *clientmocks.MockIdentity
	roster   *clientmocks.MockRoster
}

func setupStatisticsApp(opts ...service.ReconcilerOption) *testEnv {
	repo := new(mocks.MockStatisticsRepo)
	identity := new(clientmocks.MockIdentity)
	roster := new(clientmocks.MockRoster)
	log := logger.NewNop()

	reconciler := service.NewReconciler(repo, roster, log, opts...)
	svc := service.NewStatisticsService(reconciler, service.NewAggregator(repo), log)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	route.SetupRoutes(app, route.Deps{Statistics: svc, Identity: identity, Log: log})

	return &testEnv{app: app, repo: repo, identity: identity, roster: roster}
}

// setupSQLiteApp wires the real store instead of the repository mock.
func setupSQLiteApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := database.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	identity := new(clientmocks.MockIdentity)
	identity.On("Me", mock.Anything, "good-token").Return(int64(99), nil)
	log := logger.NewNop()
	repo := repository.NewStatisticsRepository(db)

	reconciler := service.NewReconciler(repo, new(clientmocks.MockRoster), log)
	svc := service.NewStatisticsService(reconciler, service.NewAggregator(repo), log)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	route.SetupRoutes(app, route.Deps{Statistics: svc, Identity: identity, Log: log})
	return app
}

func (e *testEnv) authorize() {
	e.identity.On("Me", mock.Anything, "good-token").Return(int64(99), nil)
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, token string) (int, []byte, string) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out, resp.Header.Get("Content-Type")
}

func decodeProblem(t *testing.T, raw []byte) models.Problem {
	t.Helper()
	var p models.Problem
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func int64Ptr(i int64) *int64     { return &i }

func gradedEvent() map[string]interface{} {
	return map[string]interface{}{
		"id_user":           1,
		"assessment_id":     "examen1",
		"notification_type": "Examen",
		"event":             "Calificado",
		"data":              map[string]interface{}{"titulo": "Examen 1", "nota": 9.5, "entregado": true},
	}
}

// --- TEST CASES ---

func TestSaveUserStatistics(t *testing.T) {
	t.Run("Error: Missing bearer token", func(t *testing.T) {
		env := setupStatisticsApp()

		status, raw, ctype := doJSON(t, env.app, "POST", "/user-statistics", gradedEvent(), "")

		assert.Equal(t, 401, status)
		assert.Equal(t, response.ProblemContentType, ctype)
		assert.Equal(t, 401, decodeProblem(t, raw).Status)
		env.identity.AssertNotCalled(t, "Me", mock.Anything, mock.Anything)
		env.repo.AssertNotCalled(t, "UpsertSubmission", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error: Identity service rejects token", func(t *testing.T) {
		env := setupStatisticsApp()
		env.identity.On("Me", mock.Anything, "bad-token").
			Return(int64(0), apperror.Auth("identity service rejected the token", nil))

		status, _, _ := doJSON(t, env.app, "POST", "/user-statistics", gradedEvent(), "bad-token")

		assert.Equal(t, 401, status)
		env.repo.AssertNotCalled(t, "UpsertSubmission", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error: Identity service unreachable is still 401", func(t *testing.T) {
		env := setupStatisticsApp()
		env.identity.On("Me", mock.Anything, "good-token").
			Return(int64(0), apperror.Upstream("identity service unreachable", errors.New("dial tcp")))

		status, _, _ := doJSON(t, env.app, "POST", "/user-statistics", gradedEvent(), "good-token")

		assert.Equal(t, 401, status)
	})

	t.Run("Error: Unknown notification type", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()

		body := gradedEvent()
		body["notification_type"] = "Quiz"
		status, raw, _ := doJSON(t, env.app, "POST", "/user-statistics", body, "good-token")

		assert.Equal(t, 422, status)
		assert.Contains(t, decodeProblem(t, raw).Detail, "notification_type")
		env.repo.AssertNotCalled(t, "UpsertSubmission", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error: Missing assessment id", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()

		body := gradedEvent()
		delete(body, "assessment_id")
		status, raw, _ := doJSON(t, env.app, "POST", "/user-statistics", body, "good-token")

		assert.Equal(t, 422, status)
		assert.Contains(t, decodeProblem(t, raw).Detail, "assessment_id")
	})

	t.Run("Success: Graded event upserts with grade", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()

		env.repo.On("UpsertSubmission", mock.Anything, mock.MatchedBy(func(s models.NewStatistic) bool {
			return s.UserID == 1 && s.AssessmentID == "examen1" && s.Kind == models.KindExam &&
				s.Submitted && s.Grade != nil && *s.Grade == 9.5
		}), true).Return(&models.StatisticRecord{ID: 1}, true, nil)

		status, raw, _ := doJSON(t, env.app, "POST", "/user-statistics", gradedEvent(), "good-token")

		assert.Equal(t, 200, status)
		assert.Contains(t, string(raw), "procesada correctamente")
		env.repo.AssertExpectations(t)
	})

	t.Run("Success: User id zero is accepted", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.repo.On("UpsertSubmission", mock.Anything, mock.MatchedBy(func(s models.NewStatistic) bool {
			return s.UserID == 0
		}), true).Return(&models.StatisticRecord{ID: 1}, true, nil)

		body := gradedEvent()
		body["id_user"] = 0
		status, _, _ := doJSON(t, env.app, "POST", "/user-statistics", body, "good-token")

		assert.Equal(t, 200, status)
		env.repo.AssertExpectations(t)
	})

	t.Run("Error: Missing user id", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()

		body := gradedEvent()
		delete(body, "id_user")
		status, raw, _ := doJSON(t, env.app, "POST", "/user-statistics", body, "good-token")

		assert.Equal(t, 422, status)
		assert.Contains(t, decodeProblem(t, raw).Detail, "id_user")
	})

	t.Run("Error: Strict mode without existing record", func(t *testing.T) {
		env := setupStatisticsApp(service.WithStrictUserEvents(true))
		env.authorize()
		env.repo.On("Find", mock.Anything, int64(1), "examen1", models.KindExam).Return(nil, nil)

		status, raw, _ := doJSON(t, env.app, "POST", "/user-statistics", gradedEvent(), "good-token")

		assert.Equal(t, 404, status)
		assert.Contains(t, decodeProblem(t, raw).Detail, "examen1")
		env.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error: Database failure hides cause", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.repo.On("UpsertSubmission", mock.Anything, mock.Anything, true).
			Return(nil, false, errors.New("pq: connection refused"))

		status, raw, _ := doJSON(t, env.app, "POST", "/user-statistics", gradedEvent(), "good-token")

		assert.Equal(t, 500, status)
		assert.NotContains(t, string(raw), "connection refused")
	})
}

func TestSaveCourseStatistics(t *testing.T) {
	courseEvent := map[string]interface{}{
		"assessment_id":     "tarea1",
		"course_id":         "curso1",
		"notification_type": "Tarea",
		"event":             "Nuevo",
		"data":              map[string]interface{}{"titulo": "Tarea 1"},
	}

	t.Run("Success: Fan-out counts", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.roster.On("EnrolledUsers", mock.Anything, "curso1").Return([]int64{1, 2, 3}, nil)
		env.repo.On("UpsertTitle", mock.Anything, mock.MatchedBy(func(s models.NewStatistic) bool {
			return s.UserID == 3
		})).Return(&models.StatisticRecord{ID: 3}, false, nil)
		env.repo.On("UpsertTitle", mock.Anything, mock.Anything).Return(&models.StatisticRecord{ID: 1}, true, nil)

		status, raw, _ := doJSON(t, env.app, "POST", "/course-statistics", courseEvent, "good-token")

		require.Equal(t, 200, status)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.EqualValues(t, 3, body["usuarios"])
		assert.EqualValues(t, 2, body["creados"])
		assert.EqualValues(t, 1, body["actualizados"])
		assert.EqualValues(t, 0, body["fallidos"])
	})

	t.Run("Error: Roster failure writes nothing", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.roster.On("EnrolledUsers", mock.Anything, "curso1").
			Return(nil, apperror.Upstream("courses service returned 503", nil))

		status, raw, _ := doJSON(t, env.app, "POST", "/course-statistics", courseEvent, "good-token")

		assert.Equal(t, 500, status)
		assert.NotContains(t, string(raw), "503")
		env.repo.AssertNotCalled(t, "UpsertTitle", mock.Anything, mock.Anything)
	})

	t.Run("Error: Partial failure reports counts", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.roster.On("EnrolledUsers", mock.Anything, "curso1").Return([]int64{1, 2}, nil)
		env.repo.On("UpsertTitle", mock.Anything, mock.MatchedBy(func(s models.NewStatistic) bool {
			return s.UserID == 2
		})).Return(nil, false, errors.New("deadlock"))
		env.repo.On("UpsertTitle", mock.Anything, mock.Anything).Return(&models.StatisticRecord{ID: 1}, true, nil)

		status, raw, ctype := doJSON(t, env.app, "POST", "/course-statistics", courseEvent, "good-token")

		assert.Equal(t, 500, status)
		assert.Equal(t, response.ProblemContentType, ctype)
		problem := decodeProblem(t, raw)
		assert.Equal(t, "Procesamiento parcial", problem.Title)
		assert.Contains(t, problem.Detail, "1 de 2")
		assert.Contains(t, problem.Detail, "creados: 1")
		assert.Equal(t, "/course-statistics", problem.Instance)
	})

	t.Run("Error: Missing title", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()

		body := map[string]interface{}{
			"assessment_id": "tarea1", "course_id": "curso1",
			"notification_type": "Tarea", "event": "Nuevo", "data": map[string]interface{}{},
		}
		status, _, _ := doJSON(t, env.app, "POST", "/course-statistics", body, "good-token")

		assert.Equal(t, 422, status)
		env.roster.AssertNotCalled(t, "EnrolledUsers", mock.Anything, mock.Anything)
	})
}

func TestGetGlobalStatistics(t *testing.T) {
	t.Run("Success: Rounded summary", func(t *testing.T) {
		env := setupStatisticsApp()
		env.repo.On("AverageGrade", mock.Anything, models.StatisticsFilter{}).Return(8.0, nil)
		env.repo.On("CompletionStats", mock.Anything, models.StatisticsFilter{}).Return(int64(6), int64(5), nil)

		status, raw, _ := doJSON(t, env.app, "GET", "/statistics/global", nil, "")

		require.Equal(t, 200, status)
		var summary models.Summary
		require.NoError(t, json.Unmarshal(raw, &summary))
		assert.Equal(t, models.Summary{AverageGrade: 8.0, CompletionRate: 83.33, Total: 6, Completed: 5}, summary)
	})

	t.Run("Success: Empty store", func(t *testing.T) {
		env := setupStatisticsApp()
		env.repo.On("AverageGrade", mock.Anything, mock.Anything).Return(0.0, nil)
		env.repo.On("CompletionStats", mock.Anything, mock.Anything).Return(int64(0), int64(0), nil)

		status, raw, _ := doJSON(t, env.app, "GET", "/statistics/global", nil, "")

		require.Equal(t, 200, status)
		assert.JSONEq(t,
			`{"promedio_calificaciones":0,"tasa_finalizacion":0,"total_asignaciones":0,"asignaciones_completadas":0}`,
			string(raw))
	})
}

func TestGetCourseStatistics(t *testing.T) {
	t.Run("Success: Date range is inclusive", func(t *testing.T) {
		env := setupStatisticsApp()
		wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		wantEnd := time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC)

		rangeMatches := func(f models.StatisticsFilter) bool {
			return f.CourseID != nil && *f.CourseID == "curso1" && f.UserID == nil &&
				f.Start != nil && f.Start.Equal(wantStart) && f.End != nil && f.End.Equal(wantEnd)
		}
		env.repo.On("AverageGrade", mock.Anything, mock.MatchedBy(rangeMatches)).Return(7.0, nil)
		env.repo.On("CompletionStats", mock.Anything, mock.MatchedBy(rangeMatches)).Return(int64(2), int64(1), nil)
		env.repo.On("ListByCourse", mock.Anything, "curso1", mock.Anything, mock.Anything).Return([]models.StatisticRecord{
			{ID: 4, UserID: 2, CourseID: strPtr("curso1"), AssessmentID: "tarea1", Title: "Tarea 1",
				Kind: models.KindAssignment, Submitted: true, Grade: floatPtr(7),
				RecordedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		}, nil)

		status, raw, _ := doJSON(t, env.app, "GET", "/statistics/course/curso1?start_date=2024-01-01&end_date=2024-01-31", nil, "")

		require.Equal(t, 200, status)
		var detail models.DetailedStatistics
		require.NoError(t, json.Unmarshal(raw, &detail))
		assert.Equal(t, "curso1", detail.CourseID)
		assert.Equal(t, 50.0, detail.CompletionRate)
		require.Len(t, detail.Logs, 1)
		assert.Equal(t, "2024-01-15T10:00:00Z", detail.Logs[0].Date)
		assert.Equal(t, models.KindAssignment, detail.Logs[0].Kind)
	})

	t.Run("Success: No records is an empty detail", func(t *testing.T) {
		env := setupStatisticsApp()
		env.repo.On("AverageGrade", mock.Anything, mock.Anything).Return(0.0, nil)
		env.repo.On("CompletionStats", mock.Anything, mock.Anything).Return(int64(0), int64(0), nil)
		env.repo.On("ListByCourse", mock.Anything, "vacio", mock.Anything, mock.Anything).Return([]models.StatisticRecord{}, nil)

		status, raw, _ := doJSON(t, env.app, "GET", "/statistics/course/vacio", nil, "")

		assert.Equal(t, 200, status)
		assert.Contains(t, string(raw), `"logs":[]`)
	})

	t.Run("Error: Bad date", func(t *testing.T) {
		env := setupStatisticsApp()

		status, raw, _ := doJSON(t, env.app, "GET", "/statistics/course/curso1?start_date=01/02/2024", nil, "")

		assert.Equal(t, 422, status)
		assert.Contains(t, decodeProblem(t, raw).Detail, "start_date")
		env.repo.AssertNotCalled(t, "AverageGrade", mock.Anything, mock.Anything)
	})
}

func TestGetUserStatistics(t *testing.T) {
	t.Run("Success: User within course", func(t *testing.T) {
		env := setupStatisticsApp()
		userAndCourse := func(f models.StatisticsFilter) bool {
			return f.UserID != nil && *f.UserID == 1 && f.CourseID != nil && *f.CourseID == "curso1"
		}
		env.repo.On("AverageGrade", mock.Anything, mock.MatchedBy(userAndCourse)).Return(8.5, nil)
		env.repo.On("CompletionStats", mock.Anything, mock.MatchedBy(userAndCourse)).Return(int64(3), int64(2), nil)
		env.repo.On("ListByUserAndCourse", mock.Anything, int64(1), "curso1", (*time.Time)(nil), (*time.Time)(nil)).
			Return([]models.StatisticRecord{}, nil)

		status, raw, _ := doJSON(t, env.app, "GET", "/statistics/user/curso1/1", nil, "")

		require.Equal(t, 200, status)
		var detail models.DetailedStatistics
		require.NoError(t, json.Unmarshal(raw, &detail))
		assert.Equal(t, 66.67, detail.CompletionRate)
		assert.Equal(t, 8.5, detail.AverageGrade)
		env.repo.AssertExpectations(t)
	})

	t.Run("Error: Non numeric user id", func(t *testing.T) {
		env := setupStatisticsApp()

		status, _, _ := doJSON(t, env.app, "GET", "/statistics/user/curso1/abc", nil, "")

		assert.Equal(t, 422, status)
	})
}

func TestLogDateRoundTrip(t *testing.T) {
	app := setupSQLiteApp(t)

	body := gradedEvent()
	body["id_user"] = 50
	body["course_id"] = "c1"
	status, _, _ := doJSON(t, app, "POST", "/user-statistics", body, "good-token")
	require.Equal(t, 200, status)

	status, raw, _ := doJSON(t, app, "GET", "/statistics/user/c1/50", nil, "")
	require.Equal(t, 200, status)
	var detail models.DetailedStatistics
	require.NoError(t, json.Unmarshal(raw, &detail))
	require.Len(t, detail.Logs, 1)
	fecha := detail.Logs[0].Date

	parsed, err := time.Parse(time.RFC3339Nano, fecha)
	require.NoError(t, err)
	assert.Equal(t, parsed.Truncate(time.Microsecond), parsed, "fecha keeps the stored precision")

	q := url.Values{"start_date": {fecha}, "end_date": {fecha}}
	status, raw, _ = doJSON(t, app, "GET", "/statistics/user/c1/50?"+q.Encode(), nil, "")
	require.Equal(t, 200, status)
	detail = models.DetailedStatistics{}
	require.NoError(t, json.Unmarshal(raw, &detail))
	require.Len(t, detail.Logs, 1, "a record dated exactly on both bounds is included")
	assert.Equal(t, fecha, detail.Logs[0].Date)
	assert.Equal(t, int64(1), detail.Total)
}

func TestExportExcel(t *testing.T) {
	t.Run("Error: Requires authentication", func(t *testing.T) {
		env := setupStatisticsApp()

		status, _, _ := doJSON(t, env.app, "POST", "/statistics/export-excel", map[string]interface{}{}, "")

		assert.Equal(t, 401, status)
		env.repo.AssertNotCalled(t, "ListAllFiltered", mock.Anything, mock.Anything)
	})

	t.Run("Error: Nothing matches", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.repo.On("ListAllFiltered", mock.Anything, mock.Anything).Return([]models.StatisticRecord{}, nil)

		body := map[string]interface{}{"course_id": "inexistente"}
		status, _, ctype := doJSON(t, env.app, "POST", "/statistics/export-excel", body, "good-token")

		assert.Equal(t, 404, status)
		assert.Equal(t, response.ProblemContentType, ctype)
	})

	t.Run("Success: Workbook attachment", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.repo.On("ListAllFiltered", mock.Anything, mock.MatchedBy(func(f models.StatisticsFilter) bool {
			return f.UserID != nil && *f.UserID == 1 && f.CourseID == nil
		})).Return([]models.StatisticRecord{
			{ID: 1, UserID: 1, CourseID: strPtr("curso1"), AssessmentID: "examen1", Title: "Examen 1",
				Kind: models.KindExam, Submitted: true, Grade: floatPtr(9), RecordedAt: time.Now().UTC()},
		}, nil)

		body := map[string]interface{}{"user_id": 1}
		req := httptest.NewRequest("POST", "/statistics/export-excel", bytes.NewReader(mustJSON(t, body)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer good-token")

		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "estadisticas_")
		raw, _ := io.ReadAll(resp.Body)
		assert.True(t, bytes.HasPrefix(raw, []byte("PK")), "xlsx is a zip archive")
	})

	t.Run("Success: Empty body means no filter", func(t *testing.T) {
		env := setupStatisticsApp()
		env.authorize()
		env.repo.On("ListAllFiltered", mock.Anything, models.StatisticsFilter{}).Return([]models.StatisticRecord{
			{ID: 1, UserID: 1, AssessmentID: "examen1", Kind: models.KindExam, RecordedAt: time.Now().UTC()},
		}, nil)

		status, _, _ := doJSON(t, env.app, "POST", "/statistics/export-excel", nil, "good-token")

		assert.Equal(t, 200, status)
		env.repo.AssertExpectations(t)
	})
}

func TestHealth(t *testing.T) {
	env := setupStatisticsApp()

	status, raw, _ := doJSON(t, env.app, "GET", "/health", nil, "")

	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}

func TestExportFilter(t *testing.T) {
	t.Run("Success: RFC 3339 end is kept as is", func(t *testing.T) {
		f, err := service.ExportFilter(models.ExportRequest{
			UserID:  int64Ptr(7),
			EndDate: strPtr("2024-03-01T12:00:00Z"),
		})

		require.NoError(t, err)
		assert.Equal(t, int64(7), *f.UserID)
		assert.Nil(t, f.Start)
		assert.True(t, f.End.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	})

	t.Run("Error: Invalid end date", func(t *testing.T) {
		_, err := service.ExportFilter(models.ExportRequest{EndDate: strPtr("mañana")})

		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
