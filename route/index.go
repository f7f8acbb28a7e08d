package route

import (
	"course-statistics-service/app/service"
	"course-statistics-service/logger"
	"course-statistics-service/middleware"
	"course-statistics-service/utils"

	"github.com/gofiber/fiber/v2"
)

type Deps struct {
	Statistics *service.StatisticsService
	Identity   middleware.IdentityVerifier
	Tokens     *utils.TokenHolder
	Log        *logger.Logger
}

func SetupRoutes(app *fiber.App, d Deps) {
	auth := middleware.AuthRequired(d.Identity, d.Log)
	serviceToken := middleware.ServiceToken(d.Tokens)

	app.Get("/health", service.Health)

	// Events
	app.Post("/user-statistics", auth, d.Statistics.SaveUserStatistics)
	app.Post("/course-statistics", auth, serviceToken, d.Statistics.SaveCourseStatistics)

	// Reports
	stats := app.Group("/statistics")
	stats.Get("/global", d.Statistics.GetGlobalStatistics)
	stats.Get("/course/:course_id", d.Statistics.GetCourseStatistics)
	stats.Get("/user/:course_id/:user_id", d.Statistics.GetUserStatistics)
	stats.Post("/export-excel", auth, d.Statistics.ExportExcel)
}
