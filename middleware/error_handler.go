package middleware

import (
	"errors"

	"course-statistics-service/app/apperror"
	"course-statistics-service/app/response"
	"course-statistics-service/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the single place where errors become HTTP statuses.
// Internal and upstream causes are logged and never sent to the caller.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return response.Problem(c, fe.Code, fe.Message, "")
		}

		kind := apperror.KindOf(err)
		status := kind.Status()
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Method(), "path", c.Path(),
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
				"error", err)
		}
		return response.Problem(c, status, kind.Title(), apperror.PublicMessage(err))
	}
}
