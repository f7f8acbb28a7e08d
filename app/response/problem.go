package response

import (
	models "course-statistics-service/app/models"

	"github.com/gofiber/fiber/v2"
)

const ProblemContentType = "application/problem+json"

// Problem writes an RFC 7807 body for the current request.
func Problem(c *fiber.Ctx, status int, title, detail string) error {
	body := models.Problem{
		Title:    title,
		Detail:   detail,
		Status:   status,
		Instance: c.OriginalURL(),
	}
	if err := c.Status(status).JSON(body); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, ProblemContentType)
	return nil
}
