package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"course-statistics-service/app/apperror"
	"course-statistics-service/utils"

	"github.com/gofiber/fiber/v2"
)

// RosterClient reads course enrollment from the courses service. When the request
// context carries a TokenHolder the call is authenticated with the service token,
// and a 401 triggers one re-login and retry. No other retries are made.
type RosterClient struct {
	baseURL string
}

func NewRosterClient(baseURL string) *RosterClient {
	return &RosterClient{baseURL: baseURL}
}

func (c *RosterClient) EnrolledUsers(ctx context.Context, courseID string) ([]int64, error) {
	holder := utils.TokenHolderFrom(ctx)

	var token string
	if holder != nil {
		var err error
		if token, err = holder.Token(ctx); err != nil {
			return nil, apperror.Upstream("service login failed", err)
		}
	}

	code, body, err := c.fetch(courseID, token)
	if err != nil {
		return nil, err
	}
	if code == fiber.StatusUnauthorized && holder != nil {
		if token, err = holder.Refresh(ctx); err != nil {
			return nil, apperror.Upstream("service login failed", err)
		}
		if code, body, err = c.fetch(courseID, token); err != nil {
			return nil, err
		}
	}
	if code != fiber.StatusOK {
		return nil, apperror.Upstream(
			fmt.Sprintf("courses service returned %d for course %s", code, courseID),
			errors.New(string(body)),
		)
	}

	var course struct {
		EnrolledUsers []int64 `json:"enrolled_users"`
	}
	if err := json.Unmarshal(body, &course); err != nil {
		return nil, apperror.Upstream("invalid course response", err)
	}
	return course.EnrolledUsers, nil
}

func (c *RosterClient) fetch(courseID, token string) (int, []byte, error) {
	a := fiber.Get(c.baseURL + "/courses/" + url.PathEscape(courseID))
	if token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return 0, nil, apperror.Upstream("courses service unreachable", errors.Join(errs...))
	}
	return code, body, nil
}
