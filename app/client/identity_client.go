package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"course-statistics-service/app/apperror"

	"github.com/gofiber/fiber/v2"
)

// IdentityClient talks to the auth service. Requests go through Fiber's fasthttp agent,
// which has no per-request context; ctx is accepted for the callers' interfaces.
type IdentityClient struct {
	baseURL string
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{baseURL: baseURL}
}

// Me validates a user's bearer token and returns the user id behind it.
func (c *IdentityClient) Me(ctx context.Context, token string) (int64, error) {
	a := fiber.Get(c.baseURL + "/me")
	a.Set(fiber.HeaderAuthorization, "Bearer "+token)

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return 0, apperror.Upstream("identity service unreachable", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return 0, apperror.Auth("Token inválido o expirado", fmt.Errorf("identity service returned %d", code))
	}

	var me struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return 0, apperror.Upstream("invalid identity response", err)
	}
	return me.ID, nil
}

// Login obtains a service account token. Implements utils.TokenIssuer.
func (c *IdentityClient) Login(ctx context.Context, username, password string) (string, error) {
	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("username", username)
	args.Set("password", password)

	a := fiber.Post(c.baseURL + "/api/v1/token/service").Form(args)

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return "", apperror.Upstream("identity service unreachable", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return "", apperror.Upstream("service authentication failed", fmt.Errorf("identity service returned %d: %s", code, body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", apperror.Upstream("invalid token response", err)
	}
	return out.AccessToken, nil
}
