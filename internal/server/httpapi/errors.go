package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/avolkov/authgate/internal/common"
)

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// statusFor maps a domain error to its HTTP status. Unknown errors are
// reported as internal so the raw cause never leaks to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUserAlreadyExists):
		return fiber.StatusBadRequest
	case errors.Is(err, common.ErrCredentialsIncorrect):
		return fiber.StatusForbidden
	case errors.Is(err, common.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrAuthHeaderMissing),
		errors.Is(err, common.ErrAuthHeaderMalformed),
		errors.Is(err, common.ErrTokenInvalidOrExpired),
		errors.Is(err, common.ErrInsufficientRole):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders every handler error as {status, message} JSON.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Status: fe.Code, Message: fe.Message})
	}

	code := statusFor(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		msg = "internal server error"
	}
	return c.Status(code).JSON(errorResponse{Status: code, Message: msg})
}
