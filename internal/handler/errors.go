package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/internal/store"
	"github.com/worksim/api/pkg/response"
)

// retryAfterSeconds is advertised while a video evaluation is running
const retryAfterSeconds = 30

// respondError maps service errors to response envelopes. Unknown errors
// are logged and answered with a generic message.
func respondError(c *fiber.Ctx, log *logrus.Logger, err error) error {
	var stateErr *service.InvalidStateError
	switch {
	case errors.As(err, &stateErr):
		return response.InvalidState(c, stateErr.Error(), fiber.Map{
			"actual":   stateErr.Actual,
			"expected": stateErr.Expected,
		})
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "You do not have access to this assessment")
	case errors.Is(err, store.ErrNotFound):
		return response.NotFound(c, "Resource not found")
	case errors.Is(err, service.ErrNoRecording):
		return response.NoRecording(c)
	case errors.Is(err, service.ErrEvaluationInProgress):
		return response.StillProcessing(c, "Video evaluation is still running, retry later", retryAfterSeconds)
	case errors.Is(err, service.ErrEvaluationFailed):
		log.WithError(err).WithField("path", c.Path()).Warn("video evaluation failed")
		return response.EvaluationFailed(c, "Video evaluation failed, retry later")
	case errors.Is(err, service.ErrNotRetryable), errors.Is(err, store.ErrConflict):
		return response.Conflict(c, err.Error())
	}

	log.WithError(err).WithFields(logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}).Error("request failed")
	return response.Internal(c)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string, len(validationErrors))
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}
