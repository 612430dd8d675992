package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/config"
	"github.com/worksim/api/internal/middleware"
	"github.com/worksim/api/pkg/response"
)

// Routes wires the handlers onto a fiber app
type Routes struct {
	Auth        *AuthHandler
	Assessments *AssessmentHandler
	Videos      *VideoHandler
	Memory      *MemoryHandler
	APIAuth     fiber.Handler
	Limiter     *middleware.RateLimiter
	Limits      config.RateLimitConfig
	// Services reports which optional integrations are configured
	Services func() fiber.Map
}

func (r *Routes) Register(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		services := fiber.Map{}
		if r.Services != nil {
			services = r.Services()
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": services,
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", r.Auth.Verify)

	api := app.Group("/api", r.APIAuth)

	assessments := api.Group("/assessments")
	assessments.Post("/finalize", r.Limiter.FinalizeLimit(r.Limits.FinalizePerHour), r.Assessments.Finalize)
	assessments.Post("/report", r.Limiter.ReportLimit(r.Limits.ReportPerHour), r.Assessments.GenerateReport)
	assessments.Get("/:id/report", r.Assessments.GetReport)
	assessments.Get("/:id/coworkers/:coworkerId/memory", r.Memory.Get)

	videos := api.Group("/video-assessments")
	videos.Get("/:id", r.Videos.Results)
	videos.Post("/:id/retry", r.Videos.Retry)
}

// ErrorHandler is the fiber error handler. Only fiber errors keep their
// status and message; anything else is logged and reported generically.
func ErrorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return response.Error(c, fe.Code, codeForStatus(fe.Code), fe.Message, nil)
		}

		log.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("unhandled error")
		return response.Internal(c)
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return response.CodeNotFound
	case fiber.StatusUnauthorized:
		return response.CodeUnauthorized
	case fiber.StatusForbidden:
		return response.CodeForbidden
	case fiber.StatusTooManyRequests:
		return response.CodeRateLimited
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity:
		return response.CodeValidationError
	default:
		return response.CodeInternalError
	}
}
