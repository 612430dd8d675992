package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/middleware"
	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/pkg/response"
)

type VideoHandler struct {
	service *service.VideoService
	log     *logrus.Logger
}

func NewVideoHandler(svc *service.VideoService, log *logrus.Logger) *VideoHandler {
	return &VideoHandler{service: svc, log: log}
}

// Results handles GET /api/video-assessments/:id
// @Summary      Get video evaluation results
// @Tags         Video
// @Produce      json
// @Param        id path string true "Video assessment ID"
// @Success      200 {object} model.VideoResultsResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/video-assessments/{id} [get]
func (h *VideoHandler) Results(c *fiber.Ctx) error {
	ids, invalid := uuidParams(c, "id")
	if invalid != nil {
		return response.ValidationError(c, "Invalid path parameter", invalid)
	}

	result, err := h.service.GetResults(c.UserContext(), ids[0], middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.OK(c, result)
}

// Retry handles POST /api/video-assessments/:id/retry
// @Summary      Retry a failed video evaluation
// @Tags         Video
// @Produce      json
// @Param        id path string true "Video assessment ID"
// @Success      202 {object} model.VideoRetryResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/video-assessments/{id}/retry [post]
func (h *VideoHandler) Retry(c *fiber.Ctx) error {
	ids, invalid := uuidParams(c, "id")
	if invalid != nil {
		return response.ValidationError(c, "Invalid path parameter", invalid)
	}

	result, err := h.service.Retry(c.UserContext(), ids[0], middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Accepted(c, result)
}
