package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/middleware"
	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/pkg/response"
)

type MemoryHandler struct {
	service *service.MemoryService
	log     *logrus.Logger
}

func NewMemoryHandler(svc *service.MemoryService, log *logrus.Logger) *MemoryHandler {
	return &MemoryHandler{service: svc, log: log}
}

// Get handles GET /api/assessments/:id/coworkers/:coworkerId/memory
// @Summary      Get conversation memory for a coworker
// @Tags         Memory
// @Produce      json
// @Param        id path string true "Assessment ID"
// @Param        coworkerId path string true "Coworker ID"
// @Success      200 {object} model.CoworkerMemoryResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assessments/{id}/coworkers/{coworkerId}/memory [get]
func (h *MemoryHandler) Get(c *fiber.Ctx) error {
	ids, invalid := uuidParams(c, "id", "coworkerId")
	if invalid != nil {
		return response.ValidationError(c, "Invalid path parameter", invalid)
	}

	result, err := h.service.GetCoworkerMemory(c.UserContext(), ids[0], middleware.GetUserID(c), ids[1])
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.OK(c, result)
}
