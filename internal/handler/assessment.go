package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/middleware"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/pkg/response"
)

type AssessmentHandler struct {
	finalize  *service.FinalizeService
	reports   *service.ReportService
	validator *validator.Validate
	log       *logrus.Logger
}

func NewAssessmentHandler(finalize *service.FinalizeService, reports *service.ReportService, v *validator.Validate, log *logrus.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		finalize:  finalize,
		reports:   reports,
		validator: v,
		log:       log,
	}
}

// Finalize handles POST /api/assessments/finalize
// @Summary      Finalize an assessment
// @Description  Completes a WORKING assessment, then closes the PR, starts the video evaluation and generates the profile photo
// @Tags         Assessments
// @Accept       json
// @Produce      json
// @Param        request body model.FinalizeRequest true "Finalize request"
// @Success      200 {object} model.FinalizeResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assessments/finalize [post]
func (h *AssessmentHandler) Finalize(c *fiber.Ctx) error {
	var req model.FinalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.finalize.Finalize(c.UserContext(), req.AssessmentID, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.OK(c, result)
}

// GenerateReport handles POST /api/assessments/report
// @Summary      Generate the assessment report
// @Description  Builds the report from the video evaluation, evaluating first when needed. Returns 202 while the evaluation runs.
// @Tags         Assessments
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateReportRequest true "Report request"
// @Success      200 {object} model.GenerateReportResponse
// @Failure      202 {object} response.ErrorResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assessments/report [post]
func (h *AssessmentHandler) GenerateReport(c *fiber.Ctx) error {
	var req model.GenerateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.reports.GenerateReport(c.UserContext(), req.AssessmentID, middleware.GetUserID(c), req.ForceRegenerate)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.OK(c, result)
}

// GetReport handles GET /api/assessments/:id/report
// @Summary      Get the persisted report
// @Tags         Assessments
// @Produce      json
// @Param        id path string true "Assessment ID"
// @Success      200 {object} model.GetReportResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assessments/{id}/report [get]
func (h *AssessmentHandler) GetReport(c *fiber.Ctx) error {
	ids, invalid := uuidParams(c, "id")
	if invalid != nil {
		return response.ValidationError(c, "Invalid path parameter", invalid)
	}

	report, err := h.reports.GetReport(c.UserContext(), ids[0], middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.OK(c, model.GetReportResponse{Report: report})
}
