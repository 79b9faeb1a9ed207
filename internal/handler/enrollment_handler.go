package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enrollhub/enrollment-service/internal/models"
	"github.com/enrollhub/enrollment-service/internal/service"
	appErrors "github.com/enrollhub/enrollment-service/pkg/errors"
	"github.com/enrollhub/enrollment-service/pkg/response"
)

type enrollmentService interface {
	Create(ctx context.Context, owner string, req service.CreateEnrollmentRequest) (*models.Enrollment, error)
	List(ctx context.Context, owner string, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error)
	Get(ctx context.Context, owner, id string) (*models.Enrollment, error)
	Delete(ctx context.Context, owner, id string) error
}

// EnrollmentHandler exposes the owner-scoped enrollment endpoints.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs handler.
func NewEnrollmentHandler(service enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// Create godoc
// @Summary Request an enrollment
// @Description Stores the request as pending and queues it for processing.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BasicAuth
// @Param payload body service.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	enrollment, err := h.service.Create(c.Request.Context(), ownerFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// List godoc
// @Summary List my enrollments
// @Tags Enrollments
// @Produce json
// @Security BasicAuth
// @Param status query string false "pending, approved, rejected or failed"
// @Param cpf query string false "CPF filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		CPF:      c.Query("cpf"),
		Status:   models.EnrollmentStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	items, pagination, err := h.service.List(c.Request.Context(), ownerFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get one of my enrollments
// @Tags Enrollments
// @Produce json
// @Security BasicAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.service.Get(c.Request.Context(), ownerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Delete godoc
// @Summary Delete one of my enrollments
// @Tags Enrollments
// @Security BasicAuth
// @Param id path string true "Enrollment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), ownerFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
