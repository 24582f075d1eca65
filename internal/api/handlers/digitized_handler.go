package handlers

import (
	"time"

	"receiptflow/internal/dto"
	"receiptflow/internal/models"
	"receiptflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DigitizedHandler struct {
	lifecycle *service.LifecycleService
	logger    *zap.Logger
}

func NewDigitizedHandler(lifecycle *service.LifecycleService, logger *zap.Logger) *DigitizedHandler {
	return &DigitizedHandler{
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// ListDigitized godoc
// @Summary List digitized records
// @Tags digitized
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} models.Digitized
// @Router /api/v1/digitized [get]
func (h *DigitizedHandler) ListDigitized(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	recs, err := h.lifecycle.ListDigitized(c.Context(), companyID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list digitized records")
	}
	return c.JSON(recs)
}

// GetDigitized godoc
// @Summary Get a digitized record
// @Tags digitized
// @Produce json
// @Param id path string true "Record ID"
// @Security Bearer
// @Success 200 {object} models.Digitized
// @Failure 404 {object} map[string]string
// @Router /api/v1/digitized/{id} [get]
func (h *DigitizedHandler) GetDigitized(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	rec, err := h.lifecycle.GetDigitized(c.Context(), companyID, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get digitized record")
	}
	return c.JSON(rec)
}

// EditDigitized godoc
// @Summary Correct a digitized record
// @Description Malformed values are rejected with a field map. Amount inconsistencies are saved and returned as warnings.
// @Tags digitized
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param request body dto.EditDigitizedRequest true "Fields to change"
// @Security Bearer
// @Success 200 {object} dto.EditDigitizedResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/digitized/{id} [put]
func (h *DigitizedHandler) EditDigitized(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	var req dto.EditDigitizedRequest
	if !bindJSON(c, &req) {
		return badBody(c)
	}

	resp, err := h.lifecycle.Edit(c.Context(), companyID, id, &req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to update digitized record")
	}
	return c.JSON(resp)
}

// DeleteDigitized godoc
// @Summary Move a digitized record to review
// @Description Soft delete. The uploaded file is kept.
// @Tags digitized
// @Produce json
// @Param id path string true "Record ID"
// @Security Bearer
// @Success 200 {object} models.DigitizedReview
// @Failure 404 {object} map[string]string
// @Router /api/v1/digitized/{id} [delete]
func (h *DigitizedHandler) DeleteDigitized(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	review, err := h.lifecycle.SoftDelete(c.Context(), companyID, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to delete digitized record")
	}
	return c.JSON(review)
}

// MoveToReady godoc
// @Summary Validate a record and queue it for export
// @Description Runs every consistency check and returns all failures together
// @Tags digitized
// @Produce json
// @Param id path string true "Record ID"
// @Security Bearer
// @Success 200 {object} models.DigitizedReady
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/digitized/{id}/ready [post]
func (h *DigitizedHandler) MoveToReady(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	ready, err := h.lifecycle.MoveToReady(c.Context(), companyID, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to move record to ready")
	}
	return c.JSON(ready)
}

// ListReview godoc
// @Summary List soft-deleted records
// @Tags digitized
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} models.DigitizedReview
// @Router /api/v1/review [get]
func (h *DigitizedHandler) ListReview(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	recs, err := h.lifecycle.ListReview(c.Context(), companyID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list review records")
	}
	return c.JSON(recs)
}

// ListReady godoc
// @Summary List records awaiting export
// @Tags digitized
// @Produce json
// @Param from query string false "Earliest purchase date (YYYY-MM-DD)"
// @Param to query string false "Latest purchase date (YYYY-MM-DD)"
// @Security Bearer
// @Success 200 {array} models.DigitizedReady
// @Failure 400 {object} map[string]string
// @Router /api/v1/ready [get]
func (h *DigitizedHandler) ListReady(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	from, err := queryDate(c, "from")
	if err != nil {
		return respondError(c, h.logger, err, "Invalid date")
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return respondError(c, h.logger, err, "Invalid date")
	}

	recs, err := h.lifecycle.ListReady(c.Context(), companyID, from, to)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list ready records")
	}
	return c.JSON(recs)
}

// ListReported godoc
// @Summary List exported records
// @Tags digitized
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} models.DigitizedReported
// @Router /api/v1/reported [get]
func (h *DigitizedHandler) ListReported(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	recs, err := h.lifecycle.ListReported(c.Context(), companyID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list reported records")
	}
	return c.JSON(recs)
}

// queryDate reads an optional date query parameter.
func queryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := models.ParseDate(raw)
	if err != nil {
		return nil, service.FieldErrors{key: "must be YYYY-MM-DD, RFC3339 or DD/MM/YYYY"}
	}
	return &t, nil
}
