package handlers

import (
	"mime"
	"path/filepath"

	"receiptflow/internal/dto"
	"receiptflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ExportHandler struct {
	exports *service.ExportService
	logger  *zap.Logger
}

func NewExportHandler(exports *service.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		logger:  logger,
	}
}

// Export godoc
// @Summary Export ready records
// @Description Sends the records to Xero or renders an Excel or PDF file. Each record succeeds or fails on its own.
// @Tags export
// @Accept json
// @Produce json
// @Param request body dto.ExportRequest true "Ids and mode (xero_bill, xero_spend, excel, pdf)"
// @Security Bearer
// @Success 200 {object} dto.ExportSummary
// @Failure 400 {object} map[string]string
// @Failure 402 {object} map[string]string
// @Router /api/v1/ready/export [post]
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ExportRequest
	if !bindJSON(c, &req) {
		return badBody(c)
	}

	summary, err := h.exports.Export(c.Context(), companyID, userID, &req)
	if err != nil {
		return respondError(c, h.logger, err, "Export failed")
	}
	return c.JSON(summary)
}

// ListExportHistory godoc
// @Summary List export batches
// @Tags export
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} models.ExportHistory
// @Router /api/v1/exports [get]
func (h *ExportHandler) ListExportHistory(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	history, err := h.exports.ListExportHistory(c.Context(), companyID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list export history")
	}
	return c.JSON(history)
}

// DownloadExport godoc
// @Summary Download an export file
// @Tags export
// @Produce application/octet-stream
// @Param name path string true "File name"
// @Security Bearer
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Router /api/v1/exports/files/{name} [get]
func (h *ExportHandler) DownloadExport(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	name := c.Params("name")
	data, err := h.exports.Download(c.Context(), companyID, name)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to download export")
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Attachment(name)
	return c.Send(data)
}
