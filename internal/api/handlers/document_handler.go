package handlers

import (
	"io"
	"net/http"
	"strings"

	"receiptflow/internal/models"
	"receiptflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	lifecycle *service.LifecycleService
	logger    *zap.Logger
}

func NewDocumentHandler(lifecycle *service.LifecycleService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// UploadDocument godoc
// @Summary Upload a receipt or invoice
// @Description Stores the file and queues it for digitization
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Receipt image (jpeg, png, webp, heic) or PDF"
// @Security Bearer
// @Success 201 {object} models.Document
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 402 {object} map[string]string
// @Router /api/v1/documents/upload [post]
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}

	mimeType := file.Header.Get(fiber.HeaderContentType)
	if mimeType == "" || strings.HasPrefix(mimeType, fiber.MIMEOctetStream) {
		mimeType = http.DetectContentType(data)
	}

	doc, err := h.lifecycle.Upload(c.Context(), companyID, userID, file.Filename, mimeType, data)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to upload document")
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// DigitizeDocument godoc
// @Summary Digitize a queued document
// @Description Extracts receipt fields and moves the document to the digitized stage. Non-receipts are marked DELETED.
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 200 {object} dto.DigitizeResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/documents/{id}/digitize [post]
func (h *DocumentHandler) DigitizeDocument(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	documentID, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	result, err := h.lifecycle.Digitize(c.Context(), companyID, documentID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to digitize document")
	}

	return c.JSON(result)
}

// ListDocuments godoc
// @Summary List queued documents
// @Description Documents that have not reached the digitized stage. Deleted documents are hidden unless requested by status.
// @Tags documents
// @Produce json
// @Param status query string false "QUEUE, PROCESSING, ERROR or DELETED"
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} models.Document
// @Failure 401 {object} map[string]string
// @Router /api/v1/documents [get]
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	companyID, err := getCompanyID(c)
	if err != nil {
		return unauthorized(c)
	}

	status := models.DocumentStatus(strings.ToUpper(c.Query("status")))
	docs, err := h.lifecycle.ListDocuments(c.Context(), companyID, status, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list documents")
	}

	return c.JSON(docs)
}
