package handlers

import (
	"receiptflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type VendorHandler struct {
	vendors *service.VendorService
	logger  *zap.Logger
}

func NewVendorHandler(vendors *service.VendorService, logger *zap.Logger) *VendorHandler {
	return &VendorHandler{
		vendors: vendors,
		logger:  logger,
	}
}

// GetVendor godoc
// @Summary Look up a vendor by ABN
// @Description Served from the cache while fresh, otherwise refreshed from the Australian Business Register
// @Tags vendors
// @Produce json
// @Param abn path string true "11 digit ABN"
// @Security Bearer
// @Success 200 {object} models.Vendor
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/vendors/{abn} [get]
func (h *VendorHandler) GetVendor(c *fiber.Ctx) error {
	v, err := h.vendors.Lookup(c.Context(), c.Params("abn"))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to look up vendor")
	}
	return c.JSON(v)
}
