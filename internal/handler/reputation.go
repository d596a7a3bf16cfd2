package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/KevinRabun/TruePulse-sub001/internal/middleware"
	"github.com/KevinRabun/TruePulse-sub001/internal/service"
)

// ReputationHandler exposes the ledger to operator tooling. Lookups are by
// identity hash; the raw identity never appears on this surface.
type ReputationHandler struct {
	ledger *service.ReputationService
}

func NewReputationHandler(ledger *service.ReputationService) *ReputationHandler {
	return &ReputationHandler{ledger: ledger}
}

// Get handles GET /api/reputation/:identityHash
func (h *ReputationHandler) Get(c fiber.Ctx) error {
	identityHash, errMsg := middleware.ValidateIdentityHash(c.Params("identityHash"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	rep, err := h.ledger.Get(c.Context(), identityHash)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load reputation")
	}

	return c.JSON(rep)
}
