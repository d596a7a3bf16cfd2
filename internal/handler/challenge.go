package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/KevinRabun/TruePulse-sub001/internal/middleware"
	"github.com/KevinRabun/TruePulse-sub001/internal/model"
	"github.com/KevinRabun/TruePulse-sub001/internal/service"
	"github.com/KevinRabun/TruePulse-sub001/pkg/hash"
)

type ChallengeHandler struct {
	challenges   *service.ChallengeService
	outcomes     *service.OutcomeWorker
	identitySalt string
}

func NewChallengeHandler(challenges *service.ChallengeService, outcomes *service.OutcomeWorker, identitySalt string) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges, outcomes: outcomes, identitySalt: identitySalt}
}

type verifyRequest struct {
	ChallengeID string `json:"challengeId"`
	Proof       string `json:"proof"`
}

// Verify handles POST /api/challenges/verify. A standalone verification for
// callers that complete the challenge before resubmitting the vote; the
// outcome feeds the reputation ledger either way.
func (h *ChallengeHandler) Verify(c fiber.Ctx) error {
	identityID := c.Get("X-Identity-ID")
	if identityID == "" {
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "IDENTITY_REQUIRED", "A verified identity is required")
	}

	var req verifyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	challengeID, errMsg := middleware.ValidateChallengeID(req.ChallengeID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	identityHash := hash.IdentityHash(identityID, h.identitySalt)
	ok, err := h.challenges.Verify(c.Context(), challengeID, identityHash, req.Proof, c.IP())
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to verify challenge")
	}

	if ok {
		h.outcomes.Enqueue(identityHash, model.OutcomeChallengePassed)
	} else {
		h.outcomes.Enqueue(identityHash, model.OutcomeChallengeFailed)
	}

	return c.JSON(fiber.Map{"passed": ok})
}
