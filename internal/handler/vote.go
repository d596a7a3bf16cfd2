package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/KevinRabun/TruePulse-sub001/internal/middleware"
	"github.com/KevinRabun/TruePulse-sub001/internal/model"
	"github.com/KevinRabun/TruePulse-sub001/internal/service"
)

type VoteHandler struct {
	svc *service.AdmissionService
}

func NewVoteHandler(svc *service.AdmissionService) *VoteHandler {
	return &VoteHandler{svc: svc}
}

// attemptFromRequest builds a VoteAttempt from the request. The verified
// identity arrives in X-Identity-ID from the authentication layer, which
// fronts this service; an unverified caller never reaches it.
func attemptFromRequest(c fiber.Ctx, req model.VoteRequest) model.VoteAttempt {
	return model.VoteAttempt{
		IdentityID:     c.Get("X-Identity-ID"),
		PollID:         req.PollID,
		ChoiceID:       req.ChoiceID,
		SourceAddress:  c.IP(),
		Signals:        req.Signals,
		ChallengeID:    req.ChallengeID,
		ChallengeProof: req.ChallengeProof,
	}
}

func parseVoteRequest(c fiber.Ctx) (model.VoteRequest, bool) {
	var req model.VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return req, false
	}

	pollID, errMsg := middleware.ValidatePollID(req.PollID)
	if errMsg != "" {
		return req, false
	}
	req.PollID = pollID

	choiceID, errMsg := middleware.ValidateChoiceID(req.ChoiceID)
	if errMsg != "" {
		return req, false
	}
	req.ChoiceID = choiceID

	if req.ChallengeID != "" {
		challengeID, errMsg := middleware.ValidateChallengeID(req.ChallengeID)
		if errMsg != "" {
			return req, false
		}
		req.ChallengeID = challengeID
	}

	req.Signals.UserAgent = middleware.ValidateUserAgent(req.Signals.UserAgent)
	return req, true
}

// Submit handles POST /api/votes — the full admission pipeline.
func (h *VoteHandler) Submit(c fiber.Ctx) error {
	req, ok := parseVoteRequest(c)
	if !ok {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_REQUEST", "Invalid vote request")
	}

	resp, err := h.svc.AdmitVote(c.Context(), attemptFromRequest(c, req))
	if err != nil {
		return respondAdmissionError(c, err)
	}

	if resp.AlreadyVoted {
		// Idempotent duplicate, not an error state.
		Metrics.VotesDuplicate.Inc()
	} else {
		Metrics.VotesAdmitted.Inc()
	}
	recordDecisionMetrics(resp.Decision)
	return c.JSON(resp)
}

func recordDecisionMetrics(d *model.Decision) {
	if d == nil {
		return
	}
	Metrics.Decisions.WithLabelValues(string(d.Action), d.Level.String()).Inc()
	for _, signal := range d.Snapshot.DegradedSignals {
		Metrics.SignalDegraded.WithLabelValues(signal).Inc()
	}
}

// Evaluate handles POST /api/votes/evaluate — a dry-run risk evaluation that
// issues a challenge when one would be required but admits nothing.
func (h *VoteHandler) Evaluate(c fiber.Ctx) error {
	req, ok := parseVoteRequest(c)
	if !ok {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_REQUEST", "Invalid vote request")
	}

	decision, err := h.svc.Evaluate(c.Context(), attemptFromRequest(c, req))
	if err != nil {
		var challenge *service.ChallengeRequiredError
		if errors.As(err, &challenge) {
			Metrics.Decisions.WithLabelValues("challenge", "").Inc()
			return c.JSON(model.EvaluateResponse{
				Action:        model.ActionChallenge,
				ChallengeType: challenge.Type,
				ChallengeID:   challenge.ChallengeID,
			})
		}
		return respondAdmissionError(c, err)
	}

	recordDecisionMetrics(decision)
	return c.JSON(model.EvaluateResponse{
		Action:    decision.Action,
		RiskLevel: decision.Level.String(),
	})
}

type retractRequest struct {
	IdentityID string `json:"identityId"`
	PollID     string `json:"pollId"`
}

// Retract handles POST /api/votes/retract — the operator surface for an
// audited retraction of a vote later ruled fraudulent.
func (h *VoteHandler) Retract(c fiber.Ctx) error {
	var req retractRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	if req.IdentityID == "" || len(req.IdentityID) > middleware.MaxIdentityIDLen {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", "identityId is required")
	}
	pollID, errMsg := middleware.ValidatePollID(req.PollID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	retracted, err := h.svc.RetractVote(c.Context(), req.IdentityID, pollID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retract vote")
	}
	if !retracted {
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "VOTE_NOT_FOUND", "No vote recorded for this identity and poll")
	}
	return c.JSON(fiber.Map{"retracted": true})
}

// Count handles GET /api/polls/:pollId/votes/count — admitted vote count for
// operator dashboards.
func (h *VoteHandler) Count(c fiber.Ctx) error {
	pollID, errMsg := middleware.ValidatePollID(c.Params("pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	n, err := h.svc.PollAdmissionCount(c.Context(), pollID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count votes")
	}
	return c.JSON(fiber.Map{"pollId": pollID, "admitted": n})
}

// respondAdmissionError maps pipeline errors to API responses. Block and
// challenge responses stay generic: which signal fired is never revealed.
func respondAdmissionError(c fiber.Ctx, err error) error {
	var blocked *service.FraudBlockedError
	if errors.As(err, &blocked) {
		Metrics.VotesBlocked.Inc()
		return middleware.ErrorResponse(c, fiber.StatusForbidden, "INTEGRITY_REFUSED",
			"This vote could not be accepted.")
	}

	var challenge *service.ChallengeRequiredError
	if errors.As(err, &challenge) {
		Metrics.ChallengesIssued.WithLabelValues(string(challenge.Type)).Inc()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"action":        model.ActionChallenge,
			"challengeType": challenge.Type,
			"challengeId":   challenge.ChallengeID,
		})
	}

	var rejected *service.ChallengeRejectedError
	if errors.As(err, &rejected) {
		return middleware.ErrorResponse(c, fiber.StatusForbidden, "CHALLENGE_FAILED",
			"Challenge verification failed. Please try again.")
	}

	switch {
	case errors.Is(err, service.ErrIdentityMissing):
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "IDENTITY_REQUIRED", "A verified identity is required to vote")
	case errors.Is(err, service.ErrPollNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "POLL_NOT_FOUND", "Poll not found")
	case errors.Is(err, service.ErrPollClosed):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "POLL_CLOSED", "Poll is not open for voting")
	case errors.Is(err, service.ErrChoiceMismatch):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_CHOICE", "Choice does not belong to poll")
	}

	return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process vote")
}
