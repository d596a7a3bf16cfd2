package middleware

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// Field length limits matching database schema constraints.
const (
	MaxPollIDLen      = 64  // vote_tokens.poll_id VARCHAR(64)
	MaxChoiceIDLen    = 64  // vote_tokens.choice_id VARCHAR(64)
	MaxIdentityIDLen  = 128 // pre-hash subject identifier from the auth layer
	MaxUserAgentLen   = 256
	MaxChallengeIDLen = 36 // UUID string
)

var (
	// idRe matches poll/choice identifiers: alphanumeric, dash, underscore.
	idRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// hexRe matches lowercase hex strings (identity hashes).
	hexRe = regexp.MustCompile(`^[0-9a-f]+$`)
	// uuidRe matches challenge ticket IDs.
	uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidatePollID checks that a poll ID is well-formed and within DB limits.
func ValidatePollID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "pollId is required"
	}
	if len(id) > MaxPollIDLen {
		return "", "pollId must be at most 64 characters"
	}
	if !idRe.MatchString(id) {
		return "", "pollId contains invalid characters"
	}
	return id, ""
}

// ValidateChoiceID checks that a choice ID is well-formed.
func ValidateChoiceID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "choiceId is required"
	}
	if len(id) > MaxChoiceIDLen {
		return "", "choiceId must be at most 64 characters"
	}
	if !idRe.MatchString(id) {
		return "", "choiceId contains invalid characters"
	}
	return id, ""
}

// ValidateIdentityHash checks an identity hash path parameter (operator
// reputation lookups take the hash, never a raw identity).
func ValidateIdentityHash(id string) (string, string) {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return "", "identityHash is required"
	}
	if len(id) != 64 || !hexRe.MatchString(id) {
		return "", "identityHash must be a 64-character hex hash"
	}
	return id, ""
}

// ValidateChallengeID checks a challenge ticket ID.
func ValidateChallengeID(id string) (string, string) {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return "", "challengeId is required"
	}
	if !uuidRe.MatchString(id) {
		return "", "challengeId must be a UUID"
	}
	return id, ""
}

// ValidateUserAgent trims and truncates user agent to sane limits.
func ValidateUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if len(ua) > MaxUserAgentLen {
		ua = ua[:MaxUserAgentLen]
	}
	return ua
}
