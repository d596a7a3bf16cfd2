package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the hex-encoded SHA256 hash of the input string.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// VoteToken derives the deduplication token for an (identity, poll) pair:
// SHA256(identityID || pollID || secret), hex-encoded. The token is
// deterministic for a given pair and secret, and cannot be reversed to the
// identity without the server secret. Rotating the secret is a maintenance
// event: old tokens stay valid for dedup but new ones no longer match them,
// so a rotation must be scheduled between polls, never mid-poll.
func VoteToken(identityID, pollID, secret string) string {
	h := sha256.New()
	h.Write([]byte(identityID))
	h.Write([]byte{0})
	h.Write([]byte(pollID))
	h.Write([]byte{0})
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityHash hashes a durable identity ID with a salt. Used everywhere an
// identity must be keyed (reputation ledger, fingerprint windows, audit log)
// so raw identity IDs never reach storage or logs.
func IdentityHash(identityID, salt string) string {
	return SHA256Hex(salt + identityID)
}

// IPHashPrefix produces a short, irreversible hash prefix of an IP address
// for log correlation without storing raw PII.
func IPHashPrefix(ip string) string {
	return SHA256Hex(ip)[:12]
}
