package session

import (
	"strings"

	"github.com/anvret/vocifer/internal/transport"
)

// quotaTextPatterns are lowercase substrings that mark a server error as a
// quota or rate-limit rejection. Matching is deliberately loose: providers
// phrase these errors inconsistently and the cost of a false positive is one
// cooldown spent in batch mode, not data loss.
var quotaTextPatterns = []string{
	"quota",
	"rate limit",
	"rate-limit",
	"resource exhausted",
	"resource_exhausted",
	"too many requests",
	"429",
}

// quotaCloseCodes are WebSocket close statuses used for quota enforcement:
// 1008 policy violation, 1013 try again later.
var quotaCloseCodes = map[int]bool{
	1008: true,
	1013: true,
}

// isQuotaMessage reports whether an explicit server error payload signals
// quota exhaustion.
func isQuotaMessage(code int, message string) bool {
	if code == 429 {
		return true
	}
	lower := strings.ToLower(message)
	for _, pat := range quotaTextPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// isQuotaClose reports whether a connection error carries a close code
// associated with quota enforcement.
func isQuotaClose(err error) bool {
	return quotaCloseCodes[transport.CloseCode(err)]
}
