package gh

import (
	"errors"
	"fmt"
	"strings"
)

// DiscoveryError wraps a failed discovery call and records whether the
// failure looked like throttling. Rate-limited failures propagate
// immediately so the caller can decide whether to fall back; everything else
// has already consumed its single retry by the time this surfaces.
type DiscoveryError struct {
	RateLimited bool
	Err         error
}

func (e *DiscoveryError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("discovery rate limited: %v", e.Err)
	}
	return fmt.Sprintf("discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a rate-limited DiscoveryError.
func IsRateLimited(err error) bool {
	var de *DiscoveryError
	return errors.As(err, &de) && de.RateLimited
}

// rateLimitPhrases are matched case-insensitively against gh error text.
// This is a best-effort classifier over free-text output, not a contract:
// an unrecognized throttle message degrades to the transient-other path.
var rateLimitPhrases = []string{
	"rate limit",
	"rate-limit",
	"abuse detection",
	"too many requests",
	"secondary rate",
	"was submitted too quickly",
}

// IsRateLimitError classifies an error by its message text.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	// gh reports HTTP status codes inline; a 403 mentioning limits is the
	// REST API's throttle response.
	if strings.Contains(msg, "403") && strings.Contains(msg, "limit") {
		return true
	}
	return false
}
