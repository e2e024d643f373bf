package submission

import (
	"fmt"
	"strings"

	dErrors "staygate/pkg/domain-errors"
)

// Substring patterns the gateway uses in rejection bodies. The gateway does
// not return machine-readable error codes, so classification falls back to
// text matching. This is fragile by nature; the patterns are kept exactly
// as observed and isolated here so a gateway wording change has one place
// to break.
var (
	authPatterns = []string{
		"unauthorized",
		"invalid subject",
		"bad credentials",
	}
	validationPatterns = []string{
		"bad request",
		"validation",
		"invalid form",
	}
)

// ClassifyGatewayFailure maps a non-2xx gateway response to a domain error.
//
// Authentication/authorization failures (401/403, or an auth-shaped
// message) classify as auth errors. Responses where the gateway
// authenticated the caller but rejected the payload (other 4xx, or a
// validation-shaped message) classify as data-validation errors. Everything
// else is a transport failure.
//
// The auth/data-validation distinction is business-significant: during a
// credential verification check, a data-validation rejection is treated as
// proof that authentication succeeded (the gateway read the payload, so the
// signed token was accepted). Surprising, but intentional; callers rely on
// it.
func ClassifyGatewayFailure(status int, body string) error {
	lower := strings.ToLower(body)

	if status == 401 || status == 403 || matchesAny(lower, authPatterns) {
		return dErrors.Newf(dErrors.CodeAuth, "gateway rejected credentials (status %d): %s", status, truncate(body))
	}
	if (status >= 400 && status < 500) || matchesAny(lower, validationPatterns) {
		return dErrors.Newf(dErrors.CodeDataValidation, "gateway rejected payload (status %d): %s", status, truncate(body))
	}
	return dErrors.Newf(dErrors.CodeTransport, "gateway failure (status %d): %s", status, truncate(body))
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// truncate keeps error messages loggable when the gateway returns an HTML
// error page.
func truncate(body string) string {
	const max = 256
	if len(body) <= max {
		return body
	}
	return fmt.Sprintf("%s... (%d bytes)", body[:max], len(body))
}
