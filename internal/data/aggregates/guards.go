package aggregates

import (
	"strings"

	"github.com/yungbote/coursegen/internal/platform/apierr"
)

// RequireCASSuccess turns a status-guarded update that matched no row into a
// conflict.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return apierr.Conflict("%s", strings.TrimSpace(message))
}

// RequireStatusAllowed checks current against the allowed statuses.
func RequireStatusAllowed(current string, allowed ...string) error {
	current = strings.TrimSpace(current)
	for _, s := range allowed {
		if strings.EqualFold(current, strings.TrimSpace(s)) {
			return nil
		}
	}
	return apierr.Precondition("status %q not in %v", current, allowed)
}
