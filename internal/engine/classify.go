package engine

import (
	"errors"
	"strings"

	"github.com/budgetvault/BudgetVault/internal/remote"
)

// blockedPatterns are the error-message fragments that indicate the network
// path itself is blocked (ad blocker, corporate proxy, captive portal)
// rather than a transient server hiccup.
var blockedPatterns = []string{
	"err_blocked_by_client",
	"blocked",
	"failed to fetch",
}

// IsNetworkBlockingError reports whether err is a client-side network block.
// Blocked errors are never retried: the retry budget belongs to transient
// failures, and hammering a blocking proxy only makes the feed noisier.
func IsNetworkBlockingError(err error) bool {
	if err == nil {
		return false
	}
	var se *remote.StatusError
	if errors.As(err, &se) && se.Code == "unavailable" {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range blockedPatterns {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}
