package relay

import (
	"imgrelay-server-go/internal/platform/errors"
	"imgrelay-server-go/internal/utils"
)

const (
	unhandledReason = "unhandled_error"
	maxReasonLength = 200
)

// SanitizeReason makes an error message safe for a response header by
// replacing everything outside [A-Za-z0-9 ] with '_'.
func SanitizeReason(message string) string {
	return utils.Truncate(utils.ReplaceNonAlphanumeric(message, '_'), maxReasonLength)
}

// RedirectReason is the X-Redirect-Reason value for a failure that falls
// back to the original resource. Unclassified errors never leak detail.
func RedirectReason(err error) string {
	if errors.KindOf(err) != errors.KindTranscode {
		return unhandledReason
	}
	return SanitizeReason(errors.MessageOf(err))
}
