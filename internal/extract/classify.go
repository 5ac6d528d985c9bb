package extract

import "strings"

// Hints that an extraction failure was caused by the upstream provider
// refusing to serve us, rather than a problem with the request itself.
// Purely advisory: the hint is attached to the user-facing error
// response and plays no part in control flow.
var blockedFragments = []string{
	"403",
	"429",
	"sign in to confirm",
	"confirm you're not a bot",
	"confirm you are not a bot",
	"access denied",
	"blocked",
	"captcha",
	"too many requests",
}

const BlockedHint = "likely blocked by the upstream provider"

// ClassifyFailure inspects an engine failure message and returns a
// coarse user-facing hint, or an empty string if the cause is not
// recognised.
func ClassifyFailure(detail string) string {
	lowered := strings.ToLower(detail)
	for _, fragment := range blockedFragments {
		if strings.Contains(lowered, fragment) {
			return BlockedHint
		}
	}

	return ""
}
