package content

import (
	"regexp"
	"strings"
)

// maskToken replaces every blocked word regardless of its length.
const maskToken = "***"

// blockedWords are matched as whole words, case-insensitively. "fucking" is
// not masked unless listed separately.
var blockedWords = []string{
	"fuck",
	"shit",
	"bitch",
	"asshole",
	"bastard",
	"cunt",
	"dick",
	"whore",
}

var blockedRegex = regexp.MustCompile(`(?i)\b(?:` + strings.Join(blockedWords, "|") + `)\b`)

// FilterProfanity masks blocked words in the message body. The filter is
// idempotent: the mask token contains no word characters, so re-filtering
// already filtered text is a no-op.
func FilterProfanity(body string) string {
	return blockedRegex.ReplaceAllString(body, maskToken)
}
