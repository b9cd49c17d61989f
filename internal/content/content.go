package content

import (
	"errors"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy        = bluemonday.StrictPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Sanitize strips all HTML from the input string. Chat bodies and display
// names are plain text; anything that looks like markup is removed before
// the message is routed.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}

// IsGIFURL reports whether the message body is a link to a GIF, recognized
// by suffix. Clients render such bodies as images instead of text.
func IsGIFURL(body string) bool {
	body = strings.TrimSpace(strings.ToLower(body))
	if !strings.HasPrefix(body, "http://") && !strings.HasPrefix(body, "https://") {
		return false
	}
	return strings.HasSuffix(body, ".gif")
}
