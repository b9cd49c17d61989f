package client

// TypingLabel reproduces the indicator text for a list of other users
// currently typing: nobody clears the indicator, one user is named, more
// than one collapses to a generic message.
func TypingLabel(users []string) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return users[0] + " is typing..."
	default:
		return "Several people are typing..."
	}
}
