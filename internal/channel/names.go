// ABOUTME: Channel naming for fixed feature channels and per-user/per-conversation channels
// ABOUTME: Dynamic conversation channels are prefixed so they never collide with fixed ones

package channel

import "strings"

// Fixed feature channels.
const (
	Translation   = "translation"
	Accessibility = "accessibility"
	Analytics     = "analytics"
)

const (
	userPrefix         = "user:"
	conversationPrefix = "conversation:"
)

// FeatureChannels are the channels that exist for the lifetime of the process.
var FeatureChannels = []string{Translation, Accessibility, Analytics}

// User returns the private channel of a user identity.
func User(userID string) string {
	return userPrefix + userID
}

// Conversation returns the dynamic channel for a client-chosen conversation id.
func Conversation(conversationID string) string {
	return conversationPrefix + conversationID
}

// IsConversation reports whether name is a dynamic conversation channel.
func IsConversation(name string) bool {
	return strings.HasPrefix(name, conversationPrefix)
}
