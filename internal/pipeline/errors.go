package pipeline

import "errors"

// Terminal, user-facing outcomes. Only transient backend faults are ever
// retried (inside the supervisor); these propagate immediately.
var (
	ErrThrottled     = errors.New("rate limit exceeded")
	ErrPolicyBlocked = errors.New("content policy blocked")

	// ErrDegraded accompanies the fixed fallback reply once generation
	// retries are exhausted. The reply is still safe to show the user;
	// the sentinel lets transports report the outcome without comparing
	// reply text.
	ErrDegraded = errors.New("generation degraded to fallback")
)

// Distinct user-visible replies so a throttled user and a policy-blocked
// user can never confuse one case for the other.
const (
	ThrottledReply = "You're sending messages too quickly. Please wait a moment and try again."
	BlockedReply   = "I can't help with that request."
	TooLongReply   = "That message is too long for me to take in at once. Please shorten it."
)

// FallbackReply is the fixed degraded-mode response once generation retries
// are exhausted. Never a raw error string.
const FallbackReply = "The assistant is temporarily unavailable. Please try again in a moment."
