package extract

import "regexp"

// Tapback / reaction fragments quote the original message, so they
// contain a perfectly parseable result line that is not a new score.
// The whole fragment is suppressed when it opens with a reaction verb
// followed by a quoted message. Both straight and curly quotes are
// accepted so classification does not depend on normalization having
// run first.
var reactionRe = regexp.MustCompile(
	`(?i)^\s*(?:liked|loved|disliked|laughed at|emphasized|questioned|reacted\b[^"\x{201c}]{0,30}?\bto)\s+["\x{201c}]`)

// IsReaction reports whether the fragment is a reaction to another
// message rather than new content.
func IsReaction(text string) bool {
	return reactionRe.MatchString(text)
}
