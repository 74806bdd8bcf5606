package orchestrator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// smallTalkMaxRunes is the length at or under which any utterance counts as
// small talk.
const smallTalkMaxRunes = 24

var (
	greetingRe = regexp.MustCompile(`\b(hi|hello|hey|good (morning|afternoon|evening)|namaste)\b`)
	ackRe      = regexp.MustCompile(`\b(thanks|thank you|ok|okay|great|cool|awesome)\b`)
	introRe    = regexp.MustCompile(`^hi[, ]? this is\b`)
)

// IsSmallTalk reports whether an utterance is a greeting, an
// acknowledgement, a self introduction, or too short to be a question.
func IsSmallTalk(utterance string) bool {
	s := strings.ToLower(strings.TrimSpace(utterance))
	if s == "" {
		return false
	}
	return greetingRe.MatchString(s) ||
		ackRe.MatchString(s) ||
		introRe.MatchString(s) ||
		utf8.RuneCountInString(s) <= smallTalkMaxRunes
}

// titleFrom returns the first maxTitleRunes runes of s.
func titleFrom(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > maxTitleRunes {
		r = r[:maxTitleRunes]
	}
	return string(r)
}
