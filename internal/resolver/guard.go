package resolver

import (
	"regexp"

	"github.com/patmakesapps/cortexagent/internal/outcome"
)

// fabricationPattern matches a chat answer claiming a side effect of
// the given write outcome was performed.
type fabricationPattern struct {
	re      *regexp.Regexp
	outcome string
}

var fabricationPatterns = []fabricationPattern{
	{
		re:      regexp.MustCompile(`(?i)\bi(?:'ve| have|'ll have| just| have just)?\s*(?:just\s+)?(?:added|created|scheduled|booked|put)\b[^.!?\n]*\b(?:calendar|event|meeting|appointment)\b`),
		outcome: outcome.CalendarWrite,
	},
	{
		re:      regexp.MustCompile(`(?i)\b(?:event|meeting|appointment)\b[^.!?\n]*\b(?:has been|was|is now)\s+(?:added|created|scheduled|booked)\b`),
		outcome: outcome.CalendarWrite,
	},
	{
		re:      regexp.MustCompile(`(?i)\badded (?:it|this|that) to your calendar\b`),
		outcome: outcome.CalendarWrite,
	},
	{
		re:      regexp.MustCompile(`(?i)\bi(?:'ve| have)?\s*(?:just\s+)?sent\b[^.!?\n]*\b(?:email|mail|message|reply)\b`),
		outcome: outcome.GmailSend,
	},
	{
		re:      regexp.MustCompile(`(?i)\b(?:email|message|reply)\b[^.!?\n]*\b(?:has been|was|is now)\s+sent\b`),
		outcome: outcome.GmailSend,
	},
}

var guardDisclaimers = map[string]string{
	outcome.CalendarWrite: "To be clear, I haven't added anything to your calendar yet. " +
		"If you'd like me to schedule something, tell me the event and I'll prepare it for your confirmation.",
	outcome.GmailSend: "To be clear, I haven't sent any email yet. " +
		"If you'd like me to send one, tell me the recipient and message and I'll draft it for your confirmation.",
}

// guardChatAnswer rewrites a chat-tier answer that claims a write the
// turn never executed. executedWrites holds the outcome tags of write
// steps that actually completed this turn; claims covered by those tags
// pass through untouched.
func guardChatAnswer(answer string, executedWrites map[string]bool) (string, bool) {
	for _, p := range fabricationPatterns {
		if executedWrites[p.outcome] {
			continue
		}
		if p.re.MatchString(answer) {
			return guardDisclaimers[p.outcome], true
		}
	}
	return answer, false
}
