package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/patmakesapps/cortexagent/internal/outcome"
	"github.com/patmakesapps/cortexagent/internal/planner"
)

// Plan provenance tags, persisted in turn metadata.
const (
	TierPlanner   = "planner"
	TierHeuristic = "heuristic_plan"
	TierRouter    = "router"
	TierIntent    = "intent_rules"
	TierChat      = "chat"
)

var mailCues = []string{"email", "emails", "mail", "gmail", "inbox"}
var driveCues = []string{"drive", "file", "files", "document", "documents", "doc", "docs", "folder", "spreadsheet"}
var calendarCues = []string{"calendar", "event", "events", "meeting", "meetings", "schedule", "appointment", "appointments"}
var webCues = []string{"search", "web", "online", "news", "latest", "look up", "price", "weather", "current", "release"}

var sequenceConnectives = []string{" then ", " after ", " next "}

// capabilityMentions returns which of the four real capabilities the
// text names, with the byte offset of the first mention of each.
func capabilityMentions(text string) map[string]int {
	found := make(map[string]int)
	note := func(action string, cues []string) {
		best := -1
		for _, cue := range cues {
			if i := indexWord(text, cue); i >= 0 && (best < 0 || i < best) {
				best = i
			}
		}
		if best >= 0 {
			found[action] = best
		}
	}
	note(outcome.ActionGmail, mailCues)
	note(outcome.ActionDrive, driveCues)
	note(outcome.ActionCalendar, calendarCues)
	note(outcome.ActionWebSearch, webCues)
	return found
}

// HeuristicPlan builds the deterministic multi-capability plan. It
// yields steps only when the text names at least two distinct
// capabilities; otherwise it returns nil and the caller moves to the
// next strategy. Step order is fixed (mail, drive, calendar, web)
// except that an explicit calendar-then-mail sequence with a connective
// puts the calendar step first.
func HeuristicPlan(userText string) []planner.Step {
	text := strings.ToLower(userText)
	mentions := capabilityMentions(text)
	if len(mentions) < 2 {
		return nil
	}

	order := []string{outcome.ActionGmail, outcome.ActionDrive, outcome.ActionCalendar, outcome.ActionWebSearch}
	if calFirst(text, mentions) {
		order = []string{outcome.ActionCalendar, outcome.ActionGmail, outcome.ActionDrive, outcome.ActionWebSearch}
	}

	var steps []planner.Step
	for _, action := range order {
		if _, ok := mentions[action]; !ok {
			continue
		}
		tag := outcome.Infer(action, text)
		steps = append(steps, planner.Step{
			ID:                   fmt.Sprintf("step_%d", len(steps)+1),
			Action:               action,
			Query:                userText,
			Outcome:              tag,
			RequiresConfirmation: outcome.IsWrite(tag),
			Reason:               "keyword_match",
		})
	}
	return steps
}

func calFirst(text string, mentions map[string]int) bool {
	calIdx, hasCal := mentions[outcome.ActionCalendar]
	mailIdx, hasMail := mentions[outcome.ActionGmail]
	if !hasCal || !hasMail || calIdx >= mailIdx {
		return false
	}
	for _, conn := range sequenceConnectives {
		if strings.Contains(text, conn) {
			return true
		}
	}
	return false
}

// RouteSingle maps the whole message to exactly one capability, or to
// chat when nothing matches. Cue precedence is fixed so the same text
// always routes the same way.
func RouteSingle(userText string) (action, reason string, confidence float64) {
	text := strings.ToLower(strings.TrimSpace(userText))
	if text == "" {
		return outcome.ActionChat, "empty_text", 1.0
	}
	ordered := []struct {
		action string
		cues   []string
	}{
		{outcome.ActionGmail, mailCues},
		{outcome.ActionCalendar, calendarCues},
		{outcome.ActionDrive, driveCues},
		{outcome.ActionWebSearch, webCues},
	}
	for _, entry := range ordered {
		for _, cue := range entry.cues {
			if indexWord(text, cue) >= 0 {
				return entry.action, "matched_" + cue, 0.9
			}
		}
	}
	return outcome.ActionChat, "default_chat", 0.75
}

var emailAddressPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

var sendVerbs = []string{"send", "email", "mail", "reply", "respond", "forward", "write to"}
var queryVerbs = []string{"what", "when", "show", "list", "any", "do i have", "what's", "whats", "check"}
var driveVerbs = []string{"find", "search", "open", "show", "list", "locate", "pull up"}
var followUpCues = []string{"check", "again", "now", "still", "what about", "and ", "also", "more"}

// intentRule is one entry of the prioritized explicit-intent table.
// Rules are evaluated in order; the first predicate that fires wins.
type intentRule struct {
	name  string
	match func(text string, prevAction string) bool
	build func(userText string, prevAction string) planner.Step
}

var intentRules = []intentRule{
	{
		name: "email_address_with_send_verb",
		match: func(text, _ string) bool {
			return emailAddressPattern.MatchString(text) && containsAnyCue(text, sendVerbs)
		},
		build: func(userText, _ string) planner.Step {
			return planner.Step{
				ID:                   "step_1",
				Action:               outcome.ActionGmail,
				Operation:            "send",
				Query:                userText,
				Outcome:              outcome.GmailSend,
				RequiresConfirmation: true,
				Reason:               "email_address_with_send_verb",
			}
		},
	},
	{
		name: "calendar_query",
		match: func(text, _ string) bool {
			return containsAnyCue(text, calendarCues) && containsAnyCue(text, queryVerbs)
		},
		build: func(userText, _ string) planner.Step {
			return planner.Step{
				ID:      "step_1",
				Action:  outcome.ActionCalendar,
				Query:   userText,
				Outcome: outcome.CalendarRead,
				Reason:  "calendar_query",
			}
		},
	},
	{
		name: "drive_lookup",
		match: func(text, _ string) bool {
			return containsAnyCue(text, driveCues) && containsAnyCue(text, driveVerbs)
		},
		build: func(userText, _ string) planner.Step {
			return planner.Step{
				ID:        "step_1",
				Action:    outcome.ActionDrive,
				Operation: "search",
				Query:     userText,
				Outcome:   outcome.DriveSearch,
				Reason:    "drive_lookup",
			}
		},
	},
	{
		name: "context_follow_up",
		match: func(text, prevAction string) bool {
			if prevAction == "" || prevAction == outcome.ActionChat {
				return false
			}
			return containsAnyCue(text, followUpCues)
		},
		build: func(userText, prevAction string) planner.Step {
			tag := outcome.Infer(prevAction, userText)
			return planner.Step{
				ID:                   "step_1",
				Action:               prevAction,
				Query:                userText,
				Outcome:              tag,
				RequiresConfirmation: outcome.IsWrite(tag),
				Reason:               "context_follow_up",
			}
		},
	},
}

// ExplicitIntent applies the prioritized explicit-intent rule table.
// The zero step and false mean no rule fired.
func ExplicitIntent(userText, prevAction string) (planner.Step, string, bool) {
	text := strings.ToLower(userText)
	for _, rule := range intentRules {
		if rule.match(text, prevAction) {
			return rule.build(userText, prevAction), rule.name, true
		}
	}
	return planner.Step{}, "", false
}

// indexWord finds cue in text on word boundaries, returning -1 when
// absent. Multi-word cues match as substrings.
func indexWord(text, cue string) int {
	if strings.Contains(cue, " ") {
		return strings.Index(text, cue)
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], cue)
		if i < 0 {
			return -1
		}
		start := idx + i
		end := start + len(cue)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return start
		}
		idx = start + 1
	}
}
