// Package outcome defines the closed vocabulary shared by the planner,
// the pipeline executor, and the decision resolver: capability action
// names and expected-outcome tags. Anything outside this vocabulary is
// rejected at the normalization boundary, never interpreted.
package outcome

import "strings"

// Capability action names.
const (
	ActionGmail     = "google_gmail"
	ActionCalendar  = "google_calendar"
	ActionDrive     = "google_drive"
	ActionWebSearch = "web_search"
	ActionChat      = "chat"
)

// Expected-outcome tags.
const (
	GmailSend     = "gmail_send"
	GmailRead     = "gmail_read"
	CalendarWrite = "calendar_write"
	CalendarRead  = "calendar_read"
	DriveSearch   = "drive_search"
	WebSearch     = "web_search"
	Chat          = "chat"
)

var actionAliases = map[string]string{
	"gmail":           ActionGmail,
	"mail":            ActionGmail,
	"email":           ActionGmail,
	"google_mail":     ActionGmail,
	"calendar":        ActionCalendar,
	"google_cal":      ActionCalendar,
	"drive":           ActionDrive,
	"files":           ActionDrive,
	"search":          ActionWebSearch,
	"web":             ActionWebSearch,
	"websearch":       ActionWebSearch,
	"internet_search": ActionWebSearch,
	"direct_response": ActionChat,
}

var validActions = map[string]bool{
	ActionGmail:     true,
	ActionCalendar:  true,
	ActionDrive:     true,
	ActionWebSearch: true,
	ActionChat:      true,
}

var outcomeAliases = map[string]string{
	"send_email":      GmailSend,
	"email_send":      GmailSend,
	"send":            GmailSend,
	"read_email":      GmailRead,
	"email_read":      GmailRead,
	"inbox_read":      GmailRead,
	"calendar_create": CalendarWrite,
	"create_event":    CalendarWrite,
	"add_event":       CalendarWrite,
	"calendar_query":  CalendarRead,
	"read_calendar":   CalendarRead,
	"drive_list":      DriveSearch,
	"file_search":     DriveSearch,
	"search":          WebSearch,
	"websearch":       WebSearch,
	"direct_response": Chat,
}

var validOutcomes = map[string]bool{
	GmailSend:     true,
	GmailRead:     true,
	CalendarWrite: true,
	CalendarRead:  true,
	DriveSearch:   true,
	WebSearch:     true,
	Chat:          true,
}

// writeOutcomes are the outcomes with external side effects. Steps that
// carry one always require user confirmation, regardless of what the
// planner declared.
var writeOutcomes = map[string]bool{
	GmailSend:     true,
	CalendarWrite: true,
}

var allowedByAction = map[string]map[string]bool{
	ActionGmail:     {GmailSend: true, GmailRead: true},
	ActionCalendar:  {CalendarWrite: true, CalendarRead: true},
	ActionDrive:     {DriveSearch: true},
	ActionWebSearch: {WebSearch: true},
	ActionChat:      {Chat: true},
}

var capabilityLabels = map[string]string{
	ActionGmail:     "Gmail",
	ActionCalendar:  "Google Calendar",
	ActionDrive:     "Google Drive",
	ActionWebSearch: "Web Search",
	ActionChat:      "Chat",
}

// CanonicalAction maps a raw action name through the alias table and
// reports whether the result is part of the closed action vocabulary.
func CanonicalAction(raw string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := actionAliases[name]; ok {
		name = mapped
	}
	return name, validActions[name]
}

// CanonicalOutcome maps a raw expected-outcome tag through the alias
// table and reports whether the result is a known outcome.
func CanonicalOutcome(raw string) (string, bool) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := outcomeAliases[tag]; ok {
		tag = mapped
	}
	return tag, validOutcomes[tag]
}

// IsWrite reports whether the outcome is write-classified. Write
// classification is fixed by the vocabulary and cannot be overridden by
// a caller-declared confirmation flag.
func IsWrite(tag string) bool {
	return writeOutcomes[tag]
}

// Allowed reports whether the outcome is valid for the given action.
func Allowed(action, tag string) bool {
	set, ok := allowedByAction[action]
	if !ok {
		return false
	}
	return set[tag]
}

// Label returns the human-readable capability label for an action.
func Label(action string) string {
	if label, ok := capabilityLabels[action]; ok {
		return label
	}
	return action
}

var sendCues = []string{"send", "email to", "mail to", "reply to", "respond to", "draft"}
var calendarWriteCues = []string{"add", "create", "schedule", "book", "set up", "invite"}

// Infer derives the expected outcome from the step's action and query
// text when the planner omitted it. Reads are the default; a write is
// inferred only from an explicit write verb.
func Infer(action, query string) string {
	text := strings.ToLower(query)
	switch action {
	case ActionGmail:
		for _, cue := range sendCues {
			if strings.Contains(text, cue) {
				return GmailSend
			}
		}
		return GmailRead
	case ActionCalendar:
		for _, cue := range calendarWriteCues {
			if strings.Contains(text, cue) {
				return CalendarWrite
			}
		}
		return CalendarRead
	case ActionDrive:
		return DriveSearch
	case ActionWebSearch:
		return WebSearch
	default:
		return Chat
	}
}
