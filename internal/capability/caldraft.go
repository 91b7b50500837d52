package capability

import (
	"regexp"
	"strings"
)

// EventDraft is the structured calendar draft extracted from free text.
// Fields keep the user's literal wording (e.g. Day "tomorrow") so a
// confirmed draft reconstructs the query the user actually asked for.
type EventDraft struct {
	Title    string
	Day      string
	Time     string
	Location string
}

var (
	dayPattern    = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|today|tonight|tomorrow)\b`)
	datePattern   = regexp.MustCompile(`\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+\d{1,2}(?:st|nd|rd|th)?(?:,\s*\d{4})?\b|\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)
	timePattern   = regexp.MustCompile(`\b(\d{1,2}(?::\d{2})?\s*(?:am|pm))\b`)
	personPattern = regexp.MustCompile(`\bwith\s+([a-z][a-z\s'-]{1,50}?)(?:\s+(?:on|at|in|and|for|please|add|create|schedule|book)\b|[,.!?]|$)`)
	placePattern  = regexp.MustCompile(`\b(?:at|in)\s+([a-z][a-z0-9&'.\-\s]{1,60}?)(?:$|[,.!?])`)
)

var draftStopwords = map[string]bool{
	"add": true, "create": true, "schedule": true, "book": true, "set": true, "up": true,
	"event": true, "calendar": true, "please": true, "a": true, "an": true, "the": true,
	"my": true, "to": true, "for": true, "on": true, "at": true, "in": true, "with": true,
	"invite": true, "new": true,
}

// ParseEventDraft extracts title, day, time, and location from a
// calendar-write request.
func ParseEventDraft(text string) EventDraft {
	lowered := strings.ToLower(strings.TrimSpace(text))
	draft := parseWhenWhere(lowered)

	if m := personPattern.FindStringSubmatch(lowered); m != nil {
		draft.Title = "Meeting with " + titleCase(strings.Trim(m[1], " ."))
		return draft
	}

	// Title is whatever remains after the command verbs and the
	// extracted day/time tokens are removed.
	cleaned := lowered
	if draft.Day != "" {
		cleaned = strings.ReplaceAll(cleaned, strings.ToLower(draft.Day), " ")
	}
	if draft.Time != "" {
		cleaned = strings.ReplaceAll(cleaned, strings.ToLower(draft.Time), " ")
	}
	var kept []string
	for _, word := range strings.Fields(cleaned) {
		word = strings.Trim(word, ".,!?")
		if word == "" || draftStopwords[word] {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) > 0 {
		draft.Title = titleCase(strings.Join(kept, " "))
	} else {
		draft.Title = "Meeting"
	}
	return draft
}

// ParseEventEdit extracts only the fields an edit follow-up can change.
// Titles are never re-derived from an edit reply; too much of it is
// instruction ("move it to...") rather than subject.
func ParseEventEdit(text string) EventDraft {
	return parseWhenWhere(strings.ToLower(strings.TrimSpace(text)))
}

func parseWhenWhere(lowered string) EventDraft {
	var draft EventDraft
	if m := datePattern.FindString(lowered); m != "" {
		draft.Day = m
	} else if m := dayPattern.FindString(lowered); m != "" {
		draft.Day = m
	}
	if m := timePattern.FindStringSubmatch(lowered); m != nil {
		draft.Time = strings.Join(strings.Fields(m[1]), "")
	}
	if m := placePattern.FindStringSubmatch(lowered); m != nil {
		candidate := strings.Trim(strings.Join(strings.Fields(m[1]), " "), " .")
		if candidate != "" && !timePattern.MatchString(candidate) && !dayPattern.MatchString(candidate) {
			draft.Location = titleCase(candidate)
		}
	}
	return draft
}

// Merge returns the draft with non-empty fields of other applied on top.
func (d EventDraft) Merge(other EventDraft) EventDraft {
	out := d
	if other.Title != "" {
		out.Title = other.Title
	}
	if other.Day != "" {
		out.Day = other.Day
	}
	if other.Time != "" {
		out.Time = other.Time
	}
	if other.Location != "" {
		out.Location = other.Location
	}
	return out
}

// QuickAddText reconstructs the calendar quick-add query for a
// confirmed draft.
func (d EventDraft) QuickAddText() string {
	title := d.Title
	if title == "" {
		title = "Meeting"
	}
	parts := []string{"add event", title}
	if d.Day != "" {
		parts = append(parts, "on", d.Day)
	}
	if d.Time != "" {
		parts = append(parts, "at", d.Time)
	}
	if d.Location != "" {
		parts = append(parts, "at", d.Location)
	}
	return strings.Join(parts, " ")
}

// Prompt renders the confirmation prompt shown to the user for a
// pending calendar draft.
func (d EventDraft) Prompt(pendingID string) string {
	var sb strings.Builder
	sb.WriteString("I have this draft event:\n")
	sb.WriteString("- Title: " + orDefault(d.Title, "Meeting") + "\n")
	if d.Day != "" {
		sb.WriteString("- Day: " + d.Day + "\n")
	}
	if d.Time != "" {
		sb.WriteString("- Time: " + d.Time + "\n")
	}
	if d.Location != "" {
		sb.WriteString("- Location: " + d.Location + "\n")
	}
	sb.WriteString("Pending action " + pendingID + ". ")
	sb.WriteString("Should I add this to Google Calendar? Reply with 'confirm' to proceed or 'cancel' to stop.")
	return sb.String()
}

// ToArgs flattens the draft into pending-action arguments.
func (d EventDraft) ToArgs() map[string]string {
	args := map[string]string{"event_title": orDefault(d.Title, "Meeting")}
	if d.Day != "" {
		args["event_day"] = d.Day
	}
	if d.Time != "" {
		args["event_time"] = d.Time
	}
	if d.Location != "" {
		args["event_location"] = d.Location
	}
	args["event_text"] = d.QuickAddText()
	return args
}

// DraftFromArgs rebuilds a draft from stored pending-action arguments.
func DraftFromArgs(args map[string]string) EventDraft {
	return EventDraft{
		Title:    args["event_title"],
		Day:      args["event_day"],
		Time:     args["event_time"],
		Location: args["event_location"],
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
