package capability

import (
	"regexp"
	"strings"
)

// MailDraft is the recipient/subject/body extracted from a new-email
// request. Body and subject keep the user's literal wording; a missing
// subject falls back to a neutral default at send time.
type MailDraft struct {
	To      string
	Subject string
	Body    string
}

var (
	emailAddressPattern  = regexp.MustCompile(`(?i)([A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,})`)
	subjectQuotedPattern = regexp.MustCompile(`(?i)\bsubject(?:\s+to\s+be|\s+is)?\s*[:=\-]?\s*"([^"]{1,300})"`)
	subjectInlinePattern = regexp.MustCompile(`(?i)\bsubject(?:\s+to\s+be|\s+is)?\s*[:=\-]?\s*([^\n|]{1,300})`)
	subjectBodySplit     = regexp.MustCompile(`(?i)\b(?:and\s+the\s+email\s+body|and\s+body|body(?:\s+can\s+say|\s+is)?|message(?:\s+can\s+say|\s+is)?|say(?:ing)?)\b`)
	bodyQuotedPattern    = regexp.MustCompile(`(?i)\b(?:body|message|say(?:ing)?)(?:\s+can\s+say|\s+should\s+say|\s+is)?\s*[:=\-]?\s*"([^"]{1,1000}[^"]{0,1000}[^"]{0,1000}[^"]{0,1000}[^"]{0,1000})"`)
	bodySpokenPattern    = regexp.MustCompile(`(?i)\bsay(?:ing)?\b\s*[:=\-]?\s*(.+)$`)
)

// ParseMailDraft extracts the recipient, subject, and body from a
// send-email request like "send an email to bob@example.com saying
// hello". The first email address is the recipient; subject and body
// come from their marker phrases, quoted forms preferred.
func ParseMailDraft(text string) MailDraft {
	cleaned := strings.TrimSpace(text)
	var draft MailDraft

	if m := emailAddressPattern.FindStringSubmatch(cleaned); m != nil {
		draft.To = strings.ToLower(m[1])
	}

	if m := subjectQuotedPattern.FindStringSubmatch(cleaned); m != nil {
		draft.Subject = strings.TrimSpace(m[1])
	} else if m := subjectInlinePattern.FindStringSubmatch(cleaned); m != nil {
		// An inline subject runs until the body marker, if any.
		candidate := subjectBodySplit.Split(m[1], 2)[0]
		draft.Subject = strings.Trim(candidate, " -:;,.")
	}

	if m := bodyQuotedPattern.FindStringSubmatch(cleaned); m != nil {
		draft.Body = strings.TrimSpace(m[1])
	} else if m := bodySpokenPattern.FindStringSubmatch(cleaned); m != nil {
		draft.Body = strings.Trim(strings.TrimSpace(m[1]), `"`)
	}
	return draft
}

// ToArgs converts the draft to the adapter argument map, skipping
// empty fields.
func (d MailDraft) ToArgs() map[string]string {
	args := map[string]string{}
	if d.To != "" {
		args["to"] = d.To
	}
	if d.Subject != "" {
		args["subject"] = d.Subject
	}
	if d.Body != "" {
		args["body"] = d.Body
	}
	return args
}
