// Package confirm classifies short follow-up replies against a thread's
// pending confirmation actions. A deterministic token-rule tier always
// runs; an optional LLM tier may pre-empt it for nuance but can never
// replace it on failure.
package confirm

import (
	"context"
	"strings"

	"github.com/patmakesapps/cortexagent/internal/provider"
)

// Intent values.
const (
	IntentConfirm = "confirm"
	IntentCancel  = "cancel"
	IntentPause   = "pause"
	IntentStatus  = "status"
	IntentEdit    = "edit"
	IntentUnknown = "unknown"
)

// Source values.
const (
	SourceDeterministic = "deterministic"
	SourceLLM           = "llm"
)

// Intent is the classification of one follow-up reply.
type Intent struct {
	Intent         string
	Confidence     float64
	Source         string
	NormalizedText string
	Reason         string
}

var validIntents = map[string]bool{
	IntentConfirm: true,
	IntentCancel:  true,
	IntentPause:   true,
	IntentStatus:  true,
	IntentEdit:    true,
	IntentUnknown: true,
}

var dayTokens = map[string]bool{
	"today": true, "tomorrow": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

var (
	cancelTokens  = map[string]bool{"cancel": true, "stop": true, "no": true, "nope": true, "nah": true}
	pauseTokens   = map[string]bool{"pause": true, "later": true, "wait": true, "hold": true}
	statusTokens  = map[string]bool{"status": true, "pending": true, "sent": true}
	editTokens    = map[string]bool{"edit": true, "change": true, "update": true, "move": true, "shift": true, "instead": true}
	confirmTokens = map[string]bool{"confirm": true, "yes": true, "ok": true, "okay": true, "sure": true, "proceed": true}
)

// Classifier applies the deterministic tier and, when configured, the
// LLM tier.
type Classifier struct {
	llm           provider.Client
	minConfidence float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLLM enables the LLM tier with the given minimum confidence for
// actionable intents.
func WithLLM(c provider.Client, minConfidence float64) Option {
	return func(cl *Classifier) {
		cl.llm = c
		cl.minConfidence = minConfidence
	}
}

func New(opts ...Option) *Classifier {
	cl := &Classifier{minConfidence: 0.6}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// Classify runs the LLM tier when available and falls back to the
// deterministic tier on any classifier failure, timeout, or malformed
// payload. The deterministic tier decides alone when nothing is pending.
func (cl *Classifier) Classify(ctx context.Context, text string, pendingCalendar, pendingGmail bool) Intent {
	normalized := normalizeReply(text)
	if normalized == "" {
		return Intent{Intent: IntentUnknown, Source: SourceDeterministic, NormalizedText: normalized, Reason: "empty_reply"}
	}
	if !pendingCalendar && !pendingGmail {
		return Intent{Intent: IntentUnknown, Source: SourceDeterministic, NormalizedText: normalized, Reason: "no_pending_confirmation"}
	}
	if got, ok := cl.llmClassify(ctx, text, normalized, pendingCalendar, pendingGmail); ok {
		return got
	}
	return Deterministic(text, pendingCalendar, pendingGmail)
}

// Deterministic is the rule tier of §4.2, evaluated in strict order.
func Deterministic(text string, pendingCalendar, pendingGmail bool) Intent {
	normalized := normalizeReply(text)
	if normalized == "" {
		return Intent{Intent: IntentUnknown, Source: SourceDeterministic, NormalizedText: normalized, Reason: "empty_reply"}
	}

	tokens := strings.Fields(normalized)
	has := func(set map[string]bool) bool {
		for _, tok := range tokens {
			if set[tok] {
				return true
			}
		}
		return false
	}

	switch {
	case has(cancelTokens):
		return Intent{Intent: IntentCancel, Confidence: 0.90, Source: SourceDeterministic, NormalizedText: normalized, Reason: "cancel_token"}
	case has(pauseTokens):
		return Intent{Intent: IntentPause, Confidence: 0.84, Source: SourceDeterministic, NormalizedText: normalized, Reason: "pause_token"}
	case pendingGmail && has(statusTokens):
		return Intent{Intent: IntentStatus, Confidence: 0.82, Source: SourceDeterministic, NormalizedText: normalized, Reason: "status_token"}
	case pendingCalendar && (has(editTokens) || has(dayTokens) || anyTimeToken(tokens)):
		return Intent{Intent: IntentEdit, Confidence: 0.80, Source: SourceDeterministic, NormalizedText: normalized, Reason: "calendar_edit_token"}
	case has(confirmTokens):
		return Intent{Intent: IntentConfirm, Confidence: 0.88, Source: SourceDeterministic, NormalizedText: normalized, Reason: "confirm_token"}
	case len(tokens) <= 3 && pendingGmail && has(map[string]bool{"send": true}):
		return Intent{Intent: IntentConfirm, Confidence: 0.82, Source: SourceDeterministic, NormalizedText: normalized, Reason: "short_send_confirm"}
	case len(tokens) <= 3 && pendingCalendar && has(map[string]bool{"add": true}):
		return Intent{Intent: IntentConfirm, Confidence: 0.82, Source: SourceDeterministic, NormalizedText: normalized, Reason: "short_add_confirm"}
	}
	return Intent{Intent: IntentUnknown, Source: SourceDeterministic, NormalizedText: normalized, Reason: "no_clear_intent"}
}

func (cl *Classifier) llmClassify(ctx context.Context, text, normalized string, pendingCalendar, pendingGmail bool) (Intent, bool) {
	if cl.llm == nil {
		return Intent{}, false
	}
	data, ok := provider.CompleteJSON(ctx, cl.llm, classifierSystemPrompt, classifierUserPrompt(text, normalized, pendingCalendar, pendingGmail), 90)
	if !ok {
		return Intent{}, false
	}

	raw, _ := data["intent"].(string)
	intent := strings.ToLower(strings.TrimSpace(raw))
	if !validIntents[intent] {
		return Intent{}, false
	}
	confidence := coerceConfidence(data["confidence"])
	reason, _ := data["reason"].(string)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "llm_confirmation_classifier"
	}
	if intent != IntentUnknown && confidence < cl.minConfidence {
		return Intent{}, false
	}
	return Intent{
		Intent:         intent,
		Confidence:     confidence,
		Source:         SourceLLM,
		NormalizedText: normalized,
		Reason:         reason,
	}, true
}

// normalizeReply lowercases, strips terminal punctuation to spaces, and
// collapses whitespace runs.
func normalizeReply(text string) string {
	raw := strings.ToLower(strings.TrimSpace(text))
	if raw == "" {
		return ""
	}
	raw = strings.Map(func(r rune) rune {
		switch r {
		case '.', '!', '?':
			return ' '
		}
		return r
	}, raw)
	return strings.Join(strings.Fields(raw), " ")
}

// anyTimeToken reports whether a token looks like a clock time such as
// "2pm" or "11:30am".
func anyTimeToken(tokens []string) bool {
	for _, tok := range tokens {
		if looksLikeTimeToken(tok) {
			return true
		}
	}
	return false
}

func looksLikeTimeToken(token string) bool {
	candidate := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(token), ",", ""))
	if candidate == "" {
		return false
	}
	var suffix string
	switch {
	case strings.HasSuffix(candidate, "am"):
		suffix = "am"
	case strings.HasSuffix(candidate, "pm"):
		suffix = "pm"
	default:
		return false
	}
	digits := strings.ReplaceAll(strings.TrimSuffix(candidate, suffix), ":", "")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func coerceConfidence(raw any) float64 {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	case string:
		return 0
	default:
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const classifierSystemPrompt = `You classify short user replies for pending confirmation actions.
Return strict JSON only.
Allowed intents: confirm, cancel, pause, status, edit, unknown.
Use status only for Gmail pending-send status checks.
Use edit for calendar draft modifications.
Do not over-trigger confirm/cancel from weak language.
Schema: {"intent":"...","confidence":0.0,"reason":"short"}`

func classifierUserPrompt(text, normalized string, pendingCalendar, pendingGmail bool) string {
	yes := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	var sb strings.Builder
	sb.WriteString("User reply:\n")
	sb.WriteString(strings.TrimSpace(text))
	sb.WriteString("\n\nNormalized reply:\n")
	sb.WriteString(normalized)
	sb.WriteString("\n\nPending calendar draft: ")
	sb.WriteString(yes(pendingCalendar))
	sb.WriteString("\nPending gmail send: ")
	sb.WriteString(yes(pendingGmail))
	sb.WriteString("\n\nReturn JSON only.")
	return sb.String()
}
