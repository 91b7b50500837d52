// Package resolver is the per-turn decision engine: it chooses between
// resuming pending confirmations, LLM-planned multi-step execution,
// deterministic heuristic planning, single-step routing, explicit
// intent inference, and plain chat, then drives the pipeline executor
// and persists the turn's events.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patmakesapps/cortexagent/internal/actor"
	"github.com/patmakesapps/cortexagent/internal/capability"
	"github.com/patmakesapps/cortexagent/internal/confirm"
	"github.com/patmakesapps/cortexagent/internal/ltm"
	"github.com/patmakesapps/cortexagent/internal/metrics"
	"github.com/patmakesapps/cortexagent/internal/outcome"
	"github.com/patmakesapps/cortexagent/internal/pipeline"
	"github.com/patmakesapps/cortexagent/internal/planner"
	"github.com/patmakesapps/cortexagent/internal/provider"
	"github.com/patmakesapps/cortexagent/internal/state"
)

// Turn is one inbound user message.
type Turn struct {
	ThreadID string
	UserText string
	Auth     pipeline.AuthContext
}

// Decision summarizes how the turn was resolved.
type Decision struct {
	Action     string
	Reason     string
	Confidence float64
}

// StepPayload is the per-step block attached to the persisted
// assistant event.
type StepPayload struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Status  string `json:"status"`
}

// Response is the terminal output of one turn.
type Response struct {
	ThreadID string
	Response string
	Decision Decision
	Sources  []capability.Item
	Pipeline []StepPayload
	Tier     string
}

// Config tunes the resolver.
type Config struct {
	ShortTermLimit         int
	PlannerContextMessages int
}

// Resolver is the per-turn state machine.
type Resolver struct {
	pending  *state.PendingStore
	threads  *state.ThreadStore
	planner  *planner.Planner
	executor *pipeline.Executor
	registry *capability.Registry
	confirm  *confirm.Classifier
	memory   *ltm.Client
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config
}

func New(
	pending *state.PendingStore,
	threads *state.ThreadStore,
	pl *planner.Planner,
	executor *pipeline.Executor,
	registry *capability.Registry,
	classifier *confirm.Classifier,
	memory *ltm.Client,
	logger *zap.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = confirm.New()
	}
	if cfg.ShortTermLimit <= 0 {
		cfg.ShortTermLimit = 20
	}
	if cfg.PlannerContextMessages <= 0 {
		cfg.PlannerContextMessages = 6
	}
	return &Resolver{
		pending:  pending,
		threads:  threads,
		planner:  pl,
		executor: executor,
		registry: registry,
		confirm:  classifier,
		memory:   memory,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
	}
}

// Resolve processes one turn end to end.
func (r *Resolver) Resolve(ctx context.Context, turn Turn) *Response {
	start := time.Now()
	resp := r.resolve(ctx, turn)
	r.metrics.RecordTurn(resp.Decision.Action, time.Since(start).Seconds())
	return resp
}

func (r *Resolver) resolve(ctx context.Context, turn Turn) *Response {
	text := strings.TrimSpace(turn.UserText)
	pendingActions := r.pending.List(turn.ThreadID)

	// State 1: meta-question about outstanding confirmations.
	if looksLikeStatusQuery(text, len(pendingActions) > 0) {
		return r.respondChat(turn, renderPendingStatus(pendingActions), "pending_status", 1.0, TierChat)
	}

	// State 2: outstanding confirmations shape the reply's meaning.
	if len(pendingActions) > 0 {
		if resp, done := r.resolvePending(ctx, turn, text, pendingActions); done {
			return resp
		}
	}

	// State 3: fresh turn.
	return r.resolveFresh(ctx, turn, text)
}

func (r *Resolver) resolvePending(ctx context.Context, turn Turn, text string, pendingActions []state.PendingAction) (*Response, bool) {
	pendingCalendar, pendingGmail := pendingKinds(pendingActions)
	intent := r.confirm.Classify(ctx, text, pendingCalendar, pendingGmail)

	r.logger.Debug("confirmation intent",
		zap.String("thread_id", turn.ThreadID),
		zap.String("intent", intent.Intent),
		zap.String("source", intent.Source),
		zap.Float64("confidence", intent.Confidence))

	switch intent.Intent {
	case confirm.IntentCancel:
		targeted := targetedActions(text, pendingActions)
		ids := actionIDs(targeted)
		removed := r.pending.Remove(turn.ThreadID, ids)
		r.metrics.RecordPendingCleared(removed)
		r.threads.Update(turn.ThreadID, func(st *state.ThreadState) {
			st.LastClearedCount = removed
		})
		msg := fmt.Sprintf("Cancelled %d pending action(s). Nothing was executed.", removed)
		return r.respondChat(turn, msg, "pending_cancelled", intent.Confidence, TierChat), true

	case confirm.IntentEdit:
		return r.editPending(turn, text, pendingActions, intent.Confidence), true

	case confirm.IntentStatus:
		return r.respondChat(turn, renderPendingStatus(pendingActions), "pending_status", intent.Confidence, TierChat), true

	case confirm.IntentPause:
		msg := fmt.Sprintf("Okay, I'll hold off. %d action(s) stay pending; reply 'confirm' or 'cancel' when you're ready.", len(pendingActions))
		return r.respondChat(turn, msg, "pending_paused", intent.Confidence, TierChat), true

	case confirm.IntentConfirm:
		return r.confirmPending(ctx, turn, text, pendingActions, intent.Confidence), true

	default:
		// An unresolved reply must not silently start a new task, with
		// one exception: a genuinely new read-only calendar question is
		// treated as a fresh turn.
		if looksLikeCalendarRead(text) {
			return nil, false
		}
		msg := "You still have unresolved pending actions:\n" + renderPendingStatus(pendingActions) +
			"\nReply 'confirm' to proceed, 'cancel' to discard, or describe an edit."
		return r.respondChat(turn, msg, "pending_unresolved", intent.Confidence, TierChat), true
	}
}

// editPending merges calendar fields extracted from the follow-up into
// the targeted pending draft, preserving its identifier.
func (r *Resolver) editPending(turn Turn, text string, pendingActions []state.PendingAction, confidence float64) *Response {
	edit := capability.ParseEventEdit(text)
	target := -1
	for i, p := range pendingActions {
		if strings.Contains(strings.ToLower(text), strings.ToLower(p.ID)) {
			target = i
			break
		}
	}
	if target < 0 {
		// Most recent calendar-write action is the natural edit target.
		for i := len(pendingActions) - 1; i >= 0; i-- {
			if pendingActions[i].Outcome == outcome.CalendarWrite {
				target = i
				break
			}
		}
	}
	if target < 0 {
		msg := "I couldn't find a calendar action to edit.\n" + renderPendingStatus(pendingActions)
		return r.respondChat(turn, msg, "pending_edit_no_target", confidence, TierChat)
	}

	updated := pendingActions[target]
	draft := capability.DraftFromArgs(updated.Args).Merge(edit)
	updated.Args = draft.ToArgs()
	pendingActions[target] = updated
	r.pending.Replace(turn.ThreadID, pendingActions)

	msg := "Updated the draft:\n" + draft.Prompt(updated.ID)
	return r.respondChat(turn, msg, "pending_edited", confidence, TierChat)
}

// confirmPending converts each targeted pending action into an
// executable step and runs the pipeline over them.
func (r *Resolver) confirmPending(ctx context.Context, turn Turn, text string, pendingActions []state.PendingAction, confidence float64) *Response {
	targeted := targetedActions(text, pendingActions)
	steps := make([]planner.Step, 0, len(targeted))
	for i, p := range targeted {
		steps = append(steps, stepFromPending(p, i+1))
	}

	removed := r.pending.Remove(turn.ThreadID, actionIDs(targeted))
	r.metrics.RecordPendingCleared(removed)
	r.threads.Update(turn.ThreadID, func(st *state.ThreadState) {
		st.LastClearedCount = removed
	})

	result := r.executor.Execute(ctx, turn.ThreadID, turn.UserText, steps, turn.Auth, "confirmation")
	return r.finishPipeline(ctx, turn, result, "confirmation", "pending_confirmed", confidence)
}

// stepFromPending resolves a stored pending action back into an
// executable step. Deferred identifiers (calendar quick-add text, mail
// draft ids) are reconstructed from the stored argument map.
func stepFromPending(p state.PendingAction, n int) planner.Step {
	step := planner.Step{
		ID:        fmt.Sprintf("step_%d", n),
		Action:    p.Action,
		Operation: p.Operation,
		Args:      p.Args,
		Query:     p.Query,
		Outcome:   p.Outcome,
		Reason:    "confirmed_pending_action",
	}
	if p.Outcome == outcome.CalendarWrite {
		draft := capability.DraftFromArgs(p.Args)
		quickAdd := draft.QuickAddText()
		if quickAdd != "" {
			step.Query = quickAdd
			if step.Args == nil {
				step.Args = map[string]string{}
			}
			step.Args["event_text"] = quickAdd
		}
	}
	// Once a draft exists, confirming means sending it, no matter
	// which operation originally parked the action.
	if p.Outcome == outcome.GmailSend && p.Args["draft_id"] != "" {
		step.Operation = "send"
	}
	return step
}

func (r *Resolver) resolveFresh(ctx context.Context, turn Turn, text string) *Response {
	// Tier a: external LLM planner.
	var plannerDecision planner.Decision
	if r.planner != nil {
		memoryContext := r.plannerContext(ctx, turn, text)
		registryPrompt := ""
		if r.registry != nil {
			registryPrompt = r.registry.RenderForPrompt()
		}
		plannerDecision = r.planner.Plan(ctx, text, memoryContext, registryPrompt)
		if plannerDecision.PlannerUsed && len(plannerDecision.Steps) > 0 {
			result := r.executor.Execute(ctx, turn.ThreadID, text, plannerDecision.Steps, turn.Auth, TierPlanner)
			return r.finishPipeline(ctx, turn, result, TierPlanner, plannerDecision.Reason, plannerDecision.Confidence)
		}
	}

	// Tier b: deterministic multi-capability plan.
	if steps := HeuristicPlan(text); len(steps) > 0 {
		result := r.executor.Execute(ctx, turn.ThreadID, text, steps, turn.Auth, TierHeuristic)
		return r.finishPipeline(ctx, turn, result, TierHeuristic, "keyword_multi_capability", 0.85)
	}

	// Tier c: single-step router.
	if action, reason, conf := RouteSingle(text); action != outcome.ActionChat {
		tag := outcome.Infer(action, text)
		step := planner.Step{
			ID:                   "step_1",
			Action:               action,
			Query:                text,
			Outcome:              tag,
			RequiresConfirmation: outcome.IsWrite(tag),
			Reason:               reason,
		}
		result := r.executor.Execute(ctx, turn.ThreadID, text, []planner.Step{step}, turn.Auth, TierRouter)
		return r.finishPipeline(ctx, turn, result, TierRouter, reason, conf)
	}

	// Tier d: explicit-intent rule table.
	prev := r.threads.Get(turn.ThreadID).LastAction
	if step, rule, ok := ExplicitIntent(text, prev); ok {
		result := r.executor.Execute(ctx, turn.ThreadID, text, []planner.Step{step}, turn.Auth, TierIntent)
		return r.finishPipeline(ctx, turn, result, TierIntent, rule, 0.8)
	}

	// Tier e: the planner failed diagnostically and the text still
	// reads as an access request.
	if diagnosticPlannerFailure(plannerDecision.FallbackReason) && looksLikeAccessRequest(text) {
		label := requestedCapabilityLabel(text)
		msg := fmt.Sprintf("I can't reach %s right now (%s). Please try again shortly, or rephrase what you need.",
			label, strings.ReplaceAll(plannerDecision.FallbackReason, "_", " "))
		return r.respondChat(turn, msg, plannerDecision.FallbackReason, 0.5, TierChat)
	}

	// Tier f: plain chat with verification and the fabrication guard.
	return r.chatTier(ctx, turn, text)
}

func (r *Resolver) chatTier(ctx context.Context, turn Turn, text string) *Response {
	profile := AssessVerification(text)

	answer, err := r.memory.Chat(ctx, turn.ThreadID, text, r.cfg.ShortTermLimit)
	if err != nil {
		if err != ltm.ErrDisabled {
			r.logger.Warn("memory chat failed", zap.String("thread_id", turn.ThreadID), zap.Error(err))
		}
		answer = "I can't reach my memory backend right now, so I can only help with tool actions this turn. Please try again shortly."
	}

	if guarded, rewritten := guardChatAnswer(answer, map[string]bool{}); rewritten {
		r.logger.Warn("chat answer claimed unexecuted side effect", zap.String("thread_id", turn.ThreadID))
		answer = guarded
	}
	answer = EnforceVerification(text, answer, nil, profile)

	r.threads.Update(turn.ThreadID, func(st *state.ThreadState) {
		st.LastUserText = text
		st.LastAction = outcome.ActionChat
	})
	return r.respondChat(turn, answer, "chat_fallback", 0.75, TierChat)
}

// finishPipeline persists the turn's events and shapes the terminal
// response for an executed step list.
func (r *Resolver) finishPipeline(ctx context.Context, turn Turn, result *pipeline.Result, tier, reason string, confidence float64) *Response {
	r.metrics.RecordTier(tier)
	r.threads.Update(turn.ThreadID, func(st *state.ThreadState) {
		st.LastUserText = turn.UserText
	})

	payload := make([]StepPayload, 0, len(result.Results))
	for _, res := range result.Results {
		payload = append(payload, StepPayload{
			Action:  res.Action,
			Success: res.Success,
			Reason:  res.Reason,
			Status:  res.Status,
		})
	}

	r.persistEvent(ctx, turn.ThreadID, "user", turn.UserText, map[string]any{"source": "agent_user"})
	r.persistEvent(ctx, turn.ThreadID, "assistant", result.Summary, map[string]any{
		"source":        "agent_tool_pipeline",
		"tier":          tier,
		"step_count":    len(payload),
		"tool_pipeline": payload,
	})

	action := "orchestration"
	if len(result.Results) == 1 {
		action = result.Results[0].Action
	}
	return &Response{
		ThreadID: turn.ThreadID,
		Response: result.Summary,
		Decision: Decision{Action: action, Reason: reason, Confidence: confidence},
		Sources:  result.Sources,
		Pipeline: payload,
		Tier:     tier,
	}
}

// persistEvent appends one event to the memory backend; failures are
// logged and swallowed so they never block the turn's response.
func (r *Resolver) persistEvent(ctx context.Context, threadID, role, content string, meta map[string]any) {
	if r.memory == nil {
		return
	}
	if userID := actor.UserID(ctx); userID != "" {
		meta["user_id"] = userID
	}
	if _, err := r.memory.CreateEvent(ctx, threadID, role, content, meta); err != nil {
		r.logger.Warn("event persistence failed",
			zap.String("thread_id", threadID),
			zap.String("actor", role),
			zap.Error(err))
	}
}

func (r *Resolver) plannerContext(ctx context.Context, turn Turn, text string) []provider.Message {
	if r.memory == nil {
		return nil
	}
	rows, err := r.memory.MemoryContext(ctx, turn.ThreadID, text, r.cfg.ShortTermLimit)
	if err != nil {
		if err != ltm.ErrDisabled {
			r.logger.Debug("memory context unavailable", zap.String("thread_id", turn.ThreadID), zap.Error(err))
		}
		return nil
	}
	if len(rows) > r.cfg.PlannerContextMessages {
		rows = rows[len(rows)-r.cfg.PlannerContextMessages:]
	}
	out := make([]provider.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, provider.Message{Role: provider.Role(row.Role), Content: row.Content})
	}
	return out
}

func (r *Resolver) respondChat(turn Turn, text, reason string, confidence float64, tier string) *Response {
	return &Response{
		ThreadID: turn.ThreadID,
		Response: text,
		Decision: Decision{Action: outcome.ActionChat, Reason: reason, Confidence: confidence},
		Tier:     tier,
	}
}

var statusCues = []string{"how many", "pending", "outstanding", "awaiting", "unconfirmed", "drafts waiting", "queued up"}

func looksLikeStatusQuery(text string, hasPending bool) bool {
	lower := strings.ToLower(text)
	if !hasPending && !strings.Contains(lower, "pending") {
		return false
	}
	for _, cue := range statusCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func renderPendingStatus(pendingActions []state.PendingAction) string {
	if len(pendingActions) == 0 {
		return "You have no pending actions."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d pending action(s):\n", len(pendingActions))
	for _, p := range pendingActions {
		fmt.Fprintf(&sb, "- %s: %s %s", p.ID, outcome.Label(p.Action), p.Operation)
		if q := strings.TrimSpace(p.Query); q != "" {
			fmt.Fprintf(&sb, " (%s)", q)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Reply 'confirm' to proceed or 'cancel' to discard.")
	return sb.String()
}

func pendingKinds(pendingActions []state.PendingAction) (pendingCalendar, pendingGmail bool) {
	for _, p := range pendingActions {
		switch p.Outcome {
		case outcome.CalendarWrite:
			pendingCalendar = true
		case outcome.GmailSend:
			pendingGmail = true
		}
	}
	return pendingCalendar, pendingGmail
}

// targetedActions returns the pending actions whose ids appear in the
// reply, or all of them when the reply names none.
func targetedActions(text string, pendingActions []state.PendingAction) []state.PendingAction {
	lower := strings.ToLower(text)
	var targeted []state.PendingAction
	for _, p := range pendingActions {
		if strings.Contains(lower, strings.ToLower(p.ID)) {
			targeted = append(targeted, p)
		}
	}
	if len(targeted) == 0 {
		return pendingActions
	}
	return targeted
}

func actionIDs(actions []state.PendingAction) []string {
	ids := make([]string, 0, len(actions))
	for _, p := range actions {
		ids = append(ids, p.ID)
	}
	return ids
}

var calendarWriteVerbs = []string{"add", "create", "schedule", "book", "set up", "invite"}

// looksLikeCalendarRead reports whether the text is a genuinely new
// read-only calendar question rather than a reply about the pending set.
func looksLikeCalendarRead(text string) bool {
	lower := strings.ToLower(text)
	if !containsAnyCue(lower, calendarCues) {
		return false
	}
	if containsAnyCue(lower, calendarWriteVerbs) {
		return false
	}
	return containsAnyCue(lower, queryVerbs)
}

func diagnosticPlannerFailure(reason string) bool {
	switch reason {
	case planner.FallbackMissingCredentials,
		planner.FallbackNetworkFailure,
		planner.FallbackInvalidJSON,
		planner.FallbackLowConfidence:
		return true
	}
	return false
}

var accessVerbs = []string{"check", "read", "open", "show", "list", "find", "search", "look", "get", "fetch", "pull"}

// accessHints are account-data words the keyword tiers do not route on
// but that still mark the text as a data-access request.
var accessHints = map[string]string{
	"messages":       outcome.ActionGmail,
	"message":        outcome.ActionGmail,
	"correspondence": outcome.ActionGmail,
	"agenda":         outcome.ActionCalendar,
	"availability":   outcome.ActionCalendar,
	"attachments":    outcome.ActionDrive,
	"attachment":     outcome.ActionDrive,
}

// looksLikeAccessRequest reports whether the text still reads as a
// request to access the user's data even though no routing tier
// matched it.
func looksLikeAccessRequest(text string) bool {
	lower := strings.ToLower(text)
	if !containsAnyCue(lower, accessVerbs) {
		return false
	}
	for hint := range accessHints {
		if indexWord(lower, hint) >= 0 {
			return true
		}
	}
	return strings.Contains(lower, " my ") || strings.HasPrefix(lower, "my ")
}

func requestedCapabilityLabel(text string) string {
	lower := strings.ToLower(text)
	best := ""
	bestIdx := -1
	for hint, action := range accessHints {
		if idx := indexWord(lower, hint); idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			best = action
			bestIdx = idx
		}
	}
	if best == "" {
		return "your connected services"
	}
	return outcome.Label(best)
}
