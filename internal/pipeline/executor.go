package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patmakesapps/cortexagent/internal/capability"
	"github.com/patmakesapps/cortexagent/internal/metrics"
	"github.com/patmakesapps/cortexagent/internal/outcome"
	"github.com/patmakesapps/cortexagent/internal/planner"
	"github.com/patmakesapps/cortexagent/internal/state"
)

// StepResult is the classified outcome of one step.
type StepResult struct {
	ID       string
	Action   string
	Adapter  string
	Query    string
	Rendered string
	Sources  []capability.Item
	Success  bool
	Reason   string
	Status   string
	Label    string
	Meta     map[string]string
}

// AuthContext is the user authorization resolved for this turn.
type AuthContext struct {
	UserID         string
	AccessToken    string
	TokenRefreshed bool
}

// Result aggregates one pipeline run.
type Result struct {
	Results        []StepResult
	Summary        string
	Sources        []capability.Item
	PendingCreated []string
	Tier           string
}

// Executor runs validated steps in list order against the adapter
// registry. Declared dependency edges are informational only.
type Executor struct {
	registry *capability.Registry
	pending  *state.PendingStore
	threads  *state.ThreadStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewExecutor(registry *capability.Registry, pending *state.PendingStore, threads *state.ThreadStore, logger *zap.Logger, m *metrics.Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		pending:  pending,
		threads:  threads,
		logger:   logger,
		metrics:  m,
	}
}

var draftIDPattern = regexp.MustCompile(`Draft ID:\s*([A-Za-z0-9_-]+)`)

// Execute runs the steps and returns their classified results plus the
// rendered aggregate summary.
func (e *Executor) Execute(ctx context.Context, threadID, userText string, steps []planner.Step, auth AuthContext, tier string) *Result {
	out := &Result{Tier: tier}
	executed := make(map[string]bool, len(steps))

	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if !executed[dep] {
				// List order is authoritative; a declared edge we have
				// not satisfied yet is surfaced, not enforced.
				e.logger.Warn("step executed before declared dependency",
					zap.String("thread_id", threadID),
					zap.String("step_id", step.ID),
					zap.String("depends_on", dep))
			}
		}

		var res StepResult
		if step.RequiresConfirmation && outcome.IsWrite(step.Outcome) {
			res = e.parkForConfirmation(threadID, step)
		} else {
			res = e.runStep(ctx, threadID, userText, step, auth)
		}
		executed[step.ID] = true

		e.metrics.RecordStep(res.Action, res.Status)
		e.recordThreadState(threadID, step, res)
		out.Results = append(out.Results, res)
	}

	out.Sources = mergeSources(out.Results)
	for _, res := range out.Results {
		if id := res.Meta["pending_id"]; id != "" {
			out.PendingCreated = append(out.PendingCreated, id)
		}
	}
	out.Summary = renderSummary(out.Results, e.pending.List(threadID))

	e.threads.Update(threadID, func(st *state.ThreadState) {
		st.LastPipeline = snapshot(out.Results)
	})
	return out
}

// parkForConfirmation materializes a pending action for a gated write
// step without touching the adapter.
func (e *Executor) parkForConfirmation(threadID string, step planner.Step) StepResult {
	pendingID := newPendingID()
	args := deriveWriteArgs(step)

	e.pending.Append(threadID, state.PendingAction{
		ID:        pendingID,
		Action:    step.Action,
		Operation: writeOperation(step),
		Args:      args,
		Query:     step.Query,
		Outcome:   step.Outcome,
	})
	e.metrics.RecordPendingCreated()

	return StepResult{
		ID:       step.ID,
		Action:   step.Action,
		Adapter:  step.Action,
		Query:    step.Query,
		Rendered: confirmationPrompt(step, pendingID, args),
		Reason:   "confirmation_required",
		Status:   StatusActionRequired,
		Label:    outcome.Label(step.Action),
		Meta:     map[string]string{"pending_id": pendingID},
	}
}

func (e *Executor) runStep(ctx context.Context, threadID, userText string, step planner.Step, auth AuthContext) StepResult {
	res := StepResult{
		ID:      step.ID,
		Action:  step.Action,
		Adapter: step.Action,
		Query:   step.Query,
		Label:   outcome.Label(step.Action),
		Meta:    map[string]string{},
	}

	def, ok := e.registry.Get(step.Action)
	if !ok {
		res.Status = StatusFailed
		res.Reason = "adapter_not_registered"
		res.Rendered = fmt.Sprintf("%s is not available right now.", res.Label)
		return res
	}
	res.Label = def.Label
	res.Adapter = def.Adapter.Name()

	adapterResult, err := def.Adapter.Run(ctx, capability.Request{
		ThreadID:    threadID,
		UserText:    userText,
		Query:       step.Query,
		Operation:   operationFor(step),
		Args:        step.Args,
		AccessToken: auth.AccessToken,
	})
	if err != nil {
		if errors.Is(err, capability.ErrNotConnected) {
			res.Status = StatusFailed
			res.Reason = "google_not_connected"
			res.Rendered = fmt.Sprintf("%s isn't connected yet. Please reconnect your Google account and try again.", res.Label)
			return res
		}
		e.logger.Warn("adapter call failed",
			zap.String("thread_id", threadID),
			zap.String("action", step.Action),
			zap.Error(err))
		res.Status = StatusFailed
		res.Reason = "adapter_error"
		res.Rendered = fmt.Sprintf("%s failed: %v. Please retry, or rephrase with a narrower request.", res.Label, err)
		return res
	}

	if auth.TokenRefreshed {
		res.Meta["token_refreshed"] = "true"
	}
	if adapterResult.Query != "" {
		res.Query = adapterResult.Query
	}
	for k, v := range adapterResult.Meta {
		res.Meta[k] = v
	}

	cls := ClassifyResult(step.Outcome, adapterResult.Items)
	res.Status = cls.Status
	res.Reason = cls.Reason
	res.Success = cls.Success
	res.Sources = sourcesFrom(adapterResult.Items)
	res.Rendered = renderItems(res.Label, adapterResult.Items)

	// An adapter-side confirmation demand becomes a pending action so a
	// later "confirm" can finish the job without replanning.
	if cls.Status == StatusActionRequired {
		pendingID := e.parkFromAdapterResult(threadID, step, adapterResult)
		res.Meta["pending_id"] = pendingID
		res.Rendered += fmt.Sprintf("\nPending action %s: reply 'confirm' to proceed or 'cancel' to stop.", pendingID)
	}
	return res
}

// parkFromAdapterResult stores a pending action derived from a step
// whose adapter asked for confirmation mid-flight, carrying forward any
// draft id the adapter minted.
func (e *Executor) parkFromAdapterResult(threadID string, step planner.Step, adapterResult capability.Result) string {
	pendingID := newPendingID()
	args := make(map[string]string, len(step.Args)+1)
	for k, v := range step.Args {
		args[k] = v
	}
	for _, item := range adapterResult.Items {
		if m := draftIDPattern.FindStringSubmatch(item.Snippet); m != nil {
			args["draft_id"] = m[1]
			break
		}
	}

	e.pending.Append(threadID, state.PendingAction{
		ID:        pendingID,
		Action:    step.Action,
		Operation: writeOperation(step),
		Args:      args,
		Query:     step.Query,
		Outcome:   step.Outcome,
	})
	e.metrics.RecordPendingCreated()
	return pendingID
}

func (e *Executor) recordThreadState(threadID string, step planner.Step, res StepResult) {
	if res.Status != StatusCompleted && res.Status != StatusActionRequired {
		return
	}
	e.threads.Update(threadID, func(st *state.ThreadState) {
		st.LastAction = step.Action
		if step.Action == outcome.ActionWebSearch && res.Status == StatusCompleted {
			st.LastWebQuery = res.Query
		}
	})
}

func newPendingID() string {
	return "pa_" + strings.Split(uuid.New().String(), "-")[0]
}

// deriveWriteArgs fills default argument fields for a parked write step.
func deriveWriteArgs(step planner.Step) map[string]string {
	args := make(map[string]string, len(step.Args)+4)
	for k, v := range step.Args {
		args[k] = v
	}
	switch step.Outcome {
	case outcome.CalendarWrite:
		for k, v := range capability.ParseEventDraft(step.Query).ToArgs() {
			if _, exists := args[k]; !exists {
				args[k] = v
			}
		}
	case outcome.GmailSend:
		for k, v := range capability.ParseMailDraft(step.Query).ToArgs() {
			if _, exists := args[k]; !exists {
				args[k] = v
			}
		}
	}
	return args
}

func writeOperation(step planner.Step) string {
	if step.Operation != "" {
		return step.Operation
	}
	switch step.Outcome {
	case outcome.CalendarWrite:
		return "create"
	case outcome.GmailSend:
		return "send"
	}
	return step.Operation
}

func operationFor(step planner.Step) string {
	if step.Operation != "" {
		return step.Operation
	}
	// Reads are the safe default when the planner omitted an operation.
	switch step.Action {
	case outcome.ActionDrive:
		return "search"
	default:
		return "read"
	}
}

func confirmationPrompt(step planner.Step, pendingID string, args map[string]string) string {
	if step.Outcome == outcome.CalendarWrite {
		return capability.DraftFromArgs(args).Prompt(pendingID)
	}
	var sb strings.Builder
	sb.WriteString("I have this email ready to send:\n")
	if to := args["to"]; to != "" {
		sb.WriteString("- To: " + to + "\n")
	}
	if subject := args["subject"]; subject != "" {
		sb.WriteString("- Subject: " + subject + "\n")
	}
	sb.WriteString("Pending action " + pendingID + ". Reply with 'confirm' to send it or 'cancel' to stop.")
	return sb.String()
}

func sourcesFrom(items []capability.Item) []capability.Item {
	var out []capability.Item
	for _, item := range items {
		if strings.TrimSpace(item.URL) == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func snapshot(results []StepResult) []state.StepSnapshot {
	out := make([]state.StepSnapshot, 0, len(results))
	for _, res := range results {
		out = append(out, state.StepSnapshot{
			Action:  res.Action,
			Status:  res.Status,
			Reason:  res.Reason,
			Success: res.Success,
		})
	}
	return out
}
