package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patmakesapps/cortexagent/internal/provider"
)

// Config bounds the LLM planner.
type Config struct {
	Provider      string
	Model         string
	MaxSteps      int
	MinRealSteps  int
	MinConfidence float64
}

// Planner asks the completion client for a plan and validates it.
type Planner struct {
	llm    provider.Client
	cfg    Config
	logger *zap.Logger
}

func New(llm provider.Client, cfg Config, logger *zap.Logger) *Planner {
	if cfg.MaxSteps < 1 {
		cfg.MaxSteps = 1
	}
	if cfg.MaxSteps > 8 {
		cfg.MaxSteps = 8
	}
	if cfg.MinRealSteps < 1 {
		cfg.MinRealSteps = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{llm: llm, cfg: cfg, logger: logger}
}

// Plan runs one planning attempt. A Decision with no steps is never an
// error: the caller moves to the next fallback tier and keeps the
// fallback reason for the persisted metadata.
func (p *Planner) Plan(ctx context.Context, userText string, memoryContext []provider.Message, registryPrompt string) Decision {
	decision := Decision{
		PlannerAttempted: true,
		Provider:         p.cfg.Provider,
		Model:            p.cfg.Model,
	}
	if p.llm == nil {
		decision.FallbackReason = FallbackMissingCredentials
		return decision
	}

	resp, err := p.llm.Complete(ctx, &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: p.systemPrompt(registryPrompt)},
			{Role: provider.RoleUser, Content: p.userPrompt(userText, memoryContext)},
		},
		MaxTokens:   900,
		Temperature: provider.Temp(0.1),
	})
	if err != nil {
		p.logger.Warn("planner completion failed", zap.Error(err))
		decision.FallbackReason = FallbackNetworkFailure
		return decision
	}

	parsed, ok := provider.ExtractFirstJSONObject(resp.Content)
	if !ok {
		decision.FallbackReason = FallbackInvalidJSON
		return decision
	}

	mode := strings.ToLower(strings.TrimSpace(stringField(parsed, "mode")))
	decision.Reason = strings.TrimSpace(stringField(parsed, "reason"))
	if decision.Reason == "" {
		decision.Reason = "Planner decision generated."
	}
	decision.Confidence = coerceConfidence(parsed["confidence"])

	switch mode {
	case "direct_response":
		decision.FallbackReason = FallbackDirectResponse
		return decision
	case "tool_pipeline":
	default:
		decision.FallbackReason = FallbackInvalidJSON
		return decision
	}

	if decision.Confidence < p.cfg.MinConfidence {
		decision.FallbackReason = FallbackLowConfidence
		return decision
	}

	candidates := parseCandidates(parsed["steps"], p.cfg.MaxSteps)
	steps, code := Normalize(candidates, userText, p.cfg.MinRealSteps)
	decision.ValidationResult = code
	if code != ValidationOK {
		p.logger.Info("planner output rejected",
			zap.String("validation", code),
			zap.Int("candidates", len(candidates)))
		decision.FallbackReason = FallbackValidationFailed
		return decision
	}

	decision.Steps = steps
	decision.PlannerUsed = true
	return decision
}

// parseCandidates converts the untyped steps array into candidates.
// Rows that are not objects or lack an action name are kept as empty
// candidates so the normalizer rejects the batch rather than silently
// shrinking it.
func parseCandidates(raw any, maxSteps int) []Candidate {
	rows, ok := raw.([]any)
	if !ok {
		return nil
	}
	if len(rows) > maxSteps {
		rows = rows[:maxSteps]
	}
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			out = append(out, Candidate{})
			continue
		}
		cand := Candidate{
			ID:        stringField(m, "id"),
			Action:    firstStringField(m, "tool", "action", "capability"),
			Operation: stringField(m, "operation"),
			Query:     stringField(m, "query"),
			Outcome:   firstStringField(m, "expected_outcome", "outcome"),
			Reason:    stringField(m, "reason"),
		}
		if args, ok := m["args"].(map[string]any); ok {
			cand.Args = make(map[string]string, len(args))
			for k, v := range args {
				cand.Args[k] = fmt.Sprintf("%v", v)
			}
			if cand.Operation == "" {
				cand.Operation = cand.Args["operation"]
			}
			if cand.Query == "" {
				cand.Query = cand.Args["query"]
			}
		}
		if deps, ok := m["depends_on"].([]any); ok {
			for _, dep := range deps {
				if s, ok := dep.(string); ok {
					cand.DependsOn = append(cand.DependsOn, s)
				}
			}
		}
		if flag, ok := m["requires_confirmation"].(bool); ok {
			cand.Confirm = &flag
		}
		out = append(out, cand)
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstStringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := strings.TrimSpace(stringField(m, key)); s != "" {
			return s
		}
	}
	return ""
}

func coerceConfidence(raw any) float64 {
	v, ok := raw.(float64)
	if !ok {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (p *Planner) systemPrompt(registryPrompt string) string {
	return `You are the agent planner. Decide intent semantically from full context.
Choose exactly one mode:
1) direct_response: no tools required.
2) tool_pipeline: one or more tool calls required.

Output strict JSON only.
JSON schema:
{
  "mode": "direct_response" | "tool_pipeline",
  "reason": "short decision rationale",
  "confidence": 0.0-1.0,
  "steps": [
    {
      "id": "step_1",
      "tool": "<registered_tool_name>",
      "expected_outcome": "<outcome_tag>",
      "reason": "why this step is needed",
      "depends_on": [],
      "args": { "operation": "...", "query": "..." }
    }
  ]
}

If mode=direct_response then steps must be an empty list.
If mode=tool_pipeline then steps must be non-empty and ordered.

Tool intent guidance:
- 'check my email', 'new emails', 'inbox' => google_gmail read operation.
- 'check calendar', 'events this week' => google_calendar read operation.
- 'find file in drive' => google_drive search operation.
- If operation is omitted, the executor defaults to safe read behavior.

` + registryPrompt
}

func (p *Planner) userPrompt(userText string, memoryContext []provider.Message) string {
	var context []string
	for _, msg := range memoryContext {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		context = append(context, strings.ToUpper(string(msg.Role))+": "+content)
	}
	if len(context) > 20 {
		context = context[len(context)-20:]
	}
	return fmt.Sprintf("MAX_STEPS: %d\nLATEST_USER_MESSAGE:\n%s\n\nCONVERSATION_CONTEXT:\n%s\n",
		p.cfg.MaxSteps, strings.TrimSpace(userText), strings.Join(context, "\n"))
}
