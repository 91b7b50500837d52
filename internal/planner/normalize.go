package planner

import (
	"fmt"
	"strings"

	"github.com/patmakesapps/cortexagent/internal/outcome"
)

// Normalize validates a candidate batch into canonical steps. Any
// structural failure rejects the whole batch: a partially-trusted plan
// is worse than no plan, because the caller still has deterministic
// tiers to fall back on. The returned code is ValidationOK on success.
func Normalize(candidates []Candidate, userText string, minRealSteps int) ([]Step, string) {
	if len(candidates) == 0 {
		return nil, ValidationNoCandidates
	}
	userText = strings.TrimSpace(userText)

	steps := make([]Step, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	realSteps := 0

	for i, cand := range candidates {
		action, ok := outcome.CanonicalAction(cand.Action)
		if !ok {
			return nil, ValidationUnknownAction
		}

		id := strings.TrimSpace(cand.ID)
		if id == "" {
			id = fmt.Sprintf("step_%d", i+1)
		}
		for seen[id] {
			id += "_dup"
		}
		seen[id] = true

		query := strings.TrimSpace(cand.Query)
		if query == "" {
			query = userText
		}
		if query == "" {
			return nil, ValidationEmptyQuery
		}

		tag := strings.TrimSpace(cand.Outcome)
		if tag != "" {
			canonical, known := outcome.CanonicalOutcome(tag)
			if !known {
				return nil, ValidationBadOutcome
			}
			tag = canonical
		} else {
			tag = outcome.Infer(action, query)
		}
		if !outcome.Allowed(action, tag) {
			return nil, ValidationBadOutcome
		}

		// Write outcomes are always confirmation-gated; the declared
		// flag only matters for reads, where it is ignored.
		requiresConfirmation := outcome.IsWrite(tag)

		var deps []string
		for _, dep := range cand.DependsOn {
			dep = strings.TrimSpace(dep)
			if dep == "" || dep == id || !seen[dep] {
				continue
			}
			deps = append(deps, dep)
		}

		reason := strings.TrimSpace(cand.Reason)
		if reason == "" {
			reason = fmt.Sprintf("Step %d", i+1)
		}

		args := make(map[string]string, len(cand.Args))
		for k, v := range cand.Args {
			args[k] = v
		}

		if action != outcome.ActionChat {
			realSteps++
		}
		steps = append(steps, Step{
			ID:                   id,
			Action:               action,
			Operation:            strings.TrimSpace(cand.Operation),
			Args:                 args,
			Query:                query,
			Outcome:              tag,
			RequiresConfirmation: requiresConfirmation,
			DependsOn:            deps,
			Reason:               reason,
		})
	}

	if realSteps < minRealSteps {
		return nil, fmt.Sprintf("insufficient_steps_min_%d", minRealSteps)
	}
	return steps, ValidationOK
}
