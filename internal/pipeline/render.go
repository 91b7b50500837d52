package pipeline

import (
	"fmt"
	"strings"

	"github.com/patmakesapps/cortexagent/internal/capability"
	"github.com/patmakesapps/cortexagent/internal/state"
)

const maxItemsPerStep = 5

// renderItems renders one adapter result as user-facing text.
func renderItems(label string, items []capability.Item) string {
	if len(items) == 0 {
		return fmt.Sprintf("%s: no results.", label)
	}
	var sb strings.Builder
	sb.WriteString(label + ":\n")
	shown := items
	if len(shown) > maxItemsPerStep {
		shown = shown[:maxItemsPerStep]
	}
	for _, item := range shown {
		sb.WriteString("- " + item.Title)
		if s := strings.TrimSpace(item.Snippet); s != "" {
			sb.WriteString(" | " + s)
		}
		sb.WriteString("\n")
	}
	if extra := len(items) - len(shown); extra > 0 {
		sb.WriteString(fmt.Sprintf("(and %d more)\n", extra))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderSummary builds the aggregate reply for a multi-step run. Every
// step's own rendering is included, prefixed with a status headline and
// followed by the thread's open pending actions so the user always sees
// what still needs a confirm.
func renderSummary(results []StepResult, pending []state.PendingAction) string {
	if len(results) == 0 {
		return ""
	}
	if len(results) == 1 && len(pending) == 0 {
		return results[0].Rendered
	}

	completed, waiting, failed := 0, 0, 0
	for _, res := range results {
		switch res.Status {
		case StatusCompleted:
			completed++
		case StatusActionRequired:
			waiting++
		case StatusFailed:
			failed++
		}
	}

	var sb strings.Builder
	if len(results) > 1 {
		sb.WriteString(fmt.Sprintf("Ran %d steps: %d completed", len(results), completed))
		if waiting > 0 {
			sb.WriteString(fmt.Sprintf(", %d awaiting confirmation", waiting))
		}
		if failed > 0 {
			sb.WriteString(fmt.Sprintf(", %d failed", failed))
		}
		sb.WriteString(".\n\n")
	}
	for i, res := range results {
		if len(results) > 1 {
			sb.WriteString(fmt.Sprintf("%d. [%s] ", i+1, res.Status))
		}
		sb.WriteString(res.Rendered)
		sb.WriteString("\n\n")
	}

	if len(pending) > 0 {
		sb.WriteString("Pending actions on this thread:\n")
		for _, p := range pending {
			sb.WriteString(fmt.Sprintf("- %s: %s %s", p.ID, p.Action, p.Operation))
			if q := strings.TrimSpace(p.Query); q != "" {
				sb.WriteString(" (" + q + ")")
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// mergeSources collects every step's sources, deduplicated by URL in
// first-seen order.
func mergeSources(results []StepResult) []capability.Item {
	seen := make(map[string]bool)
	var out []capability.Item
	for _, res := range results {
		for _, src := range res.Sources {
			if seen[src.URL] {
				continue
			}
			seen[src.URL] = true
			out = append(out, src)
		}
	}
	return out
}
