// Package pipeline executes an ordered step list against capability
// adapters, gating write steps behind user confirmation and classifying
// each adapter result into its true execution status.
package pipeline

import (
	"strings"

	"github.com/patmakesapps/cortexagent/internal/capability"
	"github.com/patmakesapps/cortexagent/internal/outcome"
)

// Execution statuses.
const (
	StatusCompleted      = "completed"
	StatusActionRequired = "action_required"
	StatusFailed         = "failed"
)

// Classification is the true outcome of one executed step.
type Classification struct {
	Status  string
	Reason  string
	Success bool
}

// ClassifyResult maps an adapter's sentinel conventions plus the step's
// expected outcome to the step's real status. Adapters signal unusual
// outcomes through item titles, not errors, so a "successful" adapter
// call may still mean the write never happened.
func ClassifyResult(expectedOutcome string, items []capability.Item) Classification {
	confirmation := false
	sent := false
	drafted := false
	created := false
	for _, item := range items {
		switch {
		case item.Title == capability.TitleConfirmationRequired,
			item.Title == capability.TitleSendConfirmationRequired:
			confirmation = true
		case strings.HasPrefix(item.Title, capability.PrefixSent):
			sent = true
		case strings.HasPrefix(item.Title, capability.PrefixDrafted):
			drafted = true
		case strings.HasPrefix(item.Title, capability.PrefixCreated):
			created = true
		}
	}

	switch expectedOutcome {
	case outcome.GmailSend:
		switch {
		case sent:
			return Classification{Status: StatusCompleted, Reason: "gmail_send_completed", Success: true}
		case confirmation:
			return Classification{Status: StatusActionRequired, Reason: "gmail_send_confirmation_required"}
		case drafted:
			return Classification{Status: StatusActionRequired, Reason: "gmail_draft_created_not_sent"}
		default:
			return Classification{Status: StatusFailed, Reason: "gmail_send_not_executed"}
		}
	case outcome.CalendarWrite:
		switch {
		case created:
			return Classification{Status: StatusCompleted, Reason: "calendar_write_completed", Success: true}
		case confirmation:
			return Classification{Status: StatusActionRequired, Reason: "calendar_write_confirmation_required"}
		default:
			return Classification{Status: StatusFailed, Reason: "calendar_write_not_executed"}
		}
	}

	// Read-classified outcomes never fail on an empty result; only an
	// explicit confirmation sentinel from the adapter demotes them.
	if confirmation {
		return Classification{Status: StatusActionRequired, Reason: expectedOutcome + "_confirmation_required"}
	}
	return Classification{Status: StatusCompleted, Reason: expectedOutcome + "_completed", Success: true}
}
