package pipeline

import (
	"testing"

	"github.com/patmakesapps/cortexagent/internal/capability"
	"github.com/patmakesapps/cortexagent/internal/outcome"
)

func TestClassifyResult(t *testing.T) {
	cases := []struct {
		name       string
		outcome    string
		items      []capability.Item
		wantStatus string
		wantReason string
	}{
		{
			"send completed",
			outcome.GmailSend,
			[]capability.Item{{Title: capability.PrefixSent + "Email"}},
			StatusCompleted, "gmail_send_completed",
		},
		{
			"send needs confirmation",
			outcome.GmailSend,
			[]capability.Item{{Title: capability.TitleSendConfirmationRequired}},
			StatusActionRequired, "gmail_send_confirmation_required",
		},
		{
			"send only drafted",
			outcome.GmailSend,
			[]capability.Item{{Title: capability.PrefixDrafted + "New email"}},
			StatusActionRequired, "gmail_draft_created_not_sent",
		},
		{
			"send silently skipped",
			outcome.GmailSend,
			[]capability.Item{{Title: "Re: quarterly numbers"}},
			StatusFailed, "gmail_send_not_executed",
		},
		{
			"calendar write completed",
			outcome.CalendarWrite,
			[]capability.Item{{Title: capability.PrefixCreated + "Project Sync"}},
			StatusCompleted, "calendar_write_completed",
		},
		{
			"calendar write needs confirmation",
			outcome.CalendarWrite,
			[]capability.Item{{Title: capability.TitleConfirmationRequired}},
			StatusActionRequired, "calendar_write_confirmation_required",
		},
		{
			"calendar write not executed",
			outcome.CalendarWrite,
			[]capability.Item{{Title: "Team standup"}},
			StatusFailed, "calendar_write_not_executed",
		},
		{
			"read with results",
			outcome.GmailRead,
			[]capability.Item{{Title: "Re: invoice"}},
			StatusCompleted, "gmail_read_completed",
		},
		{
			"read with no results still completes",
			outcome.CalendarRead,
			nil,
			StatusCompleted, "calendar_read_completed",
		},
		{
			"read demoted by confirmation sentinel",
			outcome.CalendarRead,
			[]capability.Item{{Title: capability.TitleConfirmationRequired}},
			StatusActionRequired, "calendar_read_confirmation_required",
		},
		{
			"web search completed",
			outcome.WebSearch,
			[]capability.Item{{Title: "Go 1.25 released", URL: "https://go.dev"}},
			StatusCompleted, "web_search_completed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyResult(tc.outcome, tc.items)
			if got.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tc.wantStatus)
			}
			if got.Reason != tc.wantReason {
				t.Errorf("reason = %q, want %q", got.Reason, tc.wantReason)
			}
			if got.Success != (tc.wantStatus == StatusCompleted) {
				t.Errorf("success = %v with status %q", got.Success, got.Status)
			}
		})
	}
}
