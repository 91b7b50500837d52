package resolver

import (
	"strings"
	"testing"

	"github.com/patmakesapps/cortexagent/internal/capability"
)

func TestAssessVerificationLevels(t *testing.T) {
	cases := []struct {
		text      string
		wantLevel string
		wantMin   int
	}{
		{"what is the current price of bitcoin", VerifyHigh, 2},
		{"latest security advisory for openssl", VerifyHigh, 2},
		{"breaking news this week", VerifyMedium, 1},
		{"best laptop under 1000 budget", VerifyMedium, 1},
		{"explain how goroutines work", VerifyLow, 0},
		{"tell me a joke", VerifyLow, 0},
	}
	for _, tc := range cases {
		got := AssessVerification(tc.text)
		if got.Level != tc.wantLevel {
			t.Errorf("AssessVerification(%q).Level = %q, want %q", tc.text, got.Level, tc.wantLevel)
		}
		if got.MinIndependentSources != tc.wantMin {
			t.Errorf("AssessVerification(%q).MinIndependentSources = %d, want %d",
				tc.text, got.MinIndependentSources, tc.wantMin)
		}
	}
}

func TestAssessVerificationShoppingNotCritical(t *testing.T) {
	got := AssessVerification("recommend a tractor for 5 acres under budget")
	if got.Level != VerifyMedium {
		t.Errorf("level = %q", got.Level)
	}
	got = AssessVerification("recommend a lawyer, this is a legal matter")
	if got.Level != VerifyHigh {
		t.Errorf("critical cue must override shopping, level = %q", got.Level)
	}
}

func TestEnforceVerificationRequiresIndependentSources(t *testing.T) {
	profile := VerificationProfile{Level: VerifyHigh, MinIndependentSources: 2}
	sources := []capability.Item{
		{Title: "A", URL: "https://www.example.com/a"},
		{Title: "B", URL: "https://example.com/b"},
	}
	out := EnforceVerification("current mortgage rate", "The rate is 6.5%", sources, profile)
	if !strings.Contains(out, "cannot verify this high-risk request") {
		t.Errorf("same-host sources must not count as independent: %q", out)
	}
	if !strings.Contains(out, "https://www.example.com/a") {
		t.Errorf("sources must be appended: %q", out)
	}
}

func TestEnforceVerificationStampsVerifiedAnswer(t *testing.T) {
	profile := VerificationProfile{Level: VerifyHigh, MinIndependentSources: 2}
	sources := []capability.Item{
		{Title: "A", URL: "https://a.example/x", Snippet: "rate is $102"},
		{Title: "B", URL: "https://b.example/y", Snippet: "$100 per unit"},
	}
	out := EnforceVerification("what is the price", "It costs $101.", sources, profile)
	if !strings.HasPrefix(out, "As of ") || !strings.Contains(out, "verified against 2 independent sources") {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(out, "It costs $101.") {
		t.Errorf("answer must be preserved: %q", out)
	}
}

func TestEnforceVerificationMoneyMismatch(t *testing.T) {
	profile := VerificationProfile{Level: VerifyHigh, MinIndependentSources: 2}
	sources := []capability.Item{
		{Title: "A", URL: "https://a.example/x", Snippet: "price $500"},
		{Title: "B", URL: "https://b.example/y", Snippet: "around $510"},
	}
	out := EnforceVerification("what is the price", "It costs $900.", sources, profile)
	if !strings.Contains(out, "conflicting numeric values") {
		t.Errorf("out = %q", out)
	}
}

func TestEnforceVerificationLowLevelPassthrough(t *testing.T) {
	out := EnforceVerification("explain goroutines", "They are lightweight threads.", nil, VerificationProfile{Level: VerifyLow})
	if out != "They are lightweight threads." {
		t.Errorf("out = %q", out)
	}
}

func TestGuardChatAnswerRewritesFabricatedWrites(t *testing.T) {
	cases := []struct {
		answer string
		want   string
	}{
		{"Done! I've added it to your calendar.", "haven't added anything to your calendar"},
		{"The meeting was scheduled for Monday morning.", "haven't added anything to your calendar"},
		{"I've sent the email to Bob.", "haven't sent any email"},
		{"Your reply has been sent.", "haven't sent any email"},
	}
	for _, tc := range cases {
		got, rewritten := guardChatAnswer(tc.answer, map[string]bool{})
		if !rewritten {
			t.Errorf("guardChatAnswer(%q) must rewrite", tc.answer)
			continue
		}
		if !strings.Contains(got, tc.want) {
			t.Errorf("guardChatAnswer(%q) = %q", tc.answer, got)
		}
	}
}

func TestGuardChatAnswerAllowsExecutedWrites(t *testing.T) {
	executed := map[string]bool{"calendar_write": true}
	answer := "I've added it to your calendar."
	got, rewritten := guardChatAnswer(answer, executed)
	if rewritten || got != answer {
		t.Errorf("executed write must pass through, got %q", got)
	}
}

func TestGuardChatAnswerLeavesPlainChatAlone(t *testing.T) {
	answer := "You could add it to your calendar yourself via the Google Calendar app."
	got, rewritten := guardChatAnswer(answer, map[string]bool{})
	if rewritten {
		t.Errorf("advice must not be treated as a claim: %q", got)
	}
}
