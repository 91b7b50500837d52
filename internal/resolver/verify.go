package resolver

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patmakesapps/cortexagent/internal/capability"
)

// Verification levels for chat-tier answers.
const (
	VerifyLow    = "low"
	VerifyMedium = "medium"
	VerifyHigh   = "high"
)

// VerificationProfile describes how much sourcing a chat answer to this
// query needs before it may be returned as-is.
type VerificationProfile struct {
	Level                 string
	Reasons               []string
	RequiresWeb           bool
	MinIndependentSources int
}

var highStakesCues = []string{
	"medical", "medicine", "drug", "dosage", "symptom", "diagnosis",
	"legal", "law", "lawsuit", "regulation", "tax",
	"finance", "financial", "stock", "crypto", "price", "interest rate", "mortgage",
	"safety", "hazard", "security advisory", "vulnerability",
}

var temporalCues = []string{
	"live", "latest", "current", "today", "now", "this week",
	"breaking", "recent", "updated",
}

var numericSensitiveCues = []string{
	"price", "cost", "rate", "percent", "%", "amount",
	"market cap", "revenue", "valuation", "quote",
}

var shoppingCues = []string{
	"buy", "purchase", "shopping", "recommend", "recommendation",
	"options", "models", "best", "under ", "budget", "price range",
}

var criticalHighStakesCues = []string{
	"medical", "diagnosis", "treatment", "prescription",
	"legal", "law", "tax", "irs",
	"security advisory", "vulnerability", "hazard",
}

var factualCues = []string{"what is", "who is", "when is", "how much", "how many", "price", "rate"}

var shoppingItemPattern = regexp.MustCompile(`\b(boat|tractor|car|truck|suv|motorcycle|laptop|phone|camera|tv|appliance|sofa|mower)\b`)
var shoppingContextPattern = regexp.MustCompile(`\b(for|under|budget|people|use|need)\b`)

// AssessVerification decides the sourcing policy for a chat answer to
// the given query.
func AssessVerification(userText string) VerificationProfile {
	text := strings.Join(strings.Fields(strings.ToLower(userText)), " ")

	if looksLikeShoppingResearch(text) && !containsAnyCue(text, criticalHighStakesCues) {
		reasons := []string{"shopping_research"}
		if containsAnyCue(text, temporalCues) {
			reasons = append(reasons, "time_sensitive")
		}
		return VerificationProfile{Level: VerifyMedium, Reasons: reasons, RequiresWeb: true, MinIndependentSources: 1}
	}

	var reasons []string
	if containsAnyCue(text, highStakesCues) {
		reasons = append(reasons, "high_stakes")
	}
	if containsAnyCue(text, temporalCues) {
		reasons = append(reasons, "time_sensitive")
	}

	highStakes := len(reasons) > 0 && reasons[0] == "high_stakes"
	timeSensitive := false
	for _, r := range reasons {
		if r == "time_sensitive" {
			timeSensitive = true
		}
	}

	switch {
	case highStakes || (timeSensitive && looksFactual(text)):
		if len(reasons) == 0 {
			reasons = []string{"factual_query"}
		}
		return VerificationProfile{Level: VerifyHigh, Reasons: reasons, RequiresWeb: true, MinIndependentSources: 2}
	case timeSensitive:
		return VerificationProfile{Level: VerifyMedium, Reasons: reasons, RequiresWeb: true, MinIndependentSources: 1}
	default:
		return VerificationProfile{Level: VerifyLow}
	}
}

// EnforceVerification applies the profile to a drafted chat answer.
// Only high-level profiles can rewrite the answer; everything else
// passes through unchanged.
func EnforceVerification(userText, assistantText string, sources []capability.Item, profile VerificationProfile) string {
	if profile.Level != VerifyHigh {
		return assistantText
	}

	independent := countIndependentSources(sources)
	if independent < profile.MinIndependentSources {
		return appendSources(
			"I cannot verify this high-risk request with enough independent sources yet. "+
				"Please retry in a moment or check authoritative primary sources directly.",
			sources)
	}

	if containsAnyCue(strings.ToLower(userText), numericSensitiveCues) {
		responseValues := extractMoneyValues(assistantText)
		sourceValues := extractSourceMoneyValues(sources)
		if len(responseValues) > 0 && len(sourceValues) == 0 {
			return appendSources(
				"I cannot verify the numeric value with reliable source evidence right now. "+
					"Please check the linked primary sources directly.",
				sources)
		}
		if len(responseValues) > 0 && hasMoneyMismatch(responseValues, sourceValues) {
			return appendSources(
				"I found conflicting numeric values across sources, so I cannot provide a single "+
					"verified number right now. Please use the linked primary sources.",
				sources)
		}
	}

	stamp := time.Now().Format("Jan 02, 2006 at 3:04 PM MST")
	return fmt.Sprintf("As of %s, verified against %d independent sources.\n%s", stamp, independent, assistantText)
}

func looksLikeShoppingResearch(text string) bool {
	if containsAnyCue(text, shoppingCues) {
		return true
	}
	return shoppingItemPattern.MatchString(text) && shoppingContextPattern.MatchString(text)
}

func looksFactual(text string) bool {
	for _, cue := range factualCues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

func containsAnyCue(text string, cues []string) bool {
	for _, cue := range cues {
		if containsCue(text, cue) {
			return true
		}
	}
	return false
}

// containsCue matches the cue on word boundaries so "law" does not fire
// inside "lawn".
func containsCue(text, cue string) bool {
	cue = strings.TrimSpace(cue)
	if cue == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], cue)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(cue)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func countIndependentSources(sources []capability.Item) int {
	hosts := make(map[string]bool)
	for _, src := range sources {
		u, err := url.Parse(src.URL)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Host)
		host = strings.TrimPrefix(host, "www.")
		if host != "" {
			hosts[host] = true
		}
	}
	return len(hosts)
}

func appendSources(base string, sources []capability.Item) string {
	lines := []string{base}
	added := false
	for i, src := range sources {
		if i >= 5 {
			break
		}
		u := strings.TrimSpace(src.URL)
		if u == "" {
			continue
		}
		if !added {
			lines = append(lines, "", "Sources:")
			added = true
		}
		title := strings.TrimSpace(src.Title)
		if title == "" {
			title = "Source"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", title, u))
	}
	return strings.Join(lines, "\n")
}

var moneyPattern = regexp.MustCompile(`(?i)(?:\$\s*|usd\s*)([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]+)?|[0-9]+(?:\.[0-9]+)?)`)

func extractMoneyValues(text string) []float64 {
	var out []float64
	for _, m := range moneyPattern.FindAllStringSubmatch(text, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 1e9 {
			continue
		}
		out = append(out, v)
	}
	return out
}

func extractSourceMoneyValues(sources []capability.Item) []float64 {
	var out []float64
	for _, src := range sources {
		out = append(out, extractMoneyValues(src.Title)...)
		out = append(out, extractMoneyValues(src.Snippet)...)
	}
	return out
}

func hasMoneyMismatch(responseValues, sourceValues []float64) bool {
	const tolerancePct = 0.03
	const toleranceAbs = 3.0
	for _, rv := range responseValues {
		nearest := sourceValues[0]
		for _, sv := range sourceValues[1:] {
			if math.Abs(sv-rv) < math.Abs(nearest-rv) {
				nearest = sv
			}
		}
		diff := math.Abs(nearest - rv)
		if diff <= toleranceAbs {
			continue
		}
		if diff/math.Max(nearest, 1.0) <= tolerancePct {
			continue
		}
		return true
	}
	return false
}
