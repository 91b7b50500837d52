package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const calendarDefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// CalendarAdapter talks to the Google Calendar API. Reads list upcoming
// events; creates go through quick-add. A create request without event
// text returns the confirmation-required sentinel instead of writing.
type CalendarAdapter struct {
	baseURL string
	client  *http.Client
}

type CalendarOption func(*CalendarAdapter)

func WithCalendarBaseURL(u string) CalendarOption {
	return func(a *CalendarAdapter) { a.baseURL = strings.TrimRight(u, "/") }
}

func WithCalendarHTTPClient(c *http.Client) CalendarOption {
	return func(a *CalendarAdapter) { a.client = c }
}

func NewCalendarAdapter(opts ...CalendarOption) *CalendarAdapter {
	a := &CalendarAdapter{
		baseURL: calendarDefaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *CalendarAdapter) Name() string { return "google_calendar" }

func (a *CalendarAdapter) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AccessToken) == "" {
		return Result{}, fmt.Errorf("google calendar: %w", ErrNotConnected)
	}
	switch req.Operation {
	case "create":
		return a.quickAdd(ctx, req)
	default:
		return a.listUpcoming(ctx, req)
	}
}

type calEvent struct {
	Summary  string `json:"summary"`
	HTMLLink string `json:"htmlLink"`
	Start    struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
}

type calEventList struct {
	Items []calEvent `json:"items"`
}

func (a *CalendarAdapter) listUpcoming(ctx context.Context, req Request) (Result, error) {
	maxResults := 5
	if raw := req.Arg("max_results", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 25 {
			maxResults = n
		}
	}

	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("orderBy", "startTime")
	params.Set("singleEvents", "true")
	params.Set("timeMin", time.Now().UTC().Format(time.RFC3339))

	var list calEventList
	if err := a.getJSON(ctx, req.AccessToken, "/calendars/primary/events?"+params.Encode(), &list); err != nil {
		return Result{}, err
	}

	items := make([]Item, 0, len(list.Items))
	for _, ev := range list.Items {
		title := strings.TrimSpace(ev.Summary)
		if title == "" {
			title = "(no title)"
		}
		items = append(items, Item{
			Title:   title,
			URL:     ev.HTMLLink,
			Snippet: eventTimeLabel(ev),
		})
	}
	if len(items) == 0 {
		items = append(items, Item{Title: "No upcoming events", Snippet: "Your calendar has no upcoming events."})
	}
	return Result{Query: req.Query, Items: items}, nil
}

func (a *CalendarAdapter) quickAdd(ctx context.Context, req Request) (Result, error) {
	eventText := req.Arg("event_text", "")
	if eventText == "" {
		// Nothing concrete to write; hand back a draft for the
		// confirmation flow instead of guessing.
		draft := ParseEventDraft(req.Query)
		return Result{
			Query: req.Query,
			Items: []Item{{
				Title:   TitleConfirmationRequired,
				Snippet: draft.Prompt("(unassigned)"),
			}},
		}, nil
	}

	endpoint := "/calendars/primary/events/quickAdd?" + url.Values{"text": {eventText}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("google calendar: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("google calendar: quick add: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Result{}, fmt.Errorf("google calendar: %w", ErrNotConnected)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("google calendar: quick add failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var created calEvent
	if err := json.Unmarshal(body, &created); err != nil {
		return Result{}, fmt.Errorf("google calendar: parse quick add response: %w", err)
	}
	summary := strings.TrimSpace(created.Summary)
	if summary == "" {
		summary = eventText
	}
	return Result{
		Query: req.Query,
		Items: []Item{{
			Title:   PrefixCreated + summary,
			URL:     created.HTMLLink,
			Snippet: "Event created: " + eventTimeLabel(created),
		}},
	}, nil
}

func (a *CalendarAdapter) getJSON(ctx context.Context, token, endpoint string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("google calendar: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("google calendar: list events: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("google calendar: %w", ErrNotConnected)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google calendar: list events failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("google calendar: parse event list: %w", err)
	}
	return nil
}

func eventTimeLabel(ev calEvent) string {
	if ev.Start.DateTime != "" {
		if ts, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			return ts.Format("Mon, Jan 2 at 3:04 PM")
		}
		return ev.Start.DateTime
	}
	if ev.Start.Date != "" {
		if ts, err := time.Parse("2006-01-02", ev.Start.Date); err == nil {
			return ts.Format("Mon, Jan 2") + " (all day)"
		}
		return ev.Start.Date
	}
	return "time unknown"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
