package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCalendarQuickAddEmitsCreatedSentinel(t *testing.T) {
	var gotPath, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotText = r.URL.Query().Get("text")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"summary":  "Project Sync",
			"htmlLink": "https://calendar.google.com/event?eid=abc",
			"start":    map[string]string{"dateTime": "2026-08-26T14:00:00Z"},
		})
	}))
	defer srv.Close()

	adapter := NewCalendarAdapter(WithCalendarBaseURL(srv.URL))
	res, err := adapter.Run(context.Background(), Request{
		Query:       "add event Project Sync on tomorrow at 2pm",
		Operation:   "create",
		Args:        map[string]string{"event_text": "add event Project Sync on tomorrow at 2pm"},
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/calendars/primary/events/quickAdd" {
		t.Errorf("path = %q", gotPath)
	}
	if gotText != "add event Project Sync on tomorrow at 2pm" {
		t.Errorf("quick-add text = %q", gotText)
	}
	if len(res.Items) != 1 || res.Items[0].Title != PrefixCreated+"Project Sync" {
		t.Errorf("items = %+v, want one [Created] item", res.Items)
	}
}

func TestCalendarCreateWithoutEventTextAsksForConfirmation(t *testing.T) {
	adapter := NewCalendarAdapter(WithCalendarBaseURL("http://unreachable.invalid"))
	res, err := adapter.Run(context.Background(), Request{
		Query:       "add event tomorrow at 2pm project sync",
		Operation:   "create",
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != TitleConfirmationRequired {
		t.Errorf("items = %+v, want the confirmation sentinel", res.Items)
	}
}

func TestCalendarMissingTokenIsNotConnected(t *testing.T) {
	adapter := NewCalendarAdapter()
	_, err := adapter.Run(context.Background(), Request{Query: "events"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestGmailDraftNewReturnsDraftAndSendConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/drafts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "draft-77",
			"message": map[string]string{"id": "msg-1"},
		})
	}))
	defer srv.Close()

	adapter := NewGmailAdapter(WithGmailBaseURL(srv.URL))
	res, err := adapter.Run(context.Background(), Request{
		Query:       "email bob about the launch",
		Operation:   "draft_new",
		Args:        map[string]string{"to": "bob@example.com", "subject": "Launch", "body": "We ship Friday."},
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %+v, want drafted + confirmation", res.Items)
	}
	if res.Items[0].Title != PrefixDrafted+"New email" {
		t.Errorf("first item title = %q", res.Items[0].Title)
	}
	if !strings.Contains(res.Items[0].Snippet, "Draft ID: draft-77") {
		t.Errorf("draft id missing from snippet: %q", res.Items[0].Snippet)
	}
	if res.Items[1].Title != TitleSendConfirmationRequired {
		t.Errorf("second item title = %q", res.Items[1].Title)
	}
}

func TestGmailSendWithDraftID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/drafts/send" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-9"})
	}))
	defer srv.Close()

	adapter := NewGmailAdapter(WithGmailBaseURL(srv.URL))
	res, err := adapter.Run(context.Background(), Request{
		Operation:   "send",
		Args:        map[string]string{"draft_id": "draft-77"},
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != PrefixSent+"Email" {
		t.Errorf("items = %+v, want one [Sent] item", res.Items)
	}
}

func TestGmailSendWithoutDraftIDReturnsSentinel(t *testing.T) {
	adapter := NewGmailAdapter(WithGmailBaseURL("http://unreachable.invalid"))
	res, err := adapter.Run(context.Background(), Request{Operation: "send", AccessToken: "tok"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != TitleSendConfirmationRequired {
		t.Errorf("items = %+v, want send confirmation sentinel", res.Items)
	}
}

func TestGmailSendWithRecipientDraftsFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/drafts" {
			t.Errorf("path = %q, a send without a draft id must only create the draft", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "draft-42",
			"message": map[string]string{"id": "msg-7"},
		})
	}))
	defer srv.Close()

	adapter := NewGmailAdapter(WithGmailBaseURL(srv.URL))
	res, err := adapter.Run(context.Background(), Request{
		Query:       "send an email to bob@example.com saying hello",
		Operation:   "send",
		Args:        map[string]string{"to": "bob@example.com", "body": "hello"},
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != TitleSendConfirmationRequired {
		t.Fatalf("items = %+v, want send confirmation sentinel", res.Items)
	}
	if !strings.Contains(res.Items[0].Snippet, "Draft ID: draft-42") {
		t.Errorf("draft id missing from snippet: %q", res.Items[0].Snippet)
	}
	if !strings.Contains(res.Items[0].Snippet, "To: bob@example.com") {
		t.Errorf("recipient missing from snippet: %q", res.Items[0].Snippet)
	}
}

func TestWebSearchParsesBraveResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("token header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"web": map[string]any{
				"results": []map[string]string{
					{"title": "Go 1.25 released", "url": "https://go.dev/blog/go1.25", "description": "Release notes"},
					{"title": "skipped", "url": "ftp://bad.example"},
				},
			},
		})
	}))
	defer srv.Close()

	adapter := NewWebSearchAdapter("brave-key", WithWebSearchBaseURL(srv.URL))
	res, err := adapter.Run(context.Background(), Request{Query: "latest go release"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items = %+v, want non-http result filtered", res.Items)
	}
	if res.Items[0].URL != "https://go.dev/blog/go1.25" {
		t.Errorf("url = %q", res.Items[0].URL)
	}
}

func TestRegistryRenderForPrompt(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Definition{
		Adapter:     NewCalendarAdapter(),
		Label:       "Google Calendar",
		Description: "Read upcoming events or create events.",
		Operations:  []string{"read", "create"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(Definition{Adapter: NewCalendarAdapter()}); err == nil {
		t.Error("duplicate registration must fail")
	}
	prompt := reg.RenderForPrompt()
	if !strings.Contains(prompt, "google_calendar") || !strings.Contains(prompt, "read, create") {
		t.Errorf("prompt = %q", prompt)
	}
}
