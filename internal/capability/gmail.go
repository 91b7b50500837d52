package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const gmailDefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailAdapter talks to the Gmail API. Sends are two-phase: drafting
// returns a [Drafted] item carrying the draft id, and a send without a
// draft id returns the send-confirmation sentinel so the pipeline can
// park it as a pending action.
type GmailAdapter struct {
	baseURL string
	client  *http.Client
}

type GmailOption func(*GmailAdapter)

func WithGmailBaseURL(u string) GmailOption {
	return func(a *GmailAdapter) { a.baseURL = strings.TrimRight(u, "/") }
}

func WithGmailHTTPClient(c *http.Client) GmailOption {
	return func(a *GmailAdapter) { a.client = c }
}

func NewGmailAdapter(opts ...GmailOption) *GmailAdapter {
	a := &GmailAdapter{
		baseURL: gmailDefaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *GmailAdapter) Name() string { return "google_gmail" }

func (a *GmailAdapter) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AccessToken) == "" {
		return Result{}, fmt.Errorf("gmail: %w", ErrNotConnected)
	}
	switch req.Operation {
	case "draft_new":
		return a.draftNew(ctx, req)
	case "send":
		return a.send(ctx, req)
	default:
		return a.listRecent(ctx, req)
	}
}

type gmailThreadList struct {
	Threads []struct {
		ID      string `json:"id"`
		Snippet string `json:"snippet"`
	} `json:"threads"`
}

type gmailThread struct {
	Messages []struct {
		Payload struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
		} `json:"payload"`
	} `json:"messages"`
}

func (a *GmailAdapter) listRecent(ctx context.Context, req Request) (Result, error) {
	maxResults := 5
	if raw := req.Arg("max_results", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 20 {
			maxResults = n
		}
	}
	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(maxResults))
	if q := req.Arg("query", ""); q != "" {
		params.Set("q", q)
	}

	var list gmailThreadList
	if err := a.doJSON(ctx, req.AccessToken, http.MethodGet, "/users/me/threads?"+params.Encode(), nil, &list); err != nil {
		return Result{}, err
	}

	items := make([]Item, 0, len(list.Threads))
	for _, th := range list.Threads {
		subject, from := a.threadHeaders(ctx, req.AccessToken, th.ID)
		title := subject
		if title == "" {
			title = "(no subject)"
		}
		if from != "" {
			title += " — " + from
		}
		items = append(items, Item{
			Title:   title,
			URL:     "https://mail.google.com/mail/u/0/#inbox/" + th.ID,
			Snippet: "Thread " + th.ID + ": " + th.Snippet,
		})
	}
	if len(items) == 0 {
		items = append(items, Item{Title: "No messages found", Snippet: "Your inbox query returned no threads."})
	}
	return Result{Query: req.Query, Items: items}, nil
}

func (a *GmailAdapter) threadHeaders(ctx context.Context, token, threadID string) (subject, from string) {
	var th gmailThread
	endpoint := "/users/me/threads/" + threadID + "?format=metadata&metadataHeaders=Subject&metadataHeaders=From"
	if err := a.doJSON(ctx, token, http.MethodGet, endpoint, nil, &th); err != nil || len(th.Messages) == 0 {
		return "", ""
	}
	for _, h := range th.Messages[0].Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			subject = h.Value
		case "from":
			from = h.Value
		}
	}
	return subject, from
}

type gmailDraft struct {
	ID      string `json:"id"`
	Message struct {
		ID string `json:"id"`
	} `json:"message"`
}

func (a *GmailAdapter) draftNew(ctx context.Context, req Request) (Result, error) {
	to := req.Arg("to", "")
	subject := req.Arg("subject", "")
	body := req.Arg("body", "")
	if to == "" {
		return Result{
			Query: req.Query,
			Items: []Item{{
				Title:   TitleConfirmationRequired,
				Snippet: "I need a recipient address before I can draft this email.",
			}},
		}, nil
	}

	draft, err := a.createDraft(ctx, req.AccessToken, to, subject, body)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Query: req.Query,
		Items: []Item{
			{
				Title:   PrefixDrafted + "New email",
				Snippet: fmt.Sprintf("Draft ID: %s | To: %s | Subject: %s", draft.ID, to, orDefault(subject, "(no subject)")),
			},
			{
				Title:   TitleSendConfirmationRequired,
				Snippet: fmt.Sprintf("Reply 'send' to send draft %s, or 'cancel' to discard it.", draft.ID),
			},
		},
	}, nil
}

func (a *GmailAdapter) createDraft(ctx context.Context, token, to, subject, body string) (gmailDraft, error) {
	raw := buildRFC822(to, subject, body)
	payload := map[string]any{
		"message": map[string]string{
			"raw": base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(raw)),
		},
	}
	var draft gmailDraft
	if err := a.doJSON(ctx, token, http.MethodPost, "/users/me/drafts", payload, &draft); err != nil {
		return gmailDraft{}, err
	}
	return draft, nil
}

func (a *GmailAdapter) send(ctx context.Context, req Request) (Result, error) {
	draftID := req.Arg("draft_id", "")
	if draftID == "" {
		// A send without a draft first creates one, then asks the user
		// to confirm sending that specific draft. The Draft ID in the
		// snippet lets the pipeline carry it into the pending action.
		to := req.Arg("to", "")
		if to == "" {
			return Result{
				Query: req.Query,
				Items: []Item{{
					Title:   TitleSendConfirmationRequired,
					Snippet: "No draft selected yet. Tell me the recipient address first, e.g. 'send it to name@example.com'.",
				}},
			}, nil
		}
		subject := req.Arg("subject", "")
		body := req.Arg("body", "")
		draft, err := a.createDraft(ctx, req.AccessToken, to, subject, body)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Query: req.Query,
			Items: []Item{{
				Title: TitleSendConfirmationRequired,
				Snippet: fmt.Sprintf("I am ready to send this draft:\nDraft ID: %s | To: %s | Subject: %s\nReply 'confirm' to send, or 'cancel' to stop.",
					draft.ID, to, orDefault(subject, "(no subject)")),
			}},
		}, nil
	}

	payload := map[string]string{"id": draftID}
	var sent struct {
		ID string `json:"id"`
	}
	if err := a.doJSON(ctx, req.AccessToken, http.MethodPost, "/users/me/drafts/send", payload, &sent); err != nil {
		return Result{}, err
	}
	return Result{
		Query: req.Query,
		Items: []Item{{
			Title:   PrefixSent + "Email",
			Snippet: fmt.Sprintf("Draft %s sent (message %s).", draftID, sent.ID),
		}},
	}, nil
}

func (a *GmailAdapter) doJSON(ctx context.Context, token, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gmail: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("gmail: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gmail: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("gmail: %w", ErrNotConnected)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail: %s %s failed (status %d): %s", method, endpoint, resp.StatusCode, truncate(string(data), 200))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("gmail: parse response: %w", err)
		}
	}
	return nil
}

func buildRFC822(to, subject, body string) string {
	var sb strings.Builder
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return sb.String()
}
