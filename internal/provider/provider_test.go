package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractFirstJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
		key  string
		want string
	}{
		{"bare object", `{"intent":"confirm"}`, true, "intent", "confirm"},
		{"fenced", "```json\n{\"intent\":\"cancel\"}\n```", true, "intent", "cancel"},
		{"prose wrapped", `Sure! Here you go: {"intent":"edit"} hope that helps`, true, "intent", "edit"},
		{"nested braces", `{"a":{"b":"c"},"intent":"status"}`, true, "intent", "status"},
		{"brace in string", `{"reason":"use { carefully }","intent":"pause"}`, true, "intent", "pause"},
		{"no json", "I cannot answer that.", false, "", ""},
		{"unbalanced", `{"intent":"confirm"`, false, "", ""},
		{"empty", "", false, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractFirstJSONObject(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if got[tc.key] != tc.want {
				t.Errorf("%s = %v, want %q", tc.key, got[tc.key], tc.want)
			}
		})
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	var gotAuth string
	var gotReq oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(oaiResponse{
			ID:    "cmpl-1",
			Model: "test-model",
			Choices: []oaiChoice{
				{Message: oaiMessage{Role: "assistant", Content: "hello there"}},
			},
			Usage: oaiUsage{PromptTokens: 12, CompletionTokens: 3},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient("test-model", srv.URL, "sk-test")
	resp, err := client.Complete(context.Background(), &CompletionRequest{
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("request model = %q", gotReq.Model)
	}
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient("m", srv.URL, "k")
	_, err := client.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestCompleteJSONSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Content: "not json at all"}}},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient("m", srv.URL, "k")
	if _, ok := CompleteJSON(context.Background(), client, "sys", "user", 90); ok {
		t.Error("non-JSON answer must report ok=false")
	}
	if _, ok := CompleteJSON(context.Background(), nil, "sys", "user", 90); ok {
		t.Error("nil client must report ok=false")
	}
}
