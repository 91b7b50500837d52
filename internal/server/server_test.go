package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/patmakesapps/cortexagent/internal/accounts"
	"github.com/patmakesapps/cortexagent/internal/capability"
	"github.com/patmakesapps/cortexagent/internal/confirm"
	"github.com/patmakesapps/cortexagent/internal/metrics"
	"github.com/patmakesapps/cortexagent/internal/outcome"
	"github.com/patmakesapps/cortexagent/internal/pipeline"
	"github.com/patmakesapps/cortexagent/internal/resolver"
	"github.com/patmakesapps/cortexagent/internal/state"
)

type fakeAdapter struct {
	name   string
	result capability.Result
	calls  int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Run(_ context.Context, _ capability.Request) (capability.Result, error) {
	f.calls++
	return f.result, nil
}

func newTestResolver(t *testing.T, adapters ...*fakeAdapter) *resolver.Resolver {
	t.Helper()
	reg := capability.NewRegistry()
	for _, a := range adapters {
		if err := reg.Register(capability.Definition{Adapter: a, Label: outcome.Label(a.name)}); err != nil {
			t.Fatal(err)
		}
	}
	pending := state.NewPendingStore()
	threads := state.NewThreadStore()
	exec := pipeline.NewExecutor(reg, pending, threads, nil, nil)
	return resolver.New(pending, threads, nil, exec, reg, confirm.New(), nil, nil, nil, resolver.Config{})
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(deps).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, userID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestChatRunsResolverAndReturnsSources(t *testing.T) {
	web := &fakeAdapter{
		name: outcome.ActionWebSearch,
		result: capability.Result{Items: []capability.Item{
			{Title: "Forecast", URL: "https://weather.example/today", Snippet: "Sunny, 24C"},
		}},
	}
	srv := newTestServer(t, Deps{Resolver: newTestResolver(t, web)})

	resp := postJSON(t, srv.URL+"/v1/agent/threads/t1/chat", "u1", `{"message":"what's the weather today"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[chatResponse](t, resp)

	if web.calls != 1 {
		t.Errorf("adapter calls = %d", web.calls)
	}
	if body.ThreadID != "t1" {
		t.Errorf("thread_id = %q", body.ThreadID)
	}
	if len(body.Sources) != 1 || body.Sources[0].URL != "https://weather.example/today" {
		t.Errorf("sources = %+v", body.Sources)
	}
	if len(body.Pipeline) != 1 || body.Pipeline[0].Action != outcome.ActionWebSearch {
		t.Errorf("pipeline = %+v", body.Pipeline)
	}
	if body.Decision.Action != outcome.ActionWebSearch {
		t.Errorf("decision action = %q", body.Decision.Action)
	}
}

func TestChatRequiresUserHeader(t *testing.T) {
	srv := newTestServer(t, Deps{Resolver: newTestResolver(t)})

	resp := postJSON(t, srv.URL+"/v1/agent/threads/t1/chat", "", `{"message":"hello"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[apiErrorResponse](t, resp)
	if body.Error.Code != errorCodeInvalidRequest {
		t.Errorf("code = %q", body.Error.Code)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	srv := newTestServer(t, Deps{Resolver: newTestResolver(t)})

	resp := postJSON(t, srv.URL+"/v1/agent/threads/t1/chat", "u1", `{"message":"   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatPrepareHookShortCircuits(t *testing.T) {
	script := filepath.Join(t.TempDir(), "prepare.lua")
	err := os.WriteFile(script, []byte(`
function prepare(text, thread_id)
  if string.find(text, "forbidden") then
    return { resolve = false, reply = "That request is not allowed here." }
  end
  return text
end
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	web := &fakeAdapter{name: outcome.ActionWebSearch}
	srv := newTestServer(t, Deps{Resolver: newTestResolver(t, web), PrepareScript: script})

	resp := postJSON(t, srv.URL+"/v1/agent/threads/t1/chat", "u1", `{"message":"search the forbidden thing"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[chatResponse](t, resp)

	if web.calls != 0 {
		t.Error("short-circuited turn must not reach the resolver")
	}
	if body.Tier != "prepare" {
		t.Errorf("tier = %q", body.Tier)
	}
	if body.Response != "That request is not allowed here." {
		t.Errorf("response = %q", body.Response)
	}
}

func googleBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ya29.fresh","refresh_token":"1//rt","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"g-123","email":"pat@example.com","name":"Pat"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAccountsDeps(t *testing.T, backend *httptest.Server) Deps {
	t.Helper()
	db, err := accounts.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cipher, err := accounts.NewTokenCipher("unit-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	store := accounts.NewStore(db, cipher)

	var oauth *accounts.GoogleOAuth
	if backend != nil {
		oauth = accounts.NewGoogleOAuth("cid", "csecret", "https://app.example/cb",
			accounts.WithEndpoints(backend.URL+"/token", backend.URL+"/userinfo"))
	}
	return Deps{
		Resolver: newTestResolver(t),
		Accounts: store,
		OAuth:    oauth,
	}
}

func TestGoogleConnectStatusDisconnect(t *testing.T) {
	backend := googleBackend(t)
	srv := newTestServer(t, newAccountsDeps(t, backend))

	resp := postJSON(t, srv.URL+"/v1/agent/integrations/google/connect", "u1", `{"code":"auth-code","code_verifier":"ver"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect status = %d", resp.StatusCode)
	}
	connected := decodeBody[googleStatusResponse](t, resp)
	if !connected.Connected || connected.Email != "pat@example.com" {
		t.Fatalf("connect = %+v", connected)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/agent/integrations/google/status", nil)
	req.Header.Set(headerUserID, "u1")
	statusResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	status := decodeBody[googleStatusResponse](t, statusResp)
	if !status.Connected || status.Email != "pat@example.com" {
		t.Fatalf("status = %+v", status)
	}
	if status.ExpiresAt == "" {
		t.Error("status must report token expiry")
	}

	resp = postJSON(t, srv.URL+"/v1/agent/integrations/google/disconnect", "u1", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disconnect status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/v1/agent/integrations/google/status", nil)
	req.Header.Set(headerUserID, "u1")
	statusResp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	status = decodeBody[googleStatusResponse](t, statusResp)
	if status.Connected {
		t.Error("account must read as disconnected")
	}
}

func TestGoogleStatusNotConnected(t *testing.T) {
	srv := newTestServer(t, newAccountsDeps(t, nil))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/agent/integrations/google/status", nil)
	req.Header.Set(headerUserID, "stranger")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	status := decodeBody[googleStatusResponse](t, resp)
	if status.Connected {
		t.Errorf("status = %+v", status)
	}
}

func TestGoogleConnectNotConfigured(t *testing.T) {
	srv := newTestServer(t, Deps{Resolver: newTestResolver(t)})

	resp := postJSON(t, srv.URL+"/v1/agent/integrations/google/connect", "u1", `{"code":"c"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[apiErrorResponse](t, resp)
	if body.Error.Code != errorCodeNotConfigured {
		t.Errorf("code = %q", body.Error.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Deps{Resolver: newTestResolver(t)})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	srv := newTestServer(t, Deps{Resolver: newTestResolver(t), Gatherer: reg})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
