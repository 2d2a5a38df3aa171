package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/client"
	"devscript.dev/devscript/internal/config"
	"devscript.dev/devscript/internal/converter"
	"devscript.dev/devscript/pkg/protocol"
)

const testKey = "ds_server_test_key"

type stubGenerator struct {
	model string
	text  string
	err   error
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (*converter.Generation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &converter.Generation{Text: s.text, Model: s.model, PromptTokens: 20, OutputTokens: 10}, nil
}

func (s *stubGenerator) Name() string { return "stub:" + s.model }

// setupTestServer creates a server with one account and a stub model.
func setupTestServer(t *testing.T, quota int, gen *stubGenerator) (*Server, *Accounts, *[]string) {
	t.Helper()

	accounts := NewAccounts([]config.AccountSettings{{
		APIKey:       testKey,
		Email:        "dev@example.com",
		Subscription: "Pro",
		Quota:        quota,
	}}, zerolog.Nop())

	var models []string
	s := New(Config{ModelTimeout: time.Second}, Dependencies{
		Accounts: accounts,
		GeneratorFor: func(model string) converter.Generator {
			models = append(models, model)
			return gen
		},
		DefaultModel: config.DefaultModel,
		Version:      "test",
		StartTime:    time.Now(),
	}, zerolog.Nop())

	return s, accounts, &models
}

func doRequest(t *testing.T, s *Server, method, path, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(protocol.APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp protocol.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp.Detail
}

func TestAuth(t *testing.T) {
	s, _, _ := setupTestServer(t, 0, &stubGenerator{text: "x = 1"})

	tests := []struct {
		name       string
		key        string
		wantDetail string
	}{
		{name: "missing key", key: "", wantDetail: "Missing API key"},
		{name: "unknown key", key: "nope", wantDetail: "Invalid API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodGet, "/user/usage", tt.key, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
			}
			if got := decodeError(t, w); got != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got, tt.wantDetail)
			}
		})
	}
}

func TestConvert_Success(t *testing.T) {
	s, _, models := setupTestServer(t, 10, &stubGenerator{model: "m", text: "```python\nprint('hi')\n```"})

	w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "say hi", Model: "gemini-1.5-pro"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp protocol.ConvertResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.PythonCode != "print('hi')" {
		t.Errorf("python_code = %q", resp.PythonCode)
	}
	if resp.TokensUsed == nil || *resp.TokensUsed != 30 {
		t.Errorf("tokens_used = %v, want 30", resp.TokensUsed)
	}
	if resp.RemainingQuota == nil || *resp.RemainingQuota != 9 {
		t.Errorf("remaining_quota = %v, want 9", resp.RemainingQuota)
	}
	if len(*models) != 1 || (*models)[0] != "gemini-1.5-pro" {
		t.Errorf("Expected model override to reach the generator, got %v", *models)
	}
}

func TestConvert_UnlimitedQuotaOmitsRemaining(t *testing.T) {
	s, _, _ := setupTestServer(t, 0, &stubGenerator{text: "x = 1"})

	w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "x"})

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if _, ok := raw["remaining_quota"]; ok {
		t.Error("Expected remaining_quota to be omitted for unlimited accounts")
	}
}

func TestConvert_Validation(t *testing.T) {
	s, _, _ := setupTestServer(t, 0, &stubGenerator{text: "x = 1"})

	tests := []struct {
		name       string
		body       protocol.ConvertRequest
		wantStatus int
	}{
		{name: "empty code", body: protocol.ConvertRequest{Code: "  "}, wantStatus: http.StatusUnprocessableEntity},
		{name: "bad model", body: protocol.ConvertRequest{Code: "x", Model: "a b"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, "/convert", testKey, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestConvert_QuotaExceeded(t *testing.T) {
	s, accounts, _ := setupTestServer(t, 1, &stubGenerator{text: "x = 1"})

	if w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "x"}); w.Code != http.StatusOK {
		t.Fatalf("First call: expected 200, got %d", w.Code)
	}

	w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "x"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}

	acct, _ := accounts.Get(testKey)
	if acct.Calls != 1 {
		t.Errorf("Calls = %d, want 1", acct.Calls)
	}
}

func TestConvert_ModelFailureRefunds(t *testing.T) {
	s, accounts, _ := setupTestServer(t, 5, &stubGenerator{err: errors.New("upstream down")})

	w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "x"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", w.Code)
	}

	acct, _ := accounts.Get(testKey)
	if acct.Calls != 0 {
		t.Errorf("Calls = %d, want 0 after refund", acct.Calls)
	}
}

func TestInactiveAccount(t *testing.T) {
	inactive := false
	accounts := NewAccounts([]config.AccountSettings{{
		APIKey: testKey,
		Email:  "dev@example.com",
		Active: &inactive,
	}}, zerolog.Nop())
	s := New(Config{ModelTimeout: time.Second}, Dependencies{
		Accounts: accounts,
		GeneratorFor: func(string) converter.Generator {
			return &stubGenerator{text: "x = 1"}
		},
		StartTime: time.Now(),
	}, zerolog.Nop())

	w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "x"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}

	w = doRequest(t, s, http.MethodGet, "/user/usage", testKey, nil)
	var usage protocol.UsageResponse
	if err := json.NewDecoder(w.Body).Decode(&usage); err != nil {
		t.Fatal(err)
	}
	if usage.Active() {
		t.Error("Expected usage to report the account as inactive")
	}
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := setupTestServer(t, 0, &stubGenerator{})

	w := doRequest(t, s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp protocol.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Accounts != 1 || resp.DefaultModel != config.DefaultModel {
		t.Errorf("Unexpected health response: %+v", resp)
	}
}

func TestTokensAccumulate(t *testing.T) {
	s, accounts, _ := setupTestServer(t, 0, &stubGenerator{text: "x = 1"})

	for i := 0; i < 2; i++ {
		w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "x"})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
	}

	acct, _ := accounts.Get(testKey)
	if acct.Tokens != 60 {
		t.Errorf("Tokens = %d, want 60", acct.Tokens)
	}

	w := doRequest(t, s, http.MethodGet, "/health", "", nil)
	var resp protocol.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TokensUsed != 60 {
		t.Errorf("Health TokensUsed = %d, want 60", resp.TokensUsed)
	}
}

func TestNewAccounts_ActiveDefault(t *testing.T) {
	off := false
	accounts := NewAccounts([]config.AccountSettings{
		{APIKey: "default"},
		{APIKey: "off", Active: &off},
	}, zerolog.Nop())

	if acct, _ := accounts.Get("default"); !acct.Active {
		t.Error("Expected an account without an active flag to be active")
	}
	if acct, _ := accounts.Get("off"); acct.Active {
		t.Error("Expected active: false to disable the account")
	}
}

// TestClientRoundTrip drives the real client against the real server.
func TestClientRoundTrip(t *testing.T) {
	s, _, _ := setupTestServer(t, 3, &stubGenerator{model: "m", text: "The loop never ends."})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx := context.Background()
	c := client.New(client.Config{BaseURL: srv.URL, APIKey: testKey, RequestTimeout: 5 * time.Second}, zerolog.Nop())

	conv, err := c.Convert(ctx, "loop forever", "")
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if conv.PythonCode != "The loop never ends." {
		t.Errorf("python_code = %q", conv.PythonCode)
	}

	exp, err := c.Explain(ctx, "while True: pass", "KeyboardInterrupt")
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if exp.Explanation != "The loop never ends." {
		t.Errorf("explanation = %q", exp.Explanation)
	}

	usage, err := c.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.APICalls != 2 || usage.Subscription() != "Pro" || !usage.Active() {
		t.Errorf("Unexpected usage: %+v", usage)
	}

	bad := client.New(client.Config{BaseURL: srv.URL, APIKey: "wrong"}, zerolog.Nop())
	if _, err := bad.Usage(ctx); err == nil || err.Error() != "Invalid API key" {
		t.Errorf("Expected detail to surface, got %v", err)
	}
}

func TestLogLinesHaveOneComponent(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)

	accounts := NewAccounts([]config.AccountSettings{{APIKey: testKey}}, logger)
	s := New(Config{ModelTimeout: time.Second}, Dependencies{
		Accounts: accounts,
		GeneratorFor: func(string) converter.Generator {
			return &stubGenerator{text: "x = 1"}
		},
		StartTime: time.Now(),
	}, logger)

	w := doRequest(t, s, http.MethodPost, "/convert", testKey, protocol.ConvertRequest{Code: "x"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("Expected log output")
	}
	seen := map[string]bool{}
	for _, line := range lines {
		if n := strings.Count(line, `"component"`); n != 1 {
			t.Errorf("Expected one component field, got %d in %s", n, line)
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Invalid log line %q: %v", line, err)
		}
		if c, ok := entry["component"].(string); ok {
			seen[c] = true
		}
	}
	for _, c := range []string{"api", "handlers", "converter"} {
		if !seen[c] {
			t.Errorf("Expected a log line from %s, saw %v", c, seen)
		}
	}
}
