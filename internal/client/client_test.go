package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/pkg/protocol"
)

const testKey = "ds_test_key_1234"

// fakeService is an in-process stand-in for the DevScript service.
type fakeService struct {
	lastConvert   protocol.ConvertRequest
	lastExplain   protocol.ExplainRequest
	convertBody   string
	convertStatus int
}

func (f *fakeService) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(protocol.APIKeyHeader) != testKey {
				writeJSON(w, http.StatusUnauthorized, protocol.ErrorResponse{Detail: "Invalid API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/user/usage", func(w http.ResponseWriter, r *http.Request) {
		active := false
		writeJSON(w, http.StatusOK, protocol.UsageResponse{
			Email:            "dev@example.com",
			SubscriptionType: "Pro",
			APICalls:         42,
			IsActive:         &active,
		})
	})

	r.Post("/convert", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.lastConvert); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, protocol.ErrorResponse{Detail: "bad body"})
			return
		}
		if f.convertBody != "" {
			w.Header().Set("Content-Type", "application/json")
			if f.convertStatus != 0 {
				w.WriteHeader(f.convertStatus)
			}
			_, _ = w.Write([]byte(f.convertBody))
			return
		}
		if f.lastConvert.Code == "quota" {
			writeJSON(w, http.StatusTooManyRequests, protocol.ErrorResponse{Detail: "Monthly quota exceeded"})
			return
		}
		tokens, remaining := 120, 880
		writeJSON(w, http.StatusOK, protocol.ConvertResponse{
			PythonCode:     "print('hi')",
			TokensUsed:     &tokens,
			RemainingQuota: &remaining,
		})
	})

	r.Post("/explain", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.lastExplain)
		writeJSON(w, http.StatusOK, protocol.ExplainResponse{Explanation: "x is undefined"})
	})

	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, key string) (*Client, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	srv := httptest.NewServer(svc.router())
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL + "/", APIKey: key, RequestTimeout: 5 * time.Second}, zerolog.Nop())
	return c, svc
}

func TestUsage(t *testing.T) {
	c, _ := newTestClient(t, testKey)

	usage, err := c.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", usage.Email)
	assert.Equal(t, "Pro", usage.Subscription())
	assert.Equal(t, 42, usage.APICalls)
	assert.False(t, usage.Active())
}

func TestUsage_InvalidKeySurfacesDetail(t *testing.T) {
	c, _ := newTestClient(t, "wrong")

	_, err := c.Usage(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Invalid API key", err.Error())
	assert.ErrorIs(t, err, apperr.ConfigMissing)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestConvert(t *testing.T) {
	c, svc := newTestClient(t, testKey)

	resp, err := c.Convert(context.Background(), "say hello", "")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", resp.PythonCode)
	require.NotNil(t, resp.TokensUsed)
	assert.Equal(t, 120, *resp.TokensUsed)
	require.NotNil(t, resp.RemainingQuota)
	assert.Equal(t, 880, *resp.RemainingQuota)

	assert.Equal(t, "say hello", svc.lastConvert.Code)
	assert.Empty(t, svc.lastConvert.Model)
}

func TestConvert_ModelOverride(t *testing.T) {
	c, svc := newTestClient(t, testKey)

	_, err := c.Convert(context.Background(), "say hello", "gemini-1.5-pro")
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-pro", svc.lastConvert.Model)
}

func TestConvert_ErrorDetail(t *testing.T) {
	c, _ := newTestClient(t, testKey)

	_, err := c.Convert(context.Background(), "quota", "")
	require.Error(t, err)
	assert.Equal(t, "Monthly quota exceeded", err.Error())
	assert.Equal(t, apperr.KindInvalidResponse, apperr.KindOf(err))
}

func TestConvert_StructuredErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "validation list",
			status: http.StatusUnprocessableEntity,
			body:   `{"detail":[{"loc":["body","code"],"msg":"field required","type":"value_error.missing"}]}`,
			want:   "body.code: field required",
		},
		{
			name:   "several validation errors",
			status: http.StatusUnprocessableEntity,
			body:   `{"detail":[{"loc":["body","code"],"msg":"field required"},{"loc":["body",0],"msg":"bad item"},{"msg":"no location"}]}`,
			want:   "body.code: field required; body.0: bad item; no location",
		},
		{
			name:   "object detail",
			status: http.StatusBadRequest,
			body:   `{"detail": {"reason": "bad model"}}`,
			want:   `{"reason":"bad model"}`,
		},
		{
			name:   "null detail",
			status: http.StatusBadRequest,
			body:   `{"detail": null}`,
			want:   "API error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, svc := newTestClient(t, testKey)
			svc.convertBody = tt.body
			svc.convertStatus = tt.status

			_, err := c.Convert(context.Background(), "x", "")
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())

			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestConvert_BadResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>oops</html>"},
		{name: "missing python_code", body: `{"tokens_used": 3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, svc := newTestClient(t, testKey)
			svc.convertBody = tt.body

			_, err := c.Convert(context.Background(), "x", "")
			assert.ErrorIs(t, err, apperr.InvalidResponse)
		})
	}
}

func TestExplain(t *testing.T) {
	c, svc := newTestClient(t, testKey)

	resp, err := c.Explain(context.Background(), "print(x)", "NameError: name 'x' is not defined")
	require.NoError(t, err)
	assert.Equal(t, "x is undefined", resp.Explanation)
	assert.Equal(t, "print(x)", svc.lastExplain.Code)
	assert.Contains(t, svc.lastExplain.Error, "NameError")
}

func TestPlainTextErrorBody(t *testing.T) {
	c, _ := newTestClient(t, testKey)

	var out struct{}
	err := c.do(context.Background(), http.MethodGet, "/broken", nil, &out)
	require.Error(t, err)
	assert.Equal(t, "upstream exploded", err.Error())
	assert.ErrorIs(t, err, apperr.NetworkFailure)
}

func TestUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, APIKey: testKey, RequestTimeout: time.Second}, zerolog.Nop())
	_, err := c.Usage(context.Background())
	assert.ErrorIs(t, err, apperr.NetworkFailure)
}
