package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/internal/config"
	"devscript.dev/devscript/internal/converter"
	"devscript.dev/devscript/pkg/protocol"
)

// GeneratorFunc returns the generator for a model. An empty model selects
// the server default.
type GeneratorFunc func(model string) converter.Generator

// Handlers contains all API handlers.
type Handlers struct {
	accounts     *Accounts
	generatorFor GeneratorFunc
	defaultModel string
	modelTimeout time.Duration
	version      string
	startTime    time.Time

	// baseLogger carries no component field; per-request converters add
	// their own.
	baseLogger zerolog.Logger
	logger     zerolog.Logger
}

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// ============================================================
// Middleware
// ============================================================

// RequireAPIKey rejects requests whose X-API-Key is not a known account.
func (h *Handlers) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(protocol.APIKeyHeader)
		if key == "" {
			h.writeError(w, r, http.StatusUnauthorized, "Missing API key")
			return
		}
		if _, err := h.accounts.Get(key); err != nil {
			h.writeError(w, r, http.StatusUnauthorized, "Invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func apiKeyFrom(r *http.Request) string {
	key, _ := r.Context().Value(apiKeyContextKey).(string)
	return key
}

// ============================================================
// User Handlers
// ============================================================

// Usage handles GET /user/usage
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Get(apiKeyFrom(r))
	if err != nil {
		h.writeError(w, r, http.StatusUnauthorized, "Invalid API key")
		return
	}

	active := acct.Active
	h.writeJSON(w, http.StatusOK, protocol.UsageResponse{
		Email:            acct.Email,
		SubscriptionType: acct.Subscription,
		APICalls:         acct.Calls,
		RenewalDate:      acct.RenewalDate,
		IsActive:         &active,
	})
}

// ============================================================
// Conversion Handlers
// ============================================================

// Convert handles POST /convert
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	var req protocol.ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		h.writeError(w, r, http.StatusUnprocessableEntity, "code is required")
		return
	}
	if req.Model != "" {
		if err := config.ValidateModel(req.Model); err != nil {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	key := apiKeyFrom(r)
	acct, ok := h.reserve(w, r, key)
	if !ok {
		return
	}

	conv := converter.New(h.generatorFor(req.Model), converter.Config{Timeout: h.modelTimeout}, h.baseLogger)
	result, err := conv.Convert(r.Context(), req.Code)
	if err != nil {
		h.accounts.Refund(key)
		h.writeModelError(w, r, err)
		return
	}

	tokens := result.PromptTokens + result.OutputTokens
	totalTokens := h.accounts.AddTokens(key, tokens)

	resp := protocol.ConvertResponse{
		PythonCode: result.Code,
		TokensUsed: &tokens,
	}
	if remaining := acct.Remaining(); remaining >= 0 {
		resp.RemainingQuota = &remaining
	}

	h.logger.Info().
		Str("email", acct.Email).
		Str("model", result.Model).
		Int("tokens", tokens).
		Int("account_tokens", totalTokens).
		Dur("duration", result.Duration).
		Msg("Converted DevScript")

	h.writeJSON(w, http.StatusOK, resp)
}

// Explain handles POST /explain
func (h *Handlers) Explain(w http.ResponseWriter, r *http.Request) {
	var req protocol.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Error) == "" {
		h.writeError(w, r, http.StatusUnprocessableEntity, "code and error are required")
		return
	}

	key := apiKeyFrom(r)
	acct, ok := h.reserve(w, r, key)
	if !ok {
		return
	}

	conv := converter.New(h.generatorFor(""), converter.Config{Timeout: h.modelTimeout}, h.baseLogger)
	exp, err := conv.Explain(r.Context(), req.Code, req.Error)
	if err != nil {
		h.accounts.Refund(key)
		h.writeModelError(w, r, err)
		return
	}
	tokens := exp.PromptTokens + exp.OutputTokens
	totalTokens := h.accounts.AddTokens(key, tokens)

	h.logger.Info().
		Str("email", acct.Email).
		Str("model", exp.Model).
		Int("tokens", tokens).
		Int("account_tokens", totalTokens).
		Msg("Explained failure")

	h.writeJSON(w, http.StatusOK, protocol.ExplainResponse{Explanation: exp.Text})
}

// ============================================================
// Health Handlers
// ============================================================

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		DefaultModel:  h.defaultModel,
		Accounts:      h.accounts.Len(),
		TokensUsed:    h.accounts.TotalTokens(),
	})
}

// ============================================================
// Helper methods
// ============================================================

func (h *Handlers) reserve(w http.ResponseWriter, r *http.Request, key string) (Account, bool) {
	acct, err := h.accounts.Reserve(key)
	switch {
	case err == nil:
		return acct, true
	case errors.Is(err, ErrQuotaExceeded):
		h.writeError(w, r, http.StatusTooManyRequests, "API quota exceeded. Upgrade your subscription or wait for renewal")
	case errors.Is(err, ErrInactive):
		h.writeError(w, r, http.StatusForbidden, "Account is inactive")
	default:
		h.writeError(w, r, http.StatusUnauthorized, "Invalid API key")
	}
	return acct, false
}

func (h *Handlers) writeModelError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Model request failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, r, http.StatusGatewayTimeout, "Model request timed out")
	case apperr.KindOf(err) == apperr.KindInvalidResponse:
		h.writeError(w, r, http.StatusBadGateway, "Model returned an empty response")
	default:
		h.writeError(w, r, http.StatusBadGateway, "Model request failed")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	h.writeJSON(w, status, protocol.ErrorResponse{
		Detail:    detail,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
