// Package protocol defines the DevScript service request and response types.
package protocol

// ============================================================
// Usage
// ============================================================

// UsageResponse is returned by GET /user/usage.
type UsageResponse struct {
	Email            string `json:"email,omitempty"`
	SubscriptionType string `json:"subscription_type,omitempty"`
	APICalls         int    `json:"api_calls"`
	RenewalDate      string `json:"renewal_date,omitempty"`

	// Absent means active.
	IsActive *bool `json:"is_active,omitempty"`
}

// Active reports the account status, treating a missing flag as active.
func (u *UsageResponse) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

// Subscription returns the subscription type, defaulting to "Free".
func (u *UsageResponse) Subscription() string {
	if u.SubscriptionType == "" {
		return "Free"
	}
	return u.SubscriptionType
}

// ============================================================
// Conversion
// ============================================================

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	// DevScript source text
	Code string `json:"code"`

	// Model override, sent only when the user asks for one
	Model string `json:"model,omitempty"`
}

// ConvertResponse is returned by POST /convert.
type ConvertResponse struct {
	PythonCode     string `json:"python_code"`
	TokensUsed     *int   `json:"tokens_used,omitempty"`
	RemainingQuota *int   `json:"remaining_quota,omitempty"`
}

// ============================================================
// Explain
// ============================================================

// ExplainRequest is the body of POST /explain.
type ExplainRequest struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ExplainResponse is returned by POST /explain.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

// ============================================================
// Errors
// ============================================================

// ErrorResponse is the body of a non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// ============================================================
// Health
// ============================================================

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	DefaultModel  string `json:"default_model"`
	Accounts      int    `json:"accounts"`
	TokensUsed    int    `json:"tokens_used"`
}

// APIKeyHeader carries the service API key.
const APIKeyHeader = "X-API-Key"
