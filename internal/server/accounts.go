package server

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/config"
)

// Account errors.
var (
	ErrUnknownKey    = errors.New("invalid API key")
	ErrInactive      = errors.New("account is inactive")
	ErrQuotaExceeded = errors.New("API quota exceeded")
)

// Account is one API key with its usage counters.
type Account struct {
	APIKey       string
	Email        string
	Subscription string
	Quota        int
	RenewalDate  string
	Active       bool
	Calls        int
	Tokens       int
}

// Remaining returns the calls left, or -1 when the quota is unlimited.
func (a *Account) Remaining() int {
	if a.Quota == 0 {
		return -1
	}
	if left := a.Quota - a.Calls; left > 0 {
		return left
	}
	return 0
}

// Accounts tracks API keys and usage in memory. Counters reset on restart.
type Accounts struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	logger   zerolog.Logger
}

// NewAccounts creates the account table from settings.
func NewAccounts(settings []config.AccountSettings, logger zerolog.Logger) *Accounts {
	a := &Accounts{
		accounts: make(map[string]*Account, len(settings)),
		logger:   logger.With().Str("component", "accounts").Logger(),
	}
	for _, s := range settings {
		active := s.Active == nil || *s.Active
		if !active {
			a.logger.Info().Str("email", s.Email).Msg("Account configured as inactive")
		}
		a.accounts[s.APIKey] = &Account{
			APIKey:       s.APIKey,
			Email:        s.Email,
			Subscription: s.Subscription,
			Quota:        s.Quota,
			RenewalDate:  s.RenewalDate,
			Active:       active,
		}
	}
	return a
}

// Len returns the number of known keys.
func (a *Accounts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.accounts)
}

// Get returns a snapshot of the account for key.
func (a *Accounts) Get(key string) (Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	acct, ok := a.accounts[key]
	if !ok {
		return Account{}, ErrUnknownKey
	}
	return *acct, nil
}

// Reserve counts one call against key's quota and returns the updated
// snapshot. Inactive or exhausted accounts are refused.
func (a *Accounts) Reserve(key string) (Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acct, ok := a.accounts[key]
	if !ok {
		return Account{}, ErrUnknownKey
	}
	if !acct.Active {
		return *acct, ErrInactive
	}
	if acct.Quota > 0 && acct.Calls >= acct.Quota {
		return *acct, ErrQuotaExceeded
	}

	acct.Calls++
	return *acct, nil
}

// Refund returns a reserved call whose request failed.
func (a *Accounts) Refund(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if acct, ok := a.accounts[key]; ok && acct.Calls > 0 {
		acct.Calls--
	}
}

// AddTokens records tokens spent by key and returns the key's running total.
func (a *Accounts) AddTokens(key string, tokens int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	acct, ok := a.accounts[key]
	if !ok {
		return 0
	}
	acct.Tokens += tokens
	return acct.Tokens
}

// TotalTokens returns the tokens spent across all accounts.
func (a *Accounts) TotalTokens() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	total := 0
	for _, acct := range a.accounts {
		total += acct.Tokens
	}
	return total
}
