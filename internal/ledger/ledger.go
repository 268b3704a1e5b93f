// Package ledger moves money between accounts. Amounts are int64 cents.
//
// The package does not own account balances; it calls an AccountService,
// which in production fronts the network's banking backend. Multi-leg
// movements run as durable sagas so a crash between legs leaves a record
// that reconciliation can finish or reverse.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
)

// ErrInsufficientFunds indicates a debit exceeds the account balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// AccountService applies single-leg balance movements. Each call returns the
// post-operation balance in cents.
type AccountService interface {
	// Credit adds amount cents to the account and returns the new balance.
	Credit(ctx context.Context, accountRef string, amount int64, memo string) (int64, error)
	// Debit removes amount cents from the account and returns the new
	// balance. Fails ErrInsufficientFunds when the balance does not cover it.
	Debit(ctx context.Context, accountRef string, amount int64, memo string) (int64, error)
}

// retryPolicy bounds how long a leg is retried before it is declared failed.
type retryPolicy struct {
	maxTries uint
	initial  time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{maxTries: 4, initial: 100 * time.Millisecond}
}

func (p retryPolicy) run(ctx context.Context, op func() (int64, error)) (int64, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.initial
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(p.maxTries),
	)
}

// CreditWithRetry credits an account, retrying transient failures with
// exponential backoff, and returns the new balance. A cancelled ctx ends the
// retries.
func CreditWithRetry(ctx context.Context, accounts AccountService, accountRef string, amount int64, memo string) (int64, error) {
	if accounts == nil {
		return 0, errors.New("account service is not configured")
	}
	if amount <= 0 {
		return 0, apperrors.New(apperrors.CodeFundsInvalidAmount, "credit amount must be positive")
	}
	policy := defaultRetryPolicy()
	balance, err := policy.run(ctx, func() (int64, error) {
		return accounts.Credit(ctx, accountRef, amount, memo)
	})
	if err != nil {
		return 0, apperrors.WrapWithMetadata(apperrors.CodeLedgerCreditFailed,
			"credit account", map[string]string{"AccountRef": accountRef}, err)
	}
	return balance, nil
}

// MemoryAccountService is an in-process AccountService used by tests and the
// seed command. Balances start at zero; Credit may create accounts.
type MemoryAccountService struct {
	mu       sync.Mutex
	balances map[string]int64

	// FailCredits counts down; while positive every Credit fails. Tests use
	// it to drive retry and reversal paths.
	FailCredits int
	// FailDebits counts down; while positive every Debit fails.
	FailDebits int
}

// NewMemoryAccountService creates an empty in-memory account service.
func NewMemoryAccountService() *MemoryAccountService {
	return &MemoryAccountService{balances: make(map[string]int64)}
}

// Credit implements AccountService.
func (m *MemoryAccountService) Credit(_ context.Context, accountRef string, amount int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCredits > 0 {
		m.FailCredits--
		return 0, fmt.Errorf("credit %s: backend unavailable", accountRef)
	}
	if strings.TrimSpace(accountRef) == "" {
		return 0, errors.New("account ref is required")
	}
	m.balances[accountRef] += amount
	return m.balances[accountRef], nil
}

// Debit implements AccountService.
func (m *MemoryAccountService) Debit(_ context.Context, accountRef string, amount int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDebits > 0 {
		m.FailDebits--
		return 0, fmt.Errorf("debit %s: backend unavailable", accountRef)
	}
	if m.balances[accountRef] < amount {
		return m.balances[accountRef], ErrInsufficientFunds
	}
	m.balances[accountRef] -= amount
	return m.balances[accountRef], nil
}

// Balance returns the current balance of an account.
func (m *MemoryAccountService) Balance(accountRef string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountRef]
}

// SetBalance seeds an account balance.
func (m *MemoryAccountService) SetBalance(accountRef string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountRef] = balance
}
