package ledger

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
)

func TestCreditWithRetryRecovers(t *testing.T) {
	accounts := NewMemoryAccountService()
	accounts.FailCredits = 2

	balance, err := CreditWithRetry(context.Background(), accounts, "acct-aurora", 575_100, "settlement")
	if err != nil {
		t.Fatalf("credit should recover after transient failures: %v", err)
	}
	if balance != 575_100 {
		t.Fatalf("expected returned balance 575100, got %d", balance)
	}
	if got := accounts.Balance("acct-aurora"); got != 575_100 {
		t.Fatalf("expected balance 575100, got %d", got)
	}
}

func TestCreditWithRetryExhausts(t *testing.T) {
	accounts := NewMemoryAccountService()
	accounts.FailCredits = 10

	_, err := CreditWithRetry(context.Background(), accounts, "acct-aurora", 1_000, "settlement")
	if !apperrors.IsCode(err, apperrors.CodeLedgerCreditFailed) {
		t.Fatalf("expected %s, got %v", apperrors.CodeLedgerCreditFailed, err)
	}
	if got := accounts.Balance("acct-aurora"); got != 0 {
		t.Fatalf("expected untouched balance, got %d", got)
	}
}

func TestCreditWithRetryRejectsNonPositiveAmount(t *testing.T) {
	accounts := NewMemoryAccountService()
	for _, amount := range []int64{0, -500} {
		_, err := CreditWithRetry(context.Background(), accounts, "acct-aurora", amount, "settlement")
		if !apperrors.IsCode(err, apperrors.CodeFundsInvalidAmount) {
			t.Fatalf("amount %d: expected %s, got %v", amount, apperrors.CodeFundsInvalidAmount, err)
		}
	}
}

func TestMemoryAccountServiceReportsBalances(t *testing.T) {
	accounts := NewMemoryAccountService()

	balance, err := accounts.Credit(context.Background(), "acct-pilot", 500, "test")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != 500 {
		t.Fatalf("expected credit to return balance 500, got %d", balance)
	}

	balance, err = accounts.Debit(context.Background(), "acct-pilot", 300, "test")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance != 200 {
		t.Fatalf("expected debit to return balance 200, got %d", balance)
	}

	if _, err := accounts.Debit(context.Background(), "acct-pilot", 300, "test"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := accounts.Balance("acct-pilot"); got != 200 {
		t.Fatalf("expected balance untouched after refused debit, got %d", got)
	}
}
