package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// Transferer runs peer funds transfers as a durable two-leg saga: debit the
// sender, then credit the recipient, with a compensating re-credit when the
// second leg cannot complete.
type Transferer struct {
	accounts    AccountService
	sagas       storage.TransferSagaStore
	emitter     *telemetry.Emitter
	clock       func() time.Time
	idGenerator func() (string, error)
	policy      retryPolicy
}

// NewTransferer creates a Transferer over the given account service and saga
// store.
func NewTransferer(accounts AccountService, sagas storage.TransferSagaStore, emitter *telemetry.Emitter, clock func() time.Time, idGenerator func() (string, error)) *Transferer {
	if clock == nil {
		clock = time.Now
	}
	return &Transferer{
		accounts:    accounts,
		sagas:       sagas,
		emitter:     emitter,
		clock:       clock,
		idGenerator: idGenerator,
		policy:      defaultRetryPolicy(),
	}
}

// Transfer moves amount cents from one account to another. It returns the
// saga ID; the saga record holds the durable outcome.
func (t *Transferer) Transfer(ctx context.Context, fromAccount, toAccount string, amount int64, memo string) (string, error) {
	if t == nil || t.accounts == nil || t.sagas == nil {
		return "", errors.New("transferer is not configured")
	}
	fromAccount = strings.TrimSpace(fromAccount)
	toAccount = strings.TrimSpace(toAccount)
	if fromAccount == "" || toAccount == "" {
		return "", apperrors.New(apperrors.CodeFundsInvalidAmount, "both accounts are required")
	}
	if fromAccount == toAccount {
		return "", apperrors.New(apperrors.CodeFundsSameAccount, "transfer accounts must differ")
	}
	if amount <= 0 {
		return "", apperrors.New(apperrors.CodeFundsInvalidAmount, "transfer amount must be positive")
	}

	sagaID, err := t.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate saga id: %w", err)
	}
	now := t.clock().UTC()
	record := storage.TransferSagaRecord{
		ID:          sagaID,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Amount:      amount,
		Memo:        memo,
		State:       storage.TransferSagaPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.sagas.CreateTransferSaga(ctx, record); err != nil {
		return "", fmt.Errorf("create transfer saga: %w", err)
	}

	if err := t.debitLeg(ctx, record); err != nil {
		return sagaID, err
	}
	if err := t.creditLeg(ctx, record); err != nil {
		return sagaID, err
	}
	return sagaID, nil
}

func (t *Transferer) debitLeg(ctx context.Context, record storage.TransferSagaRecord) error {
	_, err := t.policy.run(ctx, func() (int64, error) {
		balance, debitErr := t.accounts.Debit(ctx, record.FromAccount, record.Amount, record.Memo)
		if errors.Is(debitErr, ErrInsufficientFunds) {
			return balance, backoff.Permanent(debitErr)
		}
		return balance, debitErr
	})
	if err != nil {
		t.markState(ctx, record.ID, storage.TransferSagaPending, storage.TransferSagaFailed, err.Error())
		return apperrors.WrapWithMetadata(apperrors.CodeLedgerDebitFailed,
			"debit sender account", map[string]string{"SagaID": record.ID}, err)
	}
	t.markState(ctx, record.ID, storage.TransferSagaPending, storage.TransferSagaDebited, "")
	return nil
}

func (t *Transferer) creditLeg(ctx context.Context, record storage.TransferSagaRecord) error {
	_, err := t.policy.run(ctx, func() (int64, error) {
		return t.accounts.Credit(ctx, record.ToAccount, record.Amount, record.Memo)
	})
	if err == nil {
		t.markState(ctx, record.ID, storage.TransferSagaDebited, storage.TransferSagaCompleted, "")
		return nil
	}

	// Credit leg exhausted; give the money back to the sender.
	_, reversalErr := t.policy.run(ctx, func() (int64, error) {
		return t.accounts.Credit(ctx, record.FromAccount, record.Amount, "reversal: "+record.Memo)
	})
	if reversalErr != nil {
		t.markState(ctx, record.ID, storage.TransferSagaDebited, storage.TransferSagaReversalPending, reversalErr.Error())
		_ = t.emitter.Emit(ctx, telemetry.SeverityError, "ledger", "transfer_reversal_pending",
			fmt.Sprintf("saga %s: debited %d cents from %s but credit and reversal both failed",
				record.ID, record.Amount, record.FromAccount))
	} else {
		t.markState(ctx, record.ID, storage.TransferSagaDebited, storage.TransferSagaReversed, err.Error())
	}
	return apperrors.WrapWithMetadata(apperrors.CodeLedgerCreditFailed,
		"credit recipient account", map[string]string{"SagaID": record.ID}, err)
}

// markState advances the saga record; a lost state race is logged, not fatal,
// since the money movement already happened.
func (t *Transferer) markState(ctx context.Context, sagaID string, from, to storage.TransferSagaState, lastError string) {
	if err := t.sagas.UpdateTransferSagaState(ctx, sagaID, from, to, lastError, t.clock().UTC()); err != nil {
		_ = t.emitter.Emit(ctx, telemetry.SeverityWarn, "ledger", "saga_state_update_failed",
			fmt.Sprintf("saga %s: %s -> %s: %v", sagaID, from, to, err))
	}
}

// ResumeReversals retries the compensating credit for sagas stuck in
// reversal_pending. Reconciliation tooling calls this periodically.
func (t *Transferer) ResumeReversals(ctx context.Context, limit int) (int, error) {
	if t == nil || t.accounts == nil || t.sagas == nil {
		return 0, errors.New("transferer is not configured")
	}
	stuck, err := t.sagas.ListTransferSagasByState(ctx, storage.TransferSagaReversalPending, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending reversals: %w", err)
	}
	recovered := 0
	for _, record := range stuck {
		_, creditErr := t.accounts.Credit(ctx, record.FromAccount, record.Amount, "reversal: "+record.Memo)
		if creditErr != nil {
			continue
		}
		t.markState(ctx, record.ID, storage.TransferSagaReversalPending, storage.TransferSagaReversed, record.LastError)
		recovered++
	}
	return recovered, nil
}
