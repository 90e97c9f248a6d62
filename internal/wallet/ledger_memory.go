package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation names a Ledger method, for call recording and failure injection.
type Operation string

const (
	OpReserve Operation = "reserve"
	OpRelease Operation = "release"
	OpDebit   Operation = "debit"
	OpRefund  Operation = "refund"
)

// Call is one recorded Ledger invocation.
type Call struct {
	Op             Operation
	UserID         string
	SessionID      string
	AmountMinor    int64
	IdempotencyKey string
	Err            error
}

type failure struct {
	remaining int
	err       error
}

// MemoryLedger is an in-process Ledger with the same semantics as the
// Postgres one. Used by tests and local runs.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	currency map[string]string
	entries  []Transaction
	byKey    map[string]Transaction
	calls    []Call
	failures map[Operation]*failure
	clock    func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: map[string]int64{},
		currency: map[string]string{},
		byKey:    map[string]Transaction{},
		failures: map[Operation]*failure{},
		clock:    time.Now,
	}
}

// Deposit credits userID's wallet, creating it on first use.
func (l *MemoryLedger) Deposit(userID, currency string, amountMinor int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currency[userID] = currency
	l.balances[userID] += amountMinor
	l.entries = append(l.entries, Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		WalletID:    userID,
		Type:        TransactionTypeCredit,
		AmountMinor: amountMinor,
		Currency:    currency,
		CreatedAt:   l.clock().UTC(),
	})
}

// FailNext makes the next n calls of op return err without side effects.
func (l *MemoryLedger) FailNext(op Operation, n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op] = &failure{remaining: n, err: err}
}

func (l *MemoryLedger) Balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// Calls returns every invocation so far, including injected failures.
func (l *MemoryLedger) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// Entries returns the posted entries of a session in order.
func (l *MemoryLedger) Entries(sessionID string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transaction
	for _, e := range l.entries {
		if e.ReferenceID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

func (l *MemoryLedger) Reserve(ctx context.Context, req ReserveRequest) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	call := Call{Op: OpReserve, UserID: req.UserID, SessionID: req.SessionID, AmountMinor: req.AmountMinor, IdempotencyKey: req.IdempotencyKey}
	if err := l.begin(ctx, &call); err != nil {
		return Transaction{}, err
	}
	out, err := l.reserve(req)
	call.Err = err
	l.calls[len(l.calls)-1] = call
	return out, err
}

func (l *MemoryLedger) reserve(req ReserveRequest) (Transaction, error) {
	if err := validateReserve(req); err != nil {
		return Transaction{}, err
	}
	if existing, ok := l.byKey[l.key(req.UserID, req.IdempotencyKey)]; ok {
		return existing, nil
	}
	cur, ok := l.currency[req.UserID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if cur != req.Currency {
		return Transaction{}, ErrInvalidArgument
	}
	if l.balances[req.UserID] < req.AmountMinor {
		return Transaction{}, ErrInsufficientFunds
	}
	e := l.post(Transaction{
		UserID:         req.UserID,
		Type:           TransactionTypeHold,
		AmountMinor:    -req.AmountMinor,
		Currency:       req.Currency,
		ReferenceID:    req.SessionID,
		IdempotencyKey: req.IdempotencyKey,
	})
	return e, nil
}

func (l *MemoryLedger) Release(ctx context.Context, req SettleRequest) (Transaction, error) {
	return l.settle(ctx, OpRelease, TransactionTypeRelease, req, false)
}

func (l *MemoryLedger) Debit(ctx context.Context, req SettleRequest) (Transaction, error) {
	return l.settle(ctx, OpDebit, TransactionTypeDebit, req, true)
}

func (l *MemoryLedger) Refund(ctx context.Context, req SettleRequest) (Transaction, error) {
	return l.settle(ctx, OpRefund, TransactionTypeRefund, req, true)
}

func (l *MemoryLedger) settle(ctx context.Context, op Operation, typ TransactionType, req SettleRequest, needAmount bool) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	call := Call{Op: op, UserID: req.UserID, SessionID: req.SessionID, AmountMinor: req.AmountMinor, IdempotencyKey: req.IdempotencyKey}
	if err := l.begin(ctx, &call); err != nil {
		return Transaction{}, err
	}
	out, err := l.settleLocked(typ, req, needAmount)
	call.Err = err
	l.calls[len(l.calls)-1] = call
	return out, err
}

func (l *MemoryLedger) settleLocked(typ TransactionType, req SettleRequest, needAmount bool) (Transaction, error) {
	if err := validateSettle(req, needAmount); err != nil {
		return Transaction{}, err
	}
	if existing, ok := l.byKey[l.key(req.UserID, req.IdempotencyKey)]; ok {
		return existing, nil
	}
	cur, ok := l.currency[req.UserID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if cur != req.Currency {
		return Transaction{}, ErrInvalidArgument
	}

	var hold int64
	for _, e := range l.entries {
		if e.UserID == req.UserID && e.ReferenceID == req.SessionID && e.Type.affectsHold() {
			hold -= e.AmountMinor
		}
	}
	entries, err := settlementEntries(typ, req, hold)
	if err != nil {
		return Transaction{}, err
	}
	if l.balances[req.UserID]+sumAmounts(entries) < 0 {
		return Transaction{}, ErrInsufficientFunds
	}

	var primary Transaction
	for i, e := range entries {
		e.UserID = req.UserID
		e.Currency = req.Currency
		e.ReferenceID = req.SessionID
		e.Metadata = reasonMetadata(req.Reason)
		posted := l.post(e)
		if i == 0 {
			primary = posted
		}
	}
	return primary, nil
}

// begin records the call and applies context cancellation and injected failures.
func (l *MemoryLedger) begin(ctx context.Context, call *Call) error {
	l.calls = append(l.calls, *call)
	if err := ctx.Err(); err != nil {
		call.Err = ErrLedgerUnavailable
		l.calls[len(l.calls)-1] = *call
		return ErrLedgerUnavailable
	}
	if f, ok := l.failures[call.Op]; ok && f.remaining > 0 {
		f.remaining--
		call.Err = f.err
		l.calls[len(l.calls)-1] = *call
		return f.err
	}
	return nil
}

func (l *MemoryLedger) post(e Transaction) Transaction {
	e.ID = uuid.NewString()
	e.WalletID = e.UserID
	e.CreatedAt = l.clock().UTC()
	l.entries = append(l.entries, e)
	l.byKey[l.key(e.UserID, e.IdempotencyKey)] = e
	l.balances[e.UserID] += e.AmountMinor
	return e
}

func (l *MemoryLedger) key(userID, idem string) string {
	return userID + "|" + idem
}
