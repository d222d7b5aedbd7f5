// Package vault is the in-process token custody backing the engine: a ledger
// of balances per mint and owner. Pool vaults and user wallets are both plain
// ledger accounts.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAddress       = errors.New("zero address")
)

type balanceKey struct {
	mint  solana.PublicKey
	owner solana.PublicKey
}

// Ledger is a thread-safe in-memory Custodian.
type Ledger struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[balanceKey]uint64)}
}

// MintTo credits freshly issued tokens to owner.
func (l *Ledger) MintTo(mint, owner solana.PublicKey, amount uint64) error {
	if owner.IsZero() {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey{mint, owner}] += amount
	return nil
}

func (l *Ledger) Transfer(_ context.Context, mint, from, to solana.PublicKey, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromKey := balanceKey{mint, from}
	if l.balances[fromKey] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, l.balances[fromKey], amount)
	}
	l.balances[fromKey] -= amount
	l.balances[balanceKey{mint, to}] += amount
	return nil
}

func (l *Ledger) Balance(_ context.Context, mint, owner solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{mint, owner}], nil
}
