// Package pkg defines the collaborator interfaces the engine is wired with:
// time, token custody and administrative authority.
package pkg

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Clock supplies the engine's notion of current time in unix seconds. Reward
// schedules and pool open times are measured against it.
type Clock interface {
	Unix() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Unix() uint64 { return uint64(time.Now().Unix()) }

// FixedClock always reports the same instant. Test helper.
type FixedClock uint64

func (c FixedClock) Unix() uint64 { return uint64(c) }

// Custodian moves token balances between accounts on the engine's behalf.
// Custody errors abort the operation that requested the transfer.
type Custodian interface {
	Transfer(ctx context.Context, mint, from, to solana.PublicKey, amount uint64) error
	Balance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error)
}

// Authorizer answers whether a principal holds the protocol admin role and
// whether a caller may manage a position owned by another key. The engine
// consults it before every liquidity change; credential checking itself is
// the implementation's business.
type Authorizer interface {
	IsAdmin(key solana.PublicKey) bool
	IsAuthorizedForPosition(caller, owner solana.PublicKey) bool
}

// SingleAdmin authorizes exactly one admin key and lets owners manage their
// own positions.
type SingleAdmin struct {
	Admin solana.PublicKey
}

func (a SingleAdmin) IsAdmin(key solana.PublicKey) bool { return key.Equals(a.Admin) }

func (a SingleAdmin) IsAuthorizedForPosition(caller, owner solana.PublicKey) bool {
	return caller.Equals(owner) || caller.Equals(a.Admin)
}
