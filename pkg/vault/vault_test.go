package vault

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	return pk
}

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	mint := key(1)

	require.NoError(t, l.MintTo(mint, key(2), 100))

	require.NoError(t, l.Transfer(ctx, mint, key(2), key(3), 60))
	from, err := l.Balance(ctx, mint, key(2))
	require.NoError(t, err)
	to, err := l.Balance(ctx, mint, key(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(40), from)
	assert.Equal(t, uint64(60), to)

	err = l.Transfer(ctx, mint, key(2), key(3), 41)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// balances per mint are independent
	other, err := l.Balance(ctx, key(9), key(2))
	require.NoError(t, err)
	assert.Zero(t, other)
}
