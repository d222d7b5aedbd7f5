// Package state holds the account entities of the concentrated liquidity
// engine, their binary codecs and the key-value store they live in. Every
// entity is addressed by a program derived address so the layout matches the
// on-chain account model.
package state

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// ProgramID namespaces every derived address.
var ProgramID = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")

// PDA seeds.
var (
	AmmConfigSeed        = []byte("amm_config")
	PoolSeed             = []byte("pool")
	PoolVaultSeed        = []byte("pool_vault")
	PoolRewardVaultSeed  = []byte("pool_reward_vault")
	TickArraySeed        = []byte("tick_array")
	BitmapExtensionSeed  = []byte("pool_tick_array_bitmap_extension")
	PositionSeed         = []byte("position")
	ProtocolPositionSeed = []byte("protocol_position")
)

func mustFindProgramAddress(seeds [][]byte) solana.PublicKey {
	key, _, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		panic(err)
	}
	return key
}

func u16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func i32Bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

// AmmConfigKey derives the address of the fee tier config at index.
func AmmConfigKey(index uint16) solana.PublicKey {
	return mustFindProgramAddress([][]byte{AmmConfigSeed, u16Bytes(index)})
}

// PoolKey derives the pool address for a config and an ordered mint pair.
func PoolKey(ammConfig, tokenMint0, tokenMint1 solana.PublicKey) solana.PublicKey {
	return mustFindProgramAddress([][]byte{PoolSeed, ammConfig.Bytes(), tokenMint0.Bytes(), tokenMint1.Bytes()})
}

// PoolVaultKey derives the vault address holding one side of a pool's funds.
func PoolVaultKey(pool, tokenMint solana.PublicKey) solana.PublicKey {
	return mustFindProgramAddress([][]byte{PoolVaultSeed, pool.Bytes(), tokenMint.Bytes()})
}

// PoolRewardVaultKey derives the vault address holding a pool's reward tokens
// for one mint. Kept apart from the trading vaults so a reward paid in a pool
// token never shares an account with user deposits.
func PoolRewardVaultKey(pool, rewardMint solana.PublicKey) solana.PublicKey {
	return mustFindProgramAddress([][]byte{PoolRewardVaultSeed, pool.Bytes(), rewardMint.Bytes()})
}

// TickArrayKey derives the address of a pool's tick array at startIndex.
func TickArrayKey(pool solana.PublicKey, startIndex int32) solana.PublicKey {
	return mustFindProgramAddress([][]byte{TickArraySeed, pool.Bytes(), i32Bytes(startIndex)})
}

// BitmapExtensionKey derives the address of a pool's overflow tick array bitmap.
func BitmapExtensionKey(pool solana.PublicKey) solana.PublicKey {
	return mustFindProgramAddress([][]byte{BitmapExtensionSeed, pool.Bytes()})
}

// PersonalPositionKey derives the address of an owner's position over a tick range.
func PersonalPositionKey(pool, owner solana.PublicKey, tickLower, tickUpper int32) solana.PublicKey {
	return mustFindProgramAddress([][]byte{
		PositionSeed, pool.Bytes(), owner.Bytes(), i32Bytes(tickLower), i32Bytes(tickUpper),
	})
}

// ProtocolPositionKey derives the address of the pool-wide aggregate position
// over a tick range.
func ProtocolPositionKey(pool solana.PublicKey, tickLower, tickUpper int32) solana.PublicKey {
	return mustFindProgramAddress([][]byte{
		ProtocolPositionSeed, pool.Bytes(), i32Bytes(tickLower), i32Bytes(tickUpper),
	})
}
