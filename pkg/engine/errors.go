package engine

import "errors"

// Operation failures. Every failed operation leaves the store untouched.
var (
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidFeeRate      = errors.New("fee rate out of range")
	ErrInvalidTickSpacing  = errors.New("tick spacing must be positive")
	ErrInvalidMintOrder    = errors.New("token mints must differ and be in ascending order")
	ErrInvalidPriceLimit   = errors.New("sqrt price limit out of range")
	ErrZeroLiquidityDelta  = errors.New("liquidity delta must be positive")
	ErrInvalidRewardParams = errors.New("invalid reward parameters")

	ErrPoolNotOpen         = errors.New("pool is not open yet")
	ErrOperationDisabled   = errors.New("operation disabled by pool status")
	ErrPoolHasLiquidity    = errors.New("pool still has liquidity")
	ErrPositionNotEmpty    = errors.New("position still holds liquidity or unclaimed balances")
	ErrRewardSlotOccupied  = errors.New("reward slot already initialized")
	ErrRewardNotInitialized = errors.New("reward slot not initialized")
	ErrRewardDecrease      = errors.New("emission rate of an active reward cannot decrease")

	ErrExceededSlippage       = errors.New("amounts exceed slippage tolerance")
	ErrTooLittleOutput        = errors.New("output amount below minimum")
	ErrTooMuchInput           = errors.New("input amount above maximum")
	ErrInsufficientTickArrays = errors.New("initialized tick array missing from store")
)
