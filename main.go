package main

import (
	"bytes"
	"context"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	clmm "github.com/Solana-ZH/solclmm/pkg"
	"github.com/Solana-ZH/solclmm/pkg/engine"
	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/price"
	"github.com/Solana-ZH/solclmm/pkg/router"
	"github.com/Solana-ZH/solclmm/pkg/state"
	"github.com/Solana-ZH/solclmm/pkg/vault"
	"github.com/Solana-ZH/solclmm/utils"
)

const (
	// Demo amounts (6 decimal tokens)
	startBalance     = 1_000_000_000_000
	positionLiq      = 1_000_000_000
	defaultAmountIn  = 1_000_000
	defaultSlippage  = 100 // bps
	demoTickLower    = -600
	demoTickUpper    = 600
	demoTradeFeeRate = 2500
)

func main() {
	utils.LoadEnv()

	var logger *zap.Logger
	var err error
	if utils.Getenv("CLMM_LOG_LEVEL", "info") == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	admin := solana.NewWallet().PublicKey()
	lp := solana.NewWallet().PublicKey()
	trader := solana.NewWallet().PublicKey()

	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	if bytes.Compare(mintA[:], mintB[:]) > 0 {
		mintA, mintB = mintB, mintA
	}

	ledger := vault.NewLedger()
	for _, owner := range []solana.PublicKey{lp, trader} {
		for _, mint := range []solana.PublicKey{mintA, mintB} {
			if err := ledger.MintTo(mint, owner, startBalance); err != nil {
				logger.Fatal("mint failed", zap.Error(err))
			}
		}
	}

	store := state.NewMemoryStore()
	eng := engine.New(store, ledger, clmm.SingleAdmin{Admin: admin}, nil, logger)

	if _, err := eng.CreateAmmConfig(ctx, engine.CreateAmmConfigParams{
		Authority:       admin,
		Index:           0,
		TickSpacing:     60,
		TradeFeeRate:    demoTradeFeeRate,
		ProtocolFeeRate: 120000,
		FundFeeRate:     40000,
	}); err != nil {
		logger.Fatal("create config failed", zap.Error(err))
	}

	pool, err := eng.CreatePool(ctx, engine.CreatePoolParams{
		Creator:       admin,
		ConfigIndex:   0,
		TokenMint0:    mintA,
		TokenMint1:    mintB,
		MintDecimals0: 6,
		MintDecimals1: 6,
		SqrtPriceX64:  fixedpoint.Q64Int, // price 1.0
	})
	if err != nil {
		logger.Fatal("create pool failed", zap.Error(err))
	}

	if _, _, _, err := eng.OpenPosition(ctx, engine.IncreaseLiquidityParams{
		Owner:          lp,
		PoolKey:        pool.Key(),
		TickLowerIndex: demoTickLower,
		TickUpperIndex: demoTickUpper,
		Liquidity:      cosmath.NewInt(positionLiq),
		Amount0Max:     startBalance,
		Amount1Max:     startBalance,
	}); err != nil {
		logger.Fatal("open position failed", zap.Error(err))
	}

	r := router.New(eng, store, logger)
	best, expected, err := r.BestPoolBaseIn(ctx, mintA, []solana.PublicKey{pool.Key()}, defaultAmountIn)
	if err != nil {
		logger.Fatal("no pool quotes", zap.Error(err))
	}
	logger.Info("selected pool",
		zap.Stringer("pool", best),
		zap.Uint64("expected_out", expected),
	)

	minOut := expected - expected*defaultSlippage/10_000
	out, err := r.SwapBaseIn(ctx, router.RouteSwapParams{
		Trader:           trader,
		InputMint:        mintA,
		Pools:            []solana.PublicKey{best},
		AmountIn:         defaultAmountIn,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		logger.Fatal("swap failed", zap.Error(err))
	}
	logger.Info("swap executed", zap.Uint64("amount_out", out))

	after, err := eng.Pool(pool.Key())
	if err != nil {
		logger.Fatal("pool lookup failed", zap.Error(err))
	}
	logger.Info("pool after swap",
		zap.Int32("tick", after.TickCurrent),
		zap.String("price", price.FromSqrtPriceX64(
			fixedpoint.IntFromU128(after.SqrtPriceX64), 6, 6).StringFixed(6)),
	)

	// LP settles and collects the accrued trade fees
	if _, _, err := eng.DecreaseLiquidity(ctx, engine.DecreaseLiquidityParams{
		Owner:          lp,
		PoolKey:        pool.Key(),
		TickLowerIndex: demoTickLower,
		TickUpperIndex: demoTickUpper,
		Liquidity:      cosmath.ZeroInt(),
	}); err != nil {
		logger.Fatal("fee settlement failed", zap.Error(err))
	}

	got0, got1, err := eng.CollectProtocolFee(ctx, admin, pool.Key(), admin, ^uint64(0), ^uint64(0))
	if err != nil {
		logger.Fatal("protocol fee collection failed", zap.Error(err))
	}
	logger.Info("protocol fees collected", zap.Uint64("amount0", got0), zap.Uint64("amount1", got1))
}
