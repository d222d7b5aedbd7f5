package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/solclmm/pkg/state"
)

// CreateAmmConfigParams describes a new fee tier.
type CreateAmmConfigParams struct {
	Authority       solana.PublicKey
	Index           uint16
	TickSpacing     uint16
	TradeFeeRate    uint32
	ProtocolFeeRate uint32
	FundFeeRate     uint32
}

func validateFeeRates(tradeFeeRate, protocolFeeRate, fundFeeRate uint32) error {
	if tradeFeeRate >= state.MaxTradeFeeRate {
		return fmt.Errorf("%w: trade fee rate %d", ErrInvalidFeeRate, tradeFeeRate)
	}
	if protocolFeeRate > state.MaxProtocolFeeRate {
		return fmt.Errorf("%w: protocol fee rate %d", ErrInvalidFeeRate, protocolFeeRate)
	}
	if fundFeeRate > state.MaxFundFeeRate {
		return fmt.Errorf("%w: fund fee rate %d", ErrInvalidFeeRate, fundFeeRate)
	}
	if uint64(protocolFeeRate)+uint64(fundFeeRate) > state.MaxProtocolFeeRate {
		return fmt.Errorf("%w: protocol plus fund fee rate %d", ErrInvalidFeeRate, protocolFeeRate+fundFeeRate)
	}
	return nil
}

// CreateAmmConfig registers a fee tier. Admin only.
func (e *Engine) CreateAmmConfig(ctx context.Context, params CreateAmmConfigParams) (*state.AmmConfig, error) {
	if !e.auth.IsAdmin(params.Authority) {
		return nil, ErrUnauthorized
	}
	if params.TickSpacing == 0 {
		return nil, ErrInvalidTickSpacing
	}
	if err := validateFeeRates(params.TradeFeeRate, params.ProtocolFeeRate, params.FundFeeRate); err != nil {
		return nil, err
	}

	stage := state.NewStage(e.store)
	cfg := &state.AmmConfig{
		Index:           params.Index,
		Owner:           params.Authority,
		ProtocolFeeRate: params.ProtocolFeeRate,
		TradeFeeRate:    params.TradeFeeRate,
		TickSpacing:     params.TickSpacing,
		FundFeeRate:     params.FundFeeRate,
		FundOwner:       params.Authority,
	}
	if stage.Has(cfg.Key()) {
		return nil, fmt.Errorf("amm config %d: %w", params.Index, state.ErrAccountExists)
	}
	if err := state.Save(stage, cfg); err != nil {
		return nil, err
	}
	stage.Commit()

	e.log.Info("amm config created",
		zap.Uint16("index", params.Index),
		zap.Uint16("tick_spacing", params.TickSpacing),
		zap.Uint32("trade_fee_rate", params.TradeFeeRate),
		zap.Uint32("protocol_fee_rate", params.ProtocolFeeRate),
	)
	return cfg, nil
}

// UpdateAmmConfigParams carries the fields to change; nil fields are left
// untouched.
type UpdateAmmConfigParams struct {
	Authority       solana.PublicKey
	Index           uint16
	TradeFeeRate    *uint32
	ProtocolFeeRate *uint32
	FundFeeRate     *uint32
	NewOwner        *solana.PublicKey
	NewFundOwner    *solana.PublicKey
}

// UpdateAmmConfig changes fee rates or ownership of an existing tier. Only
// the config owner or the admin may call it.
func (e *Engine) UpdateAmmConfig(ctx context.Context, params UpdateAmmConfigParams) (*state.AmmConfig, error) {
	stage := state.NewStage(e.store)
	cfg, err := e.loadConfig(stage, state.AmmConfigKey(params.Index))
	if err != nil {
		return nil, err
	}
	if !e.auth.IsAdmin(params.Authority) && !params.Authority.Equals(cfg.Owner) {
		return nil, ErrUnauthorized
	}

	trade, protocol, fund := cfg.TradeFeeRate, cfg.ProtocolFeeRate, cfg.FundFeeRate
	if params.TradeFeeRate != nil {
		trade = *params.TradeFeeRate
	}
	if params.ProtocolFeeRate != nil {
		protocol = *params.ProtocolFeeRate
	}
	if params.FundFeeRate != nil {
		fund = *params.FundFeeRate
	}
	if err := validateFeeRates(trade, protocol, fund); err != nil {
		return nil, err
	}
	cfg.TradeFeeRate, cfg.ProtocolFeeRate, cfg.FundFeeRate = trade, protocol, fund

	if params.NewOwner != nil {
		if params.NewOwner.IsZero() {
			return nil, fmt.Errorf("%w: zero owner", ErrUnauthorized)
		}
		cfg.Owner = *params.NewOwner
	}
	if params.NewFundOwner != nil {
		cfg.FundOwner = *params.NewFundOwner
	}

	if err := state.Save(stage, cfg); err != nil {
		return nil, err
	}
	stage.Commit()

	e.log.Info("amm config updated", zap.Uint16("index", params.Index))
	return cfg, nil
}
