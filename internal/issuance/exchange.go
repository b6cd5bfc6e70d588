package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/internal/oracle"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
	"github.com/CedrosPay/stablecoin-factory/internal/storage"
	"github.com/CedrosPay/stablecoin-factory/internal/supply"
)

// Mint moves req.Amount of collateral from the caller into custody and mints
// the converted amount of pegged tokens to the caller.
func (s *Service) Mint(ctx context.Context, req MintRequest) (Receipt, error) {
	start := time.Now()
	receipt, err := s.mint(ctx, req)
	if err == nil {
		receipt.ID = uuid.NewString()
	}
	s.finish(ctx, OperationMint, req.Stablecoin, req.Caller, receipt, err, start)
	return receipt, err
}

func (s *Service) mint(ctx context.Context, req MintRequest) (Receipt, error) {
	if err := checkCaller(req.Caller); err != nil {
		return Receipt{}, err
	}
	record, err := s.store.GetStablecoin(ctx, req.Stablecoin)
	if err != nil {
		return Receipt{}, err
	}
	reading, err := s.readRate(ctx, record, req.OracleFeed)
	if err != nil {
		return Receipt{}, err
	}
	tokenAmount, err := pricing.Convert(req.Amount, reading, pricing.Forward)
	if err != nil {
		return Receipt{}, err
	}

	callerBond, err := storage.AccountAddress(req.Caller, record.BondMint)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		Operation:         OperationMint,
		Stablecoin:        record.Address,
		Caller:            req.Caller,
		AmountIn:          req.Amount,
		AmountOut:         tokenAmount,
		Reading:           reading,
		Decimals:          record.Decimals,
		CollateralAccount: callerBond,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		rec, err := tx.GetStablecoin(ctx, record.Address)
		if err != nil {
			return err
		}

		if err := tx.Transfer(ctx, callerBond, rec.Custody, req.Caller, req.Amount); err != nil {
			return err
		}

		callerToken, err := tx.OpenAccount(ctx, req.Caller, rec.StablecoinMint)
		if err != nil {
			return err
		}
		receipt.TokenAccount = callerToken.Address

		// The record address is the mint authority; the program signs for it.
		if err := tx.MintTo(ctx, rec.StablecoinMint, callerToken.Address, rec.Address, tokenAmount); err != nil {
			return err
		}

		if rec.TotalSupply, err = supply.Increase(rec.TotalSupply, tokenAmount); err != nil {
			return err
		}
		rec.UpdatedAt = s.now().UTC()
		receipt.TotalSupply = rec.TotalSupply
		return tx.SaveStablecoin(ctx, rec)
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// checkCaller rejects program-derived addresses. The record address owns
// custody and the pegged mint, and it is off the curve.
func checkCaller(caller solana.PublicKey) error {
	if !caller.IsOnCurve() {
		return fmt.Errorf("%w: caller %s is a program address", storage.ErrOwnerMismatch, caller)
	}
	return nil
}

// Redeem burns req.Amount of pegged tokens from the caller and returns the
// converted amount of collateral from custody.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (Receipt, error) {
	start := time.Now()
	receipt, err := s.redeem(ctx, req)
	if err == nil {
		receipt.ID = uuid.NewString()
	}
	s.finish(ctx, OperationRedeem, req.Stablecoin, req.Caller, receipt, err, start)
	return receipt, err
}

func (s *Service) redeem(ctx context.Context, req RedeemRequest) (Receipt, error) {
	if err := checkCaller(req.Caller); err != nil {
		return Receipt{}, err
	}
	record, err := s.store.GetStablecoin(ctx, req.Stablecoin)
	if err != nil {
		return Receipt{}, err
	}
	reading, err := s.readRate(ctx, record, req.OracleFeed)
	if err != nil {
		return Receipt{}, err
	}
	collateralAmount, err := pricing.Convert(req.Amount, reading, pricing.Reverse)
	if err != nil {
		return Receipt{}, err
	}

	callerToken, err := storage.AccountAddress(req.Caller, record.StablecoinMint)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		Operation:    OperationRedeem,
		Stablecoin:   record.Address,
		Caller:       req.Caller,
		AmountIn:     req.Amount,
		AmountOut:    collateralAmount,
		Reading:      reading,
		Decimals:     record.Decimals,
		TokenAccount: callerToken,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		rec, err := tx.GetStablecoin(ctx, record.Address)
		if err != nil {
			return err
		}

		// Supply is reduced by the burned amount, not the collateral returned.
		newSupply, err := supply.Decrease(rec.TotalSupply, req.Amount)
		if err != nil {
			return err
		}

		if err := tx.Burn(ctx, rec.StablecoinMint, callerToken, req.Caller, req.Amount); err != nil {
			return err
		}

		callerBond, err := tx.OpenAccount(ctx, req.Caller, rec.BondMint)
		if err != nil {
			return err
		}
		receipt.CollateralAccount = callerBond.Address

		if err := tx.Transfer(ctx, rec.Custody, callerBond.Address, rec.Address, collateralAmount); err != nil {
			return err
		}

		rec.TotalSupply = newSupply
		rec.UpdatedAt = s.now().UTC()
		receipt.TotalSupply = rec.TotalSupply
		return tx.SaveStablecoin(ctx, rec)
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Quote converts amount against the current reading without touching state.
func (s *Service) Quote(ctx context.Context, address solana.PublicKey, amount uint64, dir pricing.Direction, feed solana.PublicKey) (Quote, error) {
	record, err := s.store.GetStablecoin(ctx, address)
	if err != nil {
		return Quote{}, err
	}
	reading, err := s.readRate(ctx, record, feed)
	if err != nil {
		return Quote{}, err
	}
	out, err := pricing.Convert(amount, reading, dir)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Stablecoin: record.Address,
		Direction:  dir,
		AmountIn:   amount,
		AmountOut:  out,
		Reading:    reading,
	}, nil
}

// finish logs and records the outcome of a transition.
func (s *Service) finish(ctx context.Context, op string, coin, caller solana.PublicKey, receipt Receipt, err error, start time.Time) {
	log := logger.FromContext(ctx)
	duration := time.Since(start)

	if err != nil {
		reason := FailureReason(err)
		if s.metrics != nil {
			s.metrics.ObserveTransitionFailure(op, reason, duration)
		}
		var event *zerolog.Event
		if reason == "internal" {
			event = log.Error()
		} else {
			event = log.Warn()
		}
		event.
			Err(err).
			Str("stablecoin", coin.String()).
			Str("caller", logger.TruncateAddress(caller.String())).
			Str("reason", reason).
			Dur("duration", duration).
			Msg("issuance." + op + "_failed")
		return
	}

	if s.metrics != nil {
		if op == OperationMint {
			s.metrics.ObserveMint(coin.String(), receipt.AmountIn, receipt.TotalSupply, duration)
		} else {
			s.metrics.ObserveRedeem(coin.String(), receipt.AmountOut, receipt.TotalSupply, duration)
		}
	}
	log.Info().
		Str("receipt_id", receipt.ID).
		Str("stablecoin", coin.String()).
		Str("caller", logger.TruncateAddress(caller.String())).
		Uint64("amount_in", receipt.AmountIn).
		Uint64("amount_out", receipt.AmountOut).
		Uint64("total_supply", receipt.TotalSupply).
		Dur("duration", duration).
		Msg("issuance." + op + "_completed")
}

// FailureReason buckets a transition error for metrics and logs.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, stablecoin.ErrInvalidOracleData):
		return "invalid_oracle_data"
	case errors.Is(err, stablecoin.ErrInvalidExchangeRate):
		return "invalid_exchange_rate"
	case errors.Is(err, stablecoin.ErrCalculationOverflow):
		return "calculation_overflow"
	case errors.Is(err, stablecoin.ErrNotFound):
		return "stablecoin_not_found"
	case errors.Is(err, oracle.ErrFeedNotFound):
		return "oracle_feed_not_found"
	case errors.Is(err, oracle.ErrUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, storage.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, storage.ErrAccountNotFound):
		return "missing_token_account"
	case errors.Is(err, storage.ErrOwnerMismatch), errors.Is(err, storage.ErrMintAuthorityMismatch):
		return "unauthorized_signer"
	case errors.Is(err, storage.ErrMintMismatch):
		return "invalid_token_mint"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
