package oracle

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/CedrosPay/stablecoin-factory/internal/circuitbreaker"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// SwitchboardProgramID owns every Switchboard V2 aggregator account.
var SwitchboardProgramID = solana.MustPublicKeyFromBase58("SW1TCH7qEPTdLsDHRgPuMQjbQxKdH2aBStViMFnt64f")

// aggregatorDiscriminator is sha256("account:AggregatorAccountData")[:8].
var aggregatorDiscriminator = []byte{217, 230, 65, 101, 201, 162, 27, 125}

// Byte offsets into the packed AggregatorAccountData layout (discriminator
// included). latest_confirmed_round starts at 341; the fields below follow
// its num_success, num_error and is_closed header.
const (
	roundOpenSlotOffset = 350
	minAggregatorSize   = 386 // through result.scale
)

var twoTo128 = new(big.Int).Lsh(big.NewInt(1), 128)

// AccountFetcher is the subset of the Solana RPC client the feed needs.
type AccountFetcher interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

// SwitchboardOptions tunes aggregator reads.
type SwitchboardOptions struct {
	Commitment rpc.CommitmentType      // default confirmed
	Timeout    time.Duration           // per read, 0 = caller's deadline only
	Breakers   *circuitbreaker.Manager // optional
}

// SwitchboardFeed reads the latest confirmed round of a Switchboard V2 aggregator.
type SwitchboardFeed struct {
	client     AccountFetcher
	commitment rpc.CommitmentType
	timeout    time.Duration
	breakers   *circuitbreaker.Manager
}

// NewSwitchboardFeed creates a feed backed by client.
func NewSwitchboardFeed(client AccountFetcher, opts SwitchboardOptions) *SwitchboardFeed {
	commitment := opts.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &SwitchboardFeed{
		client:     client,
		commitment: commitment,
		timeout:    opts.Timeout,
		breakers:   opts.Breakers,
	}
}

// LatestConfirmedResult implements Feed.
func (f *SwitchboardFeed) LatestConfirmedResult(ctx context.Context, feed solana.PublicKey) (pricing.Reading, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	result, err := f.breakers.Execute(circuitbreaker.ServiceOracleRPC, func() (interface{}, error) {
		info, err := f.client.GetAccountInfoWithOpts(ctx, feed, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: f.commitment,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			// A missing account is a caller problem, not an RPC failure.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return info, nil
	})
	if err != nil {
		return pricing.Reading{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, feed, err)
	}

	info, _ := result.(*rpc.GetAccountInfoResult)
	if info == nil || info.Value == nil {
		return pricing.Reading{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feed)
	}
	if !info.Value.Owner.Equals(SwitchboardProgramID) {
		return pricing.Reading{}, fmt.Errorf("%w: %s is owned by %s, not the switchboard program",
			stablecoin.ErrInvalidOracleData, feed, info.Value.Owner)
	}
	if info.Value.Data == nil {
		return pricing.Reading{}, fmt.Errorf("%w: %s has no data", stablecoin.ErrInvalidOracleData, feed)
	}

	return DecodeAggregator(info.Value.Data.GetBinary())
}

// DecodeAggregator extracts latest_confirmed_round from raw AggregatorAccountData.
func DecodeAggregator(data []byte) (pricing.Reading, error) {
	if len(data) < minAggregatorSize {
		return pricing.Reading{}, fmt.Errorf("%w: aggregator account is %d bytes, want at least %d",
			stablecoin.ErrInvalidOracleData, len(data), minAggregatorSize)
	}
	if !bytes.Equal(data[:len(aggregatorDiscriminator)], aggregatorDiscriminator) {
		return pricing.Reading{}, fmt.Errorf("%w: not an aggregator account", stablecoin.ErrInvalidOracleData)
	}

	dec := bin.NewBinDecoder(data)
	if err := dec.SkipBytes(roundOpenSlotOffset); err != nil {
		return pricing.Reading{}, decodeErr(err)
	}
	slot, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return pricing.Reading{}, decodeErr(err)
	}
	timestamp, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return pricing.Reading{}, decodeErr(err)
	}
	lo, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return pricing.Reading{}, decodeErr(err)
	}
	hi, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return pricing.Reading{}, decodeErr(err)
	}
	scale, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return pricing.Reading{}, decodeErr(err)
	}

	return pricing.Reading{
		Mantissa:           int128(lo, hi),
		Scale:              int32(scale),
		RoundOpenSlot:      slot,
		RoundOpenTimestamp: int64(timestamp),
	}, nil
}

// int128 assembles a two's complement 128-bit integer from little-endian words.
func int128(lo, hi uint64) *big.Int {
	v := new(big.Int).SetUint64(hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(lo))
	if hi>>63 == 1 {
		v.Sub(v, twoTo128)
	}
	return v
}

func decodeErr(err error) error {
	return fmt.Errorf("%w: decode aggregator: %v", stablecoin.ErrInvalidOracleData, err)
}
