package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/stablecoin-factory/internal/circuitbreaker"
	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// encodeAggregator builds a minimal AggregatorAccountData buffer.
func encodeAggregator(slot uint64, timestamp int64, mantissa *big.Int, scale uint32) []byte {
	data := make([]byte, 512)
	copy(data, aggregatorDiscriminator)
	binary.LittleEndian.PutUint64(data[350:], slot)
	binary.LittleEndian.PutUint64(data[358:], uint64(timestamp))

	m := new(big.Int).Set(mantissa)
	if m.Sign() < 0 {
		m.Add(m, twoTo128)
	}
	be := m.FillBytes(make([]byte, 16))
	for i := 0; i < 16; i++ {
		data[366+i] = be[15-i]
	}
	binary.LittleEndian.PutUint32(data[382:], scale)
	return data
}

type fakeFetcher struct {
	result *rpc.GetAccountInfoResult
	err    error
	calls  int
	opts   *rpc.GetAccountInfoOpts
}

func (f *fakeFetcher) GetAccountInfoWithOpts(_ context.Context, _ solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	f.calls++
	f.opts = opts
	return f.result, f.err
}

func accountResult(owner solana.PublicKey, data []byte) *rpc.GetAccountInfoResult {
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{
			Owner: owner,
			Data:  rpc.DataBytesOrJSONFromBytes(data),
		},
	}
}

func TestAggregatorDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("account:AggregatorAccountData"))
	for i := range aggregatorDiscriminator {
		if sum[i] != aggregatorDiscriminator[i] {
			t.Fatalf("discriminator byte %d = %d, want %d", i, aggregatorDiscriminator[i], sum[i])
		}
	}
}

func TestDecodeAggregator(t *testing.T) {
	huge, _ := new(big.Int).SetString("170141183460469231731687303715884105727", 10) // 2^127-1

	tests := []struct {
		name     string
		data     []byte
		mantissa *big.Int
		scale    int32
		wantErr  error
	}{
		{
			name:     "positive",
			data:     encodeAggregator(123456, 1_700_000_000, big.NewInt(15), 1),
			mantissa: big.NewInt(15),
			scale:    1,
		},
		{
			name:     "max i128",
			data:     encodeAggregator(1, 1, huge, 0),
			mantissa: huge,
			scale:    0,
		},
		{
			name:     "negative mantissa",
			data:     encodeAggregator(1, 1, big.NewInt(-42), 2),
			mantissa: big.NewInt(-42),
			scale:    2,
		},
		{
			name:    "too short",
			data:    encodeAggregator(1, 1, big.NewInt(1), 0)[:385],
			wantErr: stablecoin.ErrInvalidOracleData,
		},
		{
			name:    "wrong discriminator",
			data:    append([]byte{1, 2, 3, 4, 5, 6, 7, 8}, make([]byte, 400)...),
			wantErr: stablecoin.ErrInvalidOracleData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAggregator(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeAggregator() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeAggregator() error = %v", err)
			}
			if got.Mantissa.Cmp(tt.mantissa) != 0 {
				t.Errorf("mantissa = %s, want %s", got.Mantissa, tt.mantissa)
			}
			if got.Scale != tt.scale {
				t.Errorf("scale = %d, want %d", got.Scale, tt.scale)
			}
		})
	}
}

func TestDecodeAggregator_RoundMetadata(t *testing.T) {
	got, err := DecodeAggregator(encodeAggregator(987654321, 1_712_345_678, big.NewInt(3), 0))
	if err != nil {
		t.Fatalf("DecodeAggregator() error = %v", err)
	}
	if got.RoundOpenSlot != 987654321 {
		t.Errorf("slot = %d", got.RoundOpenSlot)
	}
	if got.RoundOpenTimestamp != 1_712_345_678 {
		t.Errorf("timestamp = %d", got.RoundOpenTimestamp)
	}
}

func TestDecodeAggregator_HighScaleIsNegative(t *testing.T) {
	got, err := DecodeAggregator(encodeAggregator(1, 1, big.NewInt(1), 0xFFFFFFFF))
	if err != nil {
		t.Fatalf("DecodeAggregator() error = %v", err)
	}
	if got.Scale != -1 {
		t.Fatalf("scale = %d, want -1", got.Scale)
	}
	if _, err := pricing.Convert(100, got, pricing.Forward); !errors.Is(err, stablecoin.ErrInvalidOracleData) {
		t.Errorf("Convert() error = %v, want ErrInvalidOracleData", err)
	}
}

func TestSwitchboardFeed_LatestConfirmedResult(t *testing.T) {
	feedKey := solana.NewWallet().PublicKey()
	data := encodeAggregator(10, 20, big.NewInt(3), 0)

	tests := []struct {
		name    string
		fetcher *fakeFetcher
		wantErr error
	}{
		{name: "ok", fetcher: &fakeFetcher{result: accountResult(SwitchboardProgramID, data)}},
		{name: "not found", fetcher: &fakeFetcher{err: rpc.ErrNotFound}, wantErr: ErrFeedNotFound},
		{name: "nil value", fetcher: &fakeFetcher{result: &rpc.GetAccountInfoResult{}}, wantErr: ErrFeedNotFound},
		{name: "wrong owner", fetcher: &fakeFetcher{result: accountResult(solana.SystemProgramID, data)}, wantErr: stablecoin.ErrInvalidOracleData},
		{name: "rpc failure", fetcher: &fakeFetcher{err: errors.New("connection refused")}, wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := NewSwitchboardFeed(tt.fetcher, SwitchboardOptions{Timeout: time.Second})
			got, err := feed.LatestConfirmedResult(context.Background(), feedKey)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got.Mantissa.Int64() != 3 || got.Scale != 0 {
				t.Errorf("reading = %s e%d", got.Mantissa, got.Scale)
			}
			if tt.fetcher.opts.Commitment != rpc.CommitmentConfirmed {
				t.Errorf("commitment = %q, want confirmed", tt.fetcher.opts.Commitment)
			}
			if tt.fetcher.opts.Encoding != solana.EncodingBase64 {
				t.Errorf("encoding = %q, want base64", tt.fetcher.opts.Encoding)
			}
		})
	}
}

func TestSwitchboardFeed_BreakerOpens(t *testing.T) {
	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled: true,
		OracleRPC: circuitbreaker.BreakerConfig{
			MaxRequests:         1,
			Timeout:             time.Minute,
			ConsecutiveFailures: 2,
		},
	}, zerolog.Nop())
	fetcher := &fakeFetcher{err: errors.New("503 service unavailable")}
	feed := NewSwitchboardFeed(fetcher, SwitchboardOptions{Breakers: breakers})
	key := solana.NewWallet().PublicKey()

	for i := 0; i < 3; i++ {
		if _, err := feed.LatestConfirmedResult(context.Background(), key); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("read %d: error = %v, want ErrUnavailable", i, err)
		}
	}
	if fetcher.calls != 2 {
		t.Errorf("rpc calls = %d, want 2 before the breaker opened", fetcher.calls)
	}
}

func TestSwitchboardFeed_NotFoundDoesNotTrip(t *testing.T) {
	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled:   true,
		OracleRPC: circuitbreaker.BreakerConfig{MaxRequests: 1, Timeout: time.Minute, ConsecutiveFailures: 1},
	}, zerolog.Nop())
	fetcher := &fakeFetcher{err: rpc.ErrNotFound}
	feed := NewSwitchboardFeed(fetcher, SwitchboardOptions{Breakers: breakers})

	for i := 0; i < 3; i++ {
		_, _ = feed.LatestConfirmedResult(context.Background(), solana.NewWallet().PublicKey())
	}
	if got := breakers.State(circuitbreaker.ServiceOracleRPC); got != "closed" {
		t.Errorf("breaker state = %q, want closed", got)
	}
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed()
	feed.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	key := solana.NewWallet().PublicKey()

	if _, err := feed.LatestConfirmedResult(context.Background(), key); !errors.Is(err, ErrFeedNotFound) {
		t.Fatalf("missing feed error = %v, want ErrFeedNotFound", err)
	}

	feed.Set(key, pricing.NewReading(15, 1))
	got, err := feed.LatestConfirmedResult(context.Background(), key)
	if err != nil {
		t.Fatalf("LatestConfirmedResult() error = %v", err)
	}
	if got.Mantissa.Int64() != 15 || got.Scale != 1 {
		t.Errorf("reading = %s e%d", got.Mantissa, got.Scale)
	}
	if got.RoundOpenTimestamp != 1_700_000_000 {
		t.Errorf("timestamp = %d, want read time", got.RoundOpenTimestamp)
	}

	// callers cannot mutate the stored reading
	got.Mantissa.SetInt64(0)
	again, _ := feed.LatestConfirmedResult(context.Background(), key)
	if again.Mantissa.Int64() != 15 {
		t.Errorf("stored mantissa mutated to %s", again.Mantissa)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := feed.LatestConfirmedResult(ctx, key); !errors.Is(err, ErrUnavailable) {
		t.Errorf("canceled read error = %v, want ErrUnavailable", err)
	}
}

func TestNewStaticFeedFromConfig(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	feed, err := NewStaticFeedFromConfig(map[string]config.StaticFeed{
		key.String(): {Mantissa: "170141183460469231731687303715884105727", Scale: 0},
	})
	if err != nil {
		t.Fatalf("NewStaticFeedFromConfig() error = %v", err)
	}
	got, err := feed.LatestConfirmedResult(context.Background(), key)
	if err != nil {
		t.Fatalf("LatestConfirmedResult() error = %v", err)
	}
	if got.Mantissa.BitLen() != 127 {
		t.Errorf("mantissa bit length = %d, want 127", got.Mantissa.BitLen())
	}

	if _, err := NewStaticFeedFromConfig(map[string]config.StaticFeed{"not-a-key": {Mantissa: "1"}}); err == nil {
		t.Error("expected error for bad feed address")
	}
	if _, err := NewStaticFeedFromConfig(map[string]config.StaticFeed{key.String(): {Mantissa: "1.5"}}); err == nil {
		t.Error("expected error for non-integer mantissa")
	}
	_, err = NewStaticFeedFromConfig(map[string]config.StaticFeed{key.String(): {Mantissa: "340282366920938463463374607431768211455"}})
	if !errors.Is(err, stablecoin.ErrInvalidOracleData) {
		t.Errorf("128-bit mantissa error = %v, want ErrInvalidOracleData", err)
	}
}

func TestWithMaxStaleness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	key := solana.NewWallet().PublicKey()
	static := NewStaticFeed()

	tests := []struct {
		name    string
		opened  int64
		wantErr error
	}{
		{name: "fresh", opened: now.Add(-10 * time.Second).Unix()},
		{name: "at limit", opened: now.Add(-time.Minute).Unix()},
		{name: "stale", opened: now.Add(-2 * time.Minute).Unix(), wantErr: stablecoin.ErrInvalidOracleData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := pricing.NewReading(1, 0)
			reading.RoundOpenTimestamp = tt.opened
			static.Set(key, reading)

			guard := WithMaxStaleness(static, time.Minute).(*stalenessGuard)
			guard.now = func() time.Time { return now }

			_, err := guard.LatestConfirmedResult(context.Background(), key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if WithMaxStaleness(static, 0) != Feed(static) {
		t.Error("zero max staleness should return the feed unchanged")
	}
}

func TestInstrument(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	static := NewStaticFeed()
	key := solana.NewWallet().PublicKey()
	static.Set(key, pricing.NewReading(2, 0))

	feed := Instrument(static, SourceStatic, m)
	_, _ = feed.LatestConfirmedResult(context.Background(), key)
	_, _ = feed.LatestConfirmedResult(context.Background(), solana.NewWallet().PublicKey())

	if got := promtest.ToFloat64(m.OracleReadsTotal.WithLabelValues(SourceStatic, "success")); got != 1 {
		t.Errorf("successful reads = %.0f, want 1", got)
	}
	if got := promtest.ToFloat64(m.OracleReadsTotal.WithLabelValues(SourceStatic, "not_found")); got != 1 {
		t.Errorf("not found reads = %.0f, want 1", got)
	}
	if Instrument(static, SourceStatic, nil) != Feed(static) {
		t.Error("nil metrics should return the feed unchanged")
	}
}

func TestNewFromConfig(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	feed, err := NewFromConfig(config.OracleConfig{
		Source: "static",
		Feeds:  map[string]config.StaticFeed{key.String(): {Mantissa: "3", Scale: 0}},
	}, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	if _, err := feed.LatestConfirmedResult(context.Background(), key); err != nil {
		t.Errorf("LatestConfirmedResult() error = %v", err)
	}

	if _, err := NewFromConfig(config.OracleConfig{Source: "pyth"}, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown source")
	}
	if _, err := NewFromConfig(config.OracleConfig{Source: "switchboard"}, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for switchboard without rpc_url")
	}
}
