package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
)

// StaticFeed serves fixed readings from memory.
//
// Readings without a round timestamp are stamped with the read time, so a
// static feed never trips the staleness policy.
type StaticFeed struct {
	mu       sync.RWMutex
	readings map[solana.PublicKey]pricing.Reading
	now      func() time.Time
}

// NewStaticFeed creates an empty static feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{
		readings: make(map[solana.PublicKey]pricing.Reading),
		now:      time.Now,
	}
}

// NewStaticFeedFromConfig loads feeds keyed by base58 address.
func NewStaticFeedFromConfig(feeds map[string]config.StaticFeed) (*StaticFeed, error) {
	s := NewStaticFeed()
	for addr, f := range feeds {
		key, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("oracle: static feed %q: %w", addr, err)
		}
		mantissa, ok := new(big.Int).SetString(f.Mantissa, 10)
		if !ok {
			return nil, fmt.Errorf("oracle: static feed %q: mantissa %q is not an integer", addr, f.Mantissa)
		}
		reading := pricing.Reading{Mantissa: mantissa, Scale: f.Scale}
		if err := reading.Validate(); err != nil {
			return nil, fmt.Errorf("oracle: static feed %q: %w", addr, err)
		}
		s.Set(key, reading)
	}
	return s, nil
}

// Set installs or replaces the reading served for feed.
func (s *StaticFeed) Set(feed solana.PublicKey, reading pricing.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[feed] = copyReading(reading)
}

// LatestConfirmedResult implements Feed.
func (s *StaticFeed) LatestConfirmedResult(ctx context.Context, feed solana.PublicKey) (pricing.Reading, error) {
	if err := ctx.Err(); err != nil {
		return pricing.Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.RLock()
	reading, ok := s.readings[feed]
	s.mu.RUnlock()
	if !ok {
		return pricing.Reading{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feed)
	}

	out := copyReading(reading)
	if out.RoundOpenTimestamp == 0 {
		out.RoundOpenTimestamp = s.now().Unix()
	}
	return out, nil
}

func copyReading(r pricing.Reading) pricing.Reading {
	if r.Mantissa != nil {
		r.Mantissa = new(big.Int).Set(r.Mantissa)
	}
	return r
}
