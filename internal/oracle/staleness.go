package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

type stalenessGuard struct {
	next   Feed
	maxAge time.Duration
	now    func() time.Time
}

// WithMaxStaleness rejects readings whose round opened more than maxAge ago.
// A non-positive maxAge returns next unchanged.
func WithMaxStaleness(next Feed, maxAge time.Duration) Feed {
	if maxAge <= 0 {
		return next
	}
	return &stalenessGuard{next: next, maxAge: maxAge, now: time.Now}
}

func (g *stalenessGuard) LatestConfirmedResult(ctx context.Context, feed solana.PublicKey) (pricing.Reading, error) {
	reading, err := g.next.LatestConfirmedResult(ctx, feed)
	if err != nil {
		return pricing.Reading{}, err
	}

	opened := time.Unix(reading.RoundOpenTimestamp, 0)
	if age := g.now().Sub(opened); age > g.maxAge {
		return pricing.Reading{}, fmt.Errorf("%w: round opened %s ago, limit %s",
			stablecoin.ErrInvalidOracleData, age.Truncate(time.Second), g.maxAge)
	}
	return reading, nil
}
