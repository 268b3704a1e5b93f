package authority

import (
	"context"
	"fmt"
	"time"

	"github.com/aeronet-project/aeronet/internal/storage"
	"github.com/aeronet-project/aeronet/internal/telemetry"
)

// Sweeper periodically drops handoff offers whose accept window has lapsed.
// Expiry is also enforced lazily on the accept path, so the sweeper only
// keeps the stored state tidy; correctness does not depend on its cadence.
type Sweeper struct {
	plans    storage.PlanStore
	emitter  *telemetry.Emitter
	clock    func() time.Time
	interval time.Duration
}

// NewSweeper creates a Sweeper. A zero interval defaults to the accept
// window length.
func NewSweeper(plans storage.PlanStore, emitter *telemetry.Emitter, clock func() time.Time, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	if interval <= 0 {
		interval = DefaultAcceptWindow
	}
	return &Sweeper{plans: plans, emitter: emitter, clock: clock, interval: interval}
}

// SweepOnce clears every expired pending handoff, returning the count.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cleared, err := s.plans.ClearExpiredTransfers(ctx, s.clock().UTC())
	if err != nil {
		return 0, fmt.Errorf("clear expired transfers: %w", err)
	}
	if cleared > 0 {
		_ = s.emitter.Emit(ctx, telemetry.SeverityInfo, "authority", "transfers_expired",
			fmt.Sprintf("cleared %d expired handoff offers", cleared))
	}
	return cleared, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				_ = s.emitter.Emit(ctx, telemetry.SeverityWarn, "authority", "sweep_failed", err.Error())
			}
		}
	}
}
