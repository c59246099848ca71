package transcribe

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speech-async/internal/metrics"
)

// DefaultPollInterval is the fixed delay before every status check.
const DefaultPollInterval = time.Second

// OperationGetter fetches the state of a long-running operation.
type OperationGetter interface {
	GetOperation(ctx context.Context, name string) (*Operation, error)
}

// Poller waits for an operation to finish by checking its status at a fixed
// interval. There is no backoff, no attempt limit, and no deadline of its own.
type Poller struct {
	getter   OperationGetter
	interval time.Duration
	log      zerolog.Logger
}

// NewPoller creates a Poller. A non-positive interval means DefaultPollInterval.
func NewPoller(getter OperationGetter, interval time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		getter:   getter,
		interval: interval,
		log:      log,
	}
}

// Interval returns the delay between status checks.
func (p *Poller) Interval() time.Duration { return p.interval }

// Wait blocks until the named operation reports done and returns that final
// response. The first error from a status check is returned as-is; only ctx
// cancellation stops the loop otherwise.
func (p *Poller) Wait(ctx context.Context, name string) (*Operation, error) {
	start := time.Now()
	attempt := 0

	for {
		p.log.Info().Str("operation", name).Msg("Waiting for server processing...")
		if err := sleep(ctx, p.interval); err != nil {
			return nil, err
		}

		attempt++
		metrics.PollsTotal.Inc()
		op, err := p.getter.GetOperation(ctx, name)
		if err != nil {
			return nil, err
		}

		if op.Done {
			elapsed := time.Since(start)
			metrics.OperationDuration.Observe(elapsed.Seconds())
			p.log.Info().
				Str("operation", name).
				Int("polls", attempt).
				Dur("elapsed", elapsed).
				Msg("operation done")
			return op, nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
