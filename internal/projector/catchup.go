package projector

import (
	"context"
	"time"

	"schemaregistry/internal/eventstore"
)

// positionKey holds the global feed position reached by Catchup.
const positionKey = "$position"

// Catchup applies every feed event after the stored position, batch by batch,
// and returns how many records it read. Offsets are flushed before it
// returns, including on error.
func (p *Projector) Catchup(ctx context.Context, feed eventstore.Feed, batch int) (n int, err error) {
	if batch <= 0 {
		batch = 500
	}
	after, err := p.offsets.Read(ctx, p.name, positionKey)
	if err != nil {
		return 0, err
	}
	defer func() {
		if ferr := p.Flush(context.WithoutCancel(ctx)); err == nil {
			err = ferr
		}
	}()

	for {
		records, err := feed.ReadAll(ctx, after, batch)
		if err != nil {
			return n, err
		}
		for _, rec := range records {
			if err := p.Apply(ctx, rec); err != nil {
				return n, err
			}
			after = rec.Position
			p.dirty[positionKey] = after
			n++
		}
		if len(records) < batch {
			return n, nil
		}
	}
}

// Follow runs Catchup every interval until ctx is cancelled. Errors are
// logged and retried on the next tick.
func (p *Projector) Follow(ctx context.Context, feed eventstore.Feed, batch int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := p.Catchup(ctx, feed, batch)
		if err != nil && ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "projector catchup failed", "error", err)
		}
		if n > 0 {
			p.logger.DebugContext(ctx, "projector caught up", "events", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
