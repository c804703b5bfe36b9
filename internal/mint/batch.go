package mint

import (
	"context"
	"time"

	"certledger/internal/platform/tracer"
	dErrors "certledger/pkg/domain-errors"
)

// BatchMint mints requests one at a time with the configured delay between
// runs. A failed mint does not stop the batch. When ctx is cancelled no new
// mints start and every remaining request gets a cancelled result; a mint
// already past submission still runs to its own conclusion.
func (p *Pipeline) BatchMint(ctx context.Context, reqs []Request) []Result {
	ctx, span := p.tracer.Start(ctx, tracer.SpanBatchMint, tracer.Int64(tracer.AttrBatchSize, int64(len(reqs))))
	if p.metrics != nil {
		p.metrics.ObserveBatch(len(reqs))
	}

	results := make([]Result, len(reqs))
	failed := 0
	for i, req := range reqs {
		if i > 0 {
			if err := sleep(ctx, p.cfg.BatchDelay); err != nil {
				failed += cancelRemaining(results[i:])
				break
			}
		}
		if ctx.Err() != nil {
			failed += cancelRemaining(results[i:])
			break
		}
		results[i] = p.Mint(ctx, req)
		if !results[i].Success {
			failed++
		}
	}

	span.SetAttributes(tracer.Int64(tracer.AttrBatchFailed, int64(failed)))
	span.End(nil)
	p.logger.InfoContext(ctx, "batch mint finished", "total", len(reqs), "failed", failed)
	return results
}

func cancelRemaining(results []Result) int {
	err := &dErrors.Error{Code: dErrors.CodeValidation, Reason: dErrors.ReasonCancelled, Message: "batch cancelled before this mint started"}
	for i := range results {
		results[i] = Result{
			Stage:       StageBuilding,
			ErrorKind:   err.Code,
			ErrorReason: err.Reason,
			Error:       err.Message,
			Err:         err,
		}
	}
	return len(results)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
