package loops

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrGracefulStop, returned from within the loop function, stops the loop
// without an error.
var ErrGracefulStop = errors.New("stop")

// RunLoop calls fn every interval until ctx is done. The wait after a slow
// iteration shrinks so iterations start on a constant cadence, and each
// iteration gets a context that expires after one interval. A panic inside
// fn is recovered and returned as the loop error.
func RunLoop(
	ctx context.Context,
	logger zerolog.Logger,
	interval time.Duration,
	fn func(ctx context.Context) error,
) (err error) {
	defer panicRecover(logger, &err)

	delayTimer := time.NewTimer(0)
	defer delayTimer.Stop()

	for {
		select {
		case <-delayTimer.C:
			start := time.Now()

			if fnErr := runIteration(ctx, interval, fn); fnErr != nil {
				if errors.Is(fnErr, ErrGracefulStop) {
					return nil
				}

				return fnErr
			}

			if elapsed := time.Since(start); elapsed >= interval {
				// overlapped, start the next one right away
				delayTimer.Reset(0)
			} else {
				delayTimer.Reset(interval - elapsed)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func runIteration(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	iterCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	return fn(iterCtx)
}

func panicRecover(logger zerolog.Logger, err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = e

			logger.Err(e).Msg("loop panicked with an error")
			logger.Debug().Msg(string(debug.Stack()))

			return
		}

		*err = errors.Errorf("loop panic: %v", r)
		logger.Err(*err).Msg("")
	}
}
