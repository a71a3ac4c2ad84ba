package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// submitTimeout bounds every background persistence write.
const submitTimeout = 5 * time.Second

// Recorder runs persistence writes on background goroutines so the
// user-facing response never waits for — or fails because of — the learning
// store. Every submitted operation gets its own bounded context; panics are
// recovered and errors are logged, never returned.
type Recorder struct {
	log *slog.Logger
	wg  sync.WaitGroup
}

// NewRecorder returns a Recorder logging failures through log.
// A nil log falls back to slog.Default().
func NewRecorder(log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{log: log}
}

// submit schedules fn on a background goroutine. The operation name is only
// used for logging.
func (r *Recorder) submit(op string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("learning: background write panicked", "op", op, "panic", p)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.log.Warn("learning: background write failed", "op", op, "err", err)
		}
	}()
}

// Wait blocks until every submitted operation has finished. Tests use it to
// observe writes; production code never calls it on the response path.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
