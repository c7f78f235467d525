package broadcast

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/sweeney/foosball-sensor/internal/game"
)

// Latest decouples a slow sink from the tick loop. Broadcast hands the
// snapshot to Run's goroutine and returns at once; if the sink is still busy
// with an earlier snapshot, only the newest pending one is kept.
type Latest struct {
	next   Sink
	slot   chan game.Data
	logger *log.Logger
}

// NewLatest wraps next. Call Run to start delivering.
func NewLatest(next Sink, logger *log.Logger) *Latest {
	if logger == nil {
		logger = log.Default()
	}
	return &Latest{
		next:   next,
		slot:   make(chan game.Data, 1),
		logger: logger,
	}
}

// Broadcast implements Sink. It never blocks.
func (l *Latest) Broadcast(snap game.Data) error {
	for {
		select {
		case l.slot <- snap:
			return nil
		default:
		}
		// Superseded.
		select {
		case <-l.slot:
		default:
		}
	}
}

// Announce forwards win to the wrapped sink if it is an Announcer.
// Announcers are expected not to block.
func (l *Latest) Announce(win game.Win) error {
	if a, ok := l.next.(Announcer); ok {
		return a.Announce(win)
	}
	return nil
}

// Run delivers pending snapshots until ctx is cancelled.
func (l *Latest) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-l.slot:
			if err := l.next.Broadcast(snap); err != nil {
				l.logger.Warn("broadcast failed", "error", err)
			}
		}
	}
}
