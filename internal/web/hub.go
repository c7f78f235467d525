package web

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/sweeney/foosball-sensor/internal/broadcast"
	"github.com/sweeney/foosball-sensor/internal/game"
	"github.com/sweeney/foosball-sensor/internal/status"
)

// ErrHubBusy is returned by Broadcast when the hub has not drained the
// previous snapshots yet. The snapshot is dropped.
var ErrHubBusy = errors.New("web: hub busy, snapshot dropped")

const (
	hubBacklog    = 16
	viewerBacklog = 16
)

// Hub fans snapshots out to every connected websocket viewer.
// Viewers receive snapshots from the moment they join; there is no replay.
type Hub struct {
	register   chan *viewer
	unregister chan *viewer
	snapshots  chan []byte
	done       chan struct{}

	count   atomic.Int64
	tracker *status.Tracker
	logger  *log.Logger
}

// NewHub creates a Hub. If tracker is non-nil the viewer count is kept
// up to date there.
func NewHub(tracker *status.Tracker, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		snapshots:  make(chan []byte, hubBacklog),
		done:       make(chan struct{}),
		tracker:    tracker,
		logger:     logger.WithPrefix("hub"),
	}
}

// Broadcast implements broadcast.Sink. It never blocks the caller.
func (h *Hub) Broadcast(snap game.Data) error {
	payload, err := broadcast.FormatSnapshot(snap)
	if err != nil {
		return err
	}
	select {
	case h.snapshots <- payload:
		return nil
	default:
		return ErrHubBusy
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Run owns the viewer set until ctx is cancelled, then disconnects everyone.
// It must be called exactly once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	viewers := make(map[*viewer]struct{})

	drop := func(v *viewer) {
		if _, ok := viewers[v]; !ok {
			return
		}
		delete(viewers, v)
		close(v.send)
		h.setCount(len(viewers))
	}

	for {
		select {
		case v := <-h.register:
			viewers[v] = struct{}{}
			h.setCount(len(viewers))
			h.logger.Debug("viewer joined", "remote", v.remote, "viewers", len(viewers))

		case v := <-h.unregister:
			drop(v)
			h.logger.Debug("viewer left", "remote", v.remote, "viewers", len(viewers))

		case payload := <-h.snapshots:
			for v := range viewers {
				select {
				case v.send <- payload:
				default:
					h.logger.Warn("viewer too slow, disconnecting", "remote", v.remote)
					drop(v)
				}
			}

		case <-ctx.Done():
			for v := range viewers {
				drop(v)
			}
			return nil
		}
	}
}

// join hands v to the hub. It reports false if the hub has stopped.
func (h *Hub) join(v *viewer) bool {
	select {
	case h.register <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(v *viewer) {
	select {
	case h.unregister <- v:
	case <-h.done:
	}
}

func (h *Hub) setCount(n int) {
	h.count.Store(int64(n))
	if h.tracker != nil {
		h.tracker.SetViewers(n)
	}
}
