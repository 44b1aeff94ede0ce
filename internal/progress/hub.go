package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes a Hub. Zero values take the defaults.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	// MaxBatchWait bounds how long the oldest event of a batch waits for delivery.
	MaxBatchWait time.Duration
	SinkTimeout  time.Duration
	Logger       *zap.Logger
}

const (
	defaultBufferSize     = 256
	defaultMaxBatchEvents = 64
	defaultMaxBatchWait   = time.Second
	defaultSinkTimeout    = 10 * time.Second
)

// Hub moves pass and source events off the orchestrator's goroutines and hands
// them to sinks in batches. A batch is cut when it fills, when its oldest event has
// waited MaxBatchWait, or when a PASS_DONE arrives, so a finished pass is delivered
// whole without waiting on the next one. Emit never blocks; overflow is counted.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	closed  atomic.Bool
	once    sync.Once
}

// NewHub starts delivery to sinks. Nil sinks are ignored.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		events: make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.Named("progress"),
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.loop()
	return h
}

// Emit queues evt. Invalid events, events after Close and events that find the
// buffer full are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Dropped reports how many events were lost to a full buffer.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close delivers everything already queued, closes the sinks and waits for the
// delivery goroutine until ctx ends. It is safe to call more than once.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close progress hub: %w", ctx.Err())
	}
}

func (h *Hub) loop() {
	defer close(h.done)

	var (
		batch    []Event
		timer    *time.Timer
		deadline <-chan time.Time
		reported int64
	)
	cut := func() {
		if timer != nil {
			timer.Stop()
			timer, deadline = nil, nil
		}
		h.deliver(batch)
		batch = nil
		if n := h.dropped.Load(); n > reported {
			h.logger.Warn("progress events dropped", zap.Int64("dropped", n-reported))
			reported = n
		}
	}
	add := func(evt Event) {
		batch = append(batch, evt)
		if len(batch) == 1 {
			timer = time.NewTimer(h.cfg.MaxBatchWait)
			deadline = timer.C
		}
		if len(batch) >= h.cfg.MaxBatchEvents || evt.Stage == StagePassDone {
			cut()
		}
	}

	for {
		select {
		case evt := <-h.events:
			add(evt)
		case <-deadline:
			cut()
		case <-h.stop:
			for {
				select {
				case evt := <-h.events:
					add(evt)
				default:
					cut()
					h.closeSinks()
					return
				}
			}
		}
	}
}

// deliver hands batch to every sink in order. Sinks share the slice.
func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for i, s := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		err := s.Consume(ctx, batch)
		cancel()
		if err != nil {
			h.logger.Warn("progress sink failed", zap.Int("sink", i), zap.Int("events", len(batch)), zap.Error(err))
		}
	}
}

func (h *Hub) closeSinks() {
	for i, s := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := s.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Int("sink", i), zap.Error(err))
		}
		cancel()
	}
}
