package progress

import (
	"context"
	"fmt"
	"time"
)

type exampleCountingSink struct {
	total   int
	batches int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	s.batches++
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit shows a finished pass reaching sinks as one batch.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: time.Hour}, sink)

	hub.Emit(Event{TS: time.Unix(0, 0), Stage: StagePassStart})
	hub.Emit(Event{TS: time.Unix(1, 0), Stage: StageSourceSkipped, SourceID: "indeed"})
	hub.Emit(Event{TS: time.Unix(2, 0), Stage: StagePassDone})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d in %d batch\n", sink.total, sink.batches)
	// Output:
	// events forwarded: 3 in 1 batch
}

// ExampleSink implements a custom Sink that totals saved listings.
func ExampleSink() {
	var saved int
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageSourceDone {
				saved += evt.Saved
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     2,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, capture)

	hub.Emit(Event{TS: time.Unix(0, 0), Stage: StageSourceDone, SourceID: "indeed", Saved: 12})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("listings saved: %d\n", saved)
	// Output:
	// listings saved: 12
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
