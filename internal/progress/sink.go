package progress

import "context"

// Sink receives batches from a Hub. Consume is only called from the hub's delivery
// goroutine; the batch is shared between sinks and must not be modified.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. *Hub implements it.
type Emitter interface {
	Emit(evt Event)
}
