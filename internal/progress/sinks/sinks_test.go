package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/progress"
	"github.com/JakeFAU/h1b-jobs-crawler/internal/publisher/memory"
)

var passStarted = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func batch() []progress.Event {
	return []progress.Event{
		{TS: passStarted, Stage: progress.StagePassStart, PassStarted: passStarted},
		{TS: passStarted, Stage: progress.StageSourceDone, PassStarted: passStarted, SourceID: "indeed", RunID: "r1", Technique: "direct", Found: 4, Saved: 3},
		{TS: passStarted, Stage: progress.StageSourceError, PassStarted: passStarted, SourceID: "mvj", RunID: "r2", Errors: 1, Note: "HTTP 403"},
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), batch()))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "indeed", entries[1].ContextMap()["source_id"])
	assert.Equal(t, int64(3), entries[1].ContextMap()["saved"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "HTTP 403", entries[2].ContextMap()["note"])
	_, hasSource := entries[0].ContextMap()["source_id"]
	assert.False(t, hasSource)
}

func TestPublisherSink(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink, err := NewPublisherSink(pub, "h1b-progress")
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), nil))
	require.NoError(t, sink.Consume(context.Background(), batch()))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "h1b-progress", msgs[0].Topic)
	var got Batch
	require.NoError(t, msgs[0].Decode(&got))
	require.Len(t, got.Events, 3)
	assert.Equal(t, progress.StageSourceDone, got.Events[1].Stage)
	assert.Equal(t, 3, got.Events[1].Saved)
	assert.True(t, passStarted.Equal(got.Events[0].PassStarted))
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("topic not found")
}

func TestPublisherSinkErrors(t *testing.T) {
	t.Parallel()

	_, err := NewPublisherSink(nil, "t")
	require.Error(t, err)
	_, err = NewPublisherSink(memory.New(), "")
	require.Error(t, err)

	sink, err := NewPublisherSink(failingPublisher{}, "t")
	require.NoError(t, err)
	err = sink.Consume(context.Background(), batch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic not found")
}

func TestSinksWithHub(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	ps, err := NewPublisherSink(pub, "h1b-progress")
	require.NoError(t, err)
	hub := progress.NewHub(progress.Config{MaxBatchEvents: 10, MaxBatchWait: time.Minute}, NewLogSink(nil), ps)

	for _, evt := range batch() {
		hub.Emit(evt)
	}
	require.NoError(t, hub.Close(context.Background()))

	require.Len(t, pub.Messages(), 1)
}
