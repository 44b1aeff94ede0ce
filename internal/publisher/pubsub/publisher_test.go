package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	client, srv := newFakeClient(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "h1b-passes")
	require.NoError(t, err)

	pub, err := New(client)
	require.NoError(t, err)
	defer pub.Stop()

	id, err := pub.Publish(ctx, "h1b-passes", map[string]any{"runs_executed": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "application/json", msgs[0].Attributes["content-type"])
	var body map[string]int
	require.NoError(t, json.Unmarshal(msgs[0].Data, &body))
	assert.Equal(t, 3, body["runs_executed"])
}

func TestPublishMissingTopic(t *testing.T) {
	client, _ := newFakeClient(t)
	pub, err := New(client)
	require.NoError(t, err)
	defer pub.Stop()

	_, err = pub.Publish(context.Background(), "does-not-exist", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
