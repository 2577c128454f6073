package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moscowboard/api/internal/logging"
)

func startRelay(t *testing.T, ctx context.Context, addr string) (*RedisRelay, *MemoryPublisher) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	local := NewMemoryPublisher()
	relay := NewRedisRelay(local, client, "moscow:test", logging.Discard())
	go func() { _ = relay.Run(ctx) }()

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}
	return relay, local
}

func TestRedisRelayFansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA, _ := startRelay(t, ctx, mr.Addr())
	nodeB, _ := startRelay(t, ctx, mr.Addr())
	require.NotEqual(t, nodeA.Origin(), nodeB.Origin())

	onA := nodeA.Subscribe(TopicAll)
	onB := nodeB.Subscribe(TopicFunctionalities)

	nodeA.Publish(mustEvent(t, EventFunctionalityMoved, TopicFunctionalities, map[string]string{"id": "f-1"}))

	local := receive(t, onA)
	assert.Equal(t, nodeA.Origin(), local.Origin)

	remote := receive(t, onB)
	assert.Equal(t, EventFunctionalityMoved, remote.Type)
	assert.Equal(t, nodeA.Origin(), remote.Origin)
	assert.JSONEq(t, `{"id":"f-1"}`, string(remote.Data))

	// The publishing node must not receive its own event a second time.
	select {
	case e := <-onA:
		t.Fatalf("unexpected echo %v", e.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisRelayRunStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	relay := NewRedisRelay(NewMemoryPublisher(), client, "moscow:test", logging.Discard())

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	<-relay.Ready()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
