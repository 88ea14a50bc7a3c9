package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
}

func TestInMemoryEventBus_DeliversByType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventInterventionAssigned, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewInterventionAssignedEvent("I-1", "S-1", "Counselling")))
	require.NoError(t, bus.Publish(shared.NewRegistryRefreshedEvent(2, 10, 0)))

	assert.Equal(t, []shared.EventType{shared.EventInterventionAssigned}, typed)
	assert.Equal(t, []shared.EventType{shared.EventInterventionAssigned, shared.EventRegistryRefreshed}, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Published[shared.EventRegistryRefreshed])
	assert.Equal(t, int64(3), snap.HandlerExecutions)
}

func TestInMemoryEventBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))

	assert.NoError(t, bus.Publish(shared.NewRegistryRefreshedEvent(1, 1, 0)))
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewRegistryRefreshedEvent(uint64(i), 1, 0)))
	}
	require.NoError(t, bus.Close())

	assert.LessOrEqual(t, handled.Load(), int32(10))
	assert.ErrorIs(t, bus.Publish(shared.NewRegistryRefreshedEvent(99, 1, 0)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventRegistryRefreshed, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := syncBus()
	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventReportSettled, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}

// fakeRedis is a RedisClient whose subscription channel the test feeds.
type fakeRedis struct {
	mu        sync.Mutex
	published []string
	messages  chan RedisMessage
	failPub   error
	closed    bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{messages: make(chan RedisMessage, 8)}
}

func (f *fakeRedis) Publish(_ context.Context, _ string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub != nil {
		return f.failPub
	}
	f.published = append(f.published, message.(string))
	return nil
}

func (f *fakeRedis) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	return f.messages, nil
}

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRedis) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func newRedisBus(t *testing.T, client RedisClient) *RedisEventBus {
	t.Helper()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "api-1",
		LocalBusConfig: InMemoryEventBusConfig{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisEventBus_PublishesEnvelope(t *testing.T) {
	client := newFakeRedis()
	bus := newRedisBus(t, client)

	var local int
	require.NoError(t, bus.Subscribe(shared.EventRegistryRefreshed, func(shared.Event) error {
		local++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewRegistryRefreshedEvent(7, 40, 2)))
	assert.Equal(t, 1, local)

	sent := client.sent()
	require.Len(t, sent, 1)

	var env eventEnvelope
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &env))
	assert.Equal(t, "api-1", env.InstanceID)
	assert.Equal(t, shared.EventRegistryRefreshed, env.EventType)
	assert.Equal(t, float64(40), env.Payload["students"])
}

func TestRedisEventBus_PublishFailureStillDeliversLocally(t *testing.T) {
	client := newFakeRedis()
	client.failPub = errors.New("connection reset")
	bus := newRedisBus(t, client)

	var local int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		local++
		return nil
	}))
	require.NoError(t, bus.Publish(shared.NewRegistryRefreshedEvent(1, 1, 0)))
	assert.Equal(t, 1, local)
}

func TestRedisEventBus_ReplaysRemoteEventsOnly(t *testing.T) {
	client := newFakeRedis()
	bus := newRedisBus(t, client)

	got := make(chan shared.Event, 4)
	require.NoError(t, bus.Subscribe(shared.EventRegistryRefreshed, func(e shared.Event) error {
		got <- e
		return nil
	}))

	own, _ := json.Marshal(eventEnvelope{InstanceID: "api-1", EventType: shared.EventRegistryRefreshed})
	remote, _ := json.Marshal(eventEnvelope{
		InstanceID:  "worker-1",
		EventType:   shared.EventRegistryRefreshed,
		AggregateID: "registry",
		Payload:     map[string]interface{}{"version": 3},
	})

	client.messages <- RedisMessage{Payload: "not json"}
	client.messages <- RedisMessage{Payload: string(own)}
	client.messages <- RedisMessage{Payload: string(remote)}

	select {
	case e := <-got:
		assert.True(t, IsRemote(e))
		assert.Equal(t, "registry", e.AggregateID())
		assert.Equal(t, "worker-1", e.(*RemoteEvent).Origin())
	case <-time.After(time.Second):
		t.Fatal("remote event was not delivered")
	}

	select {
	case e := <-got:
		t.Fatalf("unexpected extra event %v", e.EventType())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisEventBus_CloseClosesClient(t *testing.T) {
	client := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{Client: client})
	require.NoError(t, err)
	assert.NotEmpty(t, bus.InstanceID())

	require.NoError(t, bus.Close())
	assert.True(t, client.closed)
	assert.ErrorIs(t, bus.Publish(shared.NewRegistryRefreshedEvent(1, 1, 0)), ErrEventBusClosed)
}

func TestDecodeEnvelope(t *testing.T) {
	_, _, err := decodeEnvelope(`{"instance_id":"x"}`, "y")
	assert.Error(t, err)

	_, self, err := decodeEnvelope(`{"instance_id":"y","event_type":"report.settled"}`, "y")
	require.NoError(t, err)
	assert.True(t, self)

	assert.False(t, IsRemote(shared.NewRegistryRefreshedEvent(1, 1, 0)))
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
