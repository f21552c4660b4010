package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/donor-hub/internal/domain/shared"
)

var testAt = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func createdEvent(id string) shared.Event {
	return shared.NewRequestTransitionedEvent(shared.EventRequestCreated, id, "req", "don", "pending", "req", testAt)
}

func TestInMemoryEventBus_SyncDeliversToTypedAndGlobalHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, global, other []string
	require.NoError(t, bus.Subscribe(shared.EventRequestCreated, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventRequestCompleted, func(e shared.Event) error {
		other = append(other, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		global = append(global, string(e.EventType()))
		return nil
	}))

	require.NoError(t, bus.Publish(createdEvent("r1")))

	assert.Equal(t, []string{"r1"}, typed)
	assert.Equal(t, []string{"request.created"}, global)
	assert.Empty(t, other)
}

func TestInMemoryEventBus_HandlerFailuresStayInside(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("smtp down") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))

	assert.NoError(t, bus.Publish(createdEvent("r1")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.HandlerExecutions)
	assert.Equal(t, int64(2), snap.HandlerFailures)
}

func TestInMemoryEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var done int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&done, 1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(createdEvent("r")))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(5), atomic.LoadInt32(&done))
	assert.ErrorIs(t, bus.Publish(createdEvent("late")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	assert.Error(t, bus.Subscribe(shared.EventRequestCreated, nil))
	assert.Error(t, bus.Publish(nil))
}

// ══════════════════════════════════════════════════════════════════════════════
// Redis bus over a fake broker
// ══════════════════════════════════════════════════════════════════════════════

type fakeBroker struct {
	mu   sync.Mutex
	subs []chan RedisMessage
}

type fakeClient struct {
	broker  *fakeBroker
	failPub bool
}

func (c *fakeClient) Publish(_ context.Context, channel string, payload []byte) error {
	if c.failPub {
		return errors.New("connection reset")
	}
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	for _, s := range c.broker.subs {
		s <- RedisMessage{Channel: channel, Payload: string(payload)}
	}
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, _ ...string) (<-chan RedisMessage, error) {
	ch := make(chan RedisMessage, 16)
	c.broker.mu.Lock()
	c.broker.subs = append(c.broker.subs, ch)
	c.broker.mu.Unlock()
	return ch, nil
}

func (c *fakeClient) Close() error { return nil }

func syncLocal() InMemoryEventBusConfig { return InMemoryEventBusConfig{AsyncMode: false} }

func TestRedisEventBus_FansOutAcrossInstances(t *testing.T) {
	broker := &fakeBroker{}

	a, err := NewRedisEventBus(RedisEventBusConfig{Client: &fakeClient{broker: broker}, InstanceID: "a", LocalBusConfig: syncLocal()})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisEventBus(RedisEventBusConfig{Client: &fakeClient{broker: broker}, InstanceID: "b", LocalBusConfig: syncLocal()})
	require.NoError(t, err)
	defer b.Close()

	var onA, onB int32
	received := make(chan shared.Event, 1)
	require.NoError(t, a.SubscribeAll(func(shared.Event) error { atomic.AddInt32(&onA, 1); return nil }))
	require.NoError(t, b.SubscribeAll(func(e shared.Event) error {
		atomic.AddInt32(&onB, 1)
		received <- e
		return nil
	}))

	require.NoError(t, a.Publish(createdEvent("r42")))

	select {
	case e := <-received:
		assert.Equal(t, shared.EventRequestCreated, e.EventType())
		assert.Equal(t, "r42", e.AggregateID())
		assert.True(t, testAt.Equal(e.OccurredAt()))
		assert.Equal(t, "don", e.Payload()["donor_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("remote instance did not receive the event")
	}

	// a's own echo is skipped
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&onA))
	assert.Equal(t, int32(1), atomic.LoadInt32(&onB))
}

func TestRedisEventBus_PublishFailureStillRunsLocalHandlers(t *testing.T) {
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         &fakeClient{broker: &fakeBroker{}, failPub: true},
		LocalBusConfig: syncLocal(),
	})
	require.NoError(t, err)
	defer bus.Close()

	var local int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { atomic.AddInt32(&local, 1); return nil }))

	err = bus.Publish(createdEvent("r1"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&local))
}

func TestEnvelope_RoundTripAndGarbage(t *testing.T) {
	data, err := encodeEnvelope("i1", createdEvent("r9"))
	require.NoError(t, err)

	env, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "i1", env.InstanceID)
	assert.Equal(t, shared.EventRequestCreated, env.EventType)

	_, err = decodeEnvelope([]byte(`{"instance_id":"x"}`))
	assert.Error(t, err)
	_, err = decodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
