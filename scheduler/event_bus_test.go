package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_DeliversInRegistrationOrder(t *testing.T) {
	bus := NewEventBus(nil)
	var mu sync.Mutex
	var order []string

	bus.Subscribe(func(ev Event) {
		mu.Lock()
		order = append(order, "first:"+string(ev.Type))
		mu.Unlock()
	})
	bus.Subscribe(func(ev Event) {
		mu.Lock()
		order = append(order, "second:"+string(ev.Type))
		mu.Unlock()
	})

	bus.Publish(Event{Type: EventTaskStarted})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "first:task_started", order[0])
	assert.Equal(t, "second:task_started", order[1])
}

func TestEventBus_ObserverPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewEventBus(nil)
	var mu sync.Mutex
	var secondSaw bool

	bus.Subscribe(func(ev Event) {
		panic("boom")
	})
	bus.Subscribe(func(ev Event) {
		mu.Lock()
		secondSaw = true
		mu.Unlock()
	})

	bus.Publish(Event{Type: EventTaskCompleted})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondSaw
	}, time.Second, time.Millisecond)
}

func TestEventBus_OverflowDropsWithoutBlocking(t *testing.T) {
	bus := NewEventBus(nil)
	block := make(chan struct{})
	bus.Subscribe(func(ev Event) {
		<-block
	})

	for i := 0; i < observerQueueSize+10; i++ {
		bus.Publish(Event{Type: EventTaskStarted})
	}
	close(block)
}
