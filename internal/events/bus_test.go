package events_test

import (
	"testing"

	"github.com/quantedge/options-engine/internal/events"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBusFiltersByType(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	var trades, all int
	bus.Subscribe(func(events.Event) { trades++ }, events.TypeTrade)
	bus.Subscribe(func(events.Event) { all++ })

	bus.Publish(events.New(events.TypeTrade, "t1"))
	bus.Publish(events.New(events.TypeRisk, "r1"))

	assert.Equal(t, 1, trades)
	assert.Equal(t, 2, all)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	var n int
	off := bus.Subscribe(func(events.Event) { n++ }, events.TypeSignal)
	bus.Publish(events.New(events.TypeSignal, nil))
	off()
	bus.Publish(events.New(events.TypeSignal, nil))

	assert.Equal(t, 1, n)
}

func TestBusContainsHandlerPanic(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	var after int
	bus.Subscribe(func(events.Event) { panic("boom") }, events.TypeOrder)
	bus.Subscribe(func(events.Event) { after++ }, events.TypeOrder)

	assert.NotPanics(t, func() {
		bus.Publish(events.New(events.TypeOrder, nil))
	})
	assert.Equal(t, 1, after)

	stats := bus.GetStats()
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, 2, stats.Subscribers)
}
