package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishLatestWins(t *testing.T) {
	var b Broadcaster[int]
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3)

	assert.Equal(t, 3, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestPublishFanOut(t *testing.T) {
	var b Broadcaster[string]
	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelA()
	defer cancelC()

	b.Publish("x")
	assert.Equal(t, "x", <-a)
	assert.Equal(t, "x", <-c)
}

func TestCancelClosesChannel(t *testing.T) {
	var b Broadcaster[int]
	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	b.Publish(1)
}

func TestClose(t *testing.T) {
	var b Broadcaster[int]
	ch, _ := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
