package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PublishToSubscribers(t *testing.T) {
	n := NewNotifier()

	ch1, cancel1 := n.Subscribe()
	defer cancel1()
	ch2, cancel2 := n.Subscribe()
	defer cancel2()

	n.publish(StateChange{From: StateIdle, To: StateSelectingPoints, Seq: 1})

	got1 := <-ch1
	got2 := <-ch2
	assert.Equal(t, StateSelectingPoints, got1.To)
	assert.Equal(t, got1, got2)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier()

	ch, cancel := n.Subscribe()
	require.Equal(t, 1, n.SubscriberCount())

	cancel()
	assert.Equal(t, 0, n.SubscriberCount())

	// Channel is closed after unsubscribe.
	_, open := <-ch
	assert.False(t, open)

	// Second cancel is a no-op.
	cancel()
}

func TestNotifier_SlowSubscriberDoesNotBlock(t *testing.T) {
	n := NewNotifier()

	ch, cancel := n.Subscribe()
	defer cancel()

	// Overflow the buffer; publish must never block.
	for i := 0; i < 100; i++ {
		n.publish(StateChange{From: StateIdle, To: StateSelectingPoints, Seq: int64(i)})
	}

	// The subscriber still receives the buffered prefix.
	first := <-ch
	assert.Equal(t, int64(0), first.Seq)
}

func TestFixedGenerator_ReturnsTokensInOrder(t *testing.T) {
	g := NewFixedGenerator("a", "b")

	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_UniqueTokens(t *testing.T) {
	g := UUIDv7Generator{}

	a := g.Generate()
	b := g.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
