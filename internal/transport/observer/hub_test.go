package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishFansOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelA()
	defer cancelB()

	require.NoError(t, h.Publish(map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, string(<-a))
	assert.JSONEq(t, `{"n":1}`, string(<-b))
	assert.Equal(t, 2, h.Len())
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := NewHub()
	slow, cancelSlow := h.Subscribe(1)
	fast, cancelFast := h.Subscribe(8)
	defer cancelSlow()
	defer cancelFast()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Publish(i))
	}
	assert.Equal(t, uint64(2), h.Dropped())
	assert.Equal(t, "0", string(<-slow))
	assert.Len(t, fast, 3)
}

func TestHub_CancelClosesAndUnregisters(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Len())
	require.NoError(t, h.Publish("after"))
}

func TestHub_PublishRejectsUnencodable(t *testing.T) {
	h := NewHub()
	assert.Error(t, h.Publish(func() {}))
}
