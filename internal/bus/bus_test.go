package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInprocDeliversToAllSubscribers(t *testing.T) {
	b := NewInproc(4)
	defer b.Close()

	first := b.Subscribe("presentations.ready")
	second := b.Subscribe("presentations.ready")
	other := b.Subscribe("presentations.failed")

	require.NoError(t, b.Publish("presentations.ready", []byte(`{"id":"p-1"}`)))

	msg := <-first
	assert.Equal(t, "presentations.ready", msg.Subject)
	assert.JSONEq(t, `{"id":"p-1"}`, string(msg.Data))
	assert.Equal(t, msg, <-second)

	select {
	case stray := <-other:
		t.Fatalf("failed-subject subscriber got %q", stray.Subject)
	default:
	}
}

func TestInprocNoSubscribersIsFine(t *testing.T) {
	b := NewInproc(4)
	defer b.Close()
	assert.NoError(t, b.Publish("presentations.ready", []byte("{}")))
}

func TestInprocSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewInproc(1)
	defer b.Close()
	b.Subscribe("s")

	require.NoError(t, b.Publish("s", []byte("1")))
	err := b.Publish("s", []byte("2"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestInprocCloseClosesChannels(t *testing.T) {
	b := NewInproc(4)
	ch := b.Subscribe("s")
	require.NoError(t, b.Close())

	_, open := <-ch
	assert.False(t, open)

	assert.Error(t, b.Publish("s", []byte("x")))
	assert.NoError(t, b.Close(), "double close is a no-op")
}
