package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quizarena/internal/protocol"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func decodeFrame(t *testing.T, data []byte) protocol.Envelope {
	t.Helper()
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_Deliver(t *testing.T) {
	h := NewHub()
	c := newClient("c1", nil)
	h.register(c)

	h.Deliver("c1", protocol.Waiting{Message: "Waiting for other players...", QueueLength: 1})

	require.Len(t, c.send, 1)
	env := decodeFrame(t, <-c.send)
	assert.Equal(t, protocol.TypeWaiting, env.Type)
	assert.JSONEq(t, `{"message":"Waiting for other players...","queueLength":1}`, string(env.Payload))
}

func TestHub_DeliverAll(t *testing.T) {
	h := NewHub()
	c1, c2 := newClient("c1", nil), newClient("c2", nil)
	h.register(c1)
	h.register(c2)

	h.DeliverAll([]string{"c1", "c2", "gone"}, protocol.PlayerLeft{PlayerName: "carol"})

	require.Len(t, c1.send, 1)
	require.Len(t, c2.send, 1)
	assert.Equal(t, <-c1.send, <-c2.send, "one encoding shared by all recipients")
}

func TestHub_UnknownConnectionDropped(t *testing.T) {
	h := NewHub()
	assert.NotPanics(t, func() {
		h.Deliver("nobody", protocol.TimeUp{CorrectAnswer: 4})
	})
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := NewHub()
	c := newClient("c1", nil)
	h.register(c)

	for i := 0; i < SendBuffer+5; i++ {
		h.Deliver("c1", protocol.TimeUp{CorrectAnswer: float64(i)})
	}

	assert.Len(t, c.send, SendBuffer, "frames beyond the buffer are dropped")
	env := decodeFrame(t, <-c.send)
	assert.JSONEq(t, `{"correctAnswer":0}`, string(env.Payload), "oldest frames are kept")
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub()
	c := newClient("c1", nil)
	h.register(c)
	assert.Equal(t, 1, h.Len())

	h.unregister("c1")
	assert.Equal(t, 0, h.Len())

	select {
	case <-c.done:
	default:
		t.Fatal("unregister must stop the client")
	}

	// Second unregister and late deliveries are harmless.
	h.unregister("c1")
	h.Deliver("c1", protocol.TimeUp{CorrectAnswer: 1})
	assert.Empty(t, c.send)
}

func TestClient_EnqueueAfterStop(t *testing.T) {
	c := newClient("c1", nil)
	c.stop()
	c.stop()

	assert.True(t, c.enqueue([]byte("x")), "stopped clients swallow frames")
	assert.Empty(t, c.send)
}
