package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressHubFanout(t *testing.T) {
	hub := NewProgressHub(zerolog.Nop())

	first := hub.Subscribe()
	second := hub.Subscribe()
	assert.Equal(t, 2, hub.Subscribers())

	hub.Publish(ProgressEvent{Stage: "analysis", Current: 1, Total: 4})

	for _, ch := range []chan ProgressEvent{first, second} {
		select {
		case ev := <-ch:
			assert.Equal(t, "analysis", ev.Stage)
		default:
			t.Fatal("expected a buffered event on every subscriber")
		}
	}

	hub.Unsubscribe(first)
	assert.Equal(t, 1, hub.Subscribers())

	_, open := <-first
	assert.False(t, open, "unsubscribed channels are closed")

	hub.Unsubscribe(second)
}

func TestProgressHubDropsSlowSubscribers(t *testing.T) {
	hub := NewProgressHub(zerolog.Nop())
	ch := hub.Subscribe()

	for i := 0; i < wsSubBuffer+8; i++ {
		hub.Publish(ProgressEvent{Stage: "scoring", Current: i})
	}

	assert.Len(t, ch, wsSubBuffer, "overflow events are dropped, not queued")
	hub.Unsubscribe(ch)
}

func TestProgressFuncAdapter(t *testing.T) {
	hub := NewProgressHub(zerolog.Nop())
	ch := hub.Subscribe()

	report := hub.ProgressFunc("technology")
	report("semantic", 3, 10)

	select {
	case ev := <-ch:
		assert.Equal(t, "technology", ev.Batch)
		assert.Equal(t, "semantic", ev.Stage)
		assert.Equal(t, 3, ev.Current)
		assert.Equal(t, 10, ev.Total)
		assert.False(t, ev.At.IsZero())
	default:
		t.Fatal("expected the adapter to publish an event")
	}

	hub.Unsubscribe(ch)
}

func TestProgressEndpointStreams(t *testing.T) {
	srv := newTestServer(t, nil)
	hub := srv.Handlers().Hub()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "upgrade must pass through the middleware chain")
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond, "the handler subscribes after the upgrade")

	hub.Publish(ProgressEvent{
		Batch:   "kw_ws01",
		Stage:   "validation",
		Current: 7,
		Total:   9,
		At:      time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got ProgressEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "kw_ws01", got.Batch)
	assert.Equal(t, "validation", got.Stage)
	assert.Equal(t, 7, got.Current)
	assert.Equal(t, 9, got.Total)
}

func TestProgressEndpointCleansUpOnDisconnect(t *testing.T) {
	srv := newTestServer(t, nil)
	hub := srv.Handlers().Hub()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond, "a dropped client releases its subscription")
}
