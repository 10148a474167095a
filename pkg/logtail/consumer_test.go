package logtail

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerFillsBuffer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 150; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("line %d", i))); err != nil {
				return
			}
		}
		// keep the stream open until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	buf := NewBuffer(DefaultCapacity)
	seen := make(chan string, 200)
	c := &Consumer{
		URL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		Buffer:  buf,
		Backoff: 10 * time.Millisecond,
		OnLine:  func(l string) { seen <- l },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for n := 0; n < 150; n++ {
		select {
		case <-seen:
		case <-deadline:
			t.Fatalf("only %d lines arrived", n)
		}
	}
	cancel()
	require.NoError(t, <-done)

	lines := buf.Lines()
	require.Len(t, lines, 100)
	assert.Equal(t, "line 50", lines[0])
	assert.Equal(t, "line 149", lines[99])
}

func TestConsumerRequiresBuffer(t *testing.T) {
	assert.Error(t, (&Consumer{URL: "ws://127.0.0.1:1"}).Run(context.Background()))
}
