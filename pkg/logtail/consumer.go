package logtail

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Consumer reads the log stream endpoint, one text message per line, into a
// Buffer. It reconnects until its context ends.
type Consumer struct {
	URL     string
	Buffer  *Buffer
	Dialer  *websocket.Dialer
	Backoff time.Duration
	// OnLine, when set, sees every line after it was buffered.
	OnLine func(string)
}

func (c *Consumer) Run(ctx context.Context) error {
	if c.Buffer == nil {
		return errors.New("logtail: consumer has no buffer")
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Debugf("log stream %s: %v, reconnecting in %s", c.URL, err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		line := string(msg)
		c.Buffer.Push(line)
		if c.OnLine != nil {
			c.OnLine(line)
		}
	}
}
