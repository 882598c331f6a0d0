package stream

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the read side of one open stream connection. A
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens stream connections. Injected so tests can drive the
// state machine without sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type defaultDialer struct{}

func (defaultDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}
