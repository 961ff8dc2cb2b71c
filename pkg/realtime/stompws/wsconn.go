package stompws

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn presents a WebSocket as the byte stream go-stomp expects. Every Write becomes one
// text message; Read concatenates incoming message payloads.
type wsConn struct {
	conn *websocket.Conn

	reader io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, done: make(chan struct{})}
}

// Read is only called from the STOMP reader goroutine.
func (w *wsConn) Read(p []byte) (int, error) {
	for {
		if w.reader == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				_ = w.Close()
				return 0, err
			}
			w.reader = r
		}
		n, err := w.reader.Read(p)
		if err == io.EOF {
			w.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		_ = w.Close()
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

// Done is closed once the socket is gone.
func (w *wsConn) Done() <-chan struct{} { return w.done }
