package ingest

import (
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer opens real websocket connections to the backend.
type WebsocketDialer struct{}

func (WebsocketDialer) Dial(url string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	c, _, err := d.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return wsConn{c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w wsConn) Close() error {
	return w.c.Close()
}
