package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Connection deadlines. A client that cannot drain an event within
// WriteWait is treated as gone; ReadWait bounds how long a silent
// connection stays open before the read loop gives up on it.
const (
	WriteWait = 10 * time.Second
	ReadWait  = 5 * time.Minute
)

// WriteTyped pushes one event struct to the client under WriteWait.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteJSON(v)
}

// WriteError wraps a message in the error event envelope.
func WriteError(conn *websocket.Conn, msg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: msg,
	})
}
