// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	clientQueue = 32
)

// client is one websocket connection. A write goroutine owns the socket's
// write side; everything else queues on send.
type client struct {
	conn        *websocket.Conn
	send        chan []byte
	messageType int
	encoding    Encoding

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, messageType int, enc Encoding) *client {
	return &client{
		conn:        conn,
		send:        make(chan []byte, clientQueue),
		messageType: messageType,
		encoding:    enc,
		done:        make(chan struct{}),
	}
}

// queue hands a message to the writer. It returns false when the client is
// too slow or already gone.
func (c *client) queue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.messageType, msg); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
