// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// passwordEnv holds the hub password for non-interactive use.
const passwordEnv = "ELANBRIDGE_PASSWORD"

// Connection is a host link: a bridge's UART, or a hub's /raw websocket.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection is a host link on a local UART. Read, Write and Close
// come from the port.
type SerialConnection struct {
	serial.Port
	name string
}

func (s *SerialConnection) String() string {
	return s.name
}

// ErrConnectionClosed is returned once a WebSocket read has failed. Every
// later read returns it too.
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection turns the binary messages of a hub /raw socket back
// into a byte stream.
type WebSocketConnection struct {
	conn    *websocket.Conn
	pending bytes.Reader
	err     error
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.pending.Len() > 0 {
		return w.pending.Read(p)
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			return 0, w.err
		}
		// Status JSON for browsers travels in text messages
		if messageType == websocket.BinaryMessage && len(data) > 0 {
			w.pending.Reset(data)
			return w.pending.Read(p)
		}
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// openSerialPort opens a port with the 8N1 framing both bridge links use.
// A non-zero readTimeout makes Read return (0, nil) when the line is quiet.
func openSerialPort(portName string, baudRate int, readTimeout time.Duration) (serial.Port, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
		}
	}
	return port, nil
}

// OpenSerialConnection opens a host link on a serial port
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := openSerialPort(portName, baudRate, 0)
	if err != nil {
		return nil, err
	}
	return &SerialConnection{Port: port, name: portName}, nil
}

// OpenWebSocketConnection dials a hub's raw socket, with HTTP Basic auth
// when a username is given.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword reads the hub password from ELANBRIDGE_PASSWORD, or prompts
// for it on the terminal without echo.
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	// Piped input
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the host link named by the root flags and returns a
// description of it for display.
func OpenConnection() (Connection, string, error) {
	switch {
	case wsURL != "":
		var password string
		if wsUsername != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}
		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil

	case portName != "":
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil

	default:
		return nil, "", errors.New("either --port or --url must be specified")
	}
}
