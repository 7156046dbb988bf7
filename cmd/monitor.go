// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for watching and driving amplifier zones",
	Long: `Watch and drive an Elan amplifier through a bridge.

The bridge's host link is reached directly on its UART (--port) or through a
hub's /raw websocket (--url). Status frames fill the zone list; bridge
errors and messages go to the event log.

From the control panel a zone can be powered, stepped up or down, or sent a
slider target that the bridge walks to on its own. A lost link is redialled
with backoff and the panel resumes when it returns.

Keys:
  Tab         cycle zone list, volume input and buttons
  Up/Down     select a zone
  p, +, -     power, volume up, volume down (zone list)
  Left/Right  select a button
  Enter       press the selected button
  q, Ctrl+C   quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

const (
	// monitorFlushInterval paces updates to the TUI
	monitorFlushInterval = 50 * time.Millisecond
	// monitorBatchLimit caps decoded items held between flushes
	monitorBatchLimit = 100
	// monitorReadFailures is how many consecutive read errors end a session
	monitorReadFailures = 50

	redialInitial = time.Second
	redialMax     = 30 * time.Second
)

// monitorLink owns the host connection behind the monitor TUI. One goroutine
// runs a linkSession per connection and redials when a session ends.
type monitorLink struct {
	mu     sync.Mutex
	conn   Connection
	closed bool
	p      *tea.Program
}

func (l *monitorLink) current() Connection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// replace installs conn as the live connection. It reports false, and closes
// conn, once the link has been shut down.
func (l *monitorLink) replace(conn Connection) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		if conn != nil {
			conn.Close()
		}
		return false
	}
	l.conn = conn
	return true
}

func (l *monitorLink) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}

// send writes one host command on the live connection.
func (l *monitorLink) send(frame []byte) error {
	conn := l.current()
	if conn == nil {
		return errors.New("not connected")
	}
	_, err := conn.Write(frame)
	return err
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	link := &monitorLink{conn: conn}
	p := tea.NewProgram(initialMonitorModel(link, connInfo), tea.WithAltScreen(), tea.WithMouseCellMotion())
	link.p = p

	ctx, cancel := context.WithCancel(context.Background())
	go link.run(ctx)

	_, err = p.Run()
	cancel()
	link.close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// run alternates between a session on the live connection and redialling
// until ctx is cancelled.
func (l *monitorLink) run(ctx context.Context) {
	for {
		conn := l.current()
		if conn != nil {
			s := &linkSession{conn: conn, decoder: elan.NewHostDecoder()}
			s.run(ctx, l.p.Send)
		}
		if ctx.Err() != nil {
			return
		}
		l.p.Send(connectionLostMsg{})
		if !l.redial(ctx) {
			return
		}
	}
}

// redial drops the dead connection and retries OpenConnection with doubling
// delays. It reports false when ctx ends first.
func (l *monitorLink) redial(ctx context.Context) bool {
	if conn := l.current(); conn != nil {
		conn.Close()
	}
	if !l.replace(nil) {
		return false
	}

	delay := redialInitial
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			if !l.replace(conn) {
				return false
			}
			l.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		delay = min(delay*2, redialMax)
		timer.Reset(delay)
	}
}

// linkSession decodes one connection's byte stream and hands the TUI a batch
// of messages every flush interval. Decoding happens on the session
// goroutine only; a helper goroutine does the blocking reads.
type linkSession struct {
	conn    Connection
	decoder *elan.HostDecoder

	synchronized bool
	skipped      int
	pending      monitorBatchMsg
}

// run returns when the connection fails or ctx is cancelled.
func (s *linkSession) run(ctx context.Context, deliver func(tea.Msg)) {
	chunks := make(chan []byte, 16)
	go s.read(ctx, chunks)

	flush := time.NewTicker(monitorFlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				s.flush(deliver)
				return
			}
			s.decode(chunk)
		case <-flush.C:
			s.flush(deliver)
		}
	}
}

// read feeds chunks from the connection until it closes for good. Serial
// ports report transient errors, so only a run of them ends the session.
func (s *linkSession) read(ctx context.Context, chunks chan<- []byte) {
	defer close(chunks)

	failures := 0
	for {
		buf := make([]byte, 128)
		n, err := s.conn.Read(buf)
		if n > 0 {
			failures = 0
			select {
			case chunks <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
			return
		}
		if failures++; failures >= monitorReadFailures {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// decode runs chunk through the host decoder. Errors before the first good
// frame are only counted; once synchronized they go to the event log.
func (s *linkSession) decode(chunk []byte) {
	for _, b := range chunk {
		msg, err := s.decoder.DecodeByte(b)
		switch {
		case err != nil:
			if !s.synchronized {
				s.skipped++
				continue
			}
			s.queue(monitorDataMsg{decodeErr: err})
		case msg != nil:
			if !s.synchronized {
				s.synchronized = true
				s.pending.syncMsg = &monitorSyncMsg{invalidBytes: s.skipped}
			}
			s.queue(monitorDataMsg{msg: msg})
		}
	}
}

// queue holds item for the next flush, dropping it when the TUI is behind.
func (s *linkSession) queue(item monitorDataMsg) {
	if len(s.pending.messages) < monitorBatchLimit {
		s.pending.messages = append(s.pending.messages, item)
	}
}

func (s *linkSession) flush(deliver func(tea.Msg)) {
	if s.pending.syncMsg == nil && len(s.pending.messages) == 0 {
		return
	}
	deliver(s.pending)
	s.pending = monitorBatchMsg{}
}
