// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/elanbridge/pkg/elan"
	tea "github.com/charmbracelet/bubbletea"
)

func newTestSession() (*linkSession, *[]monitorBatchMsg, func(tea.Msg)) {
	var batches []monitorBatchMsg
	deliver := func(msg tea.Msg) {
		batches = append(batches, msg.(monitorBatchMsg))
	}
	return &linkSession{decoder: elan.NewHostDecoder()}, &batches, deliver
}

func statusBytes(volume byte) []byte {
	var f elan.Frame
	f[0] = volume
	return elan.EncodeStatusFrame(&f)
}

// ============================================================================
// Link Session Tests
// ============================================================================

func TestLinkSession_SyncCountsSkippedBytes(t *testing.T) {
	s, batches, deliver := newTestSession()

	var data []byte
	data = append(data, 0x01, 0x02)
	data = append(data, statusBytes(20)...)
	data = append(data, elan.EncodeErrorFrame("boot")...)
	s.decode(data)
	s.flush(deliver)

	if len(*batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(*batches))
	}
	b := (*batches)[0]
	if b.syncMsg == nil || b.syncMsg.invalidBytes != 2 {
		t.Fatalf("syncMsg = %+v, want 2 invalid bytes", b.syncMsg)
	}
	if len(b.messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(b.messages))
	}
	if m := b.messages[0].msg; m == nil || m.Kind != elan.KindStatus || m.Frame[0] != 20 {
		t.Errorf("first message = %+v, want status with volume 20", m)
	}
	if m := b.messages[1].msg; m == nil || m.Kind != elan.KindError || m.Text != "boot" {
		t.Errorf("second message = %+v, want error \"boot\"", m)
	}
}

func TestLinkSession_ErrorsAfterSync(t *testing.T) {
	s, batches, deliver := newTestSession()

	s.decode(statusBytes(20))
	s.flush(deliver)
	s.decode([]byte{0x01})
	s.flush(deliver)

	if len(*batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(*batches))
	}
	second := (*batches)[1]
	if second.syncMsg != nil {
		t.Error("sync reported twice")
	}
	if len(second.messages) != 1 || second.messages[0].decodeErr == nil {
		t.Errorf("messages = %+v, want one decode error", second.messages)
	}
}

func TestLinkSession_FlushIdle(t *testing.T) {
	s, batches, deliver := newTestSession()
	s.decode([]byte{0x01, 0x02, 0x03})
	s.flush(deliver)

	if len(*batches) != 0 {
		t.Errorf("got %d batches before sync, want 0", len(*batches))
	}
	if s.skipped != 3 {
		t.Errorf("skipped = %d, want 3", s.skipped)
	}
}

func TestLinkSession_BatchLimit(t *testing.T) {
	s, batches, deliver := newTestSession()
	for i := 0; i < monitorBatchLimit+50; i++ {
		s.decode(statusBytes(20))
	}
	s.flush(deliver)

	if got := len((*batches)[0].messages); got != monitorBatchLimit {
		t.Errorf("batch holds %d messages, want %d", got, monitorBatchLimit)
	}
}

func TestLinkSession_RunEndsWhenConnectionCloses(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()

	got := make(chan monitorBatchMsg, 8)
	s := &linkSession{conn: local, decoder: elan.NewHostDecoder()}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(context.Background(), func(msg tea.Msg) { got <- msg.(monitorBatchMsg) })
	}()

	if _, err := remote.Write(statusBytes(30)); err != nil {
		t.Fatalf("write: %v", err)
	}
	remote.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after the connection closed")
	}

	total := 0
	for len(got) > 0 {
		total += len((<-got).messages)
	}
	if total != 1 {
		t.Errorf("delivered %d messages, want 1", total)
	}
}

func TestLinkSession_RunStopsOnCancel(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	defer local.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := &linkSession{conn: local, decoder: elan.NewHostDecoder()}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx, func(tea.Msg) {})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on cancel")
	}
}

// ============================================================================
// Monitor Link Tests
// ============================================================================

func TestMonitorLink_ReplaceAfterClose(t *testing.T) {
	first, peer := net.Pipe()
	defer peer.Close()
	link := &monitorLink{conn: first}
	link.close()

	if err := link.send([]byte{'C', 17, 0}); err == nil {
		t.Error("send succeeded on a closed link")
	}

	late, latePeer := net.Pipe()
	defer latePeer.Close()
	if link.replace(late) {
		t.Fatal("replace accepted a connection after close")
	}
	if _, err := late.Write([]byte{0}); err == nil {
		t.Error("late connection was left open")
	}
}
