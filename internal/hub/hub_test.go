// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// linkBuffer stands in for the bridge host link.
type linkBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *linkBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *linkBuffer) Bytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.buf.Bytes()...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func statusMessage(volumes []int, inputs []int) *elan.HostMessage {
	var s elan.SystemStatus
	for i, v := range volumes {
		s[i].Volume = uint8(v)
	}
	for i, in := range inputs {
		s[i].Input = uint8(in)
	}
	return &elan.HostMessage{Kind: elan.KindStatus, Frame: elan.EncodeStatus(s), Timestamp: time.Now()}
}

func newTestHub(t *testing.T, mutate func(cfg *Config)) (*Hub, *linkBuffer) {
	t.Helper()
	cfg := Defaults()
	cfg.Slider.PowerDelayMs = 5
	if mutate != nil {
		mutate(cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("config: %v", err)
	}
	link := &linkBuffer{}
	return New(cfg, link, nil), link
}

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) Status {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("status json %q: %v", data, err)
	}
	return s
}

// ============================================================================
// Config
// ============================================================================

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	yaml := `listen: ":9000"
bridge:
  port: /dev/ttyACM0
slider:
  cap: 40
  power_on: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.Bridge.Port != "/dev/ttyACM0" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Bridge.Baud != elan.HostBaudRate {
		t.Errorf("baud default lost: %d", cfg.Bridge.Baud)
	}
	if cfg.Slider.Cap != 40 || cfg.Slider.PowerOn {
		t.Errorf("slider = %+v", cfg.Slider)
	}
	if cfg.Status.OffTimeout() != 2*time.Second {
		t.Errorf("off timeout = %v", cfg.Status.OffTimeout())
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"no listen", func(c *Config) { c.Listen = "" }},
		{"zero baud", func(c *Config) { c.Bridge.Baud = 0 }},
		{"user without password", func(c *Config) { c.Auth.Username = "admin" }},
		{"cap above baseline", func(c *Config) { c.Slider.Cap = 49 }},
		{"zero update", func(c *Config) { c.Status.UpdateIntervalMs = 0 }},
		{"bad power input", func(c *Config) { c.Slider.PowerInput = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ============================================================================
// Client commands
// ============================================================================

func TestParseClientCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    ClientCommand
		wantErr bool
	}{
		{in: "4:1", want: ClientCommand{Zone: 1, Code: 4}},
		{in: "0:6", want: ClientCommand{Zone: 6, Code: 0}},
		{in: "x:2:30", want: ClientCommand{Slider: true, Zone: 2, Volume: 30}},
		{in: "64:1", wantErr: true},
		{in: "4:7", wantErr: true},
		{in: "x:1:49", wantErr: true},
		{in: "x:0:10", wantErr: true},
		{in: "a:b", wantErr: true},
		{in: "4", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClientCommand(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q = %+v, %v; want %+v", tt.in, got, err, tt.want)
		}
	}
}

func TestHub_DirectCommand(t *testing.T) {
	h, link := newTestHub(t, nil)
	if err := h.Command(ClientCommand{Zone: 2, Code: 4}); err != nil {
		t.Fatal(err)
	}
	want := []byte{elan.SelectDirect, 18, 4}
	if got := link.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("link = % X, want % X", got, want)
	}
}

func TestHub_SliderCapAndReachable(t *testing.T) {
	h, link := newTestHub(t, func(c *Config) { c.Slider.PowerOn = false })

	if err := h.Command(ClientCommand{Slider: true, Zone: 1, Volume: 45}); err != nil {
		t.Fatal(err)
	}
	if err := h.Command(ClientCommand{Slider: true, Zone: 1, Volume: 22}); err != nil {
		t.Fatal(err)
	}
	want := []byte{elan.SelectSlider, 1, 33, elan.SelectSlider, 1, 21}
	if got := link.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("link = % X, want % X", got, want)
	}
}

func TestHub_SliderPowersOnFirst(t *testing.T) {
	h, link := newTestHub(t, nil)

	if err := h.Command(ClientCommand{Slider: true, Zone: 3, Volume: 20}); err != nil {
		t.Fatal(err)
	}
	if got := link.Bytes(); !bytes.Equal(got, []byte{elan.SelectDirect, 19, 0}) {
		t.Fatalf("before delay link = % X", got)
	}
	waitFor(t, "delayed slider", func() bool { return len(link.Bytes()) == 6 })
	if got := link.Bytes()[3:]; !bytes.Equal(got, []byte{elan.SelectSlider, 3, 20}) {
		t.Errorf("slider = % X", got)
	}

	// A zone already on the power input slides immediately.
	h.HandleMessage(statusMessage(nil, []int{0, 0, 1}))
	if err := h.Command(ClientCommand{Slider: true, Zone: 3, Volume: 12}); err != nil {
		t.Fatal(err)
	}
	if got := link.Bytes()[6:]; !bytes.Equal(got, []byte{elan.SelectSlider, 3, 12}) {
		t.Errorf("second slider = % X", got)
	}
}

func TestHub_DirectCommandCancelsPendingSlide(t *testing.T) {
	h, link := newTestHub(t, func(c *Config) { c.Slider.PowerDelayMs = 50 })

	if err := h.Command(ClientCommand{Slider: true, Zone: 1, Volume: 20}); err != nil {
		t.Fatal(err)
	}
	if err := h.Command(ClientCommand{Zone: 1, Code: 0}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	want := []byte{elan.SelectDirect, 17, 0, elan.SelectDirect, 17, 0}
	if got := link.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("link = % X, want % X", got, want)
	}
}

// ============================================================================
// Status tracking
// ============================================================================

func TestHub_StatusOnOff(t *testing.T) {
	h, _ := newTestHub(t, nil)

	h.HandleMessage(statusMessage([]int{20, 30}, []int{1}))
	s := h.Status()
	if !s.On || s.Volume[0] != 20 || s.Volume[1] != 30 || s.Input[0] != 1 {
		t.Fatalf("status = %+v", s)
	}

	if h.CheckOff(time.Now()) {
		t.Error("turned off with a fresh status")
	}
	if !h.CheckOff(time.Now().Add(3 * time.Second)) {
		t.Fatal("did not turn off after timeout")
	}
	if s := h.Status(); s != (Status{}) {
		t.Errorf("off status = %+v", s)
	}
	if h.CheckOff(time.Now().Add(10 * time.Second)) {
		t.Error("turned off twice")
	}
}

func TestHub_ErrorMessageLeavesStatus(t *testing.T) {
	h, _ := newTestHub(t, nil)
	h.HandleMessage(statusMessage([]int{5}, nil))
	h.HandleMessage(&elan.HostMessage{Kind: elan.KindError, Text: "host timeout"})
	if s := h.Status(); s.Volume[0] != 5 || !s.On {
		t.Errorf("status = %+v", s)
	}
}

func TestHub_RunLinkDecodes(t *testing.T) {
	h, _ := newTestHub(t, nil)

	var s elan.SystemStatus
	s[4] = elan.ChannelStatus{Volume: 17, Muted: true, Input: 2}
	f := elan.EncodeStatus(s)
	stream := append([]byte{0x00, 0x12}, elan.EncodeStatusFrame(&f)...)
	stream = append(stream, elan.EncodeErrorFrame("slider zone=1 channel=17 target=30")...)

	if err := h.RunLink(context.Background(), bytes.NewReader(stream)); err != nil {
		t.Fatalf("RunLink: %v", err)
	}
	got := h.Status()
	if got.Volume[4] != 17 || got.Mute[4] != 1 || got.Input[4] != 2 || !got.On {
		t.Errorf("status = %+v", got)
	}
}

// ============================================================================
// HTTP / websocket
// ============================================================================

func TestHub_WebsocketStatusAndCommands(t *testing.T) {
	h, link := newTestHub(t, nil)
	h.HandleMessage(statusMessage([]int{11}, []int{1}))

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/ws", nil)
	if s := readStatus(t, conn); s.Volume[0] != 11 || !s.On {
		t.Fatalf("initial status = %+v", s)
	}

	h.HandleMessage(statusMessage([]int{12}, []int{1}))
	if s := readStatus(t, conn); s.Volume[0] != 12 {
		t.Errorf("broadcast status = %+v", s)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("36:1")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "command on link", func() bool { return len(link.Bytes()) == 3 })
	if got := link.Bytes(); !bytes.Equal(got, []byte{elan.SelectDirect, 17, 36}) {
		t.Errorf("link = % X", got)
	}
}

func TestHub_WebsocketCBOR(t *testing.T) {
	h, _ := newTestHub(t, nil)
	h.HandleMessage(statusMessage([]int{0, 0, 9}, nil))

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/ws?format=cbor", nil)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if messageType != websocket.BinaryMessage {
		t.Errorf("message type = %d", messageType)
	}
	var s Status
	if err := cbor.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	if s.Volume[2] != 9 {
		t.Errorf("status = %+v", s)
	}
}

func TestHub_RawPassthrough(t *testing.T) {
	h, link := newTestHub(t, nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/raw", nil)
	waitFor(t, "raw client", func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.raw) == 1
	})

	frame := elan.EncodeErrorFrame("host timeout")
	if err := h.RunLink(context.Background(), bytes.NewReader(frame)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, frame) {
		t.Errorf("raw = % X", data)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{elan.SelectDirect, 22, 0}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "raw write", func() bool { return len(link.Bytes()) == 3 })
}

func TestHub_BasicAuth(t *testing.T) {
	h, _ := newTestHub(t, func(c *Config) {
		c.Auth = AuthConfig{Username: "admin", Password: "secret"}
	})
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected auth failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %+v", resp)
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	conn := dial(t, srv, "/ws", header)
	readStatus(t, conn)
}
