// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

var errNoLink = errors.New("bridge link not connected")

// Hub fans bridge status out to websocket clients and turns client
// messages into host commands on the bridge link.
type Hub struct {
	cfg    *Config
	logger *slog.Logger

	linkMu sync.Mutex
	link   io.Writer

	mu         sync.Mutex
	status     Status
	lastUpdate time.Time
	clients    map[*client]struct{}
	raw        map[*client]struct{}
	pending    [elan.NumZones]*time.Timer

	upgrader websocket.Upgrader
}

// New creates a hub writing host commands to link.
func New(cfg *Config, link io.Writer, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		link:    link,
		clients: make(map[*client]struct{}),
		raw:     make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Status returns the current client-facing status.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// RunLink reads the bridge host link until it fails or ctx is done. Every
// chunk is copied to raw clients before it is decoded.
func (h *Hub) RunLink(ctx context.Context, r io.Reader) error {
	decoder := elan.NewHostDecoder()
	buf := make([]byte, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.broadcastRaw(append([]byte(nil), buf[:n]...))
			for _, b := range buf[:n] {
				msg, derr := decoder.DecodeByte(b)
				if derr != nil {
					h.logger.Debug("host link decode", "error", derr)
					continue
				}
				if msg != nil {
					h.HandleMessage(msg)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("bridge link: %w", err)
		}
	}
}

// HandleMessage applies one decoded host-link message.
func (h *Hub) HandleMessage(m *elan.HostMessage) {
	if m.Kind == elan.KindError {
		h.logger.Info("bridge", "message", m.Text)
		return
	}

	next := StatusFrom(m.Status())
	h.mu.Lock()
	h.lastUpdate = m.Timestamp
	changed := next != h.status
	if changed && !h.status.On {
		h.logger.Info("system on")
	}
	h.status = next
	h.mu.Unlock()

	if changed {
		h.broadcastStatus()
	}
}

// CheckOff marks the system off when no status has arrived within the off
// timeout. It reports whether the system turned off.
func (h *Hub) CheckOff(now time.Time) bool {
	h.mu.Lock()
	if !h.status.On || now.Sub(h.lastUpdate) <= h.cfg.Status.OffTimeout() {
		h.mu.Unlock()
		return false
	}
	h.status = Status{}
	h.mu.Unlock()

	h.logger.Info("system off")
	h.broadcastStatus()
	return true
}

// Run drives the periodic client update and the off check until ctx is
// done.
func (h *Hub) Run(ctx context.Context) {
	update := time.NewTicker(h.cfg.Status.UpdateInterval())
	defer update.Stop()
	off := time.NewTicker(h.cfg.Status.OffTimeout())
	defer off.Stop()

	for {
		select {
		case <-ctx.Done():
			h.cancelAll()
			h.closeClients()
			return
		case <-update.C:
			h.broadcastStatus()
		case now := <-off.C:
			h.CheckOff(now)
		}
	}
}

// Command sends a client command to the bridge.
func (h *Hub) Command(cmd ClientCommand) error {
	h.cancelPending(cmd.Zone)

	if !cmd.Slider {
		frame, err := elan.NewZoneCommand(cmd.Zone, cmd.Code)
		if err != nil {
			return err
		}
		return h.writeLink(frame)
	}

	volume := cmd.Volume
	if volume > h.cfg.Slider.Cap {
		volume = h.cfg.Slider.Cap
	}
	volume = elan.ReachableVolume(volume)
	slide, err := elan.NewSliderCommand(cmd.Zone, volume)
	if err != nil {
		return err
	}

	status := h.Status()
	if !h.cfg.Slider.PowerOn || status.Input[cmd.Zone.Index()] == h.cfg.Slider.PowerInput {
		return h.writeLink(slide)
	}

	power, err := elan.NewZoneCommand(cmd.Zone, int(elan.CodePower))
	if err != nil {
		return err
	}
	if err := h.writeLink(power); err != nil {
		return err
	}

	h.mu.Lock()
	h.pending[cmd.Zone.Index()] = time.AfterFunc(h.cfg.Slider.PowerDelay(), func() {
		if err := h.writeLink(slide); err != nil {
			h.logger.Warn("delayed slider command", "zone", cmd.Zone, "error", err)
		}
	})
	h.mu.Unlock()
	return nil
}

func (h *Hub) cancelPending(z elan.Zone) {
	if !z.Valid() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t := h.pending[z.Index()]; t != nil {
		t.Stop()
		h.pending[z.Index()] = nil
	}
}

func (h *Hub) cancelAll() {
	for z := elan.MinZone; z <= elan.MaxZone; z++ {
		h.cancelPending(z)
	}
}

// SetLink replaces the bridge link after a reconnect. A nil link makes
// commands fail until the next SetLink.
func (h *Hub) SetLink(w io.Writer) {
	h.linkMu.Lock()
	h.link = w
	h.linkMu.Unlock()
}

func (h *Hub) writeLink(data []byte) error {
	h.linkMu.Lock()
	defer h.linkMu.Unlock()
	if h.link == nil {
		return errNoLink
	}
	if _, err := h.link.Write(data); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// Handler returns the hub's HTTP routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveStatus)
	mux.HandleFunc("/raw", h.serveRaw)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("unhandled request", "url", r.URL.String())
		http.NotFound(w, r)
	})
	return h.basicAuth(mux)
}

func (h *Hub) basicAuth(next http.Handler) http.Handler {
	if h.cfg.Auth.Username == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Auth.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(h.cfg.Auth.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="elanbridge"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Hub) serveStatus(w http.ResponseWriter, r *http.Request) {
	enc, err := ParseEncoding(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade", "error", err)
		return
	}

	messageType := websocket.TextMessage
	if enc == EncodingCBOR {
		messageType = websocket.BinaryMessage
	}
	c := newClient(conn, messageType, enc)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	status := h.status
	h.mu.Unlock()

	go c.writePump()
	if msg, err := status.Encode(enc); err == nil {
		c.queue(msg)
	}
	h.logger.Debug("client connected", "remote", r.RemoteAddr, "clients", h.clientCount())

	defer h.drop(c)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			h.logger.Info("non-text message from client", "remote", r.RemoteAddr)
			continue
		}
		cmd, err := ParseClientCommand(string(data))
		if err != nil {
			h.logger.Info("bad client command", "error", err)
			continue
		}
		if err := h.Command(cmd); err != nil {
			h.logger.Warn("client command failed", "error", err)
		}
	}
}

func (h *Hub) serveRaw(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade", "error", err)
		return
	}
	c := newClient(conn, websocket.BinaryMessage, EncodingJSON)

	h.mu.Lock()
	h.raw[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	h.logger.Debug("raw client connected", "remote", r.RemoteAddr)

	defer h.drop(c)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if err := h.writeLink(data); err != nil {
			h.logger.Warn("raw passthrough", "error", err)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	delete(h.raw, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcastStatus() {
	h.mu.Lock()
	status := h.status
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var encoded [2][]byte
	for _, c := range targets {
		msg := encoded[c.encoding]
		if msg == nil {
			var err error
			msg, err = status.Encode(c.encoding)
			if err != nil {
				h.logger.Warn("encode status", "error", err)
				continue
			}
			encoded[c.encoding] = msg
		}
		if !c.queue(msg) {
			h.drop(c)
		}
	}
}

func (h *Hub) broadcastRaw(data []byte) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.raw))
	for c := range h.raw {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.queue(data) {
			h.drop(c)
		}
	}
}

func (h *Hub) closeClients() {
	h.mu.Lock()
	all := make([]*client, 0, len(h.clients)+len(h.raw))
	for c := range h.clients {
		all = append(all, c)
	}
	for c := range h.raw {
		all = append(all, c)
	}
	h.clients = make(map[*client]struct{})
	h.raw = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}
