// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/elanbridge/internal/hub"
	"github.com/spf13/cobra"
)

var (
	hubConfig  string
	hubListen  string
	hubLogFile string
	hubDebug   bool
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve the bridge to websocket clients",
	Long: `Serve amplifier status and control over websockets.

The hub connects to a bridge's host link and serves:
  /ws    status JSON ({volume,mute,input,on}) on connect, on every change
         and every update interval; accepts "code:zone" and "x:zone:volume"
         (?format=cbor sends CBOR status in binary messages)
  /raw   host link bytes in binary messages, both ways, for the host tools
         (--url ws://host:1338/raw)

Configuration is read from --config (yaml). The bridge serial port can also
be given with --port. When auth.username is set without a password, the
password is read from ELANBRIDGE_PASSWORD or prompted.`,
	RunE: runHub,
}

func init() {
	rootCmd.AddCommand(hubCmd)
	hubCmd.Flags().StringVarP(&hubConfig, "config", "c", "", "Hub configuration file (yaml)")
	hubCmd.Flags().StringVar(&hubListen, "listen", "", "Listen address (overrides config)")
	hubCmd.Flags().StringVar(&hubLogFile, "log-file", "", "Append logs to this file (overrides config)")
	hubCmd.Flags().BoolVar(&hubDebug, "debug", false, "Enable debug logging")
}

func loadHubConfig(cmd *cobra.Command) (*hub.Config, error) {
	cfg := hub.Defaults()
	if hubConfig != "" {
		var err error
		cfg, err = hub.Load(hubConfig)
		if err != nil {
			return nil, err
		}
	}

	if hubListen != "" {
		cfg.Listen = hubListen
	}
	if hubLogFile != "" {
		cfg.LogFile = hubLogFile
	}
	if portName != "" {
		cfg.Bridge.Port = portName
	}
	if cmd.Flags().Changed("baud") {
		cfg.Bridge.Baud = baudRate
	}
	if cfg.Bridge.Port == "" {
		return nil, fmt.Errorf("bridge port is required (--port or bridge.port)")
	}

	if cfg.Auth.Username != "" && cfg.Auth.Password == "" {
		password, err := GetPassword()
		if err != nil {
			return nil, err
		}
		cfg.Auth.Password = password
	}

	if err := hub.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runHub(cmd *cobra.Command, args []string) error {
	cfg, err := loadHubConfig(cmd)
	if err != nil {
		return err
	}

	closer, err := initLogger(hubDebug, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(cfg, nil, logger)
	go h.Run(ctx)
	go runHubLink(ctx, h, cfg)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logger.Info("hub listening", "addr", cfg.Listen, "bridge", cfg.Bridge.Port, "auth", cfg.Auth.Username != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runHubLink keeps the bridge link open, reconnecting with exponential
// backoff when it drops.
func runHubLink(ctx context.Context, h *hub.Hub, cfg *hub.Config) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		conn, err := OpenSerialConnection(cfg.Bridge.Port, cfg.Bridge.Baud)
		if err == nil {
			backoff = 1 * time.Second
			logger.Info("bridge link open", "port", cfg.Bridge.Port, "baud", cfg.Bridge.Baud)
			h.SetLink(conn)

			linkDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					conn.Close()
				case <-linkDone:
				}
			}()
			err = h.RunLink(ctx, conn)

			close(linkDone)
			h.SetLink(nil)
			conn.Close()
		}

		if ctx.Err() != nil {
			return
		}
		logger.Warn("bridge link lost", "error", err, "retry", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
