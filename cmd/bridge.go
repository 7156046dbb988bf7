// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/elanbridge/internal/bridge"
	"github.com/Thermoquad/elanbridge/internal/waveform"
	"github.com/Thermoquad/elanbridge/pkg/elan"
	"github.com/spf13/cobra"
)

var (
	ampPort        string
	ampBaud        int
	hostPort       string
	useGPIO        bool
	bridgeStats    int
	bridgeDebug    bool
	bridgeLogFile  string
	idleTimeout    time.Duration
	operandTimeout time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the amplifier bridge",
	Long: `Run the bridge between the amplifier and the host link.

The bridge reads the amplifier status UART, forwards each change (and a
keepalive every 100 identical frames) to the host link, and turns host
commands into ZPAD words on the amplifier's control inputs.

Host commands:
  'C' <channel> <code>   send a ZPAD code to a bus channel (17-22)
  'D' <zone> <volume>    walk a zone (1-6) to a volume (0-48)

With --gpio the control inputs are driven through the host GPIO lines
GPIO17-GPIO22 and the activity LED on GPIO25. Without it the bridge runs
dry: words are logged instead of sent.

The host link is --host-port, or stdin/stdout when it is not set.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&ampPort, "amp-port", "", "Amplifier status UART device (required)")
	bridgeCmd.Flags().IntVar(&ampBaud, "amp-baud", elan.BusBaudRate, "Amplifier status UART baud rate")
	bridgeCmd.Flags().StringVar(&hostPort, "host-port", "", "Host link serial device (default stdin/stdout)")
	bridgeCmd.Flags().BoolVar(&useGPIO, "gpio", false, "Drive the control inputs through host GPIO")
	bridgeCmd.Flags().IntVar(&bridgeStats, "stats-interval", 60, "Counter log interval in seconds (0 disables)")
	bridgeCmd.Flags().BoolVar(&bridgeDebug, "debug", false, "Enable debug logging")
	bridgeCmd.Flags().StringVar(&bridgeLogFile, "log-file", "", "Also append logs to this file")
	bridgeCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", elan.IdleTimeout, "Host silence before a keepalive is forced")
	bridgeCmd.Flags().DurationVar(&operandTimeout, "operand-timeout", elan.OperandTimeout, "Wait for each command operand byte")
	bridgeCmd.MarkFlagRequired("amp-port")
}

// stdioConnection is the host link when the bridge runs on a terminal or
// behind a pipe.
type stdioConnection struct {
	io.Reader
	io.Writer
}

func (stdioConnection) Close() error { return nil }

func runBridge(cmd *cobra.Command, args []string) error {
	closer, err := initLogger(bridgeDebug, bridgeLogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	amp, err := openSerialPort(ampPort, ampBaud, 100*time.Millisecond)
	if err != nil {
		return err
	}
	defer amp.Close()

	var host Connection = stdioConnection{Reader: os.Stdin, Writer: os.Stdout}
	hostInfo := "stdio"
	if hostPort != "" {
		host, err = OpenSerialConnection(hostPort, baudRate)
		if err != nil {
			return err
		}
		hostInfo = fmt.Sprintf("%s @ %d baud", hostPort, baudRate)
	}
	defer host.Close()

	opts := bridge.DefaultOptions()
	opts.IdleTimeout = idleTimeout
	opts.OperandTimeout = operandTimeout
	opts.Logger = logger

	var bank *waveform.Bank
	if useGPIO {
		bank, opts.Indicator, err = openGPIOBank(ctx)
		if err != nil {
			return err
		}
	} else {
		bank = dryRunBank()
	}

	dev := bridge.NewDevice(bank, host, opts)
	logger.Info("bridge started",
		"amp", fmt.Sprintf("%s @ %d baud", ampPort, ampBaud),
		"host", hostInfo,
		"gpio", useGPIO)

	errs := make(chan error, 2)
	go func() { errs <- dev.RunBus(ctx, amp) }()
	go func() { errs <- dev.Dispatcher(ctx, host).Run(ctx) }()

	var ticker <-chan time.Time
	if bridgeStats > 0 {
		t := time.NewTicker(time.Duration(bridgeStats) * time.Second)
		defer t.Stop()
		ticker = t.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("bridge stopped", "stats", dev.Stats().String())
			return nil
		case err := <-errs:
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				logger.Info("bridge stopped", "stats", dev.Stats().String())
				return nil
			}
			return err
		case <-ticker:
			logger.Info("counters", "stats", dev.Stats().String())
		}
	}
}

// openGPIOBank starts one pulse engine per bus channel and opens the
// activity LED.
func openGPIOBank(ctx context.Context) (*waveform.Bank, waveform.Line, error) {
	if err := waveform.InitHost(); err != nil {
		return nil, nil, err
	}

	bank, err := waveform.NewBank(func(ch elan.Channel) (waveform.Peripheral, error) {
		pin, err := waveform.ChannelPin(ch)
		if err != nil {
			return nil, err
		}
		line, err := waveform.OpenGPIO(pin)
		if err != nil {
			return nil, err
		}
		engine := waveform.NewEngine(line)
		engine.OnError = func(err error) {
			logger.Error("waveform", "channel", ch, "pin", pin, "error", err)
		}
		go engine.Run(ctx)
		return engine, nil
	})
	if err != nil {
		return nil, nil, err
	}

	led, err := waveform.OpenGPIO(waveform.LEDPin)
	if err != nil {
		return nil, nil, err
	}
	return bank, led, nil
}

// dryRunBank logs every word instead of driving hardware.
func dryRunBank() *waveform.Bank {
	bank, recs := waveform.Recorders()
	for _, r := range recs {
		r.OnPut = func(s waveform.Sent) {
			logger.Info("zpad",
				"channel", s.Channel,
				"code", elan.FormatCode(s.Word.Code()),
				"word", fmt.Sprintf("0x%08X", uint32(s.Word)))
		}
	}
	return bank
}
