// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hub serves amplifier status and control to websocket clients,
// talking to the bridge over its host link.
package hub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/elanbridge/pkg/elan"
)

// Status is the client-facing view of the amplifier.
type Status struct {
	Volume [elan.NumZones]int `json:"volume" cbor:"0,keyasint"`
	Mute   [elan.NumZones]int `json:"mute" cbor:"1,keyasint"`
	Input  [elan.NumZones]int `json:"input" cbor:"2,keyasint"`
	On     bool               `json:"on" cbor:"3,keyasint"`
}

// StatusFrom converts a decoded bus status. A received status means the
// system is on.
func StatusFrom(s elan.SystemStatus) Status {
	var out Status
	for i, c := range s {
		out.Volume[i] = int(c.Volume)
		if c.Muted {
			out.Mute[i] = 1
		}
		out.Input[i] = int(c.Input)
	}
	out.On = true
	return out
}

// Encoding selects the wire format for a client.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingCBOR
)

// ParseEncoding reads the ?format= query value.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "json":
		return EncodingJSON, nil
	case "cbor":
		return EncodingCBOR, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

// Encode marshals a status for the encoding.
func (s Status) Encode(enc Encoding) ([]byte, error) {
	if enc == EncodingCBOR {
		return cbor.Marshal(s)
	}
	return json.Marshal(s)
}

// ClientCommand is a parsed client message.
type ClientCommand struct {
	Slider bool
	Zone   elan.Zone
	Code   int // direct commands
	Volume int // slider commands
}

// ParseClientCommand parses "code:zone" (direct) or "x:zone:volume"
// (slider). The first field of a slider command is ignored.
func ParseClientCommand(msg string) (ClientCommand, error) {
	parts := strings.Split(strings.TrimSpace(msg), ":")
	switch len(parts) {
	case 2:
		code, err1 := strconv.Atoi(parts[0])
		zone, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return ClientCommand{}, fmt.Errorf("malformed command %q", msg)
		}
		if code < 0 || code > int(elan.MaxCode) || !validZone(zone) {
			return ClientCommand{}, fmt.Errorf("command out of range %q", msg)
		}
		return ClientCommand{Zone: elan.Zone(zone), Code: code}, nil

	case 3:
		zone, err1 := strconv.Atoi(parts[1])
		volume, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			return ClientCommand{}, fmt.Errorf("malformed slider command %q", msg)
		}
		if !validZone(zone) || elan.ValidateTarget(volume) != nil {
			return ClientCommand{}, fmt.Errorf("slider command out of range %q", msg)
		}
		return ClientCommand{Slider: true, Zone: elan.Zone(zone), Volume: volume}, nil

	default:
		return ClientCommand{}, fmt.Errorf("malformed command %q", msg)
	}
}

func validZone(z int) bool {
	return z >= int(elan.MinZone) && z <= int(elan.MaxZone)
}
