// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elan

// Word is the 32-bit value consumed by a channel's waveform peripheral.
type Word uint32

// Command is a validated ZPAD command.
type Command struct {
	Channel Channel
	Code    Code
}

// NewCommand validates a channel and a command code. The code is taken as
// an int so values read from untrusted input are range-checked before they
// are narrowed.
func NewCommand(channel Channel, code int) (Command, error) {
	if code < 0 || code > int(MaxCode) {
		return Command{}, invalidCommand(code)
	}
	if !channel.Valid() {
		return Command{}, invalidChannel(channel)
	}
	return Command{Channel: channel, Code: Code(code)}, nil
}

// Word returns the waveform word for the command.
func (c Command) Word() Word {
	return Word(c.Code&codeMask) << CommandShift
}

// Encode validates a command and returns its waveform word.
func Encode(channel Channel, code int) (Word, error) {
	cmd, err := NewCommand(channel, code)
	if err != nil {
		return 0, err
	}
	return cmd.Word(), nil
}

// Code extracts the command code field.
func (w Word) Code() Code {
	return Code(w>>CommandShift) & codeMask
}

// HeaderBits returns the bits below the command field, always zero for a
// valid word.
func (w Word) HeaderBits() uint32 {
	return uint32(w) & headerMask
}

// Bit returns code bit i counted from the most significant (i = 0) to the
// least significant (i = CodeBits-1), the order the waveform sends them.
func (w Word) Bit(i int) bool {
	return w.Code()&(1<<(CodeBits-1-i)) != 0
}
