package gomidi

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vsariola/beatbox"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type (
	// Instrument plays notes by sending MIDI channel messages, usually to an
	// output port. Sends are serialized, so the note ons of the clock and the
	// note offs of the scheduler never interleave their bytes.
	Instrument struct {
		name string
		mu   sync.Mutex
		send func(msg midi.Message) error
	}
)

// NewInstrument returns an Instrument sending its messages with send.
func NewInstrument(name string, send func(msg midi.Message) error) *Instrument {
	return &Instrument{name: name, send: send}
}

// OpenOutput opens the first output whose name starts with namePrefix; an
// empty prefix takes the first output there is.
func OpenOutput(outs []drivers.Out, namePrefix string) (*Instrument, drivers.Out, error) {
	for _, out := range outs {
		if !strings.HasPrefix(out.String(), namePrefix) {
			continue
		}
		send, err := midi.SendTo(out)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening MIDI output %s failed: %v", beatbox.ErrDeviceUnavailable, out.String(), err)
		}
		return NewInstrument(out.String(), send), out, nil
	}
	if namePrefix == "" {
		return nil, nil, fmt.Errorf("%w: could not find any MIDI output", beatbox.ErrDeviceUnavailable)
	}
	return nil, nil, fmt.Errorf("%w: could not find any MIDI output starting with %q", beatbox.ErrDeviceUnavailable, namePrefix)
}

func (i *Instrument) String() string { return i.name }

func (i *Instrument) NoteOn(channel, note, velocity int) error {
	if err := checkChannelData(channel, note, velocity); err != nil {
		return err
	}
	return i.sendMessage(midi.NoteOn(uint8(channel), uint8(note), uint8(velocity)))
}

func (i *Instrument) NoteOff(channel, note, velocity int) error {
	if err := checkChannelData(channel, note, velocity); err != nil {
		return err
	}
	if velocity == 0 {
		return i.sendMessage(midi.NoteOff(uint8(channel), uint8(note)))
	}
	return i.sendMessage(midi.NoteOffVelocity(uint8(channel), uint8(note), uint8(velocity)))
}

func (i *Instrument) ProgramChange(channel, preset int) error {
	if err := checkChannelData(channel, preset, 0); err != nil {
		return err
	}
	return i.sendMessage(midi.ProgramChange(uint8(channel), uint8(preset)))
}

func (i *Instrument) sendMessage(msg midi.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.send(msg); err != nil {
		return fmt.Errorf("%w: %s: %v", beatbox.ErrDeviceUnavailable, i.name, err)
	}
	return nil
}

func checkChannelData(channel, data1, data2 int) error {
	if channel < 0 || channel > 15 {
		return fmt.Errorf("MIDI channel %d out of range", channel)
	}
	if data1 < 0 || data1 > 127 || data2 < 0 || data2 > 127 {
		return fmt.Errorf("MIDI data bytes %d, %d out of range", data1, data2)
	}
	return nil
}
