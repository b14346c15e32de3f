package gomidi

import (
	"fmt"
	"io"

	"github.com/vsariola/beatbox"
	"gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
)

// DINBaudRate is the bit rate of the MIDI 1.0 DIN wire protocol. USB serial
// adapters that bridge to other rates can be opened with a different rate.
const DINBaudRate = 31250

type (
	// Serial is an Instrument writing raw MIDI bytes to a serial port, for
	// hardware connected with a UART (e.g. a microcontroller or a DIN
	// adapter) instead of a MIDI driver.
	Serial struct {
		*Instrument
		port io.WriteCloser
	}
)

// OpenSerial opens the named serial device. baud 0 uses DINBaudRate.
func OpenSerial(name string, baud int) (*Serial, error) {
	if baud <= 0 {
		baud = DINBaudRate
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: opening serial port %s at %d baud failed: %v", beatbox.ErrDeviceUnavailable, name, baud, err)
	}
	return NewSerial(name, p), nil
}

// NewSerial returns a Serial writing to an already open port.
func NewSerial(name string, port io.WriteCloser) *Serial {
	s := &Serial{port: port}
	s.Instrument = NewInstrument(name, func(msg midi.Message) error {
		_, err := port.Write(msg.Bytes())
		return err
	})
	return s
}

func (s *Serial) Close() error {
	return s.port.Close()
}
