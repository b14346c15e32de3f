//go:build cgo

package cmd

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/vsariola/beatbox"
	"github.com/vsariola/beatbox/gomidi"
)

// OpenMIDIOutput opens the first MIDI output port whose name starts with
// namePrefix. The returned function closes the port and the driver.
func OpenMIDIOutput(namePrefix string) (*gomidi.Instrument, func(), error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: rtmididrv: %v", beatbox.ErrDeviceUnavailable, err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, nil, fmt.Errorf("%w: listing MIDI outputs failed: %v", beatbox.ErrDeviceUnavailable, err)
	}
	instrument, out, err := gomidi.OpenOutput(outs, namePrefix)
	if err != nil {
		drv.Close()
		return nil, nil, err
	}
	return instrument, func() {
		out.Close()
		drv.Close()
	}, nil
}
