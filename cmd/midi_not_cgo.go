//go:build !cgo

package cmd

import (
	"fmt"

	"github.com/vsariola/beatbox"
	"github.com/vsariola/beatbox/gomidi"
)

func OpenMIDIOutput(namePrefix string) (*gomidi.Instrument, func(), error) {
	// with no cgo, there is no rtmidi driver to open ports with
	return nil, nil, fmt.Errorf("%w: built without cgo, MIDI ports are not available", beatbox.ErrDeviceUnavailable)
}
