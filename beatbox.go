/*
Package beatbox contains the data model of a rule driven step sequencer.

A session counts time in a hierarchy of ticks, beats, bars and parts, each level
tracked by a Cycler. On every tick each Player tests its Rules against the
current Position and, if any of them matches, decides with its humanization
parameters (probability, sparse, swing, ratchet) whether and when to play its
note on an Instrument. The clock itself lives in package engine; this package
only has the plain data types, the Instrument capability and the commands
published about changes.
*/
package beatbox

import (
	"errors"
	"fmt"
)

type (
	// Instrument is anything that can play notes: a MIDI output port, a serial
	// MIDI adapter, a recorder. Implementations are called from the clock
	// goroutine and from timers scheduling delayed notes, so they need to be
	// safe for concurrent use. Methods may fail with ErrDeviceUnavailable.
	Instrument interface {
		NoteOn(channel, note, velocity int) error
		NoteOff(channel, note, velocity int) error
		ProgramChange(channel, preset int) error
	}

	// Repository is a set of persistence strategies for records of type T,
	// keyed by id. Save returns the stored record, with the id assigned if
	// the record was new (id 0).
	Repository[T any] struct {
		FindByID func(id int64) (T, error)
		Save     func(record T) (T, error)
		Delete   func(id int64) error
	}

	multiInstrument []Instrument
)

var (
	ErrInvalidLength     = errors.New("cycler length must be positive")
	ErrInvalidConfig     = errors.New("invalid session config")
	ErrInvalidPlayer     = errors.New("invalid player")
	ErrInvalidRule       = errors.New("invalid rule")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrUnknownRule       = errors.New("unknown rule")
	ErrDuplicatePlayer   = errors.New("player already attached")
	ErrTooManyTracks     = errors.New("session has no room for more players")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrNotFound          = errors.New("record not found")
)

// MultiInstrument returns an instrument that forwards every call to all of
// the given instruments, like io.MultiWriter. All instruments are called even
// if some of them fail; the errors are joined.
func MultiInstrument(instruments ...Instrument) Instrument {
	all := make(multiInstrument, 0, len(instruments))
	for _, i := range instruments {
		if m, ok := i.(multiInstrument); ok {
			all = append(all, m...)
		} else if i != nil {
			all = append(all, i)
		}
	}
	return all
}

func (m multiInstrument) NoteOn(channel, note, velocity int) error {
	return m.each(func(i Instrument) error { return i.NoteOn(channel, note, velocity) })
}

func (m multiInstrument) NoteOff(channel, note, velocity int) error {
	return m.each(func(i Instrument) error { return i.NoteOff(channel, note, velocity) })
}

func (m multiInstrument) ProgramChange(channel, preset int) error {
	return m.each(func(i Instrument) error { return i.ProgramChange(channel, preset) })
}

func (m multiInstrument) each(f func(Instrument) error) error {
	var errs []error
	for k, i := range m {
		if err := f(i); err != nil {
			errs = append(errs, fmt.Errorf("instrument %d: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
