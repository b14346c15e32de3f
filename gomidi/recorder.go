package gomidi

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/vsariola/beatbox"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type (
	// Recorder is an Instrument that remembers every message it is sent,
	// with the time it was sent, and can write them out as a Standard MIDI
	// File. Messages are forwarded to Next, if set, so a recorder can be put
	// in front of a real instrument.
	Recorder struct {
		Next beatbox.Instrument
		BPM  float64 // tempo written to the file; defaults to 120

		now    func() time.Time
		mu     sync.Mutex
		start  time.Time
		events []recordedMsg
	}

	recordedMsg struct {
		at  time.Duration
		msg midi.Message
	}
)

// recorderResolution is the number of file ticks per quarter note.
const recorderResolution = 960

func NewRecorder(next beatbox.Instrument, bpm float64) *Recorder {
	return &Recorder{Next: next, BPM: bpm, now: time.Now}
}

func (r *Recorder) NoteOn(channel, note, velocity int) error {
	r.record(midi.NoteOn(uint8(channel), uint8(note), uint8(velocity)))
	if r.Next == nil {
		return nil
	}
	return r.Next.NoteOn(channel, note, velocity)
}

func (r *Recorder) NoteOff(channel, note, velocity int) error {
	r.record(midi.NoteOff(uint8(channel), uint8(note)))
	if r.Next == nil {
		return nil
	}
	return r.Next.NoteOff(channel, note, velocity)
}

func (r *Recorder) ProgramChange(channel, preset int) error {
	r.record(midi.ProgramChange(uint8(channel), uint8(preset)))
	if r.Next == nil {
		return nil
	}
	return r.Next.ProgramChange(channel, preset)
}

// SetClock replaces the time source used to timestamp messages.
func (r *Recorder) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *Recorder) record(msg midi.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.start.IsZero() {
		r.start = now
	}
	r.events = append(r.events, recordedMsg{at: now.Sub(r.start), msg: msg})
}

// SMF builds a two track file: a tempo track and a track with the recorded
// messages, the first message at time 0.
func (r *Recorder) SMF() (*smf.SMF, error) {
	r.mu.Lock()
	events := make([]recordedMsg, len(r.events))
	copy(events, r.events)
	r.mu.Unlock()
	bpm := r.BPM
	if bpm <= 0 {
		bpm = 120
	}
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(recorderResolution)
	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return nil, fmt.Errorf("error adding tempo track: %w", err)
	}
	var track smf.Track
	var last uint32
	for _, e := range events {
		abs := durationToTicks(e.at, bpm)
		if abs < last { // timestamps from different goroutines may be slightly out of order
			abs = last
		}
		track.Add(abs-last, e.msg)
		last = abs
	}
	track.Close(0)
	if err := sm.Add(track); err != nil {
		return nil, fmt.Errorf("error adding note track: %w", err)
	}
	return sm, nil
}

// WriteTo writes the recording as a Standard MIDI File.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	sm, err := r.SMF()
	if err != nil {
		return 0, err
	}
	return sm.WriteTo(w)
}

func durationToTicks(d time.Duration, bpm float64) uint32 {
	return uint32(math.Round(d.Seconds() * bpm / 60 * recorderResolution))
}
