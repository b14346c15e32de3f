package gomidi_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/vsariola/beatbox"
	"github.com/vsariola/beatbox/gomidi"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type nopCloser struct{ bytes.Buffer }

func (*nopCloser) Close() error { return nil }

func TestInstrumentMessages(t *testing.T) {
	var sent [][]byte
	instrument := gomidi.NewInstrument("test", func(msg midi.Message) error {
		sent = append(sent, msg.Bytes())
		return nil
	})
	if err := instrument.NoteOn(9, 36, 100); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if err := instrument.NoteOff(9, 36, 0); err != nil {
		t.Fatalf("NoteOff failed: %v", err)
	}
	if err := instrument.ProgramChange(0, 5); err != nil {
		t.Fatalf("ProgramChange failed: %v", err)
	}
	want := [][]byte{{0x99, 36, 100}, {0x89, 36, 0}, {0xC0, 5}}
	if len(sent) != len(want) {
		t.Fatalf("sent %d messages, expected %d", len(sent), len(want))
	}
	for i := range want {
		if !bytes.Equal(sent[i], want[i]) {
			t.Errorf("message %d was % X, expected % X", i, sent[i], want[i])
		}
	}
}

func TestInstrumentRejectsOutOfRangeData(t *testing.T) {
	instrument := gomidi.NewInstrument("test", func(midi.Message) error { return nil })
	if err := instrument.NoteOn(16, 60, 100); err == nil {
		t.Errorf("NoteOn on channel 16 succeeded")
	}
	if err := instrument.NoteOn(0, 128, 100); err == nil {
		t.Errorf("NoteOn with note 128 succeeded")
	}
}

func TestInstrumentWrapsSendErrors(t *testing.T) {
	instrument := gomidi.NewInstrument("broken", func(midi.Message) error { return errors.New("port closed") })
	if err := instrument.NoteOn(0, 60, 100); !errors.Is(err, beatbox.ErrDeviceUnavailable) {
		t.Errorf("NoteOn returned %v, expected ErrDeviceUnavailable", err)
	}
}

func TestSerialWritesRawBytes(t *testing.T) {
	port := &nopCloser{}
	s := gomidi.NewSerial("uart", port)
	if err := s.NoteOn(0, 60, 64); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if got := port.Bytes(); !bytes.Equal(got, []byte{0x90, 60, 64}) {
		t.Errorf("wrote % X to the port", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestRecorderWritesSMF(t *testing.T) {
	next := &countingInstrument{}
	r := gomidi.NewRecorder(next, 120)
	clock := time.Unix(0, 0)
	r.SetClock(func() time.Time { return clock })
	r.NoteOn(0, 60, 100)
	clock = clock.Add(500 * time.Millisecond) // one beat at 120 bpm
	r.NoteOff(0, 60, 0)
	if r.Len() != 2 || next.calls != 2 {
		t.Fatalf("recorded %d messages and forwarded %d, expected 2 and 2", r.Len(), next.calls)
	}
	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	sm, err := smf.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("reading the written file failed: %v", err)
	}
	if len(sm.Tracks) != 2 {
		t.Fatalf("file has %d tracks, expected 2", len(sm.Tracks))
	}
	var ch, key, vel uint8
	var offDelta uint32
	notes := 0
	for _, ev := range sm.Tracks[1] {
		msg := midi.Message(ev.Message)
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			notes++
		case msg.GetNoteEnd(&ch, &key):
			offDelta = ev.Delta
		}
	}
	if notes != 1 {
		t.Errorf("file has %d note ons, expected 1", notes)
	}
	if offDelta != 960 {
		t.Errorf("note off %d ticks after the note on, expected 960", offDelta)
	}
}

type countingInstrument struct{ calls int }

func (c *countingInstrument) NoteOn(int, int, int) error   { c.calls++; return nil }
func (c *countingInstrument) NoteOff(int, int, int) error  { c.calls++; return nil }
func (c *countingInstrument) ProgramChange(int, int) error { c.calls++; return nil }
