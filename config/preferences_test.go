package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vsariola/beatbox"
	"github.com/vsariola/beatbox/config"
)

func TestDefaultPreferences(t *testing.T) {
	p := config.DefaultPreferences()
	if p.Bus.Workers != 2 || p.Bus.ShutdownTimeout != 2*time.Second || p.StopTimeout != 3*time.Second {
		t.Errorf("unexpected defaults %+v", p)
	}
	if p.MIDI.SerialBaud != 31250 {
		t.Errorf("default serial baud %d, expected 31250", p.MIDI.SerialBaud)
	}
	kinds, err := p.StatusKinds()
	if err != nil {
		t.Fatalf("StatusKinds failed: %v", err)
	}
	if len(kinds) == 0 || kinds[0] != beatbox.CommandBeatAdvanced {
		t.Errorf("default status kinds %v", kinds)
	}
}

func TestCustomPreferencesOverrideDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.yml")
	os.WriteFile(path, []byte("midi:\n  output: IAC\nbus:\n  workers: 8\n"), 0644)
	p := config.DefaultPreferences()
	exists, err := config.ReadCustomConfigYml(path, &p)
	if !exists || err != nil {
		t.Fatalf("ReadCustomConfigYml returned %v, %v", exists, err)
	}
	if p.MIDI.Output != "IAC" || p.Bus.Workers != 8 {
		t.Errorf("custom values not read: %+v", p)
	}
	if p.Bus.QueueSize != 1024 || p.MIDI.SerialBaud != 31250 {
		t.Errorf("defaults not kept for missing keys: %+v", p)
	}
}

func TestCustomPreferencesAreStrict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.yml")
	os.WriteFile(path, []byte("bus:\n  wokers: 8\n"), 0644)
	p := config.DefaultPreferences()
	if _, err := config.ReadCustomConfigYml(path, &p); err == nil {
		t.Errorf("misspelled key was accepted")
	}
	exists, err := config.ReadCustomConfigYml(filepath.Join(t.TempDir(), "missing.yml"), &p)
	if exists || err != nil {
		t.Errorf("missing file returned %v, %v", exists, err)
	}
}

func TestStatusKindsRejectsUnknownNames(t *testing.T) {
	p := config.DefaultPreferences()
	p.Status.Commands = []string{"beat advanced", "beat exploded"}
	if _, err := p.StatusKinds(); !errors.Is(err, beatbox.ErrInvalidCommand) {
		t.Errorf("StatusKinds returned %v, expected ErrInvalidCommand", err)
	}
}
